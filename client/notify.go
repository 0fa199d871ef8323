package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"storefront/internal/models"

	"github.com/cenkalti/backoff/v5"
)

type ChannelState int32

const (
	StateDisconnected ChannelState = iota
	StateConnecting
	StateConnected
)

func (s ChannelState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Alert is what subscribers receive when a push event lands.
type Alert struct {
	Message      string
	Notification *models.Notification
}

// NotificationChannel maintains one long-lived push connection per
// authenticated user. Unread counts are absolute values assigned from
// server events, never incremented locally, so missed or duplicated
// events cannot make the badge drift.
type NotificationChannel struct {
	transport     Transport
	apiBaseURL    string
	httpClient    *http.Client
	userID        string
	displayWindow time.Duration
	reconnectMin  time.Duration

	mu                  sync.Mutex
	state               ChannelState
	unreadCount         int
	latestNotification  *models.Notification
	transientMessage    string
	notificationVisible bool
	messageVisible      bool
	notificationTimer   *time.Timer
	messageTimer        *time.Timer
	subscribers         map[int]func(Alert)
	nextSubscriberID    int
	conn                Conn

	done      chan struct{}
	closeOnce sync.Once
}

type ChannelConfig struct {
	Transport     Transport
	APIBaseURL    string
	HTTPClient    *http.Client
	UserID        string
	DisplayWindow time.Duration
}

const defaultDisplayWindow = 5 * time.Second

func NewNotificationChannel(cfg ChannelConfig) *NotificationChannel {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	window := cfg.DisplayWindow
	if window <= 0 {
		window = defaultDisplayWindow
	}
	return &NotificationChannel{
		transport:     cfg.Transport,
		apiBaseURL:    cfg.APIBaseURL,
		httpClient:    httpClient,
		userID:        cfg.UserID,
		displayWindow: window,
		reconnectMin:  time.Second,
		subscribers:   make(map[int]func(Alert)),
		done:          make(chan struct{}),
	}
}

// Start seeds the unread badge from the REST endpoint, then runs the
// connect/register/read loop until Close. Reconnects re-register identity
// every time.
func (c *NotificationChannel) Start(ctx context.Context) {
	if count, err := c.fetchUnreadCount(ctx); err != nil {
		log.Printf("unread count fetch error: %v", err)
	} else {
		c.mu.Lock()
		c.unreadCount = count
		c.mu.Unlock()
	}
	go c.run(ctx)
}

func (c *NotificationChannel) run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.reconnectMin
	bo.MaxInterval = 30 * time.Second

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			c.Close()
			return
		default:
		}

		c.setState(StateConnecting)
		conn, err := c.transport.Connect(ctx)
		if err != nil {
			c.setState(StateDisconnected)
			if !c.wait(ctx, bo.NextBackOff()) {
				return
			}
			continue
		}

		register, _ := json.Marshal(map[string]string{"action": "register", "user_id": c.userID})
		if err := conn.Send(register); err != nil {
			_ = conn.Close()
			c.setState(StateDisconnected)
			if !c.wait(ctx, bo.NextBackOff()) {
				return
			}
			continue
		}

		c.mu.Lock()
		if isClosed(c.done) {
			c.state = StateDisconnected
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.state = StateConnected
		c.mu.Unlock()
		bo.Reset()

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.state = StateDisconnected
		c.mu.Unlock()

		if !c.wait(ctx, bo.NextBackOff()) {
			return
		}
	}
}

func (c *NotificationChannel) readLoop(conn Conn) {
	for {
		data, err := conn.Receive()
		if err != nil {
			return
		}
		c.handleFrame(data)
	}
}

type incomingEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type notificationEvent struct {
	Notification       models.Notification `json:"notification"`
	TotalNotifications int                 `json:"total_notifications"`
}

func (c *NotificationChannel) handleFrame(data []byte) {
	var envelope incomingEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		log.Printf("notification frame error: %v", err)
		return
	}

	switch envelope.Event {
	case "notification":
		var event notificationEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			log.Printf("notification payload error: %v", err)
			return
		}
		c.applyNotification(event)
	case "notification-message":
		var message string
		if err := json.Unmarshal(envelope.Payload, &message); err != nil {
			log.Printf("notification message error: %v", err)
			return
		}
		c.applyMessage(message)
	}
}

func (c *NotificationChannel) applyNotification(event notificationEvent) {
	c.mu.Lock()
	if isClosed(c.done) {
		c.mu.Unlock()
		return
	}
	notification := event.Notification
	c.unreadCount = event.TotalNotifications
	c.latestNotification = &notification
	c.notificationVisible = true
	c.armTimerLocked(&c.notificationTimer, func() {
		c.mu.Lock()
		c.notificationVisible = false
		c.mu.Unlock()
	})
	subscribers := c.snapshotSubscribersLocked()
	c.mu.Unlock()

	alert := Alert{Message: notification.Message, Notification: &notification}
	for _, fn := range subscribers {
		fn(alert)
	}
}

func (c *NotificationChannel) applyMessage(message string) {
	c.mu.Lock()
	if isClosed(c.done) {
		c.mu.Unlock()
		return
	}
	c.transientMessage = message
	c.messageVisible = true
	c.armTimerLocked(&c.messageTimer, func() {
		c.mu.Lock()
		c.messageVisible = false
		c.mu.Unlock()
	})
	subscribers := c.snapshotSubscribersLocked()
	c.mu.Unlock()

	alert := Alert{Message: message}
	for _, fn := range subscribers {
		fn(alert)
	}
}

// armTimerLocked restarts the display window. Expiry hides the transient
// presentation only; slot values stay until replaced, so re-triggering the
// same content re-arms without flicker.
func (c *NotificationChannel) armTimerLocked(timer **time.Timer, expire func()) {
	if *timer != nil {
		(*timer).Stop()
	}
	*timer = time.AfterFunc(c.displayWindow, expire)
}

func (c *NotificationChannel) snapshotSubscribersLocked() []func(Alert) {
	subscribers := make([]func(Alert), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subscribers = append(subscribers, fn)
	}
	return subscribers
}

// Subscribe registers fn for future alerts and returns its unsubscribe
// handle. All handles are dropped on Close.
func (c *NotificationChannel) Subscribe(fn func(Alert)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubscriberID++
	id := c.nextSubscriberID
	c.subscribers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

func (c *NotificationChannel) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unreadCount
}

func (c *NotificationChannel) LatestNotification() *models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latestNotification == nil {
		return nil
	}
	notification := *c.latestNotification
	return &notification
}

func (c *NotificationChannel) TransientMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transientMessage
}

func (c *NotificationChannel) NotificationVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notificationVisible
}

func (c *NotificationChannel) MessageVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messageVisible
}

func (c *NotificationChannel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *NotificationChannel) setState(state ChannelState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// Close tears the channel down: idempotent, detaches every subscriber, and
// guarantees events arriving on the old connection change nothing.
func (c *NotificationChannel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
		if c.notificationTimer != nil {
			c.notificationTimer.Stop()
		}
		if c.messageTimer != nil {
			c.messageTimer.Stop()
		}
		c.subscribers = make(map[int]func(Alert))
		c.state = StateDisconnected
		c.mu.Unlock()
	})
}

func (c *NotificationChannel) wait(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-c.done:
		return false
	case <-ctx.Done():
		c.Close()
		return false
	case <-timer.C:
		return true
	}
}

func (c *NotificationChannel) fetchUnreadCount(ctx context.Context) (int, error) {
	url := fmt.Sprintf("%s/get-notifications?page=1&limit=1&is_read=false&user_id=%s", c.apiBaseURL, c.userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, responseError(resp)
	}
	var payload struct {
		Data struct {
			TotalNotifications int `json:"total_notifications"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, err
	}
	return payload.Data.TotalNotifications, nil
}

func isClosed(done chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
