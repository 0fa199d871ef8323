package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/google/uuid"
)

// Store is the slice of the storage layer the worker needs.
type Store interface {
	ListOutboxEvents(ctx context.Context, after store.Offset, limit int) ([]store.OutboxEvent, error)
	GetOffset(ctx context.Context, consumer string) (store.Offset, error)
	UpdateOffset(ctx context.Context, consumer string, offset store.Offset) error
	AppendOutboxEvent(ctx context.Context, event store.OutboxEvent) error
	InsertNotification(ctx context.Context, notification models.Notification) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

type Worker struct {
	store     Store
	batchSize int
}

type Config struct {
	BatchSize int
}

type payloadData map[string]interface{}

func New(store Store, cfg Config) *Worker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &Worker{store: store, batchSize: batch}
}

func Start(ctx context.Context, interval time.Duration, w *Worker) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Run(ctx); err != nil {
				log.Printf("worker run error: %v", err)
			}
		}
	}
}

func (w *Worker) Run(ctx context.Context) error {
	offset, err := w.store.GetOffset(ctx, store.ConsumerWorker)
	if err != nil {
		return err
	}

	events, err := w.store.ListOutboxEvents(ctx, offset, w.batchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := w.processEvent(ctx, event); err != nil {
			log.Printf("notif process error: %v", err)
		}
		offset.LastEventTime = event.CreatedAt
		offset.LastEventID = event.EventID
	}

	if len(events) > 0 {
		if err := w.store.UpdateOffset(ctx, store.ConsumerWorker, offset); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) processEvent(ctx context.Context, event store.OutboxEvent) error {
	template, actionType := templateForEvent(event.Type)
	if template == "" {
		return nil
	}

	payload := payloadData{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}

	notification := models.Notification{
		NotificationID: uuid.NewString(),
		UserID:         event.UserID,
		Message:        renderTemplate(template, payload),
		ActionType:     actionType,
		CreatedAt:      time.Now().UTC(),
	}
	if err := w.store.InsertNotification(ctx, notification); err != nil {
		return err
	}

	total, err := w.store.CountUnread(ctx, event.UserID)
	if err != nil {
		return err
	}

	pushPayload, err := json.Marshal(pushEvent{
		Notification:       notification,
		TotalNotifications: total,
	})
	if err != nil {
		return err
	}
	return w.store.AppendOutboxEvent(ctx, store.OutboxEvent{
		UserID:  event.UserID,
		Type:    store.EventNotificationCreated,
		Payload: pushPayload,
	})
}

type pushEvent struct {
	Notification       models.Notification `json:"notification"`
	TotalNotifications int                 `json:"total_notifications"`
}

func templateForEvent(eventType string) (string, string) {
	switch eventType {
	case store.EventCartItemAdded:
		return "Item added to your cart.", models.ActionCartUpdated
	case store.EventCartItemUpdated:
		return "Cart quantity changed to {quantity}.", models.ActionCartUpdated
	case store.EventCartItemRemoved:
		return "Item removed from your cart.", models.ActionCartUpdated
	case store.EventCartCleared:
		return "Your cart was cleared.", models.ActionCartUpdated
	case store.EventOrderPlaced:
		return "Order {order_number} placed.", models.ActionOrderPlaced
	default:
		return "", ""
	}
}

func renderTemplate(template string, payload payloadData) string {
	result := template
	for key, value := range payload {
		placeholder := "{" + key + "}"
		if !strings.Contains(result, placeholder) {
			continue
		}
		result = strings.ReplaceAll(result, placeholder, stringify(value))
	}
	return result
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}
