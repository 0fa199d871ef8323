package store

import (
	"context"
	"encoding/json"
	"time"

	"storefront/internal/models"
)

type UpsertItemInput struct {
	RequestID string
	UserID    string
	ProductID string
	Quantity  int
	CreatedAt time.Time
}

type UpdateQuantityInput struct {
	UserID    string
	ProductID string
	Quantity  int
}

type CartStore interface {
	GetCart(ctx context.Context, userID string) (models.Cart, error)
	UpsertItem(ctx context.Context, input UpsertItemInput) (models.Cart, error)
	UpdateItemQuantity(ctx context.Context, input UpdateQuantityInput) (models.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (models.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

type NotificationQuery struct {
	UserID string
	Page   int
	Limit  int
	IsRead *bool
}

type NotificationPage struct {
	Notifications      []models.Notification `json:"notifications"`
	TotalNotifications int                   `json:"total_notifications"`
}

type NotificationStore interface {
	ListNotifications(ctx context.Context, query NotificationQuery) (NotificationPage, error)
	InsertNotification(ctx context.Context, notification models.Notification) error
	MarkRead(ctx context.Context, userID string, notificationIDs []string) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

// OutboxEvent rows are written in the same transaction as the state change
// they describe; the worker and the gateway each consume them at their own
// offset.
type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	UserID    string          `json:"user_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type Offset struct {
	LastEventTime time.Time
	LastEventID   string
}

type OutboxStore interface {
	AppendOutboxEvent(ctx context.Context, event OutboxEvent) error
	ListOutboxEvents(ctx context.Context, after Offset, limit int) ([]OutboxEvent, error)
	GetOffset(ctx context.Context, consumer string) (Offset, error)
	UpdateOffset(ctx context.Context, consumer string, offset Offset) error
}

const (
	EventCartItemAdded       = "cart.item_added"
	EventCartItemUpdated     = "cart.item_updated"
	EventCartItemRemoved     = "cart.item_removed"
	EventCartCleared         = "cart.cleared"
	EventOrderPlaced         = "order.placed"
	EventNotificationCreated = "notification.created"
	EventBroadcastMessage    = "broadcast.message"
)

const (
	ConsumerGateway = "realtime-gateway"
	ConsumerWorker  = "notification-worker"
)
