package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
)

type fakeStore struct {
	listFn   func(ctx context.Context, after store.Offset, limit int) ([]store.OutboxEvent, error)
	getOffFn func(ctx context.Context, consumer string) (store.Offset, error)
	updOffFn func(ctx context.Context, consumer string, offset store.Offset) error
	appendFn func(ctx context.Context, event store.OutboxEvent) error
	insertFn func(ctx context.Context, notification models.Notification) error
	countFn  func(ctx context.Context, userID string) (int, error)
}

func (f *fakeStore) ListOutboxEvents(ctx context.Context, after store.Offset, limit int) ([]store.OutboxEvent, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, after, limit)
}

func (f *fakeStore) GetOffset(ctx context.Context, consumer string) (store.Offset, error) {
	if f.getOffFn == nil {
		return store.Offset{}, nil
	}
	return f.getOffFn(ctx, consumer)
}

func (f *fakeStore) UpdateOffset(ctx context.Context, consumer string, offset store.Offset) error {
	if f.updOffFn == nil {
		return nil
	}
	return f.updOffFn(ctx, consumer, offset)
}

func (f *fakeStore) AppendOutboxEvent(ctx context.Context, event store.OutboxEvent) error {
	if f.appendFn == nil {
		return nil
	}
	return f.appendFn(ctx, event)
}

func (f *fakeStore) InsertNotification(ctx context.Context, notification models.Notification) error {
	if f.insertFn == nil {
		return nil
	}
	return f.insertFn(ctx, notification)
}

func (f *fakeStore) CountUnread(ctx context.Context, userID string) (int, error) {
	if f.countFn == nil {
		return 0, nil
	}
	return f.countFn(ctx, userID)
}

func TestRunComposesNotificationAndPushEvent(t *testing.T) {
	userID := "6f1c8e3a-24fb-4a6e-9c1f-0b5d8a7e1234"
	createdAt := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

	var inserted models.Notification
	var appended store.OutboxEvent
	var savedOffset store.Offset

	fake := &fakeStore{
		listFn: func(ctx context.Context, after store.Offset, limit int) ([]store.OutboxEvent, error) {
			return []store.OutboxEvent{{
				EventID:   "ev-1",
				UserID:    userID,
				Type:      store.EventCartItemUpdated,
				Payload:   []byte(`{"user_id":"` + userID + `","product_id":"p1","quantity":4}`),
				CreatedAt: createdAt,
			}}, nil
		},
		insertFn: func(ctx context.Context, notification models.Notification) error {
			inserted = notification
			return nil
		},
		countFn: func(ctx context.Context, gotUserID string) (int, error) {
			if gotUserID != userID {
				t.Errorf("expected user %s, got %s", userID, gotUserID)
			}
			return 5, nil
		},
		appendFn: func(ctx context.Context, event store.OutboxEvent) error {
			appended = event
			return nil
		},
		updOffFn: func(ctx context.Context, consumer string, offset store.Offset) error {
			if consumer != store.ConsumerWorker {
				t.Errorf("expected consumer %s, got %s", store.ConsumerWorker, consumer)
			}
			savedOffset = offset
			return nil
		},
	}

	w := New(fake, Config{})
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if inserted.UserID != userID || inserted.ActionType != models.ActionCartUpdated {
		t.Fatalf("unexpected notification %+v", inserted)
	}
	if inserted.Message != "Cart quantity changed to 4." {
		t.Fatalf("unexpected message %q", inserted.Message)
	}
	if inserted.IsRead {
		t.Fatal("new notifications must be unread")
	}

	if appended.Type != store.EventNotificationCreated || appended.UserID != userID {
		t.Fatalf("unexpected push event %+v", appended)
	}
	var push struct {
		Notification       models.Notification `json:"notification"`
		TotalNotifications int                 `json:"total_notifications"`
	}
	if err := json.Unmarshal(appended.Payload, &push); err != nil {
		t.Fatalf("decode push payload: %v", err)
	}
	if push.TotalNotifications != 5 {
		t.Fatalf("expected absolute total 5, got %d", push.TotalNotifications)
	}
	if push.Notification.NotificationID != inserted.NotificationID {
		t.Fatal("push payload must carry the stored notification")
	}

	if savedOffset.LastEventID != "ev-1" || !savedOffset.LastEventTime.Equal(createdAt) {
		t.Fatalf("unexpected offset %+v", savedOffset)
	}
}

func TestRunSkipsUnknownEventTypes(t *testing.T) {
	inserts := 0
	fake := &fakeStore{
		listFn: func(ctx context.Context, after store.Offset, limit int) ([]store.OutboxEvent, error) {
			return []store.OutboxEvent{{
				EventID: "ev-1",
				UserID:  "u1",
				Type:    store.EventNotificationCreated,
				Payload: []byte(`{}`),
			}}, nil
		},
		insertFn: func(ctx context.Context, notification models.Notification) error {
			inserts++
			return nil
		},
	}

	w := New(fake, Config{})
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if inserts != 0 {
		t.Fatalf("expected no notifications for gateway-only events, got %d", inserts)
	}
}

func TestTemplateForEvent(t *testing.T) {
	tests := []struct {
		eventType string
		action    string
	}{
		{store.EventCartItemAdded, models.ActionCartUpdated},
		{store.EventCartItemUpdated, models.ActionCartUpdated},
		{store.EventCartItemRemoved, models.ActionCartUpdated},
		{store.EventCartCleared, models.ActionCartUpdated},
		{store.EventOrderPlaced, models.ActionOrderPlaced},
	}
	for _, tc := range tests {
		template, action := templateForEvent(tc.eventType)
		if template == "" {
			t.Fatalf("%s: expected a template", tc.eventType)
		}
		if action != tc.action {
			t.Fatalf("%s: expected action %s, got %s", tc.eventType, tc.action, action)
		}
	}
	if template, _ := templateForEvent("something.else"); template != "" {
		t.Fatalf("expected no template for unknown type, got %q", template)
	}
}

func TestRenderTemplate(t *testing.T) {
	payload := payloadData{
		"order_number": "SO-1042",
		"quantity":     float64(3),
	}
	if got := renderTemplate("Order {order_number} placed.", payload); got != "Order SO-1042 placed." {
		t.Fatalf("unexpected render: %s", got)
	}
	if got := renderTemplate("Cart quantity changed to {quantity}.", payload); got != "Cart quantity changed to 3." {
		t.Fatalf("unexpected render: %s", got)
	}
}
