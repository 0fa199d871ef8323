package main

import (
	"encoding/json"
	"testing"
	"time"

	"storefront/internal/hub"
	"storefront/internal/store"
)

const (
	testUserID  = "7df80c5e-9c4e-45b6-9d44-f23a1c270e3f"
	otherUserID = "b2f9d5f1-3f46-4b4f-a6c2-8d1e37e25c41"
)

func TestAwaitRegisterAcceptsValidUser(t *testing.T) {
	registered := make(chan hub.RegisterMessage, 1)
	registered <- hub.RegisterMessage{UserID: testUserID}

	reg, closeStatus, _ := awaitRegister(registered, time.Second)
	if closeStatus != 0 {
		t.Fatalf("close status = %d, want 0", closeStatus)
	}
	if reg.UserID != testUserID {
		t.Fatalf("user = %q, want %q", reg.UserID, testUserID)
	}
}

func TestAwaitRegisterRejectsInvalidUser(t *testing.T) {
	registered := make(chan hub.RegisterMessage, 1)
	registered <- hub.RegisterMessage{UserID: "not-a-uuid"}

	_, closeStatus, reason := awaitRegister(registered, time.Second)
	if closeStatus != closeInvalidUser {
		t.Fatalf("close status = %d, want %d", closeStatus, closeInvalidUser)
	}
	if reason != "invalid user" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestAwaitRegisterTimesOut(t *testing.T) {
	registered := make(chan hub.RegisterMessage, 1)

	_, closeStatus, reason := awaitRegister(registered, 5*time.Millisecond)
	if closeStatus != closeRegistrationRequired {
		t.Fatalf("close status = %d, want %d", closeStatus, closeRegistrationRequired)
	}
	if reason != "registration required" {
		t.Fatalf("reason = %q", reason)
	}
}

func registerTestClient(h *hub.Hub, userID string) *hub.Client {
	client := &hub.Client{ID: "c-" + userID, UserID: userID, Send: make(chan []byte, 4)}
	h.Register(client)
	return client
}

func receiveEnvelope(t *testing.T, client *hub.Client) eventEnvelope {
	t.Helper()
	select {
	case raw := <-client.Send:
		var envelope eventEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return envelope
	default:
		t.Fatal("expected a frame, got none")
		return eventEnvelope{}
	}
}

func TestDispatchPushesNotificationToUser(t *testing.T) {
	h := hub.New()
	target := registerTestClient(h, testUserID)
	bystander := registerTestClient(h, otherUserID)

	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	payload := json.RawMessage(`{"notification":{"notification_id":"n1","message":"Item added to your cart.","action_type":"cart_updated"},"total_notifications":3}`)
	dispatch(h, store.OutboxEvent{
		EventID:   "ev-1",
		UserID:    testUserID,
		Type:      store.EventNotificationCreated,
		Payload:   payload,
		CreatedAt: created,
	})

	envelope := receiveEnvelope(t, target)
	if envelope.Event != "notification" {
		t.Fatalf("event = %q, want notification", envelope.Event)
	}
	if !envelope.CreatedAt.Equal(created) {
		t.Fatalf("created_at = %v, want %v", envelope.CreatedAt, created)
	}
	var parsed struct {
		TotalNotifications int `json:"total_notifications"`
	}
	if err := json.Unmarshal(envelope.Payload, &parsed); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if parsed.TotalNotifications != 3 {
		t.Fatalf("total = %d, want 3", parsed.TotalNotifications)
	}

	select {
	case <-bystander.Send:
		t.Fatal("bystander received a targeted notification")
	default:
	}
}

func TestDispatchTargetedMessage(t *testing.T) {
	h := hub.New()
	target := registerTestClient(h, testUserID)
	bystander := registerTestClient(h, otherUserID)

	dispatch(h, store.OutboxEvent{
		EventID:   "ev-2",
		UserID:    testUserID,
		Type:      store.EventBroadcastMessage,
		Payload:   json.RawMessage(`{"message":"Maintenance at midnight."}`),
		CreatedAt: time.Now().UTC(),
	})

	envelope := receiveEnvelope(t, target)
	if envelope.Event != "notification-message" {
		t.Fatalf("event = %q, want notification-message", envelope.Event)
	}
	var message string
	if err := json.Unmarshal(envelope.Payload, &message); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if message != "Maintenance at midnight." {
		t.Fatalf("message = %q", message)
	}

	select {
	case <-bystander.Send:
		t.Fatal("bystander received a targeted message")
	default:
	}
}

func TestDispatchBroadcastsZeroUUIDMessage(t *testing.T) {
	h := hub.New()
	first := registerTestClient(h, testUserID)
	second := registerTestClient(h, otherUserID)

	dispatch(h, store.OutboxEvent{
		EventID:   "ev-3",
		UserID:    zeroUUID,
		Type:      store.EventBroadcastMessage,
		Payload:   json.RawMessage(`{"message":"Sale starts now."}`),
		CreatedAt: time.Now().UTC(),
	})

	for _, client := range []*hub.Client{first, second} {
		envelope := receiveEnvelope(t, client)
		if envelope.Event != "notification-message" {
			t.Fatalf("event = %q, want notification-message", envelope.Event)
		}
	}
}

func TestDispatchIgnoresUnknownEventTypes(t *testing.T) {
	h := hub.New()
	client := registerTestClient(h, testUserID)

	dispatch(h, store.OutboxEvent{
		EventID:   "ev-4",
		UserID:    testUserID,
		Type:      store.EventCartItemAdded,
		Payload:   json.RawMessage(`{"quantity":2}`),
		CreatedAt: time.Now().UTC(),
	})

	select {
	case <-client.Send:
		t.Fatal("cart events must not reach clients directly")
	default:
	}
}
