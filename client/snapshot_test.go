package client

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"storefront/internal/models"
)

func TestSnapshotRoundTrip(t *testing.T) {
	store := NewCartStore("http://example.invalid", nil, testUserID)
	store.items = []models.CartItem{productItem("p1", 2), {Product: nil, Quantity: 3}}

	var buf bytes.Buffer
	if err := store.SaveSnapshot(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := NewCartStore("http://example.invalid", nil, testUserID)
	if err := restored.LoadSnapshot(&buf); err != nil {
		t.Fatalf("load: %v", err)
	}

	items := restored.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if restored.Count() != 2 {
		t.Fatalf("expected count 2 after restore, got %d", restored.Count())
	}
}

func TestSnapshotRejectsUnknownVersion(t *testing.T) {
	store := NewCartStore("http://example.invalid", nil, testUserID)
	payload := `{"version":99,"user_id":"` + testUserID + `","items":[]}`
	if err := store.LoadSnapshot(strings.NewReader(payload)); !errors.Is(err, ErrSnapshotVersion) {
		t.Fatalf("expected ErrSnapshotVersion, got %v", err)
	}
}

func TestSnapshotRejectsOtherUser(t *testing.T) {
	store := NewCartStore("http://example.invalid", nil, testUserID)
	payload := `{"version":1,"user_id":"someone-else","items":[]}`
	if err := store.LoadSnapshot(strings.NewReader(payload)); !errors.Is(err, ErrSnapshotUser) {
		t.Fatalf("expected ErrSnapshotUser, got %v", err)
	}
}
