package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"storefront/internal/models"
)

const testUserID = "6f1c8e3a-24fb-4a6e-9c1f-0b5d8a7e1234"

func cartJSON(items ...models.CartItem) string {
	payload, _ := json.Marshal(map[string]interface{}{"items": items})
	return string(payload)
}

func cartDataJSON(items ...models.CartItem) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"data": map[string]interface{}{"items": items},
	})
	return string(payload)
}

func productItem(productID string, quantity int) models.CartItem {
	return models.CartItem{Product: &models.Product{ProductID: productID}, Quantity: quantity}
}

func TestAddItemReplacesItemsWithServerResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/cart/items" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["product_id"] != "p1" {
			t.Errorf("expected product_id p1, got %v", body["product_id"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(cartDataJSON(productItem("p1", 2))))
	}))
	defer server.Close()

	store := NewCartStore(server.URL, nil, testUserID)
	if err := store.AddItem(context.Background(), "p1", 2); err != nil {
		t.Fatalf("add item: %v", err)
	}

	items := store.Items()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Product == nil || items[0].Product.ProductID != "p1" || items[0].Quantity != 2 {
		t.Fatalf("unexpected item %+v", items[0])
	}
	if got := store.Count(); got != 2 {
		t.Fatalf("expected count 2, got %d", got)
	}
}

func TestCountExcludesDeletedProducts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(cartJSON(models.CartItem{Product: nil, Quantity: 3})))
	}))
	defer server.Close()

	store := NewCartStore(server.URL, nil, testUserID)
	store.Fetch(context.Background())

	if len(store.Items()) != 1 {
		t.Fatalf("expected the orphaned line to stay in items, got %d lines", len(store.Items()))
	}
	if got := store.Count(); got != 0 {
		t.Fatalf("expected count 0 for deleted product, got %d", got)
	}
}

func TestCountMixedLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(cartJSON(
			productItem("p1", 2),
			models.CartItem{Product: nil, Quantity: 5},
			productItem("p2", 1),
		)))
	}))
	defer server.Close()

	store := NewCartStore(server.URL, nil, testUserID)
	store.Fetch(context.Background())
	if got := store.Count(); got != 3 {
		t.Fatalf("expected count 3, got %d", got)
	}
}

func TestFetchFailureFallsBackToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	store := NewCartStore(server.URL, nil, testUserID)
	store.items = []models.CartItem{productItem("p1", 4)}

	store.Fetch(context.Background())

	if len(store.Items()) != 0 {
		t.Fatalf("expected empty items after failed fetch, got %+v", store.Items())
	}
	if store.Loading() {
		t.Fatal("expected loading false after fetch returned")
	}
}

func TestMutationFailurePropagatesServerMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"request_id":"","error":{"code":"product_not_found","message":"product not found"}}`))
	}))
	defer server.Close()

	store := NewCartStore(server.URL, nil, testUserID)
	store.items = []models.CartItem{productItem("p1", 1)}

	err := store.AddItem(context.Background(), "p2", 1)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "product_not_found" || apiErr.Message != "product not found" {
		t.Fatalf("unexpected error payload %+v", apiErr)
	}
	// No optimistic change was applied, so nothing to roll back.
	if len(store.Items()) != 1 {
		t.Fatalf("expected items unchanged on failure, got %+v", store.Items())
	}
}

func TestQuantityValidationRejectsZero(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	store := NewCartStore(server.URL, nil, testUserID)
	if err := store.AddItem(context.Background(), "p1", 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if err := store.UpdateItemQuantity(context.Background(), "p1", 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if requests != 0 {
		t.Fatalf("expected no requests for invalid quantity, got %d", requests)
	}
}

func TestClearResetsOnlyAfterConfirmation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/cart" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	store := NewCartStore(server.URL, nil, testUserID)
	store.items = []models.CartItem{productItem("p1", 2)}

	if err := store.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(store.Items()) != 0 {
		t.Fatalf("expected empty cart, got %+v", store.Items())
	}
}

func TestClearFailureKeepsItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	store := NewCartStore(server.URL, nil, testUserID)
	store.items = []models.CartItem{productItem("p1", 2)}

	if err := store.Clear(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(store.Items()) != 1 {
		t.Fatalf("expected items kept on failed clear, got %+v", store.Items())
	}
}

// Two concurrent updates where the earlier-issued one resolves last: the
// stale response must be discarded instead of overwriting the newer state.
func TestConcurrentUpdatesDiscardStaleResponse(t *testing.T) {
	firstArrived := make(chan struct{})
	releaseFirst := make(chan struct{})
	var once sync.Once

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Quantity int `json:"quantity"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Quantity == 5 {
			once.Do(func() { close(firstArrived) })
			<-releaseFirst
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(cartDataJSON(productItem("p1", body.Quantity))))
	}))
	defer server.Close()

	store := NewCartStore(server.URL, nil, testUserID)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := store.UpdateItemQuantity(context.Background(), "p1", 5); err != nil {
			t.Errorf("first update: %v", err)
		}
	}()

	// The first update is in flight (its request reached the server) before
	// the second one is issued.
	<-firstArrived
	if err := store.UpdateItemQuantity(context.Background(), "p1", 9); err != nil {
		t.Fatalf("second update: %v", err)
	}
	close(releaseFirst)
	wg.Wait()

	items := store.Items()
	if len(items) != 1 || items[0].Quantity != 9 {
		t.Fatalf("expected the later-issued update to win, got %+v", items)
	}
	if store.Loading() {
		t.Fatal("expected loading false with no operations in flight")
	}
}

func TestSequentialMutationsMatchLastResponse(t *testing.T) {
	var last []models.CartItem
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch r.Method {
		case http.MethodPost:
			last = []models.CartItem{productItem("p1", 1)}
		case http.MethodPut:
			last = []models.CartItem{productItem("p1", 7)}
		case http.MethodDelete:
			last = []models.CartItem{}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(cartDataJSON(last...)))
	}))
	defer server.Close()

	store := NewCartStore(server.URL, nil, testUserID)
	ctx := context.Background()

	if err := store.AddItem(ctx, "p1", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.UpdateItemQuantity(ctx, "p1", 7); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := store.Count(); got != 7 {
		t.Fatalf("expected count 7, got %d", got)
	}
	if err := store.RemoveItem(ctx, "p1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(store.Items()) != 0 {
		t.Fatalf("expected empty items, got %+v", store.Items())
	}
}
