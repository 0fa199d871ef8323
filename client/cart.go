// Package client holds the storefront's client-side state: a cart mirror
// that treats the server as the single source of truth, and a realtime
// notification channel fed by the gateway's push events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"storefront/internal/models"

	"github.com/google/uuid"
)

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// APIError is a non-2xx response from the cart service, carrying the
// server's error envelope when one was present.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("cart service returned status %d", e.Status)
}

// CartStore mirrors the authoritative server cart. Every mutation
// round-trips through the backend; items is always the literal payload of
// the most recent accepted server response, never a client-side merge.
type CartStore struct {
	baseURL    string
	httpClient *http.Client
	userID     string

	mu       sync.Mutex
	items    []models.CartItem
	inflight int
	issued   uint64
	applied  uint64
}

func NewCartStore(baseURL string, httpClient *http.Client, userID string) *CartStore {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CartStore{
		baseURL:    baseURL,
		httpClient: httpClient,
		userID:     userID,
		items:      []models.CartItem{},
	}
}

type cartPayload struct {
	Items []models.CartItem `json:"items"`
}

type cartDataPayload struct {
	Data cartPayload `json:"data"`
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Fetch reloads the cart from the server. On any failure the local view
// resets to empty rather than keeping possibly stale lines; the error is
// logged, not returned.
func (s *CartStore) Fetch(ctx context.Context) {
	seq := s.begin()
	defer s.end()

	items, err := s.doFetch(ctx)
	if err != nil {
		log.Printf("cart fetch error: %v", err)
		s.apply(seq, []models.CartItem{})
		return
	}
	s.apply(seq, items)
}

func (s *CartStore) doFetch(ctx context.Context) ([]models.CartItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/cart?user_id="+s.userID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}
	var payload cartPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// AddItem upserts a line by product ID. No optimistic local change is
// applied, so a failure needs no rollback; the caller owns user feedback.
func (s *CartStore) AddItem(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	body := map[string]interface{}{
		"request_id": uuid.NewString(),
		"user_id":    s.userID,
		"product_id": productID,
		"quantity":   quantity,
	}
	return s.mutate(ctx, http.MethodPost, "/cart/items", body)
}

// UpdateItemQuantity changes an existing line's quantity. Quantity 0 is not
// a removal; use RemoveItem for that.
func (s *CartStore) UpdateItemQuantity(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	body := map[string]interface{}{
		"user_id":  s.userID,
		"quantity": quantity,
	}
	return s.mutate(ctx, http.MethodPut, "/cart/items/"+productID, body)
}

func (s *CartStore) RemoveItem(ctx context.Context, productID string) error {
	return s.mutate(ctx, http.MethodDelete, "/cart/items/"+productID+"?user_id="+s.userID, nil)
}

// Clear empties the cart, locally only after the server confirms.
func (s *CartStore) Clear(ctx context.Context) error {
	seq := s.begin()
	defer s.end()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/cart?user_id="+s.userID, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	s.apply(seq, []models.CartItem{})
	return nil
}

func (s *CartStore) mutate(ctx context.Context, method, path string, body map[string]interface{}) error {
	seq := s.begin()
	defer s.end()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	var payload cartDataPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}
	s.apply(seq, payload.Data.Items)
	return nil
}

// begin assigns an issue-order sequence number and marks an operation in
// flight.
func (s *CartStore) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	s.issued++
	return s.issued
}

func (s *CartStore) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
}

// apply replaces items wholesale unless a later-issued operation already
// landed, in which case the stale response is discarded. Concurrent
// mutations otherwise resolve last-write-wins by completion order.
func (s *CartStore) apply(seq uint64, items []models.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.applied {
		return
	}
	s.applied = seq
	if items == nil {
		items = []models.CartItem{}
	}
	s.items = items
}

// Items returns a copy of the current cart lines.
func (s *CartStore) Items() []models.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]models.CartItem, len(s.items))
	copy(items, s.items)
	return items
}

// Loading reports whether at least one operation is in flight.
func (s *CartStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Count sums quantities over lines whose product is still resolvable.
// Lines referencing a since-deleted product contribute nothing.
func (s *CartStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, item := range s.items {
		if item.Product == nil {
			continue
		}
		total += item.Quantity
	}
	return total
}

func responseError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var payload errorPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err == nil {
		apiErr.Code = payload.Error.Code
		apiErr.Message = payload.Error.Message
	}
	return apiErr
}
