package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	carts         store.CartStore
	notifications store.NotificationStore
}

func NewHandler(carts store.CartStore, notifications store.NotificationStore) *Handler {
	return &Handler{carts: carts, notifications: notifications}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/cart", h.handleCart)
	mux.HandleFunc("/cart/items", h.handleCartItems)
	mux.HandleFunc("/cart/items/", h.handleCartItem)
	mux.HandleFunc("/get-notifications", h.handleListNotifications)
	mux.HandleFunc("/notifications/mark-read", h.handleMarkRead)
	return mux
}

type addItemRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	UserID   string `json:"user_id"`
	Quantity int    `json:"quantity"`
}

type markReadRequest struct {
	UserID          string   `json:"user_id"`
	NotificationIDs []string `json:"notification_ids"`
}

type cartResponse struct {
	Data models.Cart `json:"data"`
}

type notificationsResponse struct {
	Data store.NotificationPage `json:"data"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleCart(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetCart(w, r)
	case http.MethodDelete:
		h.handleClearCart(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	if !isValidUUID(userID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "user_id must be a UUID")
		return
	}

	cart, err := h.carts.GetCart(r.Context(), userID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	if !isValidUUID(userID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "user_id must be a UUID")
		return
	}

	if err := h.carts.ClearCart(r.Context(), userID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCartItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req addItemRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.ProductID = strings.TrimSpace(req.ProductID)

	if req.UserID == "" || req.ProductID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "user_id and product_id are required")
		return
	}
	if !isValidUUID(req.UserID) || !isValidUUID(req.ProductID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "user_id and product_id must be UUIDs")
		return
	}
	if req.RequestID != "" && !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID when provided")
		return
	}
	if req.Quantity < 1 {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "quantity must be at least 1")
		return
	}

	cart, err := h.carts.UpsertItem(r.Context(), store.UpsertItemInput{
		RequestID: req.RequestID,
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, cartResponse{Data: cart})
}

func (h *Handler) handleCartItem(w http.ResponseWriter, r *http.Request) {
	productID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/cart/items/"), "/")
	if productID == "" || strings.Contains(productID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !isValidUUID(productID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "product_id must be a UUID")
		return
	}

	switch r.Method {
	case http.MethodPut:
		h.handleUpdateItem(w, r, productID)
	case http.MethodDelete:
		h.handleRemoveItem(w, r, productID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request, productID string) {
	var req updateItemRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	if !isValidUUID(req.UserID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "user_id must be a UUID")
		return
	}
	if req.Quantity < 1 {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "quantity must be at least 1")
		return
	}

	cart, err := h.carts.UpdateItemQuantity(r.Context(), store.UpdateQuantityInput{
		UserID:    req.UserID,
		ProductID: productID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, cartResponse{Data: cart})
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request, productID string) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	if !isValidUUID(userID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "user_id must be a UUID")
		return
	}

	cart, err := h.carts.RemoveItem(r.Context(), userID, productID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, cartResponse{Data: cart})
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	if !isValidUUID(userID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "user_id must be a UUID")
		return
	}

	query := store.NotificationQuery{UserID: userID, Page: 1, Limit: 20}
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "page must be a positive integer")
			return
		}
		query.Page = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		query.Limit = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("is_read")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "is_read must be a boolean")
			return
		}
		query.IsRead = &parsed
	}

	page, err := h.notifications.ListNotifications(r.Context(), query)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, notificationsResponse{Data: page})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req markReadRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || len(req.NotificationIDs) == 0 {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "user_id and notification_ids are required")
		return
	}
	if !isValidUUID(req.UserID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "user_id must be a UUID")
		return
	}
	for _, id := range req.NotificationIDs {
		if !isValidUUID(id) {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "notification_ids must be UUIDs")
			return
		}
	}

	if err := h.notifications.MarkRead(r.Context(), req.UserID, req.NotificationIDs); err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrProductNotFound):
		return http.StatusNotFound, "product_not_found", "product not found"
	case errors.Is(err, store.ErrItemNotFound):
		return http.StatusNotFound, "item_not_found", "cart item not found"
	case errors.Is(err, store.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_quantity", "quantity must be at least 1"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
