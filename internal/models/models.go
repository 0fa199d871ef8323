package models

import "time"

type Product struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name,omitempty"`
	PriceCents int64  `json:"price_cents,omitempty"`
}

// CartItem is one line of a cart. Product is nil when the referenced
// product row has been deleted since the line was created.
type CartItem struct {
	Product  *Product `json:"product"`
	Quantity int      `json:"quantity"`
}

type Cart struct {
	Items []CartItem `json:"items"`
}

type Notification struct {
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id,omitempty"`
	Message        string    `json:"message"`
	ActionType     string    `json:"action_type"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	ActionCartUpdated = "cart_updated"
	ActionOrderPlaced = "order_placed"
	ActionSystem      = "system"
)
