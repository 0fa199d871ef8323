package store

import "errors"

var (
	ErrProductNotFound = errors.New("product not found")
	ErrItemNotFound    = errors.New("cart item not found")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrUserNotFound    = errors.New("user not found")
)
