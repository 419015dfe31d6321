package market

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrBelowThreshold    = errors.New("stock would fall below threshold")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrConflict          = errors.New("concurrent stock modification")

	// ErrEmptyCart signals a checkout against an empty cart. The HTTP layer
	// turns it into a redirect to the cart view, not an error page.
	ErrEmptyCart = errors.New("cart is empty")
)
