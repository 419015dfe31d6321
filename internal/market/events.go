package market

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderCancelled = "OrderCancelled"
	EventStockLow       = "StockLow"
	EventProductDeleted = "ProductDeleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "market-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload types per event ----

type OrderPlacedPayload struct {
	OrderID     string `json:"order_id"`
	ProductID   string `json:"product_id"`
	UserID      string `json:"user_id"`
	Qty         int    `json:"qty"`
	UnitPrice   string `json:"unit_price"`
	TotalAmount string `json:"total_amount"`
}

type OrderCancelledPayload struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id"`
	Restored  int    `json:"restored"` // qty returned to stock
}

type StockLowPayload struct {
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id"`
	Title     string `json:"title"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
}

type ProductDeletedPayload struct {
	ProductID     string `json:"product_id"`
	SellerID      string `json:"seller_id"`
	CartsRemoved  int    `json:"carts_removed"`
	OrdersRemoved int    `json:"orders_removed"`
}
