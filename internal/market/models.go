package market

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID                uuid.UUID
	SellerID          string
	Title             string
	Description       string
	Price             decimal.Decimal
	Stock             int
	Threshold         int
	DiscountPercent   decimal.Decimal
	DiscountValidTill *time.Time
	ImageURL          string
	Version           int64 // optimistic-concurrency token, bumped on every stock write
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EffectivePrice is the price a buyer pays at instant now: discounted while
// DiscountPercent > 0 and the discount window is open, list price otherwise.
func (p Product) EffectivePrice(now time.Time) decimal.Decimal {
	if !p.DiscountPercent.IsPositive() {
		return p.Price
	}
	if p.DiscountValidTill != nil && p.DiscountValidTill.Before(now) {
		return p.Price
	}
	cut := p.Price.Mul(p.DiscountPercent).Div(decimal.NewFromInt(100))
	return p.Price.Sub(cut).Round(2)
}

type CartEntry struct {
	ID        uuid.UUID
	UserID    string
	ProductID uuid.UUID
	Qty       int
	CreatedAt time.Time
}

type Order struct {
	ID          uuid.UUID
	ProductID   uuid.UUID
	UserID      string
	Qty         int
	UnitPrice   decimal.Decimal // effective price at creation, discount included
	TotalAmount decimal.Decimal
	Status      Status
	CreatedAt   time.Time
}

// Deduction is one stock subtraction guarded by the version the caller read.
// The store applies it only if the product version is still ExpectedVersion.
type Deduction struct {
	ProductID       uuid.UUID
	Qty             int
	ExpectedVersion int64
}

// Restock undoes a deduction when a pending order is cancelled.
type Restock struct {
	ProductID uuid.UUID
	Qty       int
}

// CheckoutBatch is everything one checkout commits as a single atomic unit:
// the new orders, their stock deductions, and the consumed cart rows.
type CheckoutBatch struct {
	Orders       []Order
	Deductions   []Deduction
	CartEntryIDs []uuid.UUID
}
