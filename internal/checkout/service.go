// Package checkout converts carts and buy-now requests into orders and runs
// the order lifecycle. All stock writes go through the store's version-token
// CAS; on a conflict the whole operation is re-read and retried from scratch,
// never partially applied.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	kafkax "github.com/ariefcatur/go-marketplace.git/internal/kafka"
	"github.com/ariefcatur/go-marketplace.git/internal/market"
)

// maxAttempts bounds the transparent retries on ErrConflict before the
// conflict surfaces to the caller as a transient failure.
const maxAttempts = 3

const (
	defaultOrderPageSize = 50
	maxOrderPageSize     = 200
)

// Store is the transactional persistence the orchestrator runs against.
type Store interface {
	GetProduct(ctx context.Context, id uuid.UUID) (market.Product, error)
	ListCart(ctx context.Context, userID string) ([]market.CartEntry, error)
	UpsertCartEntry(ctx context.Context, userID string, productID uuid.UUID, qty int) (market.CartEntry, error)
	RemoveCartEntry(ctx context.Context, userID string, entryID uuid.UUID) error
	ApplyCheckout(ctx context.Context, batch market.CheckoutBatch) error
	GetOrder(ctx context.Context, id uuid.UUID) (market.Order, error)
	TransitionOrder(ctx context.Context, orderID uuid.UUID, from, to market.Status, restock market.Restock) error
	ListOrders(ctx context.Context, userID string, limit, offset int) ([]market.Order, error)
}

// Publisher is satisfied by kafkax.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Store        Store
	PlacedEvents Publisher // market.order.placed
	CancelEvents Publisher // market.order.cancelled
	ServiceName  string
}

func (s *Service) AddToCart(ctx context.Context, userID string, productID uuid.UUID, qty int) (market.CartEntry, error) {
	if qty < 1 {
		return market.CartEntry{}, fmt.Errorf("%w: quantity must be at least 1", market.ErrValidation)
	}
	// Adding to the cart records intent only; no stock is held or checked
	// until checkout.
	if _, err := s.Store.GetProduct(ctx, productID); err != nil {
		return market.CartEntry{}, err
	}
	return s.Store.UpsertCartEntry(ctx, userID, productID, qty)
}

func (s *Service) RemoveFromCart(ctx context.Context, userID string, entryID uuid.UUID) error {
	return s.Store.RemoveCartEntry(ctx, userID, entryID)
}

// BuyNow places a single order, deducting stock atomically with the order
// write. Availability and threshold are checked against the same versioned
// read the deduction is CAS'd on.
func (s *Service) BuyNow(ctx context.Context, userID string, productID uuid.UUID, qty int) (market.Order, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		p, err := s.Store.GetProduct(ctx, productID)
		if err != nil {
			return market.Order{}, err
		}
		if err := market.CheckAvailability(p, qty); err != nil {
			return market.Order{}, err
		}

		order := buildOrder(userID, p, qty)
		batch := market.CheckoutBatch{
			Orders:     []market.Order{order},
			Deductions: []market.Deduction{{ProductID: p.ID, Qty: qty, ExpectedVersion: p.Version}},
		}
		err = s.Store.ApplyCheckout(ctx, batch)
		if errors.Is(err, market.ErrConflict) {
			continue
		}
		if err != nil {
			return market.Order{}, err
		}
		s.publishPlaced(order)
		return order, nil
	}
	return market.Order{}, fmt.Errorf("buy now: %w", market.ErrConflict)
}

// Checkout converts the user's whole cart into orders, all-or-nothing.
// Every entry is pre-flight validated against current stock before any
// deduction; the first failing product aborts the batch with no side
// effects. A mid-batch version conflict rolls the batch back and the whole
// checkout (read, validate, apply) is retried.
func (s *Service) Checkout(ctx context.Context, userID string) ([]market.Order, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		entries, err := s.Store.ListCart(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, market.ErrEmptyCart
		}

		batch := market.CheckoutBatch{CartEntryIDs: make([]uuid.UUID, 0, len(entries))}
		for _, e := range entries {
			p, err := s.Store.GetProduct(ctx, e.ProductID)
			if err != nil {
				return nil, fmt.Errorf("cart entry %s: %w", e.ID, err)
			}
			if err := market.CheckAvailability(p, e.Qty); err != nil {
				return nil, err
			}
			batch.Orders = append(batch.Orders, buildOrder(userID, p, e.Qty))
			batch.Deductions = append(batch.Deductions,
				market.Deduction{ProductID: p.ID, Qty: e.Qty, ExpectedVersion: p.Version})
			batch.CartEntryIDs = append(batch.CartEntryIDs, e.ID)
		}

		err = s.Store.ApplyCheckout(ctx, batch)
		if errors.Is(err, market.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, o := range batch.Orders {
			s.publishPlaced(o)
		}
		return batch.Orders, nil
	}
	return nil, fmt.Errorf("checkout: %w", market.ErrConflict)
}

// CancelOrder restores the stock of a pending order and marks it cancelled.
// The status-guarded transition means a second concurrent cancel loses the
// race and gets ErrInvalidTransition without a double restore.
func (s *Service) CancelOrder(ctx context.Context, userID string, orderID uuid.UUID) error {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.UserID != userID {
		return fmt.Errorf("order %s: %w", orderID, market.ErrForbidden)
	}
	err = s.Store.TransitionOrder(ctx, orderID, market.StatusPending, market.StatusCancelled,
		market.Restock{ProductID: o.ProductID, Qty: o.Qty})
	if err != nil {
		return err
	}
	s.publishCancelled(o)
	return nil
}

// MyOrders lists the user's orders newest first. Page size defaults to 50
// and is capped so large histories stay cheap to serve.
func (s *Service) MyOrders(ctx context.Context, userID string, limit, offset int) ([]market.Order, error) {
	if limit <= 0 {
		limit = defaultOrderPageSize
	}
	if limit > maxOrderPageSize {
		limit = maxOrderPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.Store.ListOrders(ctx, userID, limit, offset)
}

func buildOrder(userID string, p market.Product, qty int) market.Order {
	now := time.Now().UTC()
	// Billing uses the effective price at creation time, discount included.
	unit := p.EffectivePrice(now)
	return market.Order{
		ID:          uuid.New(),
		ProductID:   p.ID,
		UserID:      userID,
		Qty:         qty,
		UnitPrice:   unit,
		TotalAmount: unit.Mul(decimal.NewFromInt(int64(qty))),
		Status:      market.StatusPending,
		CreatedAt:   now,
	}
}

func (s *Service) publishPlaced(o market.Order) {
	if s.PlacedEvents == nil {
		return
	}
	ev := market.Envelope{
		EventID:       uuid.NewString(),
		EventType:     market.EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: o.ID.String(),
		Payload: kafkax.MustMarshal(market.OrderPlacedPayload{
			OrderID:     o.ID.String(),
			ProductID:   o.ProductID.String(),
			UserID:      o.UserID,
			Qty:         o.Qty,
			UnitPrice:   o.UnitPrice.String(),
			TotalAmount: o.TotalAmount.String(),
		}),
	}
	s.PlacedEvents.Publish(market.PartitionKey(o.ID.String()), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(market.EventOrderPlaced)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) publishCancelled(o market.Order) {
	if s.CancelEvents == nil {
		return
	}
	ev := market.Envelope{
		EventID:       uuid.NewString(),
		EventType:     market.EventOrderCancelled,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: o.ID.String(),
		Payload: kafkax.MustMarshal(market.OrderCancelledPayload{
			OrderID:   o.ID.String(),
			ProductID: o.ProductID.String(),
			UserID:    o.UserID,
			Restored:  o.Qty,
		}),
	}
	s.CancelEvents.Publish(market.PartitionKey(o.ID.String()), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(market.EventOrderCancelled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
