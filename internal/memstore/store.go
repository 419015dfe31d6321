// Package memstore is a mutex-guarded in-memory implementation of the
// checkout and catalog store contracts. It honors the same version-token
// semantics as the postgres repo and backs the service tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-marketplace.git/internal/market"
)

type Store struct {
	mu       sync.RWMutex
	products map[uuid.UUID]market.Product
	carts    map[uuid.UUID]market.CartEntry
	orders   map[uuid.UUID]market.Order
}

func New() *Store {
	return &Store{
		products: make(map[uuid.UUID]market.Product),
		carts:    make(map[uuid.UUID]market.CartEntry),
		orders:   make(map[uuid.UUID]market.Order),
	}
}

func (s *Store) GetProduct(_ context.Context, id uuid.UUID) (market.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return market.Product{}, fmt.Errorf("product: %w", market.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context) ([]market.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]market.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, p market.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Version == 0 {
		p.Version = 1
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.products[p.ID] = p
	return nil
}

func (s *Store) UpdateProduct(_ context.Context, p market.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.products[p.ID]
	if !ok {
		return fmt.Errorf("product: %w", market.ErrNotFound)
	}
	p.SellerID = cur.SellerID
	p.CreatedAt = cur.CreatedAt
	p.Version = cur.Version + 1
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = p
	return nil
}

func (s *Store) DeleteProductCascade(_ context.Context, id uuid.UUID) (carts, orders int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return 0, 0, fmt.Errorf("product: %w", market.ErrNotFound)
	}
	for cid, e := range s.carts {
		if e.ProductID == id {
			delete(s.carts, cid)
			carts++
		}
	}
	for oid, o := range s.orders {
		if o.ProductID == id {
			delete(s.orders, oid)
			orders++
		}
	}
	delete(s.products, id)
	return carts, orders, nil
}

func (s *Store) ListCart(_ context.Context, userID string) ([]market.CartEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []market.CartEntry
	for _, e := range s.carts {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpsertCartEntry(_ context.Context, userID string, productID uuid.UUID, qty int) (market.CartEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.carts {
		if e.UserID == userID && e.ProductID == productID {
			e.Qty += qty
			s.carts[id] = e
			return e, nil
		}
	}
	e := market.CartEntry{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		Qty:       qty,
		CreatedAt: time.Now().UTC(),
	}
	s.carts[e.ID] = e
	return e, nil
}

func (s *Store) RemoveCartEntry(_ context.Context, userID string, entryID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.carts[entryID]
	if !ok || e.UserID != userID {
		return fmt.Errorf("cart entry: %w", market.ErrNotFound)
	}
	delete(s.carts, entryID)
	return nil
}

// ApplyCheckout validates every deduction before touching anything, so a
// mid-batch conflict leaves the store exactly as it was.
func (s *Store) ApplyCheckout(_ context.Context, batch market.CheckoutBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range batch.Deductions {
		p, ok := s.products[d.ProductID]
		if !ok || p.Version != d.ExpectedVersion || p.Stock < d.Qty {
			return fmt.Errorf("product %s: %w", d.ProductID, market.ErrConflict)
		}
	}

	for _, d := range batch.Deductions {
		p := s.products[d.ProductID]
		p.Stock -= d.Qty
		p.Version++
		p.UpdatedAt = time.Now().UTC()
		s.products[d.ProductID] = p
	}
	for _, o := range batch.Orders {
		s.orders[o.ID] = o
	}
	for _, id := range batch.CartEntryIDs {
		delete(s.carts, id)
	}
	return nil
}

func (s *Store) GetOrder(_ context.Context, id uuid.UUID) (market.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return market.Order{}, fmt.Errorf("order: %w", market.ErrNotFound)
	}
	return o, nil
}

func (s *Store) TransitionOrder(_ context.Context, orderID uuid.UUID, from, to market.Status, restock market.Restock) error {
	if !market.CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, market.ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order: %w", market.ErrNotFound)
	}
	if o.Status != from {
		return fmt.Errorf("order %s is not %s: %w", orderID, from, market.ErrInvalidTransition)
	}
	o.Status = to
	s.orders[orderID] = o

	if restock.Qty > 0 {
		if p, ok := s.products[restock.ProductID]; ok {
			p.Stock += restock.Qty
			p.Version++
			s.products[restock.ProductID] = p
		}
	}
	return nil
}

func (s *Store) ListOrders(_ context.Context, userID string, limit, offset int) ([]market.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []market.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
