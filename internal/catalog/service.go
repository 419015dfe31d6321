// Package catalog is the seller-facing product management: CRUD with
// ownership checks, discount windows, image storage, and a redis read cache
// for the public product views.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	kafkax "github.com/ariefcatur/go-marketplace.git/internal/kafka"
	"github.com/ariefcatur/go-marketplace.git/internal/market"
	"github.com/ariefcatur/go-marketplace.git/internal/redisx"
)

type Store interface {
	GetProduct(ctx context.Context, id uuid.UUID) (market.Product, error)
	ListProducts(ctx context.Context) ([]market.Product, error)
	CreateProduct(ctx context.Context, p market.Product) error
	UpdateProduct(ctx context.Context, p market.Product) error
	DeleteProductCascade(ctx context.Context, id uuid.UUID) (carts, orders int, err error)
}

// ImageStore is the external file storage; opaque to this core.
type ImageStore interface {
	Store(ctx context.Context, data []byte) (url string, err error)
}

// Publisher is satisfied by kafkax.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Store         Store
	Images        ImageStore
	Redis         *redis.Client // optional read cache; nil disables it
	DeletedEvents Publisher     // market.product.deleted
	ServiceName   string
}

// ProductInput carries the seller-editable fields.
type ProductInput struct {
	Title             string
	Description       string
	Price             decimal.Decimal
	Stock             int
	Threshold         int
	DiscountPercent   decimal.Decimal
	DiscountValidTill *time.Time
}

func (in ProductInput) validate() error {
	if in.Title == "" || len(in.Title) > 100 {
		return fmt.Errorf("%w: title is required, at most 100 characters", market.ErrValidation)
	}
	if len(in.Description) > 500 {
		return fmt.Errorf("%w: description is at most 500 characters", market.ErrValidation)
	}
	if !in.Price.IsPositive() {
		return fmt.Errorf("%w: price must be greater than 0", market.ErrValidation)
	}
	if in.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", market.ErrValidation)
	}
	if in.Threshold < 0 {
		return fmt.Errorf("%w: threshold must not be negative", market.ErrValidation)
	}
	if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: discount must be between 0 and 100", market.ErrValidation)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, sellerID string, in ProductInput) (market.Product, error) {
	if err := in.validate(); err != nil {
		return market.Product{}, err
	}
	p := market.Product{
		ID:                uuid.New(),
		SellerID:          sellerID,
		Title:             in.Title,
		Description:       in.Description,
		Price:             in.Price,
		Stock:             in.Stock,
		Threshold:         in.Threshold,
		DiscountPercent:   in.DiscountPercent,
		DiscountValidTill: in.DiscountValidTill,
		Version:           1,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.Store.CreateProduct(ctx, p); err != nil {
		return market.Product{}, err
	}
	return p, nil
}

// Update overwrites the editable fields. Only the owning seller (or an
// admin) may edit; the stock write bumps the version so in-flight checkouts
// against the old row retry.
func (s *Service) Update(ctx context.Context, sellerID string, admin bool, id uuid.UUID, in ProductInput) (market.Product, error) {
	if err := in.validate(); err != nil {
		return market.Product{}, err
	}
	p, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		return market.Product{}, err
	}
	if p.SellerID != sellerID && !admin {
		return market.Product{}, fmt.Errorf("product %s: %w", id, market.ErrForbidden)
	}
	p.Title = in.Title
	p.Description = in.Description
	p.Price = in.Price
	p.Stock = in.Stock
	p.Threshold = in.Threshold
	p.DiscountPercent = in.DiscountPercent
	p.DiscountValidTill = in.DiscountValidTill
	if err := s.Store.UpdateProduct(ctx, p); err != nil {
		return market.Product{}, err
	}
	s.invalidate(ctx, id)
	return p, nil
}

// SetImage stores the uploaded bytes and records the resulting URL.
func (s *Service) SetImage(ctx context.Context, sellerID string, admin bool, id uuid.UUID, data []byte) (market.Product, error) {
	if len(data) == 0 {
		return market.Product{}, fmt.Errorf("%w: image is empty", market.ErrValidation)
	}
	p, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		return market.Product{}, err
	}
	if p.SellerID != sellerID && !admin {
		return market.Product{}, fmt.Errorf("product %s: %w", id, market.ErrForbidden)
	}
	url, err := s.Images.Store(ctx, data)
	if err != nil {
		return market.Product{}, fmt.Errorf("store image: %w", err)
	}
	p.ImageURL = url
	if err := s.Store.UpdateProduct(ctx, p); err != nil {
		return market.Product{}, err
	}
	s.invalidate(ctx, id)
	return p, nil
}

// Delete removes a product and cascades to the cart entries and orders that
// reference it.
func (s *Service) Delete(ctx context.Context, sellerID string, admin bool, id uuid.UUID) error {
	p, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if p.SellerID != sellerID && !admin {
		return fmt.Errorf("product %s: %w", id, market.ErrForbidden)
	}
	carts, orders, err := s.Store.DeleteProductCascade(ctx, id)
	if err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.publishDeleted(p, carts, orders)
	return nil
}

// Get serves the product detail, cache-aside through redis.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (market.Product, error) {
	key := fmt.Sprintf(redisx.KeyProductCache, id)
	if s.Redis != nil {
		if b, err := s.Redis.Get(ctx, key).Bytes(); err == nil {
			var p market.Product
			if json.Unmarshal(b, &p) == nil {
				return p, nil
			}
		}
	}
	p, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		return market.Product{}, err
	}
	if s.Redis != nil {
		if b, err := json.Marshal(p); err == nil {
			_ = s.Redis.Set(ctx, key, b, redisx.TTLProductCache).Err()
		}
	}
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]market.Product, error) {
	return s.Store.ListProducts(ctx)
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.Redis != nil {
		_ = s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyProductCache, id)).Err()
	}
}

func (s *Service) publishDeleted(p market.Product, carts, orders int) {
	if s.DeletedEvents == nil {
		return
	}
	ev := market.Envelope{
		EventID:       uuid.NewString(),
		EventType:     market.EventProductDeleted,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: p.ID.String(),
		Payload: kafkax.MustMarshal(market.ProductDeletedPayload{
			ProductID:     p.ID.String(),
			SellerID:      p.SellerID,
			CartsRemoved:  carts,
			OrdersRemoved: orders,
		}),
	}
	s.DeletedEvents.Publish(market.PartitionKey(p.ID.String()), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(market.EventProductDeleted)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
