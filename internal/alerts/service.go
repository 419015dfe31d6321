// Package alerts watches order events and raises a low-stock alert once a
// product's stock reaches the seller's threshold.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-marketplace.git/internal/kafka"
	"github.com/ariefcatur/go-marketplace.git/internal/market"
	"github.com/ariefcatur/go-marketplace.git/internal/redisx"
)

type ProductGetter interface {
	GetProduct(ctx context.Context, id uuid.UUID) (market.Product, error)
}

// Publisher is satisfied by kafkax.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Products    ProductGetter
	Redis       *redis.Client // optional dedup; nil disables it
	Producer    Publisher     // publishes market.stock.low
	ServiceName string
}

// HandleOrderPlaced is mounted as the consumer handler for order.placed.
func (s *Service) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	var env market.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != market.EventOrderPlaced {
		return nil // ignore
	}

	// dedup by event id so redeliveries never double-alert
	if s.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "alerts", env.EventID)
		if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
			return nil
		}
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	p, err := kafkax.UnwrapPayload[market.OrderPlacedPayload](env.Payload)
	if err != nil {
		return err
	}
	productID, err := uuid.Parse(p.ProductID)
	if err != nil {
		return err
	}

	product, err := s.Products.GetProduct(ctx, productID)
	if err != nil {
		// deleted between order and alert; nothing to do
		return nil
	}
	if product.Stock > product.Threshold {
		return nil
	}

	// one alert per (product, stock level); re-arms when the level changes
	if s.Redis != nil {
		akey := fmt.Sprintf(redisx.KeyStockAlert, product.ID, product.Stock)
		if exists, _ := redisx.Exists(ctx, s.Redis, akey); exists {
			return nil
		}
		_ = s.Redis.Set(ctx, akey, "1", redisx.TTLStockAlert).Err()
	}

	s.publishStockLow(product, env.TraceID)
	return nil
}

func (s *Service) publishStockLow(p market.Product, trace string) {
	if s.Producer == nil {
		return
	}
	ev := market.Envelope{
		EventID:       uuid.NewString(),
		EventType:     market.EventStockLow,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       trace,
		CorrelationID: p.ID.String(),
		Payload: kafkax.MustMarshal(market.StockLowPayload{
			ProductID: p.ID.String(),
			SellerID:  p.SellerID,
			Title:     p.Title,
			Stock:     p.Stock,
			Threshold: p.Threshold,
		}),
	}
	s.Producer.Publish(market.PartitionKey(p.ID.String()), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(market.EventStockLow)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
