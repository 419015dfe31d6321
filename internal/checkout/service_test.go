package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-marketplace.git/internal/market"
	"github.com/ariefcatur/go-marketplace.git/internal/memstore"
)

type capturePublisher struct {
	mu     sync.Mutex
	values [][]byte
}

func (c *capturePublisher) Publish(_, value []byte, _ ...kafkago.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, value)
}

func (c *capturePublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

func newService(st Store) (*Service, *capturePublisher, *capturePublisher) {
	placed := &capturePublisher{}
	cancelled := &capturePublisher{}
	return &Service{
		Store:        st,
		PlacedEvents: placed,
		CancelEvents: cancelled,
		ServiceName:  "market-api-test",
	}, placed, cancelled
}

func seedProduct(t *testing.T, st *memstore.Store, title, price string, stock, threshold int) market.Product {
	t.Helper()
	p := market.Product{
		ID:        uuid.New(),
		SellerID:  "seller1",
		Title:     title,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		Threshold: threshold,
	}
	if err := st.CreateProduct(context.Background(), p); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	got, err := st.GetProduct(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("read back product: %v", err)
	}
	return got
}

func stockOf(t *testing.T, st *memstore.Store, id uuid.UUID) int {
	t.Helper()
	p, err := st.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return p.Stock
}

func TestBuyNow(t *testing.T) {
	st := memstore.New()
	svc, placed, _ := newService(st)
	p := seedProduct(t, st, "apples", "2.50", 10, 3)

	order, err := svc.BuyNow(context.Background(), "buyer1", p.ID, 4)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if order.Status != market.StatusPending {
		t.Errorf("expected PENDING, got %s", order.Status)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("10")) {
		t.Errorf("expected total 10, got %s", order.TotalAmount)
	}
	if got := stockOf(t, st, p.ID); got != 6 {
		t.Errorf("expected stock 6, got %d", got)
	}
	if placed.count() != 1 {
		t.Errorf("expected 1 placed event, got %d", placed.count())
	}
}

func TestBuyNow_BillsDiscountedPrice(t *testing.T) {
	st := memstore.New()
	svc, _, _ := newService(st)
	p := seedProduct(t, st, "pears", "100", 10, 0)
	p.DiscountPercent = decimal.RequireFromString("25")
	if err := st.UpdateProduct(context.Background(), p); err != nil {
		t.Fatalf("set discount: %v", err)
	}

	order, err := svc.BuyNow(context.Background(), "buyer1", p.ID, 2)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !order.UnitPrice.Equal(decimal.RequireFromString("75")) {
		t.Errorf("expected unit price 75, got %s", order.UnitPrice)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("150")) {
		t.Errorf("expected total 150, got %s", order.TotalAmount)
	}
}

func TestBuyNow_Rejections(t *testing.T) {
	st := memstore.New()
	svc, placed, _ := newService(st)
	p := seedProduct(t, st, "apples", "2.50", 10, 3)

	if _, err := svc.BuyNow(context.Background(), "buyer1", p.ID, 11); !errors.Is(err, market.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got: %v", err)
	}
	if _, err := svc.BuyNow(context.Background(), "buyer1", p.ID, 8); !errors.Is(err, market.ErrBelowThreshold) {
		t.Errorf("expected ErrBelowThreshold, got: %v", err)
	}
	if _, err := svc.BuyNow(context.Background(), "buyer1", p.ID, 0); !errors.Is(err, market.ErrValidation) {
		t.Errorf("expected ErrValidation, got: %v", err)
	}
	if got := stockOf(t, st, p.ID); got != 10 {
		t.Errorf("rejections must not touch stock, got %d", got)
	}
	if placed.count() != 0 {
		t.Errorf("rejections must not publish, got %d events", placed.count())
	}
}

func TestAddToCart_MergesDuplicates(t *testing.T) {
	st := memstore.New()
	svc, _, _ := newService(st)
	p := seedProduct(t, st, "apples", "2.50", 10, 0)

	if _, err := svc.AddToCart(context.Background(), "buyer1", p.ID, 2); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := svc.AddToCart(context.Background(), "buyer1", p.ID, 3); err != nil {
		t.Fatalf("second add: %v", err)
	}

	entries, err := st.ListCart(context.Background(), "buyer1")
	if err != nil {
		t.Fatalf("list cart: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected merged entry, got %d entries", len(entries))
	}
	if entries[0].Qty != 5 {
		t.Errorf("expected qty 5, got %d", entries[0].Qty)
	}

	// adding never holds stock
	if got := stockOf(t, st, p.ID); got != 10 {
		t.Errorf("cart must not deduct stock, got %d", got)
	}
}

func TestAddToCart_UnknownProduct(t *testing.T) {
	st := memstore.New()
	svc, _, _ := newService(st)
	if _, err := svc.AddToCart(context.Background(), "buyer1", uuid.New(), 1); !errors.Is(err, market.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestCheckout_AllOrNothing(t *testing.T) {
	st := memstore.New()
	svc, placed, _ := newService(st)
	a := seedProduct(t, st, "apples", "1", 5, 0)
	b := seedProduct(t, st, "bananas", "1", 3, 0)

	mustAdd(t, svc, "buyer1", a.ID, 5)
	mustAdd(t, svc, "buyer1", b.ID, 5) // more than b's stock

	_, err := svc.Checkout(context.Background(), "buyer1")
	if !errors.Is(err, market.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}
	if !strings.Contains(err.Error(), "bananas") {
		t.Errorf("error should name the failing product, got: %v", err)
	}
	if got := stockOf(t, st, a.ID); got != 5 {
		t.Errorf("product a stock must be untouched, got %d", got)
	}
	if got := stockOf(t, st, b.ID); got != 3 {
		t.Errorf("product b stock must be untouched, got %d", got)
	}
	entries, _ := st.ListCart(context.Background(), "buyer1")
	if len(entries) != 2 {
		t.Errorf("cart must be intact, got %d entries", len(entries))
	}
	if placed.count() != 0 {
		t.Errorf("no events on abort, got %d", placed.count())
	}
}

func TestCheckout(t *testing.T) {
	st := memstore.New()
	svc, placed, _ := newService(st)
	a := seedProduct(t, st, "apples", "2", 10, 2)
	b := seedProduct(t, st, "bananas", "3", 8, 0)

	mustAdd(t, svc, "buyer1", a.ID, 4)
	mustAdd(t, svc, "buyer1", b.ID, 2)

	orders, err := svc.Checkout(context.Background(), "buyer1")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if got := stockOf(t, st, a.ID); got != 6 {
		t.Errorf("expected apples stock 6, got %d", got)
	}
	if got := stockOf(t, st, b.ID); got != 6 {
		t.Errorf("expected bananas stock 6, got %d", got)
	}
	entries, _ := st.ListCart(context.Background(), "buyer1")
	if len(entries) != 0 {
		t.Errorf("cart must be consumed, got %d entries", len(entries))
	}
	if placed.count() != 2 {
		t.Errorf("expected 2 placed events, got %d", placed.count())
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	st := memstore.New()
	svc, _, _ := newService(st)
	if _, err := svc.Checkout(context.Background(), "buyer1"); !errors.Is(err, market.ErrEmptyCart) {
		t.Errorf("expected ErrEmptyCart, got: %v", err)
	}
}

func TestCancelOrder(t *testing.T) {
	st := memstore.New()
	svc, _, cancelled := newService(st)
	p := seedProduct(t, st, "apples", "2", 10, 0)

	order, err := svc.BuyNow(context.Background(), "buyer1", p.ID, 4)
	if err != nil {
		t.Fatalf("buy now: %v", err)
	}
	if got := stockOf(t, st, p.ID); got != 6 {
		t.Fatalf("expected stock 6 after buy, got %d", got)
	}

	if err := svc.CancelOrder(context.Background(), "buyer1", order.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := stockOf(t, st, p.ID); got != 10 {
		t.Errorf("cancel must restore the exact prior stock, got %d", got)
	}
	o, _ := st.GetOrder(context.Background(), order.ID)
	if o.Status != market.StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", o.Status)
	}
	if cancelled.count() != 1 {
		t.Errorf("expected 1 cancelled event, got %d", cancelled.count())
	}

	// second cancel is a no-op: no double restore
	err = svc.CancelOrder(context.Background(), "buyer1", order.ID)
	if !errors.Is(err, market.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got: %v", err)
	}
	if got := stockOf(t, st, p.ID); got != 10 {
		t.Errorf("second cancel must not touch stock, got %d", got)
	}
	if cancelled.count() != 1 {
		t.Errorf("second cancel must not publish, got %d", cancelled.count())
	}
}

func TestCancelOrder_Foreign(t *testing.T) {
	st := memstore.New()
	svc, _, _ := newService(st)
	p := seedProduct(t, st, "apples", "2", 10, 0)

	order, err := svc.BuyNow(context.Background(), "buyer1", p.ID, 1)
	if err != nil {
		t.Fatalf("buy now: %v", err)
	}
	if err := svc.CancelOrder(context.Background(), "buyer2", order.ID); !errors.Is(err, market.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got: %v", err)
	}
	if err := svc.CancelOrder(context.Background(), "buyer1", uuid.New()); !errors.Is(err, market.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestBuyNow_ConcurrentSingleUnit(t *testing.T) {
	st := memstore.New()
	svc, _, _ := newService(st)
	p := seedProduct(t, st, "last one", "9.99", 1, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.BuyNow(context.Background(), "buyer", p.ID, 1)
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, market.ErrInsufficientStock), errors.Is(err, market.ErrConflict):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Fatalf("expected exactly one winner, got ok=%d rejected=%d", ok, rejected)
	}
	if got := stockOf(t, st, p.ID); got != 0 {
		t.Errorf("expected final stock 0, got %d", got)
	}
}

// flakyStore forces the first n ApplyCheckout calls into a version conflict.
type flakyStore struct {
	Store
	conflicts int32
}

func (f *flakyStore) ApplyCheckout(ctx context.Context, batch market.CheckoutBatch) error {
	if atomic.AddInt32(&f.conflicts, -1) >= 0 {
		return market.ErrConflict
	}
	return f.Store.ApplyCheckout(ctx, batch)
}

func TestBuyNow_RetriesOnConflict(t *testing.T) {
	st := memstore.New()
	p := seedProduct(t, st, "apples", "2", 10, 0)

	svc, _, _ := newService(&flakyStore{Store: st, conflicts: 2})
	if _, err := svc.BuyNow(context.Background(), "buyer1", p.ID, 1); err != nil {
		t.Fatalf("expected retry to succeed, got: %v", err)
	}
	if got := stockOf(t, st, p.ID); got != 9 {
		t.Errorf("expected stock 9, got %d", got)
	}

	svc, _, _ = newService(&flakyStore{Store: st, conflicts: 99})
	if _, err := svc.BuyNow(context.Background(), "buyer1", p.ID, 1); !errors.Is(err, market.ErrConflict) {
		t.Errorf("expected ErrConflict after retry exhaustion, got: %v", err)
	}
	if got := stockOf(t, st, p.ID); got != 9 {
		t.Errorf("exhausted retries must not touch stock, got %d", got)
	}
}

func TestMyOrders(t *testing.T) {
	st := memstore.New()
	svc, _, _ := newService(st)
	p := seedProduct(t, st, "apples", "1", 100, 0)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		o, err := svc.BuyNow(context.Background(), "buyer1", p.ID, 1)
		if err != nil {
			t.Fatalf("buy now %d: %v", i, err)
		}
		ids = append(ids, o.ID)
		time.Sleep(2 * time.Millisecond) // distinct creation times
	}
	if _, err := svc.BuyNow(context.Background(), "buyer2", p.ID, 1); err != nil {
		t.Fatalf("other buyer: %v", err)
	}

	orders, err := svc.MyOrders(context.Background(), "buyer1", 0, 0)
	if err != nil {
		t.Fatalf("my orders: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	if orders[0].ID != ids[2] || orders[2].ID != ids[0] {
		t.Error("orders must be newest first")
	}

	page, err := svc.MyOrders(context.Background(), "buyer1", 2, 1)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[1] {
		t.Errorf("expected page [2nd, 3rd newest], got %d entries", len(page))
	}
}

func mustAdd(t *testing.T, svc *Service, user string, productID uuid.UUID, qty int) {
	t.Helper()
	if _, err := svc.AddToCart(context.Background(), user, productID, qty); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
}
