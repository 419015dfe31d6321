package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-marketplace.git/internal/auth"
	"github.com/ariefcatur/go-marketplace.git/internal/catalog"
	"github.com/ariefcatur/go-marketplace.git/internal/checkout"
	"github.com/ariefcatur/go-marketplace.git/internal/market"
	"github.com/ariefcatur/go-marketplace.git/internal/memstore"
)

func newTestRouter(st *memstore.Store) *chi.Mux {
	r := NewRouter()
	(&ProductsHandler{Catalog: &catalog.Service{Store: st, ServiceName: "test"}}).Register(r)
	(&CheckoutHandler{Svc: &checkout.Service{Store: st, ServiceName: "test"}}).Register(r)
	return r
}

func seedProduct(t *testing.T, st *memstore.Store, stock, threshold int) market.Product {
	t.Helper()
	p := market.Product{
		ID:        uuid.New(),
		SellerID:  "seller1",
		Title:     "apples",
		Price:     decimal.RequireFromString("2.50"),
		Stock:     stock,
		Threshold: threshold,
	}
	if err := st.CreateProduct(context.Background(), p); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return p
}

func doJSON(r http.Handler, method, path, user, role string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(auth.HeaderUserID, user)
	}
	if role != "" {
		req.Header.Set(auth.HeaderRole, role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMissingIdentity(t *testing.T) {
	r := newTestRouter(memstore.New())
	w := doJSON(r, http.MethodGet, "/orders", "", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestBuyNowEndpoint(t *testing.T) {
	st := memstore.New()
	r := newTestRouter(st)
	p := seedProduct(t, st, 10, 3)

	w := doJSON(r, http.MethodPost, "/buy", "buyer1", auth.RoleBuyer,
		BuyNowReq{ProductID: p.ID.String(), Qty: 2})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body)
	}
	var resp OrderResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != market.StatusPending {
		t.Errorf("expected PENDING, got %s", resp.Status)
	}
	if !resp.TotalAmount.Equal(decimal.RequireFromString("5")) {
		t.Errorf("expected total 5, got %s", resp.TotalAmount)
	}
}

func TestBuyNowEndpoint_BusinessRejections(t *testing.T) {
	st := memstore.New()
	r := newTestRouter(st)
	p := seedProduct(t, st, 10, 3)

	// insufficient stock and threshold breaches both map to 409
	for _, qty := range []int{11, 8} {
		w := doJSON(r, http.MethodPost, "/buy", "buyer1", auth.RoleBuyer,
			BuyNowReq{ProductID: p.ID.String(), Qty: qty})
		if w.Code != http.StatusConflict {
			t.Errorf("qty=%d: expected 409, got %d: %s", qty, w.Code, w.Body)
		}
	}

	w := doJSON(r, http.MethodPost, "/buy", "buyer1", auth.RoleBuyer,
		BuyNowReq{ProductID: p.ID.String(), Qty: 0})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad qty, got %d", w.Code)
	}
}

func TestCheckoutEndpoint_EmptyCartRedirects(t *testing.T) {
	r := newTestRouter(memstore.New())
	w := doJSON(r, http.MethodPost, "/checkout", "buyer1", auth.RoleBuyer, nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/cart" {
		t.Errorf("expected redirect to /cart, got %q", loc)
	}
}

func TestCartAndCheckoutFlow(t *testing.T) {
	st := memstore.New()
	r := newTestRouter(st)
	p := seedProduct(t, st, 10, 0)

	w := doJSON(r, http.MethodPost, "/cart", "buyer1", auth.RoleBuyer,
		AddToCartReq{ProductID: p.ID.String(), Qty: 3})
	if w.Code != http.StatusCreated {
		t.Fatalf("add to cart: expected 201, got %d: %s", w.Code, w.Body)
	}

	w = doJSON(r, http.MethodPost, "/checkout", "buyer1", auth.RoleBuyer, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d: %s", w.Code, w.Body)
	}
	var orders []OrderResp
	if err := json.Unmarshal(w.Body.Bytes(), &orders); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(orders) != 1 || orders[0].Qty != 3 {
		t.Fatalf("unexpected orders: %+v", orders)
	}

	w = doJSON(r, http.MethodPost, fmt.Sprintf("/orders/%s/cancel", orders[0].ID), "buyer1", auth.RoleBuyer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", w.Code, w.Body)
	}
	// second cancel is rejected
	w = doJSON(r, http.MethodPost, fmt.Sprintf("/orders/%s/cancel", orders[0].ID), "buyer1", auth.RoleBuyer, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("double cancel: expected 409, got %d", w.Code)
	}
}

func TestCreateProduct_RequiresSellerRole(t *testing.T) {
	r := newTestRouter(memstore.New())
	req := ProductReq{Title: "apples", Price: decimal.RequireFromString("1.00"), Stock: 5}

	w := doJSON(r, http.MethodPost, "/products", "buyer1", auth.RoleBuyer, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("buyer create: expected 403, got %d", w.Code)
	}
	w = doJSON(r, http.MethodPost, "/products", "seller1", auth.RoleSeller, req)
	if w.Code != http.StatusCreated {
		t.Errorf("seller create: expected 201, got %d: %s", w.Code, w.Body)
	}
}
