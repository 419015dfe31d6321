package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-marketplace.git/internal/auth"
	"github.com/ariefcatur/go-marketplace.git/internal/checkout"
	"github.com/ariefcatur/go-marketplace.git/internal/market"
)

type CheckoutHandler struct {
	Svc *checkout.Service
}

type AddToCartReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type BuyNowReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CartEntryResp struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Qty       int       `json:"qty"`
	CreatedAt time.Time `json:"created_at"`
}

type OrderResp struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	Qty         int             `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      market.Status   `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toOrderResp(o market.Order) OrderResp {
	return OrderResp{
		ID:          o.ID.String(),
		ProductID:   o.ProductID.String(),
		Qty:         o.Qty,
		UnitPrice:   o.UnitPrice,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
		CreatedAt:   o.CreatedAt,
	}
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Get("/cart", h.listCart)
		r.Post("/cart", h.addToCart)
		r.Delete("/cart/{id}", h.removeFromCart)
		r.Post("/checkout", h.checkoutCart)
		r.Post("/buy", h.buyNow)
		r.Get("/orders", h.myOrders)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
	})
}

func (h *CheckoutHandler) listCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, 3*time.Second)
	defer cancel()

	entries, err := h.Svc.Store.ListCart(ctx, auth.UserID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]CartEntryResp, 0, len(entries))
	for _, e := range entries {
		out = append(out, CartEntryResp{
			ID:        e.ID.String(),
			ProductID: e.ProductID.String(),
			Qty:       e.Qty,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CheckoutHandler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req AddToCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", market.ErrValidation))
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid product id", market.ErrValidation))
		return
	}
	ctx, cancel := contextWithTimeout(r, 5*time.Second)
	defer cancel()

	e, err := h.Svc.AddToCart(ctx, auth.UserID(ctx), productID, req.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CartEntryResp{
		ID:        e.ID.String(),
		ProductID: e.ProductID.String(),
		Qty:       e.Qty,
		CreatedAt: e.CreatedAt,
	})
}

func (h *CheckoutHandler) removeFromCart(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid cart entry id", market.ErrValidation))
		return
	}
	ctx, cancel := contextWithTimeout(r, 5*time.Second)
	defer cancel()

	if err := h.Svc.RemoveFromCart(ctx, auth.UserID(ctx), entryID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": entryID.String()})
}

func (h *CheckoutHandler) buyNow(w http.ResponseWriter, r *http.Request) {
	var req BuyNowReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", market.ErrValidation))
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid product id", market.ErrValidation))
		return
	}
	ctx, cancel := contextWithTimeout(r, 5*time.Second)
	defer cancel()

	o, err := h.Svc.BuyNow(ctx, auth.UserID(ctx), productID, req.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResp(o))
}

func (h *CheckoutHandler) checkoutCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, 10*time.Second)
	defer cancel()

	orders, err := h.Svc.Checkout(ctx, auth.UserID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]OrderResp, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResp(o))
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *CheckoutHandler) myOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, 3*time.Second)
	defer cancel()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	orders, err := h.Svc.MyOrders(ctx, auth.UserID(ctx), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]OrderResp, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResp(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CheckoutHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid order id", market.ErrValidation))
		return
	}
	ctx, cancel := contextWithTimeout(r, 5*time.Second)
	defer cancel()

	if err := h.Svc.CancelOrder(ctx, auth.UserID(ctx), orderID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cancelled": orderID.String()})
}
