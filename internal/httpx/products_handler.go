package httpx

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-marketplace.git/internal/auth"
	"github.com/ariefcatur/go-marketplace.git/internal/catalog"
	"github.com/ariefcatur/go-marketplace.git/internal/market"
)

const maxImageBytes = 5 << 20

type ProductsHandler struct {
	Catalog *catalog.Service
}

type ProductReq struct {
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	Price             decimal.Decimal `json:"price"`
	Stock             int             `json:"stock"`
	Threshold         int             `json:"threshold"`
	DiscountPercent   decimal.Decimal `json:"discount_percent"`
	DiscountValidTill *time.Time      `json:"discount_valid_till,omitempty"`
}

type ProductResp struct {
	ID                string          `json:"id"`
	SellerID          string          `json:"seller_id"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	Price             decimal.Decimal `json:"price"`
	DiscountedPrice   decimal.Decimal `json:"discounted_price"`
	Stock             int             `json:"stock"`
	Threshold         int             `json:"threshold"`
	DiscountPercent   decimal.Decimal `json:"discount_percent"`
	DiscountValidTill *time.Time      `json:"discount_valid_till,omitempty"`
	ImageURL          string          `json:"image_url,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

func toProductResp(p market.Product) ProductResp {
	return ProductResp{
		ID:                p.ID.String(),
		SellerID:          p.SellerID,
		Title:             p.Title,
		Description:       p.Description,
		Price:             p.Price,
		DiscountedPrice:   p.EffectivePrice(time.Now().UTC()),
		Stock:             p.Stock,
		Threshold:         p.Threshold,
		DiscountPercent:   p.DiscountPercent,
		DiscountValidTill: p.DiscountValidTill,
		ImageURL:          p.ImageURL,
		CreatedAt:         p.CreatedAt,
	}
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Get("/products", h.list)
		r.Get("/products/{id}", h.get)
		r.Post("/products", h.create)
		r.Put("/products/{id}", h.update)
		r.Put("/products/{id}/image", h.setImage)
		r.Delete("/products/{id}", h.delete)
	})
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.List(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]ProductResp, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProductResp(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid product id", market.ErrValidation))
		return
	}
	ctx, cancel := contextWithTimeout(r, 3*time.Second)
	defer cancel()

	p, err := h.Catalog.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResp(p))
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	if !sellerOrAdmin(r) {
		writeError(w, fmt.Errorf("seller role required: %w", market.ErrForbidden))
		return
	}
	var req ProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", market.ErrValidation))
		return
	}
	ctx, cancel := contextWithTimeout(r, 5*time.Second)
	defer cancel()

	p, err := h.Catalog.Create(ctx, auth.UserID(ctx), toInput(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResp(p))
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid product id", market.ErrValidation))
		return
	}
	var req ProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", market.ErrValidation))
		return
	}
	ctx, cancel := contextWithTimeout(r, 5*time.Second)
	defer cancel()

	p, err := h.Catalog.Update(ctx, auth.UserID(ctx), auth.IsInRole(ctx, auth.RoleAdmin), id, toInput(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResp(p))
}

func (h *ProductsHandler) setImage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid product id", market.ErrValidation))
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImageBytes))
	if err != nil {
		writeError(w, fmt.Errorf("%w: unreadable body", market.ErrValidation))
		return
	}
	ctx, cancel := contextWithTimeout(r, 10*time.Second)
	defer cancel()

	p, err := h.Catalog.SetImage(ctx, auth.UserID(ctx), auth.IsInRole(ctx, auth.RoleAdmin), id, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResp(p))
}

func (h *ProductsHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid product id", market.ErrValidation))
		return
	}
	ctx, cancel := contextWithTimeout(r, 5*time.Second)
	defer cancel()

	if err := h.Catalog.Delete(ctx, auth.UserID(ctx), auth.IsInRole(ctx, auth.RoleAdmin), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id.String()})
}

func toInput(req ProductReq) catalog.ProductInput {
	return catalog.ProductInput{
		Title:             req.Title,
		Description:       req.Description,
		Price:             req.Price,
		Stock:             req.Stock,
		Threshold:         req.Threshold,
		DiscountPercent:   req.DiscountPercent,
		DiscountValidTill: req.DiscountValidTill,
	}
}

func sellerOrAdmin(r *http.Request) bool {
	return auth.IsInRole(r.Context(), auth.RoleSeller) || auth.IsInRole(r.Context(), auth.RoleAdmin)
}
