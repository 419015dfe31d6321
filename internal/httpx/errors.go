package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-marketplace.git/internal/market"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP. An empty-cart
// checkout is a redirect back to the cart view, not a failure.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrEmptyCart):
		w.Header().Set("Location", "/cart")
		writeJSON(w, http.StatusSeeOther, map[string]string{"redirect": "/cart"})
	case errors.Is(err, market.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, market.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, market.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, market.ErrInsufficientStock),
		errors.Is(err, market.ErrBelowThreshold),
		errors.Is(err, market.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, market.ErrConflict):
		// retries exhausted; the whole operation is safe to re-issue
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "temporary conflict, please retry", "retryable": "true"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
