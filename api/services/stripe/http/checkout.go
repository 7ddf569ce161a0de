package stripehttp

import (
	"encoding/json"
	"fmt"
	"net/http"

	stripeapp "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/app"
)

// CreateCheckoutSession handles POST {price_id, success_url, cancelled_url}
// for the authenticated caller and returns {id, url}.
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	id, err := h.verifier.FromRequest(r, false)
	if err != nil {
		writeError(w, err)
		return
	}

	var req stripeapp.CheckoutRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, jsonBodyLimit))
	if err := dec.Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body: %v", stripeapp.ErrBadRequest, err))
		return
	}

	resp, err := h.svc.CreateCheckoutSession(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
