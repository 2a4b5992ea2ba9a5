package web

import (
	"net/http"

	"freelance-office/internal/app"
)

// ── Client-facing handlers ────────────────────────────────────────────────────

// reviewQuote handles GET /quotes/{id}/review?token=.
func (h *Handler) reviewQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ReviewQuote(r.Context(), id, r.URL.Query().Get("token"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Quote)
}

// approveQuote handles GET /quotes/{id}/approve?token=&action=approve|reject.
// The token is consumed; a second click on the same link gets 403.
func (h *Handler) approveQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	action := q.Get("action")
	if action == "" {
		action = "approve"
	}
	result, err := h.svc.ResolveQuote(r.Context(), id, q.Get("token"), action)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Quote)
}

// clientPayQuote handles POST /quotes/{id}/pay with {"email": "..."}.
func (h *Handler) clientPayQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.StartClientQuotePayment(r.Context(), id, body.Email)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}

// quotePaymentReturn handles GET /quotes/{id}/payment/return?payment_id=&payer_id=.
// The processor redirects the payer here after approval; capture happens now.
func (h *Handler) quotePaymentReturn(w http.ResponseWriter, r *http.Request) {
	if _, ok := pathID(w, r); !ok {
		return
	}
	paymentID, payerID, ok := processorParams(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ConfirmQuotePayment(r.Context(), paymentID, payerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// paymentReturn handles GET /payments/return?payment_id=&payer_id=.
func (h *Handler) paymentReturn(w http.ResponseWriter, r *http.Request) {
	paymentID, payerID, ok := processorParams(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ConfirmPayment(r.Context(), paymentID, payerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Payment)
}

// paymentCancel handles GET /payments/cancel. The payment stays pending until
// the maintenance sweep abandons it.
func (h *Handler) paymentCancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":     "cancelled",
		"payment_id": r.URL.Query().Get("payment_id"),
	})
}

func processorParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	q := r.URL.Query()
	paymentID := q.Get("payment_id")
	if paymentID == "" {
		paymentID = q.Get("token")
	}
	if paymentID == "" {
		writeError(w, r, "payment_id is required", "BAD_REQUEST", http.StatusBadRequest)
		return "", "", false
	}
	payerID := q.Get("payer_id")
	if payerID == "" {
		payerID = q.Get("PayerID")
	}
	return paymentID, payerID, true
}

// contact handles POST /contact.
func (h *Handler) contact(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Company string `json:"company"`
		Phone   string `json:"phone"`
		Message string `json:"message"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.SubmitContact(r.Context(), app.ContactRequest{
		Name:    body.Name,
		Email:   body.Email,
		Company: body.Company,
		Phone:   body.Phone,
		Message: body.Message,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]any{"received": true, "client_id": result.Client.ID})
}
