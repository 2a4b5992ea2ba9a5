package web

import (
	"bytes"
	"fmt"
	"net/http"

	"freelance-office/internal/app"
	"freelance-office/internal/core"
	"freelance-office/internal/export"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type lineItemBody struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (b lineItemBody) request() app.LineItemRequest {
	return app.LineItemRequest{Description: b.Description, Quantity: b.Quantity, UnitPrice: b.UnitPrice}
}

type quoteBody struct {
	ClientID   int             `json:"client_id"`
	ProjectID  *int            `json:"project_id"`
	Items      []lineItemBody  `json:"items"`
	TaxRate    decimal.Decimal `json:"tax_rate"`
	Discount   decimal.Decimal `json:"discount"`
	Notes      string          `json:"notes"`
	Terms      string          `json:"terms"`
	ValidUntil string          `json:"valid_until"`
}

func (b quoteBody) request() (app.QuoteRequest, error) {
	validUntil, err := parseDate("valid_until", b.ValidUntil)
	if err != nil {
		return app.QuoteRequest{}, err
	}
	return app.QuoteRequest{
		ClientID:   b.ClientID,
		ProjectID:  b.ProjectID,
		Items:      lo.Map(b.Items, func(it lineItemBody, _ int) app.LineItemRequest { return it.request() }),
		TaxRate:    b.TaxRate,
		Discount:   b.Discount,
		Notes:      b.Notes,
		Terms:      b.Terms,
		ValidUntil: validUntil,
	}, nil
}

// decodeQuote reads a quote body. It writes the error response and returns false on failure.
func decodeQuote(w http.ResponseWriter, r *http.Request) (app.QuoteRequest, bool) {
	var body quoteBody
	if !decodeJSON(w, r, &body) {
		return app.QuoteRequest{}, false
	}
	req, err := body.request()
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return app.QuoteRequest{}, false
	}
	return req, true
}

func (h *Handler) apiListQuotes(w http.ResponseWriter, r *http.Request) {
	filter := core.QuoteFilter{}
	clientID, err := queryInt(r, "client_id")
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	filter.ClientID = clientID
	if s := r.URL.Query().Get("status"); s != "" {
		status := core.QuoteStatus(s)
		filter.Status = &status
	}
	if limit, err := queryInt(r, "limit"); err == nil && limit != nil {
		filter.Limit = *limit
	}
	result, err := h.svc.ListQuotes(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiCreateQuote(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuote(w, r)
	if !ok {
		return
	}
	result, err := h.svc.CreateQuote(r.Context(), actorFromRequest(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result.Quote)
}

func (h *Handler) apiGetQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.GetQuote(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Quote)
}

func (h *Handler) apiUpdateQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := decodeQuote(w, r)
	if !ok {
		return
	}
	result, err := h.svc.UpdateQuote(r.Context(), actorFromRequest(r), id, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Quote)
}

func (h *Handler) apiDeleteQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteQuote(r.Context(), actorFromRequest(r), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) apiSendQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.SendQuote(r.Context(), actorFromRequest(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiAcceptQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.AcceptQuote(r.Context(), actorFromRequest(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Quote)
}

func (h *Handler) apiRejectQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.RejectQuote(r.Context(), actorFromRequest(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Quote)
}

// apiConvertQuote returns 201 when an invoice was created and 200 when the
// quote had already been converted.
func (h *Handler) apiConvertQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ConvertQuote(r.Context(), actorFromRequest(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSONStatus(w, status, result)
}

func (h *Handler) apiPayQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.StartQuotePayment(r.Context(), actorFromRequest(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}

func (h *Handler) apiDraftQuote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Brief string `json:"brief"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.DraftQuote(r.Context(), body.Brief)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiExportQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.svc.ExportQuote(r.Context(), id, &buf); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeWorkbook(w, fmt.Sprintf("quote-%d.xlsx", id), buf.Bytes())
}

// writeWorkbook sends a rendered XLSX as an attachment. The workbook is
// buffered so that render errors can still produce a JSON error response.
func writeWorkbook(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
