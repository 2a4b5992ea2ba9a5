package web

import (
	"bytes"
	"fmt"
	"net/http"

	"freelance-office/internal/app"
	"freelance-office/internal/core"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type invoiceBody struct {
	ClientID  int             `json:"client_id"`
	ProjectID *int            `json:"project_id"`
	Items     []lineItemBody  `json:"items"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Discount  decimal.Decimal `json:"discount"`
	Notes     string          `json:"notes"`
	Terms     string          `json:"terms"`
	IssueDate string          `json:"issue_date"`
	DueDate   string          `json:"due_date"`
}

func decodeInvoice(w http.ResponseWriter, r *http.Request) (app.InvoiceRequest, bool) {
	var body invoiceBody
	if !decodeJSON(w, r, &body) {
		return app.InvoiceRequest{}, false
	}
	issue, err := parseDate("issue_date", body.IssueDate)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return app.InvoiceRequest{}, false
	}
	due, err := parseDate("due_date", body.DueDate)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return app.InvoiceRequest{}, false
	}
	return app.InvoiceRequest{
		ClientID:  body.ClientID,
		ProjectID: body.ProjectID,
		Items:     lo.Map(body.Items, func(it lineItemBody, _ int) app.LineItemRequest { return it.request() }),
		TaxRate:   body.TaxRate,
		Discount:  body.Discount,
		Notes:     body.Notes,
		Terms:     body.Terms,
		IssueDate: issue,
		DueDate:   due,
	}, true
}

func (h *Handler) apiListInvoices(w http.ResponseWriter, r *http.Request) {
	filter := core.InvoiceFilter{}
	clientID, err := queryInt(r, "client_id")
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	filter.ClientID = clientID
	if s := r.URL.Query().Get("status"); s != "" {
		status := core.InvoiceStatus(s)
		filter.Status = &status
	}
	if limit, err := queryInt(r, "limit"); err == nil && limit != nil {
		filter.Limit = *limit
	}
	result, err := h.svc.ListInvoices(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiCreateInvoice(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeInvoice(w, r)
	if !ok {
		return
	}
	result, err := h.svc.CreateInvoice(r.Context(), actorFromRequest(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result.Invoice)
}

func (h *Handler) apiGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.GetInvoice(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Invoice)
}

func (h *Handler) apiUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := decodeInvoice(w, r)
	if !ok {
		return
	}
	result, err := h.svc.UpdateInvoice(r.Context(), actorFromRequest(r), id, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Invoice)
}

func (h *Handler) apiDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteInvoice(r.Context(), actorFromRequest(r), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// invoiceAction runs a lifecycle call that only needs the invoice id.
func (h *Handler) invoiceAction(w http.ResponseWriter, r *http.Request, fn func(id int) (*app.InvoiceResult, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := fn(id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Invoice)
}

func (h *Handler) apiSendInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, func(id int) (*app.InvoiceResult, error) {
		return h.svc.SendInvoice(r.Context(), actorFromRequest(r), id)
	})
}

func (h *Handler) apiMarkInvoiceViewed(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, func(id int) (*app.InvoiceResult, error) {
		return h.svc.MarkInvoiceViewed(r.Context(), id)
	})
}

func (h *Handler) apiCancelInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, func(id int) (*app.InvoiceResult, error) {
		return h.svc.CancelInvoice(r.Context(), actorFromRequest(r), id)
	})
}

// apiRecordInvoicePayment handles POST /api/invoices/{id}/payments with {"amount": "100.00"}.
func (h *Handler) apiRecordInvoicePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.RecordInvoicePayment(r.Context(), actorFromRequest(r), id, body.Amount)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Invoice)
}

func (h *Handler) apiExportInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.svc.ExportInvoice(r.Context(), id, &buf); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeWorkbook(w, fmt.Sprintf("invoice-%d.xlsx", id), buf.Bytes())
}
