package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"freelance-office/internal/app"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
	logger    *zap.Logger
}

// Options configures NewHandler.
type Options struct {
	AllowedOrigins []string
	JWTSecret      string
	Logger         *zap.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		svc:       svc,
		jwtSecret: opts.JWTSecret,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recoverer(logger))
	r.Use(CORS(opts.AllowedOrigins))

	// ── Health (public) ───────────────────────────────────────────────────────
	r.Get("/health", h.health)

	// ── Client-facing routes (token or email gated, no login) ────────────────
	r.Group(func(r chi.Router) {
		r.Use(RequestBodyLimit(64 << 10))

		r.Get("/quotes/{id}/review", h.reviewQuote)
		r.Get("/quotes/{id}/approve", h.approveQuote)
		r.Post("/quotes/{id}/pay", h.clientPayQuote)
		r.Get("/quotes/{id}/payment/return", h.quotePaymentReturn)
		r.Get("/payments/return", h.paymentReturn)
		r.Get("/payments/cancel", h.paymentCancel)
		r.Post("/contact", h.contact)
	})

	// ── Admin API (JWT, role admin) ──────────────────────────────────────────
	r.Route("/api", func(r chi.Router) {
		r.Use(h.RequireAdmin)
		r.Use(RequestBodyLimit(1 << 20))

		r.Get("/clients", h.apiListClients)
		r.Post("/clients", h.apiCreateClient)
		r.Get("/clients/{id}", h.apiGetClient)
		r.Get("/clients/{id}/projects", h.apiListClientProjects)
		r.Get("/projects", h.apiListProjects)
		r.Post("/projects", h.apiCreateProject)

		r.Get("/quotes", h.apiListQuotes)
		r.Post("/quotes", h.apiCreateQuote)
		r.Post("/quotes/draft", h.apiDraftQuote)
		r.Get("/quotes/{id}", h.apiGetQuote)
		r.Put("/quotes/{id}", h.apiUpdateQuote)
		r.Delete("/quotes/{id}", h.apiDeleteQuote)
		r.Post("/quotes/{id}/send", h.apiSendQuote)
		r.Post("/quotes/{id}/accept", h.apiAcceptQuote)
		r.Post("/quotes/{id}/reject", h.apiRejectQuote)
		r.Post("/quotes/{id}/convert", h.apiConvertQuote)
		r.Post("/quotes/{id}/pay", h.apiPayQuote)
		r.Get("/quotes/{id}/export.xlsx", h.apiExportQuote)

		r.Get("/invoices", h.apiListInvoices)
		r.Post("/invoices", h.apiCreateInvoice)
		r.Get("/invoices/{id}", h.apiGetInvoice)
		r.Put("/invoices/{id}", h.apiUpdateInvoice)
		r.Delete("/invoices/{id}", h.apiDeleteInvoice)
		r.Post("/invoices/{id}/send", h.apiSendInvoice)
		r.Post("/invoices/{id}/viewed", h.apiMarkInvoiceViewed)
		r.Post("/invoices/{id}/payments", h.apiRecordInvoicePayment)
		r.Post("/invoices/{id}/cancel", h.apiCancelInvoice)
		r.Get("/invoices/{id}/export.xlsx", h.apiExportInvoice)

		r.Post("/payments", h.apiInitiatePayment)
		r.Get("/payments/{id}", h.apiGetPayment)

		r.Get("/activities", h.apiListActivities)
		r.Get("/summary", h.apiSummary)
		r.Get("/audit", h.apiAudit)
		r.Post("/maintenance/sweep", h.apiSweep)
	})

	h.router = r
	return r
}

// health reports liveness.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

// pathID parses the {id} URL parameter. It writes a 400 and returns false on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, r, "invalid id", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &n, nil
}

// parseDate parses an optional YYYY-MM-DD value.
func parseDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD", field)
	}
	return &t, nil
}
