package web

import (
	"errors"
	"net/http"
	"time"

	"freelance-office/internal/app"
	"freelance-office/internal/core"

	"github.com/shopspring/decimal"
)

// ── Clients & projects ────────────────────────────────────────────────────────

func (h *Handler) apiListClients(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListClients(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiCreateClient(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Company string `json:"company"`
		Phone   string `json:"phone"`
		Address string `json:"address"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.CreateClient(r.Context(), actorFromRequest(r), app.CreateClientRequest{
		Name:    body.Name,
		Email:   body.Email,
		Company: body.Company,
		Phone:   body.Phone,
		Address: body.Address,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result.Client)
}

func (h *Handler) apiGetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.GetClient(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Client)
}

func (h *Handler) apiListClientProjects(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ListProjects(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiListProjects(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListProjects(r.Context(), 0)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiCreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID int    `json:"client_id"`
		Name     string `json:"name"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.CreateProject(r.Context(), actorFromRequest(r), app.CreateProjectRequest{
		ClientID: body.ClientID,
		Name:     body.Name,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result.Project)
}

// ── Payments ──────────────────────────────────────────────────────────────────

func (h *Handler) apiInitiatePayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount      decimal.Decimal `json:"amount"`
		Currency    string          `json:"currency"`
		Description string          `json:"description"`
		ClientID    *int            `json:"client_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.InitiatePayment(r.Context(), actorFromRequest(r), app.InitiatePaymentRequest{
		Amount:      body.Amount,
		Currency:    body.Currency,
		Description: body.Description,
		ClientID:    body.ClientID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}

func (h *Handler) apiGetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.GetPayment(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Payment)
}

// ── Activity, reports, maintenance ────────────────────────────────────────────

func (h *Handler) apiListActivities(w http.ResponseWriter, r *http.Request) {
	filter := core.ActivityFilter{SubjectType: r.URL.Query().Get("subject_type")}
	for name, dst := range map[string]*int{
		"subject_id": &filter.SubjectID,
		"project_id": &filter.ProjectID,
		"limit":      &filter.Limit,
	} {
		v, err := queryInt(r, name)
		if err != nil {
			writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		if v != nil {
			*dst = *v
		}
	}
	result, err := h.svc.ListActivities(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.GetSummary(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

func (h *Handler) apiAudit(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.RunAudit(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiSweep runs the maintenance sweep. Partial failures still return the
// counts of the steps that succeeded, with the joined error in "errors".
func (h *Handler) apiSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.RunSweep(r.Context(), time.Now())
	if err != nil && result == nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp := struct {
		*app.SweepResult
		Errors []string `json:"errors,omitempty"`
	}{SweepResult: result}
	if err != nil {
		h.logger.Sugar().Warnw("sweep finished with errors", "error", err)
		resp.Errors = unjoin(err)
	}
	writeJSON(w, resp)
}

func unjoin(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		out := []string{}
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
