package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"freelance-office/internal/adapters/web"
	"freelance-office/internal/app"
	"freelance-office/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

// fakeService implements only what each test needs; any other call panics
// on the nil embedded interface and surfaces as a 500 from Recoverer.
type fakeService struct {
	app.ApplicationService

	getQuote    func(id int) (*app.QuoteResult, error)
	convert     func(id int) (*app.ConversionResult, error)
	resolve     func(id int, token, action string) (*app.QuoteResult, error)
	clientPay   func(id int, email string) (*app.PaymentStartResult, error)
	sweep       func(now time.Time) (*app.SweepResult, error)
	exportQuote func(id int, w io.Writer) error
	lastActor   core.Actor
}

func (f *fakeService) GetQuote(_ context.Context, id int) (*app.QuoteResult, error) {
	return f.getQuote(id)
}

func (f *fakeService) ConvertQuote(_ context.Context, actor core.Actor, id int) (*app.ConversionResult, error) {
	f.lastActor = actor
	return f.convert(id)
}

func (f *fakeService) ResolveQuote(_ context.Context, id int, token, action string) (*app.QuoteResult, error) {
	return f.resolve(id, token, action)
}

func (f *fakeService) StartClientQuotePayment(_ context.Context, id int, email string) (*app.PaymentStartResult, error) {
	return f.clientPay(id, email)
}

func (f *fakeService) RunSweep(_ context.Context, now time.Time) (*app.SweepResult, error) {
	return f.sweep(now)
}

func (f *fakeService) ExportQuote(_ context.Context, id int, w io.Writer) error {
	return f.exportQuote(id, w)
}

func newServer(t *testing.T, svc *fakeService) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(web.NewHandler(svc, web.Options{JWTSecret: secret}))
	t.Cleanup(srv.Close)
	return srv
}

func adminToken(t *testing.T, role string) string {
	t.Helper()
	token, err := web.IssueToken(secret, 1, role, time.Hour)
	require.NoError(t, err)
	return token
}

func do(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type envelope struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestHealth(t *testing.T) {
	srv := newServer(t, &fakeService{})
	resp := do(t, http.MethodGet, srv.URL+"/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestAdminAPI_RequiresAdminToken(t *testing.T) {
	svc := &fakeService{getQuote: func(id int) (*app.QuoteResult, error) {
		return &app.QuoteResult{Quote: &core.Quote{ID: id, QuoteNumber: "Q2026-00001"}}, nil
	}}
	srv := newServer(t, svc)
	url := srv.URL + "/api/quotes/7"

	resp := do(t, http.MethodGet, url, "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodGet, url, "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodGet, url, adminToken(t, "client"), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", decodeEnvelope(t, resp).Code)

	resp = do(t, http.MethodGet, url, adminToken(t, web.RoleAdmin), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var q core.Quote
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&q))
	assert.Equal(t, 7, q.ID)
}

func TestAdminAPI_AcceptsAuthCookie(t *testing.T) {
	svc := &fakeService{getQuote: func(id int) (*app.QuoteResult, error) {
		return &app.QuoteResult{Quote: &core.Quote{ID: id}}, nil
	}}
	srv := newServer(t, svc)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/quotes/3", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: adminToken(t, web.RoleAdmin)})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIssueToken_RequiresSecret(t *testing.T) {
	_, err := web.IssueToken("", 1, web.RoleAdmin, time.Hour)
	assert.Error(t, err)
}

func TestServiceErrors_MapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: items required", core.ErrValidation), http.StatusUnprocessableEntity, "VALIDATION_FAILED"},
		{fmt.Errorf("%w: negative", core.ErrInvalidAmount), http.StatusUnprocessableEntity, "VALIDATION_FAILED"},
		{&core.StateError{Entity: "quote", ID: 1, Status: "draft", Op: "be converted"}, http.StatusConflict, "INVALID_STATE"},
		{fmt.Errorf("quote 1: %w", core.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{&core.ProcessorError{Op: "create", Message: "down"}, http.StatusBadGateway, "PROCESSOR_ERROR"},
		{app.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			svc := &fakeService{convert: func(int) (*app.ConversionResult, error) { return nil, tc.err }}
			srv := newServer(t, svc)

			resp := do(t, http.MethodPost, srv.URL+"/api/quotes/1/convert", adminToken(t, web.RoleAdmin), "")
			assert.Equal(t, tc.status, resp.StatusCode)
			env := decodeEnvelope(t, resp)
			assert.Equal(t, tc.code, env.Code)
			assert.Equal(t, resp.Header.Get("X-Request-ID"), env.RequestID)
			if tc.status == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", env.Error)
			}
		})
	}
}

func TestConvertQuote_CreatedVersusExisting(t *testing.T) {
	created := true
	svc := &fakeService{convert: func(int) (*app.ConversionResult, error) {
		return &app.ConversionResult{Invoice: &core.Invoice{ID: 9}, Created: created}, nil
	}}
	srv := newServer(t, svc)
	token := adminToken(t, web.RoleAdmin)

	resp := do(t, http.MethodPost, srv.URL+"/api/quotes/4/convert", token, "")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, svc.lastActor.UserID)

	created = false
	resp = do(t, http.MethodPost, srv.URL+"/api/quotes/4/convert", token, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInvalidPathID(t *testing.T) {
	srv := newServer(t, &fakeService{})
	resp := do(t, http.MethodGet, srv.URL+"/api/quotes/abc", adminToken(t, web.RoleAdmin), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApproveLink(t *testing.T) {
	var gotAction, gotToken string
	svc := &fakeService{resolve: func(id int, token, action string) (*app.QuoteResult, error) {
		gotToken, gotAction = token, action
		if token != "good" {
			return nil, core.ErrInvalidToken
		}
		return &app.QuoteResult{Quote: &core.Quote{ID: id, Status: core.QuoteStatusAccepted}}, nil
	}}
	srv := newServer(t, svc)

	resp := do(t, http.MethodGet, srv.URL+"/quotes/5/approve?token=good", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "approve", gotAction)
	assert.Equal(t, "good", gotToken)

	resp = do(t, http.MethodGet, srv.URL+"/quotes/5/approve?token=used&action=reject", "", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "reject", gotAction)
}

func TestClientPayQuote(t *testing.T) {
	svc := &fakeService{clientPay: func(id int, email string) (*app.PaymentStartResult, error) {
		if email != "ada@example.com" {
			return nil, core.ErrInvalidToken
		}
		return &app.PaymentStartResult{
			Payment:     &core.Payment{ID: 1, ProcessorPaymentID: "SBX-1"},
			ApprovalURL: "http://pay.test/approve",
		}, nil
	}}
	srv := newServer(t, svc)

	resp := do(t, http.MethodPost, srv.URL+"/quotes/2/pay", "", `{"email":"ada@example.com"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body struct {
		ApprovalURL string `json:"approval_url"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "http://pay.test/approve", body.ApprovalURL)

	resp = do(t, http.MethodPost, srv.URL+"/quotes/2/pay", "", `{"email":"eve@example.com"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/quotes/2/pay", "", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPaymentReturn_RequiresPaymentID(t *testing.T) {
	srv := newServer(t, &fakeService{})
	resp := do(t, http.MethodGet, srv.URL+"/payments/return", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSweep_ReportsPartialFailures(t *testing.T) {
	svc := &fakeService{sweep: func(time.Time) (*app.SweepResult, error) {
		return &app.SweepResult{ExpiredQuotes: 2}, errors.Join(errors.New("mark overdue: timeout"))
	}}
	srv := newServer(t, svc)

	resp := do(t, http.MethodPost, srv.URL+"/api/maintenance/sweep", adminToken(t, web.RoleAdmin), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		ExpiredQuotes int      `json:"expired_quotes"`
		Errors        []string `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.ExpiredQuotes)
	assert.Equal(t, []string{"mark overdue: timeout"}, body.Errors)
}

func TestExportQuote_SendsWorkbook(t *testing.T) {
	svc := &fakeService{exportQuote: func(id int, w io.Writer) error {
		_, err := w.Write([]byte("PK"))
		return err
	}}
	srv := newServer(t, svc)

	resp := do(t, http.MethodGet, srv.URL+"/api/quotes/8/export.xlsx", adminToken(t, web.RoleAdmin), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="quote-8.xlsx"`)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "PK", string(data))
}
