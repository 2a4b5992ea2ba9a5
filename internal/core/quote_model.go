package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteStatus is the lifecycle state of a quote.
//
//	draft → sent → viewed → accepted | rejected | expired
//	sent/viewed → sent (re-send mints a new token)
//	accepted → paid_pending → paid (quote payment flow)
type QuoteStatus string

const (
	QuoteStatusDraft       QuoteStatus = "draft"
	QuoteStatusSent        QuoteStatus = "sent"
	QuoteStatusViewed      QuoteStatus = "viewed"
	QuoteStatusAccepted    QuoteStatus = "accepted"
	QuoteStatusRejected    QuoteStatus = "rejected"
	QuoteStatusExpired     QuoteStatus = "expired"
	QuoteStatusPaidPending QuoteStatus = "paid_pending"
	QuoteStatusPaid        QuoteStatus = "paid"
)

// ApprovalTokenTTL is how long a sent quote's approval link stays valid.
const ApprovalTokenTTL = 15 * 24 * time.Hour

// DefaultQuoteValidity applies when a quote is created without valid_until.
const DefaultQuoteValidity = 30 * 24 * time.Hour

// Quote is a priced proposal sent to a client.
type Quote struct {
	ID                     int             `json:"id"`
	ClientID               int             `json:"client_id"`
	ProjectID              *int            `json:"project_id,omitempty"`
	QuoteNumber            string          `json:"quote_number"`
	Status                 QuoteStatus     `json:"status"`
	Subtotal               decimal.Decimal `json:"subtotal"`
	TaxRate                decimal.Decimal `json:"tax_rate"`
	TaxAmount              decimal.Decimal `json:"tax_amount"`
	Discount               decimal.Decimal `json:"discount"`
	Total                  decimal.Decimal `json:"total"`
	Notes                  string          `json:"notes"`
	Terms                  string          `json:"terms"`
	ValidUntil             time.Time       `json:"valid_until"`
	SentAt                 *time.Time      `json:"sent_at,omitempty"`
	ViewedAt               *time.Time      `json:"viewed_at,omitempty"`
	AcceptedAt             *time.Time      `json:"accepted_at,omitempty"`
	RejectedAt             *time.Time      `json:"rejected_at,omitempty"`
	ApprovalToken          *string         `json:"-"`
	ApprovalTokenExpiresAt *time.Time      `json:"approval_token_expires_at,omitempty"`
	CreatedBy              *int            `json:"created_by,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
	Items                  []LineItem      `json:"items"`
}

// Totals returns the stored monetary summary.
func (q *Quote) Totals() Totals {
	return Totals{Subtotal: q.Subtotal, TaxAmount: q.TaxAmount, Total: q.Total}
}

// QuoteInput is used to create or replace the editable part of a quote.
type QuoteInput struct {
	ClientID   int
	ProjectID  *int
	Items      []ItemInput
	TaxRate    decimal.Decimal
	Discount   decimal.Decimal
	Notes      string
	Terms      string
	ValidUntil *time.Time
}

// ResolveAction is what the client chose on the approval link.
type ResolveAction string

const (
	ResolveApprove ResolveAction = "approve"
	ResolveReject  ResolveAction = "reject"
)

// ParseResolveAction accepts "approve", "accept" and "reject".
func ParseResolveAction(s string) (ResolveAction, error) {
	switch s {
	case "approve", "accept":
		return ResolveApprove, nil
	case "reject":
		return ResolveReject, nil
	}
	return "", validationError("unknown approval action %q", s)
}

// QuoteFilter narrows ListQuotes.
type QuoteFilter struct {
	ClientID *int
	Status   *QuoteStatus
	Limit    int
}

// SendResult is returned by Send: the updated quote and the link mailed to the client.
type SendResult struct {
	Quote       *Quote
	ApprovalURL string
}

// QuoteService drives the quote lifecycle.
type QuoteService interface {
	Create(ctx context.Context, actor Actor, input QuoteInput) (*Quote, error)
	// Update replaces items and pricing of a draft quote.
	Update(ctx context.Context, actor Actor, quoteID int, input QuoteInput) (*Quote, error)
	// Send mints a fresh approval token and notifies the client. Allowed from draft, sent and viewed.
	Send(ctx context.Context, actor Actor, quoteID int) (*SendResult, error)
	// MarkViewed validates the token without consuming it and records the first view.
	MarkViewed(ctx context.Context, quoteID int, token string) (*Quote, error)
	// Resolve consumes the approval token exactly once.
	Resolve(ctx context.Context, quoteID int, token string, action ResolveAction) (*Quote, error)
	Accept(ctx context.Context, actor Actor, quoteID int) (*Quote, error)
	Reject(ctx context.Context, actor Actor, quoteID int) (*Quote, error)
	Destroy(ctx context.Context, actor Actor, quoteID int) error
	// ExpireOverdue moves unresolved quotes past their token expiry or validity to expired.
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)

	Get(ctx context.Context, quoteID int) (*Quote, error)
	List(ctx context.Context, filter QuoteFilter) ([]Quote, error)
}
