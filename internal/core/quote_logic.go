package core

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

const approvalTokenBytes = 32

// GenerateApprovalToken returns 64 hex characters of crypto/rand entropy.
func GenerateApprovalToken() (string, error) {
	buf := make([]byte, approvalTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate approval token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// IsOpen reports whether the quote waits for the client's decision.
func (q *Quote) IsOpen() bool {
	return q.Status == QuoteStatusSent || q.Status == QuoteStatusViewed
}

// CanEdit reports whether items and pricing may still change.
func (q *Quote) CanEdit() bool {
	return q.Status == QuoteStatusDraft
}

// CanSend allows the first send and re-sends of an open quote.
func (q *Quote) CanSend() bool {
	return q.Status == QuoteStatusDraft || q.IsOpen()
}

// CanPay reports whether the quote payment flow may start (or restart).
func (q *Quote) CanPay() bool {
	return q.Status == QuoteStatusAccepted || q.Status == QuoteStatusPaidPending
}

// IsPastValidity reports whether the quote has outlived its token or valid_until date.
func (q *Quote) IsPastValidity(now time.Time) bool {
	if q.ApprovalTokenExpiresAt != nil && now.After(*q.ApprovalTokenExpiresAt) {
		return true
	}
	return now.After(endOfDay(q.ValidUntil))
}

// ValidateToken checks a client-supplied approval token without consuming it.
// A missing or mismatching token is ErrInvalidToken. A matching token past
// its expiry is ErrTokenExpired.
func ValidateToken(q *Quote, token string, now time.Time) error {
	if q.ApprovalToken == nil || *q.ApprovalToken == "" || token == "" {
		return ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(*q.ApprovalToken), []byte(token)) != 1 {
		return ErrInvalidToken
	}
	if !q.IsOpen() {
		return stateError("quote", q.ID, string(q.Status), "be resolved")
	}
	if q.ApprovalTokenExpiresAt != nil && now.After(*q.ApprovalTokenExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}

// applyResolution moves an open quote to accepted or rejected and clears the token.
func applyResolution(q *Quote, action ResolveAction, now time.Time) error {
	if !q.IsOpen() {
		return stateError("quote", q.ID, string(q.Status), string(action))
	}
	switch action {
	case ResolveApprove:
		q.Status = QuoteStatusAccepted
		q.AcceptedAt = &now
	case ResolveReject:
		q.Status = QuoteStatusRejected
		q.RejectedAt = &now
	default:
		return validationError("unknown approval action %q", action)
	}
	q.ApprovalToken = nil
	q.ApprovalTokenExpiresAt = nil
	return nil
}

// endOfDay treats a valid_until date as inclusive.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
