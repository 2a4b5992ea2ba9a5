package app

import (
	"time"

	"freelance-office/internal/core"

	"github.com/shopspring/decimal"
)

// CreateClientRequest is the input for creating a client.
type CreateClientRequest struct {
	Name    string
	Email   string
	Company string
	Phone   string
	Address string
}

// CreateProjectRequest is the input for creating a project.
type CreateProjectRequest struct {
	ClientID int
	Name     string
}

// ContactRequest is a contact form submission.
type ContactRequest struct {
	Name    string
	Email   string
	Company string
	Phone   string
	Message string
}

// LineItemRequest is a single line within a QuoteRequest or InvoiceRequest.
type LineItemRequest struct {
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// QuoteRequest is the input for creating or replacing a draft quote.
type QuoteRequest struct {
	ClientID   int
	ProjectID  *int
	Items      []LineItemRequest
	TaxRate    decimal.Decimal
	Discount   decimal.Decimal
	Notes      string
	Terms      string
	ValidUntil *time.Time
}

// InvoiceRequest is the input for creating or replacing a draft invoice.
type InvoiceRequest struct {
	ClientID  int
	ProjectID *int
	Items     []LineItemRequest
	TaxRate   decimal.Decimal
	Discount  decimal.Decimal
	Notes     string
	Terms     string
	IssueDate *time.Time
	DueDate   *time.Time
}

// InitiatePaymentRequest starts a payment not tied to a quote.
type InitiatePaymentRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	ClientID    *int
}

func toItemInputs(items []LineItemRequest) []core.ItemInput {
	out := make([]core.ItemInput, len(items))
	for i, it := range items {
		out[i] = core.ItemInput{Description: it.Description, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	return out
}

func (r QuoteRequest) input() core.QuoteInput {
	return core.QuoteInput{
		ClientID:   r.ClientID,
		ProjectID:  r.ProjectID,
		Items:      toItemInputs(r.Items),
		TaxRate:    r.TaxRate,
		Discount:   r.Discount,
		Notes:      r.Notes,
		Terms:      r.Terms,
		ValidUntil: r.ValidUntil,
	}
}

func (r InvoiceRequest) input() core.InvoiceInput {
	return core.InvoiceInput{
		ClientID:  r.ClientID,
		ProjectID: r.ProjectID,
		Items:     toItemInputs(r.Items),
		TaxRate:   r.TaxRate,
		Discount:  r.Discount,
		Notes:     r.Notes,
		Terms:     r.Terms,
		IssueDate: r.IssueDate,
		DueDate:   r.DueDate,
	}
}
