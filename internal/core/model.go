package core

import "time"

// Client represents a customer of the business. Clients are never hard-deleted.
type Client struct {
	ID        int       `json:"id"`
	UserID    *int      `json:"user_id,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Company   string    `json:"company"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// ClientInput holds the fields accepted when creating a client.
type ClientInput struct {
	UserID  *int
	Name    string
	Email   string
	Company string
	Phone   string
	Address string
}

// Project groups documents for one client.
type Project struct {
	ID        int       `json:"id"`
	ClientID  int       `json:"client_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Activity is one append-only audit record of a state transition.
type Activity struct {
	ID          int            `json:"id"`
	Description string         `json:"description"`
	SubjectType string         `json:"subject_type"`
	SubjectID   int            `json:"subject_id"`
	ProjectID   *int           `json:"project_id,omitempty"`
	UserID      *int           `json:"user_id,omitempty"`
	Properties  map[string]any `json:"properties"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Actor identifies who triggered an operation. A zero Actor is an
// unauthenticated client acting through a link.
type Actor struct {
	UserID int
}

func (a Actor) userID() *int {
	if a.UserID == 0 {
		return nil
	}
	id := a.UserID
	return &id
}
