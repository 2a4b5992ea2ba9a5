package core

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ClientService manages clients and their projects.
type ClientService interface {
	CreateClient(ctx context.Context, actor Actor, input ClientInput) (*Client, error)
	// FindOrCreateByEmail returns the client with the given email (case-insensitive),
	// creating it when absent. created reports which happened.
	FindOrCreateByEmail(ctx context.Context, input ClientInput) (client *Client, created bool, err error)
	GetClient(ctx context.Context, clientID int) (*Client, error)
	ListClients(ctx context.Context) ([]Client, error)

	CreateProject(ctx context.Context, actor Actor, clientID int, name string) (*Project, error)
	ListProjects(ctx context.Context, clientID int) ([]Project, error)
}

type clientService struct {
	pool *pgxpool.Pool
}

func NewClientService(pool *pgxpool.Pool) ClientService {
	return &clientService{pool: pool}
}

const clientColumns = `id, user_id, name, email, company, phone, address, created_at`

func scanClient(row pgx.Row, c *Client) error {
	return row.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Company, &c.Phone, &c.Address, &c.CreatedAt)
}

func normalizeClientInput(input ClientInput) (ClientInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Company = strings.TrimSpace(input.Company)
	input.Phone = strings.TrimSpace(input.Phone)
	input.Address = strings.TrimSpace(input.Address)
	if input.Name == "" {
		return input, validationError("client name is required")
	}
	if input.Email == "" {
		return input, validationError("client email is required")
	}
	if addr, err := mail.ParseAddress(input.Email); err != nil || addr.Address != input.Email {
		return input, validationError("invalid client email %q", input.Email)
	}
	return input, nil
}

func (s *clientService) CreateClient(ctx context.Context, actor Actor, input ClientInput) (*Client, error) {
	input, err := normalizeClientInput(input)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var c Client
	err = scanClient(tx.QueryRow(ctx, `
		INSERT INTO clients (user_id, name, email, company, phone, address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+clientColumns,
		input.UserID, input.Name, input.Email, input.Company, input.Phone, input.Address), &c)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, fmt.Errorf("%w: client with email %s already exists", ErrDuplicateOperation, input.Email)
		}
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	if err := recordActivity(ctx, tx, Activity{
		Description: ActivityClientCreated,
		SubjectType: "client",
		SubjectID:   c.ID,
		UserID:      actor.userID(),
		Properties:  map[string]any{"email": c.Email},
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit client: %w", err)
	}
	return &c, nil
}

func (s *clientService) FindOrCreateByEmail(ctx context.Context, input ClientInput) (*Client, bool, error) {
	input, err := normalizeClientInput(input)
	if err != nil {
		return nil, false, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var c Client
	created := true
	err = scanClient(tx.QueryRow(ctx, `
		INSERT INTO clients (user_id, name, email, company, phone, address)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ((lower(email))) DO NOTHING
		RETURNING `+clientColumns,
		input.UserID, input.Name, input.Email, input.Company, input.Phone, input.Address), &c)
	if errors.Is(err, pgx.ErrNoRows) {
		created = false
		err = scanClient(tx.QueryRow(ctx,
			`SELECT `+clientColumns+` FROM clients WHERE lower(email) = $1`, input.Email), &c)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find or create client %s: %w", input.Email, err)
	}

	if created {
		if err := recordActivity(ctx, tx, Activity{
			Description: ActivityClientCreated,
			SubjectType: "client",
			SubjectID:   c.ID,
			Properties:  map[string]any{"email": c.Email, "source": "contact"},
		}); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit client: %w", err)
	}
	return &c, created, nil
}

func (s *clientService) GetClient(ctx context.Context, clientID int) (*Client, error) {
	return getClientQ(ctx, s.pool, clientID)
}

func getClientQ(ctx context.Context, q pgxQuerier, clientID int) (*Client, error) {
	var c Client
	err := scanClient(q.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, clientID), &c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("client", clientID)
		}
		return nil, fmt.Errorf("failed to fetch client %d: %w", clientID, err)
	}
	return &c, nil
}

func (s *clientService) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var c Client
		if err := scanClient(rows, &c); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (s *clientService) CreateProject(ctx context.Context, actor Actor, clientID int, name string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("project name is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := getClientQ(ctx, tx, clientID); err != nil {
		return nil, err
	}

	var p Project
	err = tx.QueryRow(ctx, `
		INSERT INTO projects (client_id, name) VALUES ($1, $2)
		RETURNING id, client_id, name, created_at
	`, clientID, name).Scan(&p.ID, &p.ClientID, &p.Name, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	if err := recordActivity(ctx, tx, Activity{
		Description: ActivityProjectCreated,
		SubjectType: "project",
		SubjectID:   p.ID,
		ProjectID:   &p.ID,
		UserID:      actor.userID(),
		Properties:  map[string]any{"name": p.Name, "client_id": clientID},
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit project: %w", err)
	}
	return &p, nil
}

func (s *clientService) ListProjects(ctx context.Context, clientID int) ([]Project, error) {
	query := `SELECT id, client_id, name, created_at FROM projects`
	var args []any
	if clientID != 0 {
		query += ` WHERE client_id = $1`
		args = append(args, clientID)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.ClientID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// checkDocumentOwnerQ verifies the client exists and, when set, that the
// project belongs to it.
func checkDocumentOwnerQ(ctx context.Context, q pgxQuerier, clientID int, projectID *int) error {
	if _, err := getClientQ(ctx, q, clientID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return validationError("client %d does not exist", clientID)
		}
		return err
	}
	if projectID == nil {
		return nil
	}
	var owner int
	err := q.QueryRow(ctx, `SELECT client_id FROM projects WHERE id = $1`, *projectID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return validationError("project %d does not exist", *projectID)
		}
		return fmt.Errorf("failed to fetch project %d: %w", *projectID, err)
	}
	if owner != clientID {
		return validationError("project %d does not belong to client %d", *projectID, clientID)
	}
	return nil
}
