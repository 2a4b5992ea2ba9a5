package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentKind selects a numbering series.
type DocumentKind string

const (
	KindQuote   DocumentKind = "quote"
	KindInvoice DocumentKind = "invoice"
)

const sequenceWidth = 5

type numberSeries struct {
	prefix string
	table  string
	column string
}

var numberSeriesByKind = map[DocumentKind]numberSeries{
	KindQuote:   {prefix: "Q", table: "quotes", column: "quote_number"},
	KindInvoice: {prefix: "INV", table: "invoices", column: "invoice_number"},
}

// NumberingService is the single authority for quote and invoice numbers.
type NumberingService interface {
	// Next reserves a number in its own transaction.
	Next(ctx context.Context, kind DocumentKind, year int) (string, error)
	// NextTx reserves a number inside the caller's transaction, so the number
	// is released again if the document insert rolls back.
	NextTx(ctx context.Context, tx pgx.Tx, kind DocumentKind, year int) (string, error)
}

type numberingService struct {
	pool *pgxpool.Pool
}

func NewNumberingService(pool *pgxpool.Pool) NumberingService {
	return &numberingService{pool: pool}
}

func (s *numberingService) Next(ctx context.Context, kind DocumentKind, year int) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	number, err := s.NextTx(ctx, tx, kind, year)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return number, nil
}

func (s *numberingService) NextTx(ctx context.Context, tx pgx.Tx, kind DocumentKind, year int) (string, error) {
	return nextNumberTx(ctx, tx, kind, year)
}

// nextNumberTx increments the (kind, year) counter row. Concurrent callers
// serialize on that row until the holder commits, so no two transactions can
// observe the same value. The first number of a series continues after the
// highest number already stored with the same prefix.
func nextNumberTx(ctx context.Context, tx pgx.Tx, kind DocumentKind, year int) (string, error) {
	series, ok := numberSeriesByKind[kind]
	if !ok {
		return "", validationError("unknown document kind %q", kind)
	}
	if year < 1000 || year > 9999 {
		return "", validationError("year %d out of range", year)
	}

	query := fmt.Sprintf(`
		INSERT INTO document_sequences (kind, year, last_number)
		VALUES ($1, $2, COALESCE((
			SELECT MAX(CAST(substring(%[2]s FROM '-([0-9]+)$') AS BIGINT))
			FROM %[1]s
			WHERE %[2]s LIKE $3
		), 0) + 1)
		ON CONFLICT (kind, year)
		DO UPDATE SET last_number = document_sequences.last_number + 1
		RETURNING last_number
	`, series.table, series.column)

	var seq int64
	like := fmt.Sprintf("%s%d-%%", series.prefix, year)
	if err := tx.QueryRow(ctx, query, string(kind), year, like).Scan(&seq); err != nil {
		return "", fmt.Errorf("failed to reserve %s number: %w", kind, err)
	}
	return FormatNumber(kind, year, seq), nil
}

// FormatNumber renders <PREFIX><year>-<zero padded sequence>, e.g. INV2026-00042.
func FormatNumber(kind DocumentKind, year int, seq int64) string {
	return fmt.Sprintf("%s%d-%0*d", numberSeriesByKind[kind].prefix, year, sequenceWidth, seq)
}

// ParseNumber splits a document number into its kind, year and sequence.
func ParseNumber(number string) (DocumentKind, int, int64, error) {
	head, tail, ok := strings.Cut(number, "-")
	if !ok || tail == "" {
		return "", 0, 0, validationError("malformed document number %q", number)
	}
	for _, kind := range []DocumentKind{KindInvoice, KindQuote} {
		prefix := numberSeriesByKind[kind].prefix
		if !strings.HasPrefix(head, prefix) {
			continue
		}
		yearStr := strings.TrimPrefix(head, prefix)
		year, err := strconv.Atoi(yearStr)
		if err != nil || len(yearStr) != 4 {
			return "", 0, 0, validationError("malformed year in document number %q", number)
		}
		seq, err := strconv.ParseInt(tail, 10, 64)
		if err != nil || seq < 1 {
			return "", 0, 0, validationError("malformed sequence in document number %q", number)
		}
		return kind, year, seq, nil
	}
	return "", 0, 0, validationError("unknown prefix in document number %q", number)
}
