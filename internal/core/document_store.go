package core

import (
	"context"
	"fmt"
)

// itemTable names the line item table of a document kind and its foreign key.
type itemTable struct {
	table string
	fk    string
}

var (
	quoteItems   = itemTable{table: "quote_items", fk: "quote_id"}
	invoiceItems = itemTable{table: "invoice_items", fk: "invoice_id"}
)

func fetchItemsQ(ctx context.Context, q pgxQuerier, t itemTable, docID int) ([]LineItem, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT id, description, quantity, unit_price, subtotal, position
		FROM %s
		WHERE %s = $1
		ORDER BY position, id
	`, t.table, t.fk), docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.table, err)
	}
	defer rows.Close()

	items := []LineItem{}
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ID, &it.Description, &it.Quantity, &it.UnitPrice, &it.Subtotal, &it.Position); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t.table, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// replaceItemsQ deletes the document's items and inserts the given ones.
func replaceItemsQ(ctx context.Context, q pgxQuerier, t itemTable, docID int, items []LineItem) error {
	if _, err := q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, t.table, t.fk), docID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", t.table, err)
	}
	return insertItemsQ(ctx, q, t, docID, items)
}

func insertItemsQ(ctx context.Context, q pgxQuerier, t itemTable, docID int, items []LineItem) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, description, quantity, unit_price, subtotal, position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.table, t.fk)
	for i, it := range items {
		pos := it.Position
		if pos == 0 {
			pos = i + 1
		}
		if _, err := q.Exec(ctx, query, docID, it.Description, it.Quantity, it.UnitPrice, it.Subtotal, pos); err != nil {
			return fmt.Errorf("failed to insert %s line %d: %w", t.table, i+1, err)
		}
	}
	return nil
}

// filterQuery accumulates positional WHERE conditions.
type filterQuery struct {
	conds []string
	args  []any
}

func (f *filterQuery) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, fmt.Sprintf(cond, len(f.args)))
}

func (f *filterQuery) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	out := " WHERE " + f.conds[0]
	for _, c := range f.conds[1:] {
		out += " AND " + c
	}
	return out
}

func (f *filterQuery) limit(n int) string {
	if n <= 0 || n > 500 {
		n = 100
	}
	f.args = append(f.args, n)
	return fmt.Sprintf(" LIMIT $%d", len(f.args))
}
