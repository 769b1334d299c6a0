package reconcile

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gustavohsdd/araujo-ptc/internal/nfe"
	"github.com/Gustavohsdd/araujo-ptc/internal/platform/db"
	"github.com/Gustavohsdd/araujo-ptc/internal/shared"
)

// Repository defines reconciliation data access.
type Repository interface {
	GetInvoice(ctx context.Context, accessKey string) (nfe.Invoice, error)
	GetInvoiceLines(ctx context.Context, accessKey string) ([]nfe.LineItem, error)
	ListMappings(ctx context.Context) (map[string]string, error)
	UpsertMapping(ctx context.Context, m Mapping) error
	CommitMatch(ctx context.Context, input CommitMatchInput) error
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) GetInvoice(ctx context.Context, accessKey string) (nfe.Invoice, error) {
	const query = `
SELECT access_key, number, series, issued_at, issuer_tax_id, issuer_name,
       recipient_tax_id, total_product_value, total_invoice_value,
       reconciliation_status, allocation_status, linked_purchase_order_id
FROM invoices WHERE access_key = $1`
	var inv nfe.Invoice
	err := r.pool.QueryRow(ctx, query, accessKey).Scan(
		&inv.AccessKey, &inv.Number, &inv.Series, &inv.IssuedAt, &inv.IssuerTaxID, &inv.IssuerName,
		&inv.RecipientTaxID, &inv.TotalProductValue, &inv.TotalInvoiceValue,
		&inv.ReconciliationStatus, &inv.AllocationStatus, &inv.LinkedPurchaseOrderID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nfe.Invoice{}, shared.ErrNotFound
		}
		return nfe.Invoice{}, db.MapSchemaError(err)
	}
	return inv, nil
}

func (r *pgRepository) GetInvoiceLines(ctx context.Context, accessKey string) ([]nfe.LineItem, error) {
	const query = `
SELECT access_key, line_number, product_code, description, unit,
       quantity, unit_value, gross_value
FROM invoice_line_items WHERE access_key = $1 ORDER BY line_number`
	rows, err := r.pool.Query(ctx, query, accessKey)
	if err != nil {
		return nil, db.MapSchemaError(err)
	}
	defer rows.Close()

	var lines []nfe.LineItem
	for rows.Next() {
		var l nfe.LineItem
		if err := rows.Scan(&l.AccessKey, &l.LineNumber, &l.ProductCode, &l.Description, &l.Unit,
			&l.Quantity, &l.UnitValue, &l.GrossValue); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *pgRepository) ListMappings(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT description, item_key FROM reconciliation_mappings`)
	if err != nil {
		return nil, db.MapSchemaError(err)
	}
	defer rows.Close()

	mappings := make(map[string]string)
	for rows.Next() {
		var desc, key string
		if err := rows.Scan(&desc, &key); err != nil {
			return nil, err
		}
		mappings[desc] = key
	}
	return mappings, rows.Err()
}

func (r *pgRepository) UpsertMapping(ctx context.Context, m Mapping) error {
	const query = `
INSERT INTO reconciliation_mappings (description, item_key)
VALUES ($1, $2)
ON CONFLICT (description) DO UPDATE SET item_key = EXCLUDED.item_key`
	_, err := r.pool.Exec(ctx, query, m.Description, m.ItemKey)
	return db.MapSchemaError(err)
}

// CommitMatch applies all of one order's status mutations in a single
// transaction. Lines already in a terminal status are left untouched.
func (r *pgRepository) CommitMatch(ctx context.Context, input CommitMatchInput) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const update = `
UPDATE purchase_order_lines
SET status = $1, updated_at = now()
WHERE order_id = $2 AND supplier = $3
  AND product_key = ANY($4)
  AND status NOT IN ('INVOICED', 'CUT')`
		if len(input.Invoiced) > 0 {
			if _, err := tx.Exec(ctx, update, "INVOICED", input.OrderID, input.Supplier, input.Invoiced); err != nil {
				return db.MapSchemaError(err)
			}
		}
		if len(input.Cut) > 0 {
			if _, err := tx.Exec(ctx, update, "CUT", input.OrderID, input.Supplier, input.Cut); err != nil {
				return db.MapSchemaError(err)
			}
		}
		const markInvoice = `
UPDATE invoices
SET reconciliation_status = 'CONCILIATED',
    allocation_status = CASE WHEN allocation_status = '' THEN 'PENDING' ELSE allocation_status END,
    linked_purchase_order_id = $2
WHERE access_key = $1`
		tag, err := tx.Exec(ctx, markInvoice, input.AccessKey, input.OrderID)
		if err != nil {
			return db.MapSchemaError(err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}
