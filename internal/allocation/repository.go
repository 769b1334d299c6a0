package allocation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gustavohsdd/araujo-ptc/internal/nfe"
	"github.com/Gustavohsdd/araujo-ptc/internal/platform/db"
	"github.com/Gustavohsdd/araujo-ptc/internal/shared"
)

// Repository defines allocation data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, accessKey string) (nfe.Invoice, error)
	GetInvoiceLines(ctx context.Context, accessKey string) ([]nfe.LineItem, error)
	GetInstallments(ctx context.Context, accessKey string) ([]nfe.Installment, error)
	ListMappings(ctx context.Context) (map[string]string, error)
	ListRules(ctx context.Context) (map[string][]Rule, error)
	ListPayables(ctx context.Context, accessKey string) ([]PayableEntry, error)
}

// TxRepository defines the finalize commit operations.
type TxRepository interface {
	InsertRules(ctx context.Context, rules []Rule) error
	DeletePayables(ctx context.Context, accessKey string) error
	InsertPayables(ctx context.Context, rows []PayableEntry) error
	SetAllocationStatus(ctx context.Context, accessKey string, status nfe.AllocationStatus) error
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, &pgTxRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *pgRepository) GetInvoice(ctx context.Context, accessKey string) (nfe.Invoice, error) {
	const query = `
SELECT access_key, number, series, total_product_value, total_invoice_value,
       reconciliation_status, allocation_status
FROM invoices WHERE access_key = $1`
	var inv nfe.Invoice
	err := r.pool.QueryRow(ctx, query, accessKey).Scan(
		&inv.AccessKey, &inv.Number, &inv.Series, &inv.TotalProductValue, &inv.TotalInvoiceValue,
		&inv.ReconciliationStatus, &inv.AllocationStatus,
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
SELECT access_key, line_number, description, quantity, unit_value, gross_value
FROM invoice_line_items WHERE access_key = $1 ORDER BY line_number`
	rows, err := r.pool.Query(ctx, query, accessKey)
	if err != nil {
		return nil, db.MapSchemaError(err)
	}
	defer rows.Close()

	var lines []nfe.LineItem
	for rows.Next() {
		var l nfe.LineItem
		if err := rows.Scan(&l.AccessKey, &l.LineNumber, &l.Description, &l.Quantity, &l.UnitValue, &l.GrossValue); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *pgRepository) GetInstallments(ctx context.Context, accessKey string) ([]nfe.Installment, error) {
	const query = `
SELECT access_key, installment_number, due_date, amount
FROM invoice_installments WHERE access_key = $1 ORDER BY installment_number`
	rows, err := r.pool.Query(ctx, query, accessKey)
	if err != nil {
		return nil, db.MapSchemaError(err)
	}
	defer rows.Close()

	var out []nfe.Installment
	for rows.Next() {
		var ins nfe.Installment
		if err := rows.Scan(&ins.AccessKey, &ins.Number, &ins.DueDate, &ins.Amount); err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	return out, rows.Err()
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

func (r *pgRepository) ListRules(ctx context.Context) (map[string][]Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT item_key, sector, percentage FROM allocation_rules`)
	if err != nil {
		return nil, db.MapSchemaError(err)
	}
	defer rows.Close()

	rules := make(map[string][]Rule)
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.ItemKey, &rule.Sector, &rule.Percentage); err != nil {
			return nil, err
		}
		rules[rule.ItemKey] = append(rules[rule.ItemKey], rule)
	}
	return rules, rows.Err()
}

func (r *pgRepository) ListPayables(ctx context.Context, accessKey string) ([]PayableEntry, error) {
	const query = `
SELECT access_key, invoice_reference, installment_label, items_summary,
       due_date, installment_amount, sector, sector_amount
FROM payable_entries WHERE access_key = $1 ORDER BY installment_label`
	rows, err := r.pool.Query(ctx, query, accessKey)
	if err != nil {
		return nil, db.MapSchemaError(err)
	}
	defer rows.Close()

	var out []PayableEntry
	for rows.Next() {
		var p PayableEntry
		if err := rows.Scan(&p.AccessKey, &p.InvoiceReference, &p.InstallmentLabel, &p.ItemsSummary,
			&p.DueDate, &p.InstallmentAmount, &p.Sector, &p.SectorAmount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type pgTxRepository struct {
	tx pgx.Tx
}

// InsertRules appends rules, silently skipping pairs that raced in since the
// service's dedup pass.
func (t *pgTxRepository) InsertRules(ctx context.Context, rules []Rule) error {
	const query = `
INSERT INTO allocation_rules (item_key, sector, percentage)
VALUES ($1, $2, $3)
ON CONFLICT (item_key, sector) DO NOTHING`
	for _, rule := range rules {
		if _, err := t.tx.Exec(ctx, query, rule.ItemKey, rule.Sector, rule.Percentage); err != nil {
			return db.MapSchemaError(err)
		}
	}
	return nil
}

func (t *pgTxRepository) DeletePayables(ctx context.Context, accessKey string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM payable_entries WHERE access_key = $1`, accessKey)
	return db.MapSchemaError(err)
}

func (t *pgTxRepository) InsertPayables(ctx context.Context, rows []PayableEntry) error {
	const query = `
INSERT INTO payable_entries (
	access_key, invoice_reference, installment_label, items_summary,
	due_date, installment_amount, sector, sector_amount
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	for _, p := range rows {
		_, err := t.tx.Exec(ctx, query,
			p.AccessKey, p.InvoiceReference, p.InstallmentLabel, p.ItemsSummary,
			p.DueDate, p.InstallmentAmount, p.Sector, p.SectorAmount,
		)
		if err != nil {
			return db.MapSchemaError(err)
		}
	}
	return nil
}

func (t *pgTxRepository) SetAllocationStatus(ctx context.Context, accessKey string, status nfe.AllocationStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET allocation_status = $2 WHERE access_key = $1`, accessKey, string(status))
	if err != nil {
		return db.MapSchemaError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
