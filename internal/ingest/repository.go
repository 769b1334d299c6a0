package ingest

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gustavohsdd/araujo-ptc/internal/nfe"
	"github.com/Gustavohsdd/araujo-ptc/internal/platform/db"
)

// Repository defines invoice persistence for ingestion.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListAccessKeys(ctx context.Context) (map[string]struct{}, error)
}

// TxRepository defines operations within a transaction. One invoice's header,
// lines, installments and tax totals commit or roll back together.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv nfe.Invoice) error
	InsertLineItems(ctx context.Context, lines []nfe.LineItem) error
	InsertInstallments(ctx context.Context, installments []nfe.Installment) error
	InsertTaxTotals(ctx context.Context, totals nfe.TaxTotals) error
	DeleteInvoiceData(ctx context.Context, accessKey string) error
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

func (r *pgRepository) ListAccessKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT access_key FROM invoices`)
	if err != nil {
		return nil, db.MapSchemaError(err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		known[key] = struct{}{}
	}
	return known, rows.Err()
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (t *pgTxRepository) InsertInvoice(ctx context.Context, inv nfe.Invoice) error {
	const query = `
INSERT INTO invoices (
	access_key, number, series, issued_at, issuer_tax_id, issuer_name,
	recipient_tax_id, total_product_value, total_invoice_value, total_freight,
	total_insurance, total_discount, total_other_charges,
	reconciliation_status, allocation_status, linked_purchase_order_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := t.tx.Exec(ctx, query,
		inv.AccessKey, inv.Number, inv.Series, inv.IssuedAt, inv.IssuerTaxID, inv.IssuerName,
		inv.RecipientTaxID, inv.TotalProductValue, inv.TotalInvoiceValue, inv.TotalFreight,
		inv.TotalInsurance, inv.TotalDiscount, inv.TotalOtherCharges,
		string(inv.ReconciliationStatus), string(inv.AllocationStatus), inv.LinkedPurchaseOrderID,
	)
	return db.MapSchemaError(err)
}

func (t *pgTxRepository) InsertLineItems(ctx context.Context, lines []nfe.LineItem) error {
	const query = `
INSERT INTO invoice_line_items (
	access_key, line_number, product_code, description, unit,
	quantity, unit_value, gross_value, icms_value, ipi_value, pis_value, cofins_value
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	for _, l := range lines {
		_, err := t.tx.Exec(ctx, query,
			l.AccessKey, l.LineNumber, l.ProductCode, l.Description, l.Unit,
			l.Quantity, l.UnitValue, l.GrossValue, l.ICMSValue, l.IPIValue, l.PISValue, l.COFINSValue,
		)
		if err != nil {
			return db.MapSchemaError(err)
		}
	}
	return nil
}

func (t *pgTxRepository) InsertInstallments(ctx context.Context, installments []nfe.Installment) error {
	const query = `
INSERT INTO invoice_installments (access_key, installment_number, due_date, amount)
VALUES ($1,$2,$3,$4)`
	for _, ins := range installments {
		if _, err := t.tx.Exec(ctx, query, ins.AccessKey, ins.Number, ins.DueDate, ins.Amount); err != nil {
			return db.MapSchemaError(err)
		}
	}
	return nil
}

func (t *pgTxRepository) InsertTaxTotals(ctx context.Context, totals nfe.TaxTotals) error {
	const query = `
INSERT INTO invoice_tax_totals (
	access_key, icms_base, icms_value, icms_st_value, ipi_value, pis_value, cofins_value
) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := t.tx.Exec(ctx, query,
		totals.AccessKey, totals.ICMSBase, totals.ICMSValue, totals.ICMSSTValue,
		totals.IPIValue, totals.PISValue, totals.COFINSValue,
	)
	return db.MapSchemaError(err)
}

// DeleteInvoiceData removes every row owned by the access key. Used by the
// replace-on-reingest path before fresh inserts.
func (t *pgTxRepository) DeleteInvoiceData(ctx context.Context, accessKey string) error {
	for _, table := range []string{
		"invoice_tax_totals",
		"invoice_installments",
		"invoice_line_items",
		"invoices",
	} {
		if _, err := t.tx.Exec(ctx, `DELETE FROM `+table+` WHERE access_key = $1`, accessKey); err != nil {
			return db.MapSchemaError(err)
		}
	}
	return nil
}
