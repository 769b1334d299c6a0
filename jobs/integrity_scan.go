package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gustavohsdd/araujo-ptc/internal/shared"
)

// IntegrityScanJob compares each invoice's committed payable rows against
// the invoice total. The allocation engine conserves totals by construction,
// so any drift means the ledger was edited out of band or a partial commit
// slipped through.
type IntegrityScanJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
	clock  func() time.Time
}

// NewIntegrityScanJob initialises the integrity scan handler.
func NewIntegrityScanJob(pool *pgxpool.Pool, logger *slog.Logger) *IntegrityScanJob {
	return &IntegrityScanJob{
		Pool:   pool,
		Logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the integrity scan.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("integrity scan: handler not configured")
	}
	var payload IntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tolerance := float64(payload.ToleranceCents) / 100
	if tolerance <= 0 {
		tolerance = 0.01
	}

	const query = `
SELECT p.access_key, i.total_invoice_value, SUM(p.sector_amount) AS ledger_total
FROM payable_entries p
JOIN invoices i ON i.access_key = p.access_key
GROUP BY p.access_key, i.total_invoice_value
HAVING ABS(SUM(p.sector_amount) - i.total_invoice_value) > $1`

	start := j.clock()
	rows, err := j.Pool.Query(ctx, query, tolerance)
	if err != nil {
		j.Logger.Error("integrity scan query failed", slog.Any("error", err))
		return err
	}
	defer rows.Close()

	drifted := 0
	for rows.Next() {
		var accessKey string
		var invoiceTotal, ledgerTotal float64
		if err := rows.Scan(&accessKey, &invoiceTotal, &ledgerTotal); err != nil {
			return err
		}
		drifted++
		j.Logger.Warn("payable ledger drift",
			slog.String("accessKey", accessKey),
			slog.String("invoiceTotal", shared.FormatBRL(invoiceTotal)),
			slog.String("ledgerTotal", shared.FormatBRL(ledgerTotal)),
			slog.String("drift", shared.FormatBRL(ledgerTotal-invoiceTotal)))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	j.Logger.Info("payables integrity scan finished",
		slog.Int("driftedInvoices", drifted),
		slog.Duration("elapsed", j.clock().Sub(start)))
	return nil
}
