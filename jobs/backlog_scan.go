package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BacklogScanJob reports conciliated invoices that never reached a finalize
// commit. Operators review the list and either allocate or cut the invoice.
type BacklogScanJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// NewBacklogScanJob initialises the backlog scan handler.
func NewBacklogScanJob(pool *pgxpool.Pool, logger *slog.Logger) *BacklogScanJob {
	return &BacklogScanJob{Pool: pool, Logger: logger}
}

// Handle executes the backlog scan.
func (j *BacklogScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("backlog scan: handler not configured")
	}
	var payload BacklogScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	days := payload.OlderThanDays
	if days <= 0 {
		days = 7
	}

	const query = `
SELECT access_key, number, issued_at
FROM invoices
WHERE reconciliation_status = 'CONCILIATED'
  AND allocation_status = 'PENDING'
  AND issued_at < now() - make_interval(days => $1)
ORDER BY issued_at`

	rows, err := j.Pool.Query(ctx, query, days)
	if err != nil {
		j.Logger.Error("backlog scan query failed", slog.Any("error", err))
		return err
	}
	defer rows.Close()

	stale := 0
	for rows.Next() {
		var accessKey, number string
		var issuedAt time.Time
		if err := rows.Scan(&accessKey, &number, &issuedAt); err != nil {
			return err
		}
		stale++
		j.Logger.Warn("allocation pending past threshold",
			slog.String("accessKey", accessKey),
			slog.String("invoice", number),
			slog.Time("issuedAt", issuedAt),
			slog.Int("thresholdDays", days))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	j.Logger.Info("allocation backlog scan finished", slog.Int("staleInvoices", stale))
	return nil
}
