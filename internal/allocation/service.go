package allocation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Gustavohsdd/araujo-ptc/internal/nfe"
	"github.com/Gustavohsdd/araujo-ptc/internal/observability"
	"github.com/Gustavohsdd/araujo-ptc/internal/shared"
)

// Service drives allocation previews and finalize commits.
type Service struct {
	repo    Repository
	newLock func() shared.Locker
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService constructs the allocation service.
func NewService(repo Repository, newLock func() shared.Locker, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, newLock: newLock, logger: logger, metrics: metrics, now: time.Now}
}

// Preview computes the allocation state of one conciliated invoice without
// writing anything: effective costs, per-sector totals under the current rule
// table and the lines still lacking a mapping or rules.
func (s *Service) Preview(ctx context.Context, accessKey string) (Preview, error) {
	if len(accessKey) != nfe.AccessKeyLength {
		return Preview{}, fmt.Errorf("%w: access key must have %d digits", shared.ErrValidation, nfe.AccessKeyLength)
	}
	inv, err := s.repo.GetInvoice(ctx, accessKey)
	if err != nil {
		return Preview{}, err
	}
	if inv.ReconciliationStatus != nfe.ReconStatusConciliated {
		return Preview{}, fmt.Errorf("%w: invoice %s is not conciliated", shared.ErrValidation, inv.Number)
	}

	lines, err := s.repo.GetInvoiceLines(ctx, accessKey)
	if err != nil {
		return Preview{}, err
	}
	installments, err := s.repo.GetInstallments(ctx, accessKey)
	if err != nil {
		return Preview{}, err
	}
	mappings, err := s.repo.ListMappings(ctx)
	if err != nil {
		return Preview{}, err
	}
	rules, err := s.repo.ListRules(ctx)
	if err != nil {
		return Preview{}, err
	}

	costs := EffectiveCosts(inv.TotalProductValue, inv.TotalInvoiceValue, lines)
	totals, unrated := SectorTotals(costs, mappings, rules)
	return Preview{
		AccessKey:      accessKey,
		InvoiceNumber:  inv.Number,
		Lines:          costs,
		TotalsBySector: totals,
		Unrated:        unrated,
		Installments:   installments,
	}, nil
}

// Finalize commits one allocation under the advisory lock: it persists the
// net-new rules, verifies every line is rated under the merged rule table,
// replaces any payable rows from a previous run of the same invoice and marks
// the invoice completed. Re-running finalize for an invoice is safe; the
// latest commit wins wholesale.
func (s *Service) Finalize(ctx context.Context, in FinalizeInput) (FinalizeResult, error) {
	if len(in.AccessKey) != nfe.AccessKeyLength {
		return FinalizeResult{}, fmt.Errorf("%w: access key must have %d digits", shared.ErrValidation, nfe.AccessKeyLength)
	}

	lock := s.newLock()
	if err := lock.Acquire(ctx); err != nil {
		s.metrics.ObserveFinalize("lock_timeout", 0)
		return FinalizeResult{}, err
	}
	defer func() { _ = lock.Release(ctx) }()

	inv, err := s.repo.GetInvoice(ctx, in.AccessKey)
	if err != nil {
		return FinalizeResult{}, err
	}
	number := in.InvoiceNumber
	if number == "" {
		number = inv.Number
	}

	existing, err := s.repo.ListRules(ctx)
	if err != nil {
		return FinalizeResult{}, err
	}
	netNew := DedupRules(in.NewRules, existing)

	// The unrated check runs against the merged rule table, not the client
	// payload: finalize never commits an invoice with unrated lines.
	merged := make(map[string][]Rule, len(existing))
	for key, itemRules := range existing {
		merged[key] = itemRules
	}
	for _, rule := range netNew {
		merged[rule.ItemKey] = append(merged[rule.ItemKey], rule)
	}
	lines, err := s.repo.GetInvoiceLines(ctx, in.AccessKey)
	if err != nil {
		return FinalizeResult{}, err
	}
	mappings, err := s.repo.ListMappings(ctx)
	if err != nil {
		return FinalizeResult{}, err
	}
	costs := EffectiveCosts(inv.TotalProductValue, inv.TotalInvoiceValue, lines)
	if _, unrated := SectorTotals(costs, mappings, merged); len(unrated) > 0 {
		s.metrics.ObserveFinalize("unrated", 0)
		return FinalizeResult{}, fmt.Errorf("%w: %d line(s) without allocation rules", shared.ErrValidation, len(unrated))
	}

	if len(in.SectorTotals) == 0 {
		if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.InsertRules(ctx, netNew)
		}); err != nil {
			s.metrics.ObserveFinalize("error", 0)
			return FinalizeResult{}, err
		}
		s.metrics.ObserveFinalize("empty", 0)
		return FinalizeResult{Success: true, Message: "nothing to allocate", Rows: 0}, nil
	}

	installments := in.Installments
	if len(installments) == 0 {
		installments, err = s.repo.GetInstallments(ctx, in.AccessKey)
		if err != nil {
			return FinalizeResult{}, err
		}
	}

	rows := ExpandInstallments(in.AccessKey, number, in.SectorTotals, installments, in.ItemSummaryBySector, s.now())

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertRules(ctx, netNew); err != nil {
			return err
		}
		if err := tx.DeletePayables(ctx, in.AccessKey); err != nil {
			return err
		}
		if err := tx.InsertPayables(ctx, rows); err != nil {
			return err
		}
		return tx.SetAllocationStatus(ctx, in.AccessKey, nfe.AllocStatusCompleted)
	})
	if err != nil {
		s.metrics.ObserveFinalize("error", 0)
		return FinalizeResult{}, err
	}

	var grand float64
	for _, total := range in.SectorTotals {
		grand += total
	}
	s.metrics.ObserveFinalize("success", len(rows))
	s.logger.Info("allocation finalized",
		slog.String("accessKey", in.AccessKey),
		slog.Int("newRules", len(netNew)),
		slog.Int("payableRows", len(rows)))
	return FinalizeResult{
		Success: true,
		Message: fmt.Sprintf("%d payable row(s) committed, total %s", len(rows), shared.FormatBRL(grand)),
		Rows:    len(rows),
	}, nil
}

// Payables lists the committed ledger rows of one invoice.
func (s *Service) Payables(ctx context.Context, accessKey string) ([]PayableEntry, error) {
	if len(accessKey) != nfe.AccessKeyLength {
		return nil, fmt.Errorf("%w: access key must have %d digits", shared.ErrValidation, nfe.AccessKeyLength)
	}
	return s.repo.ListPayables(ctx, accessKey)
}
