package allocation

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Gustavohsdd/araujo-ptc/internal/nfe"
	"github.com/Gustavohsdd/araujo-ptc/internal/shared"
)

const testKey = "35240111222333000181550010000012341000012349"

type memoryRepo struct {
	invoice      nfe.Invoice
	lines        []nfe.LineItem
	installments []nfe.Installment
	mappings     map[string]string
	rules        map[string][]Rule
	payables     map[string][]PayableEntry
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoice: nfe.Invoice{
			AccessKey:            testKey,
			Number:               "001234",
			TotalProductValue:    100,
			TotalInvoiceValue:    110,
			ReconciliationStatus: nfe.ReconStatusConciliated,
			AllocationStatus:     nfe.AllocStatusPending,
		},
		lines: []nfe.LineItem{
			{AccessKey: testKey, LineNumber: 1, Description: "FARINHA TRIGO 25KG", GrossValue: 60},
			{AccessKey: testKey, LineNumber: 2, Description: "ACUCAR CRISTAL 30KG", GrossValue: 40},
		},
		mappings: map[string]string{
			"FARINHA TRIGO 25KG":  "FARINHA-25",
			"ACUCAR CRISTAL 30KG": "ACUCAR-30",
		},
		rules:    make(map[string][]Rule),
		payables: make(map[string][]PayableEntry),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetInvoice(ctx context.Context, accessKey string) (nfe.Invoice, error) {
	if accessKey != r.invoice.AccessKey {
		return nfe.Invoice{}, shared.ErrNotFound
	}
	return r.invoice, nil
}

func (r *memoryRepo) GetInvoiceLines(ctx context.Context, accessKey string) ([]nfe.LineItem, error) {
	return r.lines, nil
}

func (r *memoryRepo) GetInstallments(ctx context.Context, accessKey string) ([]nfe.Installment, error) {
	return r.installments, nil
}

func (r *memoryRepo) ListMappings(ctx context.Context) (map[string]string, error) {
	return r.mappings, nil
}

func (r *memoryRepo) ListRules(ctx context.Context) (map[string][]Rule, error) {
	out := make(map[string][]Rule, len(r.rules))
	for key, itemRules := range r.rules {
		out[key] = append([]Rule(nil), itemRules...)
	}
	return out, nil
}

func (r *memoryRepo) ListPayables(ctx context.Context, accessKey string) ([]PayableEntry, error) {
	return r.payables[accessKey], nil
}

func (t *memoryTx) InsertRules(ctx context.Context, rules []Rule) error {
	for _, rule := range rules {
		t.repo.rules[rule.ItemKey] = append(t.repo.rules[rule.ItemKey], rule)
	}
	return nil
}

func (t *memoryTx) DeletePayables(ctx context.Context, accessKey string) error {
	delete(t.repo.payables, accessKey)
	return nil
}

func (t *memoryTx) InsertPayables(ctx context.Context, rows []PayableEntry) error {
	for _, row := range rows {
		t.repo.payables[row.AccessKey] = append(t.repo.payables[row.AccessKey], row)
	}
	return nil
}

func (t *memoryTx) SetAllocationStatus(ctx context.Context, accessKey string, status nfe.AllocationStatus) error {
	if accessKey != t.repo.invoice.AccessKey {
		return shared.ErrNotFound
	}
	t.repo.invoice.AllocationStatus = status
	return nil
}

type noopLock struct{}

func (noopLock) Acquire(ctx context.Context) error { return nil }
func (noopLock) Release(ctx context.Context) error { return nil }

type timeoutLock struct{}

func (timeoutLock) Acquire(ctx context.Context) error { return shared.ErrLockTimeout }
func (timeoutLock) Release(ctx context.Context) error { return nil }

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, func() shared.Locker { return noopLock{} }, slog.Default(), nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func TestPreviewComputesEffectiveCostsAndTotals(t *testing.T) {
	repo := newMemoryRepo()
	repo.rules["FARINHA-25"] = []Rule{{ItemKey: "FARINHA-25", Sector: "Padaria", Percentage: 100}}
	repo.rules["ACUCAR-30"] = []Rule{
		{ItemKey: "ACUCAR-30", Sector: "Padaria", Percentage: 50},
		{ItemKey: "ACUCAR-30", Sector: "Confeitaria", Percentage: 50},
	}
	svc := newTestService(repo)

	preview, err := svc.Preview(context.Background(), testKey)
	require.NoError(t, err)

	require.Len(t, preview.Lines, 2)
	require.InDelta(t, 66, preview.Lines[0].EffectiveCost, 1e-9)
	require.InDelta(t, 44, preview.Lines[1].EffectiveCost, 1e-9)
	require.InDelta(t, 88, preview.TotalsBySector["Padaria"], 1e-9)
	require.InDelta(t, 22, preview.TotalsBySector["Confeitaria"], 1e-9)
	require.Empty(t, preview.Unrated)
}

func TestPreviewSurfacesUnratedLines(t *testing.T) {
	repo := newMemoryRepo()
	repo.rules["FARINHA-25"] = []Rule{{ItemKey: "FARINHA-25", Sector: "Padaria", Percentage: 100}}
	svc := newTestService(repo)

	preview, err := svc.Preview(context.Background(), testKey)
	require.NoError(t, err)

	require.Len(t, preview.Unrated, 1)
	require.Equal(t, "ACUCAR-30", preview.Unrated[0].ItemKey)
}

func TestPreviewRejectsPendingInvoice(t *testing.T) {
	repo := newMemoryRepo()
	repo.invoice.ReconciliationStatus = nfe.ReconStatusPending
	svc := newTestService(repo)

	_, err := svc.Preview(context.Background(), testKey)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPreviewUnknownInvoice(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.Preview(context.Background(), "99999999999999999999999999999999999999999999")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestFinalizeExpandsInstallmentsAndCompletes(t *testing.T) {
	repo := newMemoryRepo()
	repo.installments = []nfe.Installment{
		{AccessKey: testKey, Number: "001", DueDate: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), Amount: 55},
		{AccessKey: testKey, Number: "002", DueDate: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), Amount: 55},
	}
	svc := newTestService(repo)

	result, err := svc.Finalize(context.Background(), FinalizeInput{
		AccessKey:    testKey,
		SectorTotals: map[string]float64{"Padaria": 88, "Confeitaria": 22},
		NewRules: []RuleInput{
			{ItemKey: "FARINHA-25", Sector: "Padaria", Percentage: 100},
			{ItemKey: "ACUCAR-30", Sector: "Padaria", Percentage: 50},
			{ItemKey: "ACUCAR-30", Sector: "Confeitaria", Percentage: 50},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 4, result.Rows)

	rows := repo.payables[testKey]
	require.Len(t, rows, 4)
	var sum float64
	for _, row := range rows {
		sum += row.SectorAmount
	}
	require.InDelta(t, 110, sum, 1e-9)
	require.Equal(t, "1/4 (Ref: 001)", rows[0].InstallmentLabel)
	require.Equal(t, nfe.AllocStatusCompleted, repo.invoice.AllocationStatus)
}

func TestFinalizeRejectsUnratedLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.Finalize(context.Background(), FinalizeInput{
		AccessKey:    testKey,
		SectorTotals: map[string]float64{"Padaria": 110},
		NewRules:     []RuleInput{{ItemKey: "FARINHA-25", Sector: "Padaria", Percentage: 100}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.payables[testKey])
	require.Equal(t, nfe.AllocStatusPending, repo.invoice.AllocationStatus)
}

func TestFinalizeDedupsRulesAcrossRuns(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	input := FinalizeInput{
		AccessKey:    testKey,
		SectorTotals: map[string]float64{"Padaria": 110},
		NewRules: []RuleInput{
			{ItemKey: "FARINHA-25", Sector: "Padaria", Percentage: 100},
			{ItemKey: "ACUCAR-30", Sector: "Padaria", Percentage: 100},
		},
	}
	_, err := svc.Finalize(context.Background(), input)
	require.NoError(t, err)
	_, err = svc.Finalize(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, repo.rules["FARINHA-25"], 1)
	require.Len(t, repo.rules["ACUCAR-30"], 1)
}

func TestFinalizeReplacesPriorPayables(t *testing.T) {
	repo := newMemoryRepo()
	repo.rules["FARINHA-25"] = []Rule{{ItemKey: "FARINHA-25", Sector: "Padaria", Percentage: 100}}
	repo.rules["ACUCAR-30"] = []Rule{{ItemKey: "ACUCAR-30", Sector: "Padaria", Percentage: 100}}
	repo.payables[testKey] = []PayableEntry{{AccessKey: testKey, InstallmentLabel: "stale"}}
	svc := newTestService(repo)

	result, err := svc.Finalize(context.Background(), FinalizeInput{
		AccessKey:    testKey,
		SectorTotals: map[string]float64{"Padaria": 110},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Rows)
	require.Len(t, repo.payables[testKey], 1)
	require.NotEqual(t, "stale", repo.payables[testKey][0].InstallmentLabel)
}

func TestFinalizeCashInvoiceUsesToday(t *testing.T) {
	repo := newMemoryRepo()
	repo.rules["FARINHA-25"] = []Rule{{ItemKey: "FARINHA-25", Sector: "Padaria", Percentage: 100}}
	repo.rules["ACUCAR-30"] = []Rule{{ItemKey: "ACUCAR-30", Sector: "Padaria", Percentage: 100}}
	svc := newTestService(repo)

	_, err := svc.Finalize(context.Background(), FinalizeInput{
		AccessKey:    testKey,
		SectorTotals: map[string]float64{"Padaria": 110},
	})
	require.NoError(t, err)

	rows := repo.payables[testKey]
	require.Len(t, rows, 1)
	require.Equal(t, "1/1 (Cash)", rows[0].InstallmentLabel)
	require.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), rows[0].DueDate)
}

func TestFinalizeEmptyTotalsCommitsNothing(t *testing.T) {
	repo := newMemoryRepo()
	repo.lines = nil
	svc := newTestService(repo)

	result, err := svc.Finalize(context.Background(), FinalizeInput{AccessKey: testKey})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Zero(t, result.Rows)
	require.Empty(t, repo.payables[testKey])
	require.Equal(t, nfe.AllocStatusPending, repo.invoice.AllocationStatus)
}

func TestFinalizeLockTimeout(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, func() shared.Locker { return timeoutLock{} }, slog.Default(), nil)

	_, err := svc.Finalize(context.Background(), FinalizeInput{
		AccessKey:    testKey,
		SectorTotals: map[string]float64{"Padaria": 110},
	})
	require.ErrorIs(t, err, shared.ErrLockTimeout)
	require.Empty(t, repo.payables[testKey])
}
