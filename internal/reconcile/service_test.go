package reconcile

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Gustavohsdd/araujo-ptc/internal/nfe"
	"github.com/Gustavohsdd/araujo-ptc/internal/procurement"
	"github.com/Gustavohsdd/araujo-ptc/internal/shared"
)

const testKey = "35240111222333000181550010000012341000012349"

type memoryReconRepo struct {
	invoices map[string]nfe.Invoice
	lines    map[string][]nfe.LineItem
	mappings map[string]string
	commits  []CommitMatchInput
}

func newMemoryReconRepo() *memoryReconRepo {
	return &memoryReconRepo{
		invoices: make(map[string]nfe.Invoice),
		lines:    make(map[string][]nfe.LineItem),
		mappings: make(map[string]string),
	}
}

func (r *memoryReconRepo) GetInvoice(ctx context.Context, accessKey string) (nfe.Invoice, error) {
	inv, ok := r.invoices[accessKey]
	if !ok {
		return nfe.Invoice{}, shared.ErrNotFound
	}
	return inv, nil
}

func (r *memoryReconRepo) GetInvoiceLines(ctx context.Context, accessKey string) ([]nfe.LineItem, error) {
	return append([]nfe.LineItem(nil), r.lines[accessKey]...), nil
}

func (r *memoryReconRepo) ListMappings(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(r.mappings))
	for k, v := range r.mappings {
		out[k] = v
	}
	return out, nil
}

func (r *memoryReconRepo) UpsertMapping(ctx context.Context, m Mapping) error {
	r.mappings[m.Description] = m.ItemKey
	return nil
}

func (r *memoryReconRepo) CommitMatch(ctx context.Context, input CommitMatchInput) error {
	r.commits = append(r.commits, input)
	return nil
}

type stubOrders struct {
	lines map[string][]procurement.PurchaseOrderLine
}

func (s *stubOrders) GetOrderLines(ctx context.Context, orderID, supplier string) ([]procurement.PurchaseOrderLine, error) {
	key := orderID + "/" + supplier
	lines, ok := s.lines[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return lines, nil
}

func newMatcherFixture() (*memoryReconRepo, *stubOrders, *Service) {
	repo := newMemoryReconRepo()
	orders := &stubOrders{lines: make(map[string][]procurement.PurchaseOrderLine)}
	svc := NewService(repo, orders, slog.Default())

	repo.invoices[testKey] = nfe.Invoice{AccessKey: testKey, ReconciliationStatus: nfe.ReconStatusPending}
	repo.lines[testKey] = []nfe.LineItem{
		{AccessKey: testKey, LineNumber: 1, Description: "FARINHA DE TRIGO 25KG"},
		{AccessKey: testKey, LineNumber: 2, Description: "ACUCAR CRISTAL 50KG"},
		{AccessKey: testKey, LineNumber: 3, Description: "PRODUTO SEM MAPA"},
	}
	repo.mappings["FARINHA DE TRIGO 25KG"] = "Farinha de Trigo"
	repo.mappings["ACUCAR CRISTAL 50KG"] = "Acucar Cristal"

	orders.lines["PED-10/Distribuidora Alfa"] = []procurement.PurchaseOrderLine{
		{OrderID: "PED-10", Supplier: "Distribuidora Alfa", ProductKey: "Farinha de Trigo", Status: procurement.ItemStatusOpen},
		{OrderID: "PED-10", Supplier: "Distribuidora Alfa", ProductKey: "Acucar Cristal", Status: procurement.ItemStatusOpen},
		{OrderID: "PED-10", Supplier: "Distribuidora Alfa", ProductKey: "Oleo de Soja", Status: procurement.ItemStatusOpen},
	}
	return repo, orders, svc
}

func TestMatchPartitionsLines(t *testing.T) {
	repo, _, svc := newMatcherFixture()

	result, err := svc.Match(context.Background(), MatchInput{
		OrderID: "PED-10", Supplier: "Distribuidora Alfa", AccessKey: testKey,
	})
	require.NoError(t, err)

	require.Len(t, result.Matched, 2)
	require.Equal(t, []string{"PRODUTO SEM MAPA"}, result.UnmatchedLines)
	require.Equal(t, []string{"Oleo de Soja"}, result.CutItems)

	require.Len(t, repo.commits, 1)
	commit := repo.commits[0]
	require.ElementsMatch(t, []string{"Farinha de Trigo", "Acucar Cristal"}, commit.Invoiced)
	require.Equal(t, []string{"Oleo de Soja"}, commit.Cut)
	require.Equal(t, testKey, commit.AccessKey)
}

func TestMatchSkipsTerminalLines(t *testing.T) {
	repo, orders, svc := newMatcherFixture()
	lines := orders.lines["PED-10/Distribuidora Alfa"]
	lines[2].Status = procurement.ItemStatusCut

	result, err := svc.Match(context.Background(), MatchInput{
		OrderID: "PED-10", Supplier: "Distribuidora Alfa", AccessKey: testKey,
	})
	require.NoError(t, err)
	require.Empty(t, result.CutItems)
	require.Empty(t, repo.commits[0].Cut)
}

func TestPreviewDoesNotCommit(t *testing.T) {
	repo, _, svc := newMatcherFixture()

	result, err := svc.Preview(context.Background(), MatchInput{
		OrderID: "PED-10", Supplier: "Distribuidora Alfa", AccessKey: testKey,
	})
	require.NoError(t, err)
	require.Len(t, result.Matched, 2)
	require.Empty(t, repo.commits)
}

func TestMatchInvoiceNotFound(t *testing.T) {
	_, _, svc := newMatcherFixture()
	_, err := svc.Match(context.Background(), MatchInput{
		OrderID: "PED-10", Supplier: "Distribuidora Alfa",
		AccessKey: "00000000000000000000000000000000000000000000",
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMatchOrderNotFound(t *testing.T) {
	_, _, svc := newMatcherFixture()
	_, err := svc.Match(context.Background(), MatchInput{
		OrderID: "PED-99", Supplier: "Distribuidora Alfa", AccessKey: testKey,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMatchMappedKeyNotOnOrder(t *testing.T) {
	repo, _, svc := newMatcherFixture()
	repo.mappings["PRODUTO SEM MAPA"] = "Produto de Outro Pedido"

	result, err := svc.Preview(context.Background(), MatchInput{
		OrderID: "PED-10", Supplier: "Distribuidora Alfa", AccessKey: testKey,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"PRODUTO SEM MAPA"}, result.UnmatchedLines)
}

func TestCreateMappingValidation(t *testing.T) {
	repo, _, svc := newMatcherFixture()
	ctx := context.Background()

	require.ErrorIs(t, svc.CreateMapping(ctx, "  ", "x"), shared.ErrValidation)
	require.NoError(t, svc.CreateMapping(ctx, " OLEO DE SOJA 900ML ", "Oleo de Soja"))
	require.Equal(t, "Oleo de Soja", repo.mappings["OLEO DE SOJA 900ML"])
}
