package allocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Gustavohsdd/araujo-ptc/internal/nfe"
)

func lines(gross ...float64) []nfe.LineItem {
	out := make([]nfe.LineItem, len(gross))
	for i, g := range gross {
		out[i] = nfe.LineItem{LineNumber: i + 1, Description: descFor(i), GrossValue: g}
	}
	return out
}

func descFor(i int) string {
	return []string{"FARINHA", "ACUCAR", "OLEO", "SAL"}[i%4]
}

func sumEffective(costs []LineCost) float64 {
	var total float64
	for _, c := range costs {
		total += c.EffectiveCost
	}
	return total
}

func TestEffectiveCostsProportionalSplit(t *testing.T) {
	// 100 of product, 110 total: 10 of charges spread 60/40.
	costs := EffectiveCosts(100, 110, lines(60, 40))
	require.Len(t, costs, 2)
	require.InDelta(t, 66.0, costs[0].EffectiveCost, 1e-9)
	require.InDelta(t, 44.0, costs[1].EffectiveCost, 1e-9)
	require.InDelta(t, 110.0, sumEffective(costs), 1e-6)
}

func TestEffectiveCostsZeroProductValue(t *testing.T) {
	costs := EffectiveCosts(0, 50, lines(0, 0))
	require.Len(t, costs, 2)
	require.InDelta(t, 25.0, costs[0].EffectiveCost, 1e-9)
	require.InDelta(t, 25.0, costs[1].EffectiveCost, 1e-9)
	require.InDelta(t, 50.0, sumEffective(costs), 1e-6)
}

func TestEffectiveCostsConservation(t *testing.T) {
	cases := []struct {
		name          string
		totalProduct  float64
		totalInvoice  float64
		grossValues   []float64
	}{
		{"with discount", 200, 185.5, []float64{120, 50, 30}},
		{"with charges", 99.99, 123.45, []float64{33.33, 33.33, 33.33}},
		{"tiny product total", 0.0005, 42, []float64{0.0005}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			costs := EffectiveCosts(tc.totalProduct, tc.totalInvoice, lines(tc.grossValues...))
			require.InDelta(t, tc.totalInvoice, sumEffective(costs), 1e-6)
		})
	}
}

func TestEffectiveCostsNoLines(t *testing.T) {
	require.Nil(t, EffectiveCosts(100, 110, nil))
}

func TestSectorTotalsConservation(t *testing.T) {
	costs := EffectiveCosts(100, 110, lines(60, 40))
	mappings := map[string]string{"FARINHA": "Farinha", "ACUCAR": "Acucar"}
	rules := map[string][]Rule{
		"Farinha": {{ItemKey: "Farinha", Sector: "Padaria", Percentage: 70}, {ItemKey: "Farinha", Sector: "Cozinha", Percentage: 30}},
		"Acucar":  {{ItemKey: "Acucar", Sector: "Cozinha", Percentage: 100}},
	}
	totals, unrated := SectorTotals(costs, mappings, rules)
	require.Empty(t, unrated)
	require.InDelta(t, 66.0*0.7, totals["Padaria"], 1e-9)
	require.InDelta(t, 66.0*0.3+44.0, totals["Cozinha"], 1e-9)

	var sum float64
	for _, v := range totals {
		sum += v
	}
	require.InDelta(t, 110.0, sum, 1e-6)
}

func TestSectorTotalsSurfacesUnrated(t *testing.T) {
	costs := EffectiveCosts(100, 100, lines(60, 40))
	mappings := map[string]string{"FARINHA": "Farinha"} // ACUCAR unmapped
	rules := map[string][]Rule{}                        // Farinha mapped but no rules

	totals, unrated := SectorTotals(costs, mappings, rules)
	require.Empty(t, totals)
	require.Len(t, unrated, 2)
	require.Equal(t, "Farinha", unrated[0].ItemKey)
	require.Empty(t, unrated[1].ItemKey)
}

func TestDedupRules(t *testing.T) {
	existing := map[string][]Rule{
		"Farinha": {{ItemKey: "Farinha", Sector: "Padaria", Percentage: 100}},
	}
	inputs := []RuleInput{
		{ItemKey: "Farinha", Sector: "Padaria", Percentage: 50}, // already persisted
		{ItemKey: "Acucar", Sector: "Cozinha", Percentage: 100},
		{ItemKey: "Acucar", Sector: "Cozinha", Percentage: 40}, // duplicate within submission
	}
	out := DedupRules(inputs, existing)
	require.Len(t, out, 1)
	require.Equal(t, "Acucar", out[0].ItemKey)
	require.InDelta(t, 100.0, out[0].Percentage, 1e-9)
}

func TestExpandInstallmentsFullSchedule(t *testing.T) {
	totals := map[string]float64{"Padaria": 210, "Cozinha": 90}
	installments := []nfe.Installment{
		{Number: "001", DueDate: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), Amount: 100},
		{Number: "002", DueDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), Amount: 100},
		{Number: "003", DueDate: time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC), Amount: 100},
	}
	rows := ExpandInstallments("key", "1234", totals, installments, nil, time.Now())

	require.Len(t, rows, 6)
	var sum float64
	for _, row := range rows {
		sum += row.SectorAmount
	}
	require.InDelta(t, 300.0, sum, 1e-6)

	// Sectors iterate sorted: Cozinha (30%) then Padaria (70%).
	require.Equal(t, "1/6 (Ref: 001)", rows[0].InstallmentLabel)
	require.Equal(t, "Cozinha", rows[0].Sector)
	require.InDelta(t, 30.0, rows[0].SectorAmount, 1e-9)
	require.Equal(t, "2/6 (Ref: 001)", rows[1].InstallmentLabel)
	require.Equal(t, "Padaria", rows[1].Sector)
	require.InDelta(t, 70.0, rows[1].SectorAmount, 1e-9)
	require.Equal(t, "6/6 (Ref: 003)", rows[5].InstallmentLabel)
	require.Equal(t, installments[2].DueDate, rows[5].DueDate)
}

func TestExpandInstallmentsCash(t *testing.T) {
	today := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	totals := map[string]float64{"Padaria": 210, "Cozinha": 90}
	summary := map[string][]string{"Padaria": {"Farinha de Trigo"}, "Cozinha": {"Acucar", "Oleo"}}

	rows := ExpandInstallments("key", "1234", totals, nil, summary, today)
	require.Len(t, rows, 2)
	require.Equal(t, "1/2 (Cash)", rows[0].InstallmentLabel)
	require.Equal(t, "Cozinha", rows[0].Sector)
	require.InDelta(t, 90.0, rows[0].SectorAmount, 1e-9)
	require.Equal(t, "Acucar, Oleo", rows[0].ItemsSummary)
	require.Equal(t, today, rows[0].DueDate)
	require.Equal(t, "2/2 (Cash)", rows[1].InstallmentLabel)
	require.InDelta(t, 210.0, rows[1].SectorAmount, 1e-9)

	var sum float64
	for _, row := range rows {
		sum += row.SectorAmount
	}
	require.InDelta(t, 300.0, sum, 1e-6)
}

func TestExpandInstallmentsEmptyTotals(t *testing.T) {
	require.Nil(t, ExpandInstallments("key", "1", nil, nil, nil, time.Now()))
	require.Nil(t, ExpandInstallments("key", "1", map[string]float64{}, nil, nil, time.Now()))
}

func TestExpandInstallmentsOrdersSchedule(t *testing.T) {
	totals := map[string]float64{"Unico": 100}
	installments := []nfe.Installment{
		{Number: "002", Amount: 60},
		{Number: "001", Amount: 40},
	}
	rows := ExpandInstallments("key", "1", totals, installments, nil, time.Now())
	require.Equal(t, "1/2 (Ref: 001)", rows[0].InstallmentLabel)
	require.InDelta(t, 40.0, rows[0].SectorAmount, 1e-9)
	require.Equal(t, "2/2 (Ref: 002)", rows[1].InstallmentLabel)
}
