package allocation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Gustavohsdd/araujo-ptc/internal/nfe"
)

// epsilon guards the proportional-split branch against a zero denominator.
const epsilon = 0.001

// EffectiveCosts redistributes the invoice's non-product charges (freight,
// insurance, fees, tax differences) across the lines proportionally to their
// gross value. When the declared product total is zero (service-only or fully
// discounted invoices) the invoice total is split equally instead. In both
// branches the effective costs sum to the invoice total.
func EffectiveCosts(totalProduct, totalInvoice float64, lines []nfe.LineItem) []LineCost {
	if len(lines) == 0 {
		return nil
	}
	costs := make([]LineCost, len(lines))
	if totalProduct > epsilon {
		nonProduct := totalInvoice - totalProduct
		for i, line := range lines {
			share := line.GrossValue / totalProduct
			costs[i] = LineCost{
				LineNumber:    line.LineNumber,
				Description:   line.Description,
				GrossValue:    line.GrossValue,
				EffectiveCost: line.GrossValue + nonProduct*share,
			}
		}
		return costs
	}
	equal := totalInvoice / float64(len(lines))
	for i, line := range lines {
		costs[i] = LineCost{
			LineNumber:    line.LineNumber,
			Description:   line.Description,
			GrossValue:    line.GrossValue,
			EffectiveCost: equal,
		}
	}
	return costs
}

// SectorTotals resolves each line through the mapping and rule tables and
// accumulates per-sector amounts. Lines without a mapping or without rules
// come back as unrated; the engine never invents a default distribution.
func SectorTotals(costs []LineCost, mappings map[string]string, rules map[string][]Rule) (map[string]float64, []UnratedItem) {
	totals := make(map[string]float64)
	var unrated []UnratedItem
	for _, cost := range costs {
		itemKey, mapped := mappings[strings.TrimSpace(cost.Description)]
		if !mapped {
			unrated = append(unrated, UnratedItem{
				LineNumber:    cost.LineNumber,
				Description:   cost.Description,
				EffectiveCost: cost.EffectiveCost,
			})
			continue
		}
		itemRules := rules[itemKey]
		if len(itemRules) == 0 {
			unrated = append(unrated, UnratedItem{
				LineNumber:    cost.LineNumber,
				Description:   cost.Description,
				ItemKey:       itemKey,
				EffectiveCost: cost.EffectiveCost,
			})
			continue
		}
		for _, rule := range itemRules {
			totals[rule.Sector] += cost.EffectiveCost * rule.Percentage / 100
		}
	}
	return totals, unrated
}

// DedupRules collapses duplicates inside the submission and drops rules whose
// (itemKey, sector) pair is already persisted, returning only the net-new
// ones. This is the sole mechanism by which the rule table grows.
func DedupRules(inputs []RuleInput, existing map[string][]Rule) []Rule {
	seen := make(map[string]struct{})
	for itemKey, itemRules := range existing {
		for _, r := range itemRules {
			seen[ruleKey(itemKey, r.Sector)] = struct{}{}
		}
	}
	var out []Rule
	for _, in := range inputs {
		key := ruleKey(in.ItemKey, in.Sector)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Rule{ItemKey: in.ItemKey, Sector: in.Sector, Percentage: in.Percentage})
	}
	return out
}

func ruleKey(itemKey, sector string) string {
	return itemKey + "\x00" + sector
}

// ExpandInstallments converts sector totals into payable-ledger rows. With N
// real installments and S sectors it yields N×S rows, slicing each
// installment amount by the sectors' relative weight. With no installments
// the invoice is cash: one row per sector dated today, carrying the sector
// total directly. Sectors iterate in sorted order and installments in
// schedule order so row numbering is stable across runs.
func ExpandInstallments(accessKey, invoiceNumber string, totals map[string]float64, installments []nfe.Installment, summary map[string][]string, today time.Time) []PayableEntry {
	sectors := sortedSectors(totals)
	if len(sectors) == 0 {
		return nil
	}
	var grand float64
	for _, s := range sectors {
		grand += totals[s]
	}

	if len(installments) == 0 {
		rows := make([]PayableEntry, 0, len(sectors))
		for i, sector := range sectors {
			rows = append(rows, PayableEntry{
				AccessKey:         accessKey,
				InvoiceReference:  invoiceNumber,
				InstallmentLabel:  fmt.Sprintf("%d/%d (Cash)", i+1, len(sectors)),
				ItemsSummary:      joinSummary(summary[sector]),
				DueDate:           today,
				InstallmentAmount: grand,
				Sector:            sector,
				SectorAmount:      totals[sector],
			})
		}
		return rows
	}

	ordered := append([]nfe.Installment(nil), installments...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	count := len(ordered) * len(sectors)
	rows := make([]PayableEntry, 0, count)
	k := 0
	for _, inst := range ordered {
		for _, sector := range sectors {
			k++
			var amount float64
			if grand > 0 {
				amount = totals[sector] / grand * inst.Amount
			}
			rows = append(rows, PayableEntry{
				AccessKey:         accessKey,
				InvoiceReference:  invoiceNumber,
				InstallmentLabel:  fmt.Sprintf("%d/%d (Ref: %s)", k, count, inst.Number),
				ItemsSummary:      joinSummary(summary[sector]),
				DueDate:           inst.DueDate,
				InstallmentAmount: inst.Amount,
				Sector:            sector,
				SectorAmount:      amount,
			})
		}
	}
	return rows
}

func sortedSectors(totals map[string]float64) []string {
	sectors := make([]string, 0, len(totals))
	for s := range totals {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)
	return sectors
}

func joinSummary(items []string) string {
	return strings.Join(items, ", ")
}
