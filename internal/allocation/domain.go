// Package allocation computes each invoice line's effective cost, distributes
// it across organizational sectors by percentage rules and expands the result
// into payable-ledger entries.
package allocation

import (
	"time"

	"github.com/Gustavohsdd/araujo-ptc/internal/nfe"
)

// Rule assigns a percentage of one purchase-order item's effective cost to a
// sector. Many rules per item key; percentage sums are deliberately not
// enforced.
type Rule struct {
	ItemKey    string  `json:"itemKey"`
	Sector     string  `json:"sector"`
	Percentage float64 `json:"percentage"`
}

// RuleInput is one operator-supplied rule during finalization.
type RuleInput struct {
	ItemKey    string  `json:"itemKey" validate:"required"`
	Sector     string  `json:"sector" validate:"required"`
	Percentage float64 `json:"percentage" validate:"gt=0"`
}

// LineCost is the transient allocation view of one invoice line. Recomputed
// per allocation run, never persisted as authoritative.
type LineCost struct {
	LineNumber    int     `json:"lineNumber"`
	Description   string  `json:"description"`
	GrossValue    float64 `json:"grossValue"`
	EffectiveCost float64 `json:"effectiveCost"`
}

// UnratedItem is a line the engine refuses to guess a distribution for: it
// has no mapping, or its mapped item has no rules yet.
type UnratedItem struct {
	LineNumber    int     `json:"lineNumber"`
	Description   string  `json:"description"`
	ItemKey       string  `json:"itemKey,omitempty"`
	EffectiveCost float64 `json:"effectiveCost"`
}

// PayableEntry is one output row of the payable ledger. Created only by the
// finalize commit; superseded wholesale by a re-run, never mutated.
type PayableEntry struct {
	AccessKey         string    `json:"accessKey"`
	InvoiceReference  string    `json:"invoiceReferenceNumber"`
	InstallmentLabel  string    `json:"installmentLabel"`
	ItemsSummary      string    `json:"itemsSummary"`
	DueDate           time.Time `json:"dueDate"`
	InstallmentAmount float64   `json:"installmentAmount"`
	Sector            string    `json:"sector"`
	SectorAmount      float64   `json:"sectorAmount"`
}

// Preview is the read-only allocation state of one invoice.
type Preview struct {
	AccessKey      string             `json:"accessKey"`
	InvoiceNumber  string             `json:"invoiceNumber"`
	Lines          []LineCost         `json:"lines"`
	TotalsBySector map[string]float64 `json:"totalsBySector"`
	Unrated        []UnratedItem      `json:"unratedItems"`
	Installments   []nfe.Installment  `json:"installments"`
}

// FinalizeInput is the commit payload. SectorTotals and the summary come from
// the operator's reviewed preview; committed rule changes between preview and
// finalize are not re-detected (last commit wins).
type FinalizeInput struct {
	AccessKey           string              `json:"accessKey" validate:"required,len=44,numeric"`
	InvoiceNumber       string              `json:"invoiceNumber"`
	Installments        []nfe.Installment   `json:"installments"`
	SectorTotals        map[string]float64  `json:"sectorTotals"`
	NewRules            []RuleInput         `json:"newRules" validate:"dive"`
	ItemSummaryBySector map[string][]string `json:"itemSummaryBySector"`
}

// FinalizeResult reports one finalize commit.
type FinalizeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Rows    int    `json:"rows"`
}
