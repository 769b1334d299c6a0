// Package reconcile matches invoice line items against purchase-order lines
// through the persisted description-to-item mapping table.
package reconcile

// Mapping associates an invoice line description with a purchase-order item
// key. Many descriptions can point at one item; mappings are created by an
// operator confirming a match and reused on future invoices.
type Mapping struct {
	Description string
	ItemKey     string
}

// MatchInput identifies the order and invoice to reconcile.
type MatchInput struct {
	OrderID   string `json:"orderId" validate:"required"`
	Supplier  string `json:"supplier" validate:"required"`
	AccessKey string `json:"accessKey" validate:"required,len=44,numeric"`
}

// LineMatch is one invoice line resolved onto an order item.
type LineMatch struct {
	LineNumber  int    `json:"lineNumber"`
	Description string `json:"description"`
	ItemKey     string `json:"itemKey"`
}

// MatchResult is the partition of one reconciliation run.
type MatchResult struct {
	OrderID   string `json:"orderId"`
	Supplier  string `json:"supplier"`
	AccessKey string `json:"accessKey"`

	// Matched invoice lines whose mapped item key is on the order.
	Matched []LineMatch `json:"matched"`
	// UnmatchedLines are invoice line descriptions with no usable mapping.
	UnmatchedLines []string `json:"unmatchedLines"`
	// CutItems are open order item keys absent from the invoice
	// (ordered but not delivered).
	CutItems []string `json:"cutItems"`
}

// CommitMatchInput carries the status mutations of one reconciliation. The
// repository applies all of it in a single transaction.
type CommitMatchInput struct {
	OrderID   string
	Supplier  string
	AccessKey string
	Invoiced  []string
	Cut       []string
}
