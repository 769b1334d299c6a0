// Package procurement exposes the supplier purchase-order lines the
// reconciliation matcher works against. Order and quotation entry itself is
// handled upstream; this package only reads lines and models their statuses.
package procurement

import "time"

// ItemStatus is the lifecycle of one purchase-order line.
type ItemStatus string

const (
	ItemStatusOpen     ItemStatus = "OPEN"
	ItemStatusInvoiced ItemStatus = "INVOICED"
	ItemStatusCut      ItemStatus = "CUT"
)

// Terminal reports whether the status may no longer change. Reconciliation
// must never move a line silently out of a terminal status.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusInvoiced || s == ItemStatusCut
}

// PurchaseOrderLine is one row of an open purchase order, identified by the
// (order, supplier) composite plus the product key.
type PurchaseOrderLine struct {
	OrderID           string
	Supplier          string
	ProductKey        string
	QuantityRequested float64
	UnitPrice         float64
	Status            ItemStatus
	UpdatedAt         time.Time
}

// OrderSummary describes one open order for listing purposes.
type OrderSummary struct {
	OrderID   string
	Supplier  string
	LineCount int
	OpenCount int
}
