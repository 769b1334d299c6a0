package nfe

import (
	"time"
)

// ReconciliationStatus tracks whether an invoice was matched against a
// purchase order.
type ReconciliationStatus string

const (
	ReconStatusPending     ReconciliationStatus = "PENDING"
	ReconStatusConciliated ReconciliationStatus = "CONCILIATED"
)

// AllocationStatus tracks the cost allocation lifecycle. The empty value
// means allocation has not been started for the invoice.
type AllocationStatus string

const (
	AllocStatusNone      AllocationStatus = ""
	AllocStatusPending   AllocationStatus = "PENDING"
	AllocStatusCompleted AllocationStatus = "COMPLETED"
)

// AccessKeyLength is the fixed length of an NF-e access key.
const AccessKeyLength = 44

// Invoice is one electronic invoice header. AccessKey is the primary key and
// is globally unique; re-ingesting a known key is a no-op.
type Invoice struct {
	AccessKey      string
	Number         string
	Series         string
	IssuedAt       time.Time
	IssuerTaxID    string
	IssuerName     string
	RecipientTaxID string

	TotalProductValue float64
	TotalInvoiceValue float64
	TotalFreight      *float64
	TotalInsurance    *float64
	TotalDiscount     *float64
	TotalOtherCharges *float64

	ReconciliationStatus  ReconciliationStatus
	AllocationStatus      AllocationStatus
	LinkedPurchaseOrderID *string
}

// LineItem is one product line within an invoice, owned by its access key.
// Immutable once created; the effective cost derived during allocation lives
// in the allocation package and is recomputed per run.
type LineItem struct {
	AccessKey   string
	LineNumber  int
	ProductCode string
	Description string
	Unit        string
	Quantity    float64
	UnitValue   float64
	GrossValue  float64

	ICMSValue   *float64
	IPIValue    *float64
	PISValue    *float64
	COFINSValue *float64
}

// Installment is one entry of the invoice payment schedule. An invoice with
// no installments is settled as a single cash transaction.
type Installment struct {
	AccessKey string
	Number    string
	DueDate   time.Time
	Amount    float64
}

// TaxTotals carries the invoice-level tax summary block.
type TaxTotals struct {
	AccessKey   string
	ICMSBase    *float64
	ICMSValue   *float64
	ICMSSTValue *float64
	IPIValue    *float64
	PISValue    *float64
	COFINSValue *float64
}

// Document is the normalized bundle produced from one NF-e XML.
type Document struct {
	Invoice      Invoice
	Lines        []LineItem
	Installments []Installment
	Taxes        TaxTotals
}
