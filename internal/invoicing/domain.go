package invoicing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceKind distinguishes agent-issued documents from supplier documents.
type InvoiceKind string

const (
	KindAgent    InvoiceKind = "AGENT"
	KindSupplier InvoiceKind = "SUPPLIER"
)

// InvoiceStatus enumerates invoice lifecycle states.
type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "DRAFT"
	StatusSubmitted InvoiceStatus = "SUBMITTED"
	StatusSent      InvoiceStatus = "SENT"
	StatusPaid      InvoiceStatus = "PAID"
	StatusVoid      InvoiceStatus = "VOID"
)

// CountsTowardBilling reports whether the status is economically real. Draft
// and void invoices are excluded from every aggregate.
func (s InvoiceStatus) CountsTowardBilling() bool {
	switch s {
	case StatusSubmitted, StatusSent, StatusPaid:
		return true
	default:
		return false
	}
}

// Invoice is a billing document issued by an agent or a supplier.
type Invoice struct {
	ID          int64            `json:"id"`
	PublicID    uuid.UUID        `json:"public_id"`
	Kind        InvoiceKind      `json:"kind"`
	AgentID     *int64           `json:"agent_id,omitempty"`
	SupplierID  *int64           `json:"supplier_id,omitempty"`
	DocNumber   *string          `json:"doc_number,omitempty"`
	AgentNumber *int64           `json:"agent_number,omitempty"`
	Status      InvoiceStatus    `json:"status"`
	NetAmount   decimal.Decimal  `json:"net_amount"`
	VATRate     *decimal.Decimal `json:"vat_rate,omitempty"`
	VATAmount   *decimal.Decimal `json:"vat_amount,omitempty"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
	// VATRegistered records whether the payee was VAT-registered when the
	// document was created; the period summary's VAT reconciliation needs it.
	VATRegistered bool       `json:"vat_registered"`
	IssueDate     time.Time  `json:"issue_date"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Lines         []LineItem `json:"lines,omitempty"`
}

// LineItem bills the work of exactly one job assignment. A given assignment
// may appear on at most one non-void line across all invoices; the database
// enforces this, not just application logic.
type LineItem struct {
	ID              int64           `json:"id"`
	InvoiceID       int64           `json:"invoice_id"`
	JobAssignmentID int64           `json:"job_assignment_id"`
	HoursWorked     decimal.Decimal `json:"hours_worked"`
	RateNet         decimal.Decimal `json:"rate_net"`
	LineNet         decimal.Decimal `json:"line_net"`
	Headcount       int             `json:"headcount"`
	Voided          bool            `json:"voided"`
}

// JobAssignment is a planned unit of work, created at job-planning time and
// referenced by zero or one invoice line.
type JobAssignment struct {
	ID         int64  `json:"id"`
	JobID      int64  `json:"job_id"`
	AgentID    *int64 `json:"agent_id,omitempty"`
	SupplierID *int64 `json:"supplier_id,omitempty"`
	Headcount  int    `json:"headcount"`
}

// LineItemInput carries one line of a new invoice.
type LineItemInput struct {
	JobAssignmentID int64
	HoursWorked     decimal.Decimal
	RateNet         decimal.Decimal
	Headcount       int
}

// CreateAgentInvoiceInput carries a new agent invoice. RequestedNumber is the
// agent's own choice; nil means "use the suggestion".
type CreateAgentInvoiceInput struct {
	AgentID         int64
	RequestedNumber *int64
	VATRate         *decimal.Decimal
	VATRegistered   bool
	IssueDate       time.Time
	Lines           []LineItemInput
}

// CreateSupplierInvoiceInput carries a new supplier invoice whose number is
// issued by the (prefix, year) sequence.
type CreateSupplierInvoiceInput struct {
	SupplierID    int64
	Prefix        string
	Year          int
	VATRate       *decimal.Decimal
	VATRegistered bool
	IssueDate     time.Time
	Lines         []LineItemInput
}

// NumberSuggestion is the advisory next number for an agent. Nothing is
// reserved by suggesting.
type NumberSuggestion struct {
	AgentID   int64 `json:"agent_id"`
	Current   int64 `json:"current"`
	Suggested int64 `json:"suggested"`
}
