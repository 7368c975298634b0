package invoicing

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates the invoice or assignment does not exist.
	ErrNotFound = errors.New("invoicing: not found")
	// ErrInvalidInput rejects bad arguments before any database write.
	ErrInvalidInput = errors.New("invoicing: invalid input")
	// ErrLockTimeout marks transient lock-wait failures. It is distinct from
	// the duplicate errors so callers retry instead of reporting a false
	// "number taken" conflict.
	ErrLockTimeout = errors.New("invoicing: lock wait timeout")
)

// DuplicateNumberError reports that an agent invoice number is already
// consumed, along with the agent's current counter and a fresh suggestion.
type DuplicateNumberError struct {
	AgentID   int64
	Requested int64
	Current   int64
	Suggested int64
}

func (e *DuplicateNumberError) Error() string {
	return fmt.Sprintf("invoicing: agent %d already used invoice number %d (current %d, next free suggestion %d)",
		e.AgentID, e.Requested, e.Current, e.Suggested)
}

// DuplicateClaimError reports job assignments that are already billed on
// another non-void invoice line. The whole invoice creation rolls back; no
// partial invoice and no consumed sequence number remain.
type DuplicateClaimError struct {
	AssignmentIDs []int64
}

func (e *DuplicateClaimError) Error() string {
	return fmt.Sprintf("invoicing: %d job assignment(s) already billed: %v", len(e.AssignmentIDs), e.AssignmentIDs)
}

// Postgres constraint names guarding the ledger invariants.
const (
	constraintLineClaim   = "uq_invoice_line_items_assignment"
	constraintAgentNumber = "uq_invoices_agent_number"
)

// SQLSTATE codes of interest.
const (
	pgUniqueViolation = "23505"
	pgLockNotAvail    = "55P03"
	pgQueryCanceled   = "57014"
)

// errDuplicateClaim and errDuplicateNumber are internal markers raised inside
// a transaction; the service converts them into the typed errors above after
// the rollback, when the conflict details can be queried safely.
var (
	errDuplicateClaim  = errors.New("invoicing: assignment already claimed")
	errDuplicateNumber = errors.New("invoicing: agent number already used")
)

// translatePgError maps driver errors onto the package taxonomy.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintLineClaim:
			return errDuplicateClaim
		case constraintAgentNumber:
			return errDuplicateNumber
		}
		return err
	case pgLockNotAvail, pgQueryCanceled:
		return fmt.Errorf("%w: %s", ErrLockTimeout, pgErr.Message)
	}
	return err
}
