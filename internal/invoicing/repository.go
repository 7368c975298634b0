package invoicing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewline/crewline/internal/platform/db"
)

// Repository defines invoicing data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	GetAgentSequence(ctx context.Context, agentID int64) (int64, error)
	ClaimedAssignments(ctx context.Context, assignmentIDs []int64) ([]int64, error)
}

// TxRepository defines invoicing operations within a transaction. The
// transaction is the unit of atomicity for document creation: any failure
// rolls back the invoice, its lines and any sequence advance together.
type TxRepository interface {
	NextSequence(ctx context.Context, prefix string, year int) (int64, error)
	AgentSequenceForUpdate(ctx context.Context, agentID int64) (int64, error)
	SetAgentSequence(ctx context.Context, agentID, value int64) error
	InsertInvoice(ctx context.Context, inv *Invoice) error
	InsertLineItem(ctx context.Context, line *LineItem) error
	MarkVoid(ctx context.Context, invoiceID int64) error
}

// Ensure implementation.
var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

type pgRepository struct {
	pool *pgxpool.Pool
}

type pgTxRepository struct {
	tx pgx.Tx
}

// NewRepository constructs a PostgreSQL backed invoicing repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// WithTx runs fn in a transaction. Commit errors go through translatePgError
// too: deferred unique checks surface only at commit time.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
	if err != nil {
		return translatePgError(err)
	}
	return nil
}

const invoiceColumns = `
	id, public_id, kind, agent_id, supplier_id, doc_number, agent_number,
	status, net_amount, vat_rate, vat_amount, total_amount,
	payee_vat_registered, issue_date, created_at, updated_at`

func (r *pgRepository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	var inv Invoice
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&inv.ID,
		&inv.PublicID,
		&inv.Kind,
		&inv.AgentID,
		&inv.SupplierID,
		&inv.DocNumber,
		&inv.AgentNumber,
		&inv.Status,
		&inv.NetAmount,
		&inv.VATRate,
		&inv.VATAmount,
		&inv.TotalAmount,
		&inv.VATRegistered,
		&inv.IssueDate,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, fmt.Errorf("invoicing: get invoice: %w", err)
	}

	const lineQuery = `
		SELECT id, invoice_id, job_assignment_id, hours_worked, rate_net, line_net, headcount, voided
		FROM invoice_line_items
		WHERE invoice_id = $1
		ORDER BY id`
	rows, err := r.pool.Query(ctx, lineQuery, id)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoicing: list lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line LineItem
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.JobAssignmentID, &line.HoursWorked, &line.RateNet, &line.LineNet, &line.Headcount, &line.Voided); err != nil {
			return Invoice{}, fmt.Errorf("invoicing: scan line: %w", err)
		}
		inv.Lines = append(inv.Lines, line)
	}
	return inv, rows.Err()
}

// GetAgentSequence reads the agent's current counter without locking; absent
// state means the agent has never numbered an invoice.
func (r *pgRepository) GetAgentSequence(ctx context.Context, agentID int64) (int64, error) {
	const query = `SELECT current_invoice_number FROM agent_sequence_states WHERE agent_id = $1`
	var current int64
	err := r.pool.QueryRow(ctx, query, agentID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("invoicing: get agent sequence: %w", err)
	}
	return current, nil
}

// ClaimedAssignments returns which of the given assignments already sit on a
// non-void invoice line. Used after a rolled-back creation to report exactly
// which shifts were already billed.
func (r *pgRepository) ClaimedAssignments(ctx context.Context, assignmentIDs []int64) ([]int64, error) {
	const query = `
		SELECT job_assignment_id
		FROM invoice_line_items
		WHERE job_assignment_id = ANY($1) AND NOT voided
		ORDER BY job_assignment_id`
	rows, err := r.pool.Query(ctx, query, assignmentIDs)
	if err != nil {
		return nil, fmt.Errorf("invoicing: claimed assignments: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("invoicing: scan claimed assignment: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// NextSequence issues the next number for a (prefix, year) key. The row is
// created lazily, then locked for the remainder of the surrounding
// transaction: a concurrent caller for the same key blocks until this
// transaction commits or rolls back, so no two invoices can observe the same
// value.
func (r *pgTxRepository) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	const insertQuery = `
		INSERT INTO sequence_counters (prefix, year, next_seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, year) DO NOTHING`
	if _, err := r.tx.Exec(ctx, insertQuery, prefix, year); err != nil {
		return 0, translatePgError(fmt.Errorf("invoicing: seed sequence: %w", err))
	}

	const lockQuery = `
		SELECT next_seq FROM sequence_counters
		WHERE prefix = $1 AND year = $2
		FOR UPDATE`
	var current int64
	if err := r.tx.QueryRow(ctx, lockQuery, prefix, year).Scan(&current); err != nil {
		return 0, translatePgError(fmt.Errorf("invoicing: lock sequence: %w", err))
	}

	const advanceQuery = `
		UPDATE sequence_counters SET next_seq = $3
		WHERE prefix = $1 AND year = $2`
	if _, err := r.tx.Exec(ctx, advanceQuery, prefix, year, current+1); err != nil {
		return 0, translatePgError(fmt.Errorf("invoicing: advance sequence: %w", err))
	}
	return current, nil
}

// AgentSequenceForUpdate locks the agent's counter row, creating it lazily.
func (r *pgTxRepository) AgentSequenceForUpdate(ctx context.Context, agentID int64) (int64, error) {
	const insertQuery = `
		INSERT INTO agent_sequence_states (agent_id, current_invoice_number)
		VALUES ($1, 0)
		ON CONFLICT (agent_id) DO NOTHING`
	if _, err := r.tx.Exec(ctx, insertQuery, agentID); err != nil {
		return 0, translatePgError(fmt.Errorf("invoicing: seed agent sequence: %w", err))
	}

	const lockQuery = `
		SELECT current_invoice_number FROM agent_sequence_states
		WHERE agent_id = $1
		FOR UPDATE`
	var current int64
	if err := r.tx.QueryRow(ctx, lockQuery, agentID).Scan(&current); err != nil {
		return 0, translatePgError(fmt.Errorf("invoicing: lock agent sequence: %w", err))
	}
	return current, nil
}

func (r *pgTxRepository) SetAgentSequence(ctx context.Context, agentID, value int64) error {
	const query = `
		UPDATE agent_sequence_states
		SET current_invoice_number = $2, updated_at = NOW()
		WHERE agent_id = $1`
	if _, err := r.tx.Exec(ctx, query, agentID, value); err != nil {
		return translatePgError(fmt.Errorf("invoicing: set agent sequence: %w", err))
	}
	return nil
}

func (r *pgTxRepository) InsertInvoice(ctx context.Context, inv *Invoice) error {
	const query = `
		INSERT INTO invoices (
			public_id, kind, agent_id, supplier_id, doc_number, agent_number,
			status, net_amount, vat_rate, vat_amount, total_amount,
			payee_vat_registered, issue_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	err := r.tx.QueryRow(ctx, query,
		inv.PublicID,
		inv.Kind,
		inv.AgentID,
		inv.SupplierID,
		inv.DocNumber,
		inv.AgentNumber,
		inv.Status,
		inv.NetAmount,
		inv.VATRate,
		inv.VATAmount,
		inv.TotalAmount,
		inv.VATRegistered,
		inv.IssueDate,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return translatePgError(err)
	}
	return nil
}

func (r *pgTxRepository) InsertLineItem(ctx context.Context, line *LineItem) error {
	const query = `
		INSERT INTO invoice_line_items (invoice_id, job_assignment_id, hours_worked, rate_net, line_net, headcount, voided)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING id`
	err := r.tx.QueryRow(ctx, query,
		line.InvoiceID,
		line.JobAssignmentID,
		line.HoursWorked,
		line.RateNet,
		line.LineNet,
		line.Headcount,
	).Scan(&line.ID)
	if err != nil {
		return translatePgError(err)
	}
	return nil
}

// MarkVoid voids the invoice and releases its assignment claims. The agent
// number stays consumed: voiding never frees a number for reuse.
func (r *pgTxRepository) MarkVoid(ctx context.Context, invoiceID int64) error {
	const invoiceQuery = `
		UPDATE invoices SET status = 'VOID', updated_at = NOW()
		WHERE id = $1 AND status <> 'VOID'`
	tag, err := r.tx.Exec(ctx, invoiceQuery, invoiceID)
	if err != nil {
		return translatePgError(fmt.Errorf("invoicing: void invoice: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	const lineQuery = `UPDATE invoice_line_items SET voided = TRUE WHERE invoice_id = $1`
	if _, err := r.tx.Exec(ctx, lineQuery, invoiceID); err != nil {
		return translatePgError(fmt.Errorf("invoicing: void lines: %w", err))
	}
	return nil
}
