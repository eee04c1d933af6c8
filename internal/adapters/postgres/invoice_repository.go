package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tupinet/billing-engine/internal/domain"
	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/domain/ports"
)

const invoiceColumns = `
	id, contract_id, payment_profile_id, amount, original_amount,
	due_date, original_due_date, installment_number, external_reference,
	service_period_start, service_period_end, paid_on, paid_amount,
	payment_method, interest_received, discount_granted, cancelled_at,
	gateway_cancel_reason, registered_batch_id, writeoff_batch_id,
	paid_batch_id, created_at, updated_at`

// InvoiceRepository implements ports.InvoiceRepository on pgx
type InvoiceRepository struct {
	db ports.DBPort
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db ports.DBPort) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) q(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// Create persists a new invoice. A duplicate external reference within the
// payment profile surfaces as a generation conflict.
func (r *InvoiceRepository) Create(ctx context.Context, tx ports.DBTX, invoice *models.Invoice) error {
	amount, err := decimalToNumeric(invoice.Amount)
	if err != nil {
		return err
	}
	original, err := decimalToNumeric(invoice.OriginalAmount)
	if err != nil {
		return err
	}
	interest, err := decimalToNumeric(invoice.InterestReceived)
	if err != nil {
		return err
	}
	discount, err := decimalToNumeric(invoice.DiscountGranted)
	if err != nil {
		return err
	}

	_, err = r.q(tx).Exec(ctx, `
		INSERT INTO invoices (
			id, contract_id, payment_profile_id, amount, original_amount,
			due_date, original_due_date, installment_number,
			external_reference, service_period_start, service_period_end,
			interest_received, discount_granted
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		invoice.ID, invoice.ContractID, invoice.PaymentProfileID, amount, original,
		invoice.DueDate, invoice.OriginalDueDate, invoice.InstallmentNumber,
		invoice.ExternalReference, invoice.ServicePeriodStart, invoice.ServicePeriodEnd,
		interest, discount)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrorCodeInvoiceGenerationConflict,
				"external reference already allocated", err).
				WithDetail("external_reference", invoice.ExternalReference)
		}
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// GetByID retrieves an invoice by primary key
func (r *InvoiceRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.Invoice, error) {
	row := r.q(db).QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	return scanInvoice(row)
}

// GetForUpdate locks the invoice row for the enclosing transaction
func (r *InvoiceRepository) GetForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*models.Invoice, error) {
	row := r.q(tx).QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	return scanInvoice(row)
}

// LastByContract returns the invoice with the latest service period end, or
// nil when the contract has none
func (r *InvoiceRepository) LastByContract(ctx context.Context, db ports.DBTX, contractID uuid.UUID) (*models.Invoice, error) {
	row := r.q(db).QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE contract_id = $1 AND cancelled_at IS NULL
		ORDER BY service_period_end DESC
		LIMIT 1`, contractID)

	invoice, err := scanInvoice(row)
	if domain.IsDomainError(err, domain.ErrorCodeInvoiceNotFound) {
		return nil, nil
	}
	return invoice, err
}

// GetByExternalReference looks an invoice up by its bank-facing reference
func (r *InvoiceRepository) GetByExternalReference(ctx context.Context, db ports.DBTX, profileID uuid.UUID, reference string) (*models.Invoice, error) {
	row := r.q(db).QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE payment_profile_id = $1 AND external_reference = $2`, profileID, reference)
	return scanInvoice(row)
}

// DeleteGeneratedFrom hard-deletes Generated invoices starting on or after
// the date. Registered, paid or cancelled rows are never touched.
func (r *InvoiceRepository) DeleteGeneratedFrom(ctx context.Context, tx ports.DBTX, contractID uuid.UUID, from time.Time) (int64, error) {
	tag, err := r.q(tx).Exec(ctx, `
		DELETE FROM invoices
		WHERE contract_id = $1
			AND service_period_start >= $2
			AND registered_batch_id IS NULL
			AND paid_on IS NULL
			AND cancelled_at IS NULL`, contractID, from)
	if err != nil {
		return 0, fmt.Errorf("delete generated invoices: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CancelRegisteredFrom soft-cancels registered-but-unpaid invoices starting
// on or after the date; they must remain for bank bookkeeping
func (r *InvoiceRepository) CancelRegisteredFrom(ctx context.Context, tx ports.DBTX, contractID uuid.UUID, from, at time.Time) (int64, error) {
	tag, err := r.q(tx).Exec(ctx, `
		UPDATE invoices
		SET cancelled_at = $3, updated_at = now()
		WHERE contract_id = $1
			AND service_period_start >= $2
			AND registered_batch_id IS NOT NULL
			AND paid_on IS NULL
			AND cancelled_at IS NULL`, contractID, from, at)
	if err != nil {
		return 0, fmt.Errorf("cancel registered invoices: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetGeneratedSpanning returns the still-Generated invoice whose service
// period strictly contains the date, or nil
func (r *InvoiceRepository) GetGeneratedSpanning(ctx context.Context, tx ports.DBTX, contractID uuid.UUID, date time.Time) (*models.Invoice, error) {
	row := r.q(tx).QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE contract_id = $1
			AND service_period_start < $2
			AND service_period_end >= $2
			AND registered_batch_id IS NULL
			AND paid_on IS NULL
			AND cancelled_at IS NULL
		FOR UPDATE`, contractID, date)

	invoice, err := scanInvoice(row)
	if domain.IsDomainError(err, domain.ErrorCodeInvoiceNotFound) {
		return nil, nil
	}
	return invoice, err
}

// UpdateAmount rewrites the billed amount of a Generated invoice
func (r *InvoiceRepository) UpdateAmount(ctx context.Context, tx ports.DBTX, id uuid.UUID, amount decimal.Decimal) error {
	n, err := decimalToNumeric(amount)
	if err != nil {
		return err
	}
	tag, err := r.q(tx).Exec(ctx, `
		UPDATE invoices
		SET amount = $2, updated_at = now()
		WHERE id = $1 AND paid_on IS NULL AND cancelled_at IS NULL`, id, n)
	if err != nil {
		return fmt.Errorf("update invoice amount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewDomainError(domain.ErrorCodeInvoiceImmutable, "invoice state forbids this mutation").
			WithDetail("invoice_id", id.String())
	}
	return nil
}

// MarkRegistered sets the registered batch reference if it is still unset;
// an already-registered invoice is a no-op
func (r *InvoiceRepository) MarkRegistered(ctx context.Context, tx ports.DBTX, id, batchID uuid.UUID) error {
	_, err := r.q(tx).Exec(ctx, `
		UPDATE invoices
		SET registered_batch_id = $2, updated_at = now()
		WHERE id = $1 AND registered_batch_id IS NULL`, id, batchID)
	if err != nil {
		return fmt.Errorf("mark invoice registered: %w", err)
	}
	return nil
}

// MarkPaid records a settlement. The guard on paid_on/cancelled_at makes
// re-applying the same return line a no-op.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, tx ports.DBTX, params ports.MarkPaidParams) error {
	paid, err := decimalToNumeric(params.PaidAmount)
	if err != nil {
		return err
	}
	interest, err := decimalToNumeric(params.InterestReceived)
	if err != nil {
		return err
	}
	discount, err := decimalToNumeric(params.DiscountGranted)
	if err != nil {
		return err
	}

	tag, err := r.q(tx).Exec(ctx, `
		UPDATE invoices
		SET paid_on = $2, paid_amount = $3, payment_method = $4,
			interest_received = $5, discount_granted = $6,
			paid_batch_id = $7, updated_at = now()
		WHERE id = $1 AND paid_on IS NULL AND cancelled_at IS NULL`,
		params.InvoiceID, params.PaidOn, paid, string(params.Method),
		interest, discount, params.PaidBatchID)
	if err != nil {
		return fmt.Errorf("mark invoice paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewDomainError(domain.ErrorCodeInvoiceImmutable, "invoice state forbids this mutation").
			WithDetail("invoice_id", params.InvoiceID.String())
	}
	return nil
}

// MarkWriteoff sets the orthogonal write-off batch reference if unset
func (r *InvoiceRepository) MarkWriteoff(ctx context.Context, tx ports.DBTX, id, batchID uuid.UUID) error {
	_, err := r.q(tx).Exec(ctx, `
		UPDATE invoices
		SET writeoff_batch_id = $2, updated_at = now()
		WHERE id = $1 AND writeoff_batch_id IS NULL`, id, batchID)
	if err != nil {
		return fmt.Errorf("mark invoice written off: %w", err)
	}
	return nil
}

// SetGatewayCancelReason stores the gateway's cancellation reason as audit
// metadata without touching the local cancellation state
func (r *InvoiceRepository) SetGatewayCancelReason(ctx context.Context, tx ports.DBTX, id uuid.UUID, reason string) error {
	_, err := r.q(tx).Exec(ctx, `
		UPDATE invoices
		SET gateway_cancel_reason = $2, updated_at = now()
		WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("set gateway cancel reason: %w", err)
	}
	return nil
}

// ListPendingRegistration selects open invoices the bank has not seen yet,
// due before the cutoff
func (r *InvoiceRepository) ListPendingRegistration(ctx context.Context, db ports.DBTX, profileID uuid.UUID, dueBefore time.Time) ([]*models.Invoice, error) {
	rows, err := r.q(db).Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE payment_profile_id = $1
			AND registered_batch_id IS NULL
			AND paid_on IS NULL
			AND cancelled_at IS NULL
			AND due_date <= $2
		ORDER BY due_date, external_reference`, profileID, dueBefore)
	if err != nil {
		return nil, fmt.Errorf("list pending registration: %w", err)
	}
	return collectInvoices(rows)
}

// ListPendingWriteoff selects invoices the bank still needs told to close:
// paid outside the bank since the cutoff, or cancelled after registration.
// Invoices settled through the bank's own return file are excluded; the bank
// already closed those on its side.
func (r *InvoiceRepository) ListPendingWriteoff(ctx context.Context, db ports.DBTX, profileID uuid.UUID, paidSince time.Time) ([]*models.Invoice, error) {
	rows, err := r.q(db).Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE payment_profile_id = $1
			AND writeoff_batch_id IS NULL
			AND registered_batch_id IS NOT NULL
			AND (
				(paid_on IS NOT NULL AND paid_on >= $2 AND payment_method <> $3)
				OR cancelled_at IS NOT NULL
			)
		ORDER BY due_date, external_reference`, profileID, paidSince, models.PaymentMethodBankReturn)
	if err != nil {
		return nil, fmt.Errorf("list pending writeoff: %w", err)
	}
	return collectInvoices(rows)
}

// ListOverdueContracts returns the distinct contracts holding unpaid
// invoices past due
func (r *InvoiceRepository) ListOverdueContracts(ctx context.Context, db ports.DBTX, profileID uuid.UUID, asOf time.Time) ([]uuid.UUID, error) {
	rows, err := r.q(db).Query(ctx, `
		SELECT DISTINCT contract_id
		FROM invoices
		WHERE payment_profile_id = $1
			AND paid_on IS NULL
			AND cancelled_at IS NULL
			AND due_date < $2`, profileID, asOf)
	if err != nil {
		return nil, fmt.Errorf("list overdue contracts: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan contract id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectInvoices(rows pgx.Rows) ([]*models.Invoice, error) {
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	var (
		i            models.Invoice
		amount       pgtype.Numeric
		original     pgtype.Numeric
		paidOn       pgtype.Date
		paidAmount   pgtype.Numeric
		method       pgtype.Text
		interest     pgtype.Numeric
		discount     pgtype.Numeric
		cancelledAt  pgtype.Timestamptz
		cancelReason pgtype.Text
		registered   pgtype.UUID
		writeoff     pgtype.UUID
		paidBatch    pgtype.UUID
	)

	err := row.Scan(
		&i.ID, &i.ContractID, &i.PaymentProfileID, &amount, &original,
		&i.DueDate, &i.OriginalDueDate, &i.InstallmentNumber, &i.ExternalReference,
		&i.ServicePeriodStart, &i.ServicePeriodEnd, &paidOn, &paidAmount,
		&method, &interest, &discount, &cancelledAt,
		&cancelReason, &registered, &writeoff,
		&paidBatch, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("scan invoice: %w", err)
	}

	if i.Amount, err = pgNumericToDecimal(amount); err != nil {
		return nil, fmt.Errorf("convert amount: %w", err)
	}
	if i.OriginalAmount, err = pgNumericToDecimal(original); err != nil {
		return nil, fmt.Errorf("convert original amount: %w", err)
	}
	if i.PaidAmount, err = pgNumericToDecimalPtr(paidAmount); err != nil {
		return nil, fmt.Errorf("convert paid amount: %w", err)
	}
	if i.InterestReceived, err = pgNumericToDecimal(interest); err != nil {
		return nil, fmt.Errorf("convert interest: %w", err)
	}
	if i.DiscountGranted, err = pgNumericToDecimal(discount); err != nil {
		return nil, fmt.Errorf("convert discount: %w", err)
	}

	i.DueDate = i.DueDate.UTC()
	i.OriginalDueDate = i.OriginalDueDate.UTC()
	i.ServicePeriodStart = i.ServicePeriodStart.UTC()
	i.ServicePeriodEnd = i.ServicePeriodEnd.UTC()
	i.PaidOn = datePtr(paidOn)
	i.CancelledAt = timestamptzPtr(cancelledAt)
	i.GatewayCancelReason = textPtr(cancelReason)
	i.RegisteredBatchID = uuidPtr(registered)
	i.WriteoffBatchID = uuidPtr(writeoff)
	i.PaidBatchID = uuidPtr(paidBatch)
	if method.Valid {
		i.PaymentMethod = models.PaymentMethod(method.String)
	}

	return &i, nil
}
