package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tupinet/billing-engine/internal/domain/models"
)

// ContractRepository persists contracts. Reads join the plan catalog so the
// generator can price without a second round trip.
type ContractRepository interface {
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*models.Contract, error)

	// GetForUpdate locks the contract row for the duration of the enclosing
	// transaction; generation and cancellation serialize on it. Returns
	// ErrInvoiceGenerationConflict when the row is already locked.
	GetForUpdate(ctx context.Context, tx DBTX, id uuid.UUID) (*models.Contract, error)

	// ListRenewalCandidates returns every active contract billed through the
	// profile together with its unpaid-invoice counts as of the given date
	ListRenewalCandidates(ctx context.Context, db DBTX, profileID uuid.UUID, asOf time.Time) ([]*models.RenewalCandidate, error)

	// SetCancellationDate records the cancellation date; a date already set
	// is never overwritten
	SetCancellationDate(ctx context.Context, tx DBTX, id uuid.UUID, date time.Time) error
}

// MarkPaidParams carries the fields a paid transition writes together
type MarkPaidParams struct {
	InvoiceID        uuid.UUID
	PaidOn           time.Time
	PaidAmount       decimal.Decimal
	Method           models.PaymentMethod
	InterestReceived decimal.Decimal
	DiscountGranted  decimal.Decimal
	PaidBatchID      uuid.UUID
}

// InvoiceRepository persists invoices and their flag transitions
type InvoiceRepository interface {
	Create(ctx context.Context, tx DBTX, invoice *models.Invoice) error
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*models.Invoice, error)
	GetForUpdate(ctx context.Context, tx DBTX, id uuid.UUID) (*models.Invoice, error)

	// LastByContract returns the invoice with the latest service period end,
	// or nil when the contract has none
	LastByContract(ctx context.Context, db DBTX, contractID uuid.UUID) (*models.Invoice, error)

	// GetByExternalReference looks an invoice up by its bank-facing reference
	// within one payment profile
	GetByExternalReference(ctx context.Context, db DBTX, profileID uuid.UUID, reference string) (*models.Invoice, error)

	// DeleteGeneratedFrom hard-deletes Generated invoices whose service
	// period starts on or after the given date, returning the count removed
	DeleteGeneratedFrom(ctx context.Context, tx DBTX, contractID uuid.UUID, from time.Time) (int64, error)

	// CancelRegisteredFrom soft-cancels registered-but-unpaid invoices whose
	// service period starts on or after the given date
	CancelRegisteredFrom(ctx context.Context, tx DBTX, contractID uuid.UUID, from, at time.Time) (int64, error)

	// GetGeneratedSpanning returns the still-Generated invoice whose service
	// period strictly contains the date (start < date <= end), or nil
	GetGeneratedSpanning(ctx context.Context, tx DBTX, contractID uuid.UUID, date time.Time) (*models.Invoice, error)

	UpdateAmount(ctx context.Context, tx DBTX, id uuid.UUID, amount decimal.Decimal) error
	MarkRegistered(ctx context.Context, tx DBTX, id, batchID uuid.UUID) error
	MarkPaid(ctx context.Context, tx DBTX, params MarkPaidParams) error
	MarkWriteoff(ctx context.Context, tx DBTX, id, batchID uuid.UUID) error
	SetGatewayCancelReason(ctx context.Context, tx DBTX, id uuid.UUID, reason string) error

	// ListPendingRegistration selects unregistered, open invoices due within
	// the window for the Remittance Builder
	ListPendingRegistration(ctx context.Context, db DBTX, profileID uuid.UUID, dueBefore time.Time) ([]*models.Invoice, error)

	// ListPendingWriteoff selects invoices the bank still needs told to
	// close: recently paid outside the bank, or cancelled after registration
	ListPendingWriteoff(ctx context.Context, db DBTX, profileID uuid.UUID, paidSince time.Time) ([]*models.Invoice, error)

	// ListOverdueContracts returns the distinct contracts holding unpaid
	// invoices past due as of the given date
	ListOverdueContracts(ctx context.Context, db DBTX, profileID uuid.UUID, asOf time.Time) ([]uuid.UUID, error)
}

// PaymentProfileRepository persists payment profiles and their forward-only
// counters
type PaymentProfileRepository interface {
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*models.PaymentProfile, error)

	// AllocateReferences atomically advances the profile's reference counter
	// by n and returns the first reference of the reserved block
	AllocateReferences(ctx context.Context, tx DBTX, id uuid.UUID, n int) (int64, error)

	// NextRemittanceSequence atomically increments and returns the outgoing
	// file sequence; it never goes backwards
	NextRemittanceSequence(ctx context.Context, tx DBTX, id uuid.UUID) (int, error)
}

// ReconciliationBatchRepository persists batches; they are immutable after
// creation
type ReconciliationBatchRepository interface {
	Create(ctx context.Context, db DBTX, batch *models.ReconciliationBatch) error
}

// WebhookEventRepository persists gateway notifications and the processed-at
// redelivery guard
type WebhookEventRepository interface {
	Create(ctx context.Context, db DBTX, event *models.WebhookEvent) error
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, db DBTX, id uuid.UUID, at time.Time) error
}
