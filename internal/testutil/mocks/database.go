// Package mocks provides shared mock implementations for testing.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/domain/ports"
)

// MockDBPort mocks the database port. Transactions execute the callback with
// a nil tx so service logic runs against mocked repositories.
type MockDBPort struct {
	mock.Mock
}

func (m *MockDBPort) GetDB() *pgxpool.Pool {
	return nil
}

func (m *MockDBPort) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

func (m *MockDBPort) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

// MockContractRepository mocks the contract repository
type MockContractRepository struct {
	mock.Mock
}

func (m *MockContractRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.Contract, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contract), args.Error(1)
}

func (m *MockContractRepository) GetForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*models.Contract, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contract), args.Error(1)
}

func (m *MockContractRepository) ListRenewalCandidates(ctx context.Context, db ports.DBTX, profileID uuid.UUID, asOf time.Time) ([]*models.RenewalCandidate, error) {
	args := m.Called(ctx, db, profileID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RenewalCandidate), args.Error(1)
}

func (m *MockContractRepository) SetCancellationDate(ctx context.Context, tx ports.DBTX, id uuid.UUID, date time.Time) error {
	args := m.Called(ctx, tx, id, date)
	return args.Error(0)
}

// MockInvoiceRepository mocks the invoice repository
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) Create(ctx context.Context, tx ports.DBTX, invoice *models.Invoice) error {
	args := m.Called(ctx, tx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) GetForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) LastByContract(ctx context.Context, db ports.DBTX, contractID uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, db, contractID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) GetByExternalReference(ctx context.Context, db ports.DBTX, profileID uuid.UUID, reference string) (*models.Invoice, error) {
	args := m.Called(ctx, db, profileID, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) DeleteGeneratedFrom(ctx context.Context, tx ports.DBTX, contractID uuid.UUID, from time.Time) (int64, error) {
	args := m.Called(ctx, tx, contractID, from)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceRepository) CancelRegisteredFrom(ctx context.Context, tx ports.DBTX, contractID uuid.UUID, from, at time.Time) (int64, error) {
	args := m.Called(ctx, tx, contractID, from, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceRepository) GetGeneratedSpanning(ctx context.Context, tx ports.DBTX, contractID uuid.UUID, date time.Time) (*models.Invoice, error) {
	args := m.Called(ctx, tx, contractID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) UpdateAmount(ctx context.Context, tx ports.DBTX, id uuid.UUID, amount decimal.Decimal) error {
	args := m.Called(ctx, tx, id, amount)
	return args.Error(0)
}

func (m *MockInvoiceRepository) MarkRegistered(ctx context.Context, tx ports.DBTX, id, batchID uuid.UUID) error {
	args := m.Called(ctx, tx, id, batchID)
	return args.Error(0)
}

func (m *MockInvoiceRepository) MarkPaid(ctx context.Context, tx ports.DBTX, params ports.MarkPaidParams) error {
	args := m.Called(ctx, tx, params)
	return args.Error(0)
}

func (m *MockInvoiceRepository) MarkWriteoff(ctx context.Context, tx ports.DBTX, id, batchID uuid.UUID) error {
	args := m.Called(ctx, tx, id, batchID)
	return args.Error(0)
}

func (m *MockInvoiceRepository) SetGatewayCancelReason(ctx context.Context, tx ports.DBTX, id uuid.UUID, reason string) error {
	args := m.Called(ctx, tx, id, reason)
	return args.Error(0)
}

func (m *MockInvoiceRepository) ListPendingRegistration(ctx context.Context, db ports.DBTX, profileID uuid.UUID, dueBefore time.Time) ([]*models.Invoice, error) {
	args := m.Called(ctx, db, profileID, dueBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) ListPendingWriteoff(ctx context.Context, db ports.DBTX, profileID uuid.UUID, paidSince time.Time) ([]*models.Invoice, error) {
	args := m.Called(ctx, db, profileID, paidSince)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) ListOverdueContracts(ctx context.Context, db ports.DBTX, profileID uuid.UUID, asOf time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, db, profileID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockPaymentProfileRepository mocks the payment profile repository
type MockPaymentProfileRepository struct {
	mock.Mock
}

func (m *MockPaymentProfileRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.PaymentProfile, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentProfile), args.Error(1)
}

func (m *MockPaymentProfileRepository) AllocateReferences(ctx context.Context, tx ports.DBTX, id uuid.UUID, n int) (int64, error) {
	args := m.Called(ctx, tx, id, n)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPaymentProfileRepository) NextRemittanceSequence(ctx context.Context, tx ports.DBTX, id uuid.UUID) (int, error) {
	args := m.Called(ctx, tx, id)
	return args.Int(0), args.Error(1)
}

// MockReconciliationBatchRepository mocks the batch repository
type MockReconciliationBatchRepository struct {
	mock.Mock
}

func (m *MockReconciliationBatchRepository) Create(ctx context.Context, db ports.DBTX, batch *models.ReconciliationBatch) error {
	args := m.Called(ctx, db, batch)
	return args.Error(0)
}

// MockWebhookEventRepository mocks the webhook event repository
type MockWebhookEventRepository struct {
	mock.Mock
}

func (m *MockWebhookEventRepository) Create(ctx context.Context, db ports.DBTX, event *models.WebhookEvent) error {
	args := m.Called(ctx, db, event)
	return args.Error(0)
}

func (m *MockWebhookEventRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.WebhookEvent, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WebhookEvent), args.Error(1)
}

func (m *MockWebhookEventRepository) MarkProcessed(ctx context.Context, db ports.DBTX, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, db, id, at)
	return args.Error(0)
}
