package cancellation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tupinet/billing-engine/internal/domain"
	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/testutil/mocks"
	"github.com/tupinet/billing-engine/pkg/timeutil"
)

type processorFixture struct {
	db        *mocks.MockDBPort
	contracts *mocks.MockContractRepository
	invoices  *mocks.MockInvoiceRepository
	policy    *mocks.MockConnectionPolicy
	processor *Processor
}

func newProcessorFixture() *processorFixture {
	f := &processorFixture{
		db:        &mocks.MockDBPort{},
		contracts: &mocks.MockContractRepository{},
		invoices:  &mocks.MockInvoiceRepository{},
		policy:    &mocks.MockConnectionPolicy{},
	}
	f.policy.On("OnInvoiceOverdue", mock.Anything, mock.Anything).Maybe()
	f.processor = NewProcessor(f.db, f.contracts, f.invoices, f.policy, mocks.NewMockLogger())
	return f
}

func activeContract() *models.Contract {
	return &models.Contract{
		ID:         uuid.New(),
		SignupDate: timeutil.Date(2026, time.January, 10),
		BillingDay: 10,
		TermMonths: 12,
	}
}

func spanningInvoice(contractID uuid.UUID, start, end time.Time, amount string) *models.Invoice {
	a := decimal.RequireFromString(amount)
	return &models.Invoice{
		ID:                 uuid.New(),
		ContractID:         contractID,
		Amount:             a,
		OriginalAmount:     a,
		ServicePeriodStart: start,
		ServicePeriodEnd:   end,
		DueDate:            end,
	}
}

func TestCancel_CleansUpAndProratesSpanningInvoice(t *testing.T) {
	contract := activeContract()
	date := timeutil.Date(2026, time.March, 25)
	// 14 days used of a 31-day period
	spanning := spanningInvoice(contract.ID,
		timeutil.Date(2026, time.March, 11), timeutil.Date(2026, time.April, 10), "100.00")

	f := newProcessorFixture()
	f.contracts.On("GetForUpdate", mock.Anything, mock.Anything, contract.ID).Return(contract, nil)
	f.invoices.On("DeleteGeneratedFrom", mock.Anything, mock.Anything, contract.ID, date).
		Return(int64(2), nil)
	f.invoices.On("CancelRegisteredFrom", mock.Anything, mock.Anything, contract.ID, date, mock.Anything).
		Return(int64(1), nil)
	f.invoices.On("GetGeneratedSpanning", mock.Anything, mock.Anything, contract.ID, date).
		Return(spanning, nil)
	f.invoices.On("UpdateAmount", mock.Anything, mock.Anything, spanning.ID,
		decimal.RequireFromString("45.16")).Return(nil)
	f.contracts.On("SetCancellationDate", mock.Anything, mock.Anything, contract.ID, date).Return(nil)

	err := f.processor.Cancel(context.Background(), contract.ID, date)

	require.NoError(t, err)
	f.invoices.AssertExpectations(t)
	f.contracts.AssertExpectations(t)
}

func TestCancel_RepeatedCancellationDoesNotCompound(t *testing.T) {
	contract := activeContract()
	cancelledOn := timeutil.Date(2026, time.March, 25)
	contract.CancellationDate = &cancelledOn
	// the spanning invoice was already re-priced by the first run
	spanning := spanningInvoice(contract.ID,
		timeutil.Date(2026, time.March, 11), timeutil.Date(2026, time.April, 10), "100.00")
	spanning.Amount = decimal.RequireFromString("45.16")

	f := newProcessorFixture()
	f.contracts.On("GetForUpdate", mock.Anything, mock.Anything, contract.ID).Return(contract, nil)
	f.invoices.On("DeleteGeneratedFrom", mock.Anything, mock.Anything, contract.ID, cancelledOn).
		Return(int64(0), nil)
	f.invoices.On("CancelRegisteredFrom", mock.Anything, mock.Anything, contract.ID, cancelledOn, mock.Anything).
		Return(int64(0), nil)
	f.invoices.On("GetGeneratedSpanning", mock.Anything, mock.Anything, contract.ID, cancelledOn).
		Return(spanning, nil)

	err := f.processor.Cancel(context.Background(), contract.ID, cancelledOn)

	require.NoError(t, err)
	// already at the prorated amount and already cancelled: nothing written
	f.invoices.AssertNotCalled(t, "UpdateAmount", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.contracts.AssertNotCalled(t, "SetCancellationDate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancel_OnPeriodStartLeavesNoSpanningInvoice(t *testing.T) {
	contract := activeContract()
	date := timeutil.Date(2026, time.April, 11)

	f := newProcessorFixture()
	f.contracts.On("GetForUpdate", mock.Anything, mock.Anything, contract.ID).Return(contract, nil)
	f.invoices.On("DeleteGeneratedFrom", mock.Anything, mock.Anything, contract.ID, date).
		Return(int64(1), nil)
	f.invoices.On("CancelRegisteredFrom", mock.Anything, mock.Anything, contract.ID, date, mock.Anything).
		Return(int64(0), nil)
	f.invoices.On("GetGeneratedSpanning", mock.Anything, mock.Anything, contract.ID, date).
		Return(nil, nil)
	f.contracts.On("SetCancellationDate", mock.Anything, mock.Anything, contract.ID, date).Return(nil)

	err := f.processor.Cancel(context.Background(), contract.ID, date)

	require.NoError(t, err)
	f.invoices.AssertNotCalled(t, "UpdateAmount", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancel_TruncatesTimeOfDay(t *testing.T) {
	contract := activeContract()
	midday := time.Date(2026, time.March, 25, 14, 30, 0, 0, time.UTC)
	date := timeutil.Date(2026, time.March, 25)

	f := newProcessorFixture()
	f.contracts.On("GetForUpdate", mock.Anything, mock.Anything, contract.ID).Return(contract, nil)
	f.invoices.On("DeleteGeneratedFrom", mock.Anything, mock.Anything, contract.ID, date).
		Return(int64(0), nil)
	f.invoices.On("CancelRegisteredFrom", mock.Anything, mock.Anything, contract.ID, date, mock.Anything).
		Return(int64(0), nil)
	f.invoices.On("GetGeneratedSpanning", mock.Anything, mock.Anything, contract.ID, date).
		Return(nil, nil)
	f.contracts.On("SetCancellationDate", mock.Anything, mock.Anything, contract.ID, date).Return(nil)

	err := f.processor.Cancel(context.Background(), contract.ID, midday)

	require.NoError(t, err)
	f.contracts.AssertExpectations(t)
}

func TestCancel_LockedContractPropagatesConflict(t *testing.T) {
	contractID := uuid.New()
	f := newProcessorFixture()
	f.contracts.On("GetForUpdate", mock.Anything, mock.Anything, contractID).
		Return(nil, domain.NewDomainError(domain.ErrorCodeInvoiceGenerationConflict, "contract is locked"))

	err := f.processor.Cancel(context.Background(), contractID, timeutil.Date(2026, time.March, 25))

	require.Error(t, err)
	assert.True(t, domain.IsGenerationConflict(err))
	f.invoices.AssertNotCalled(t, "DeleteGeneratedFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.policy.AssertNotCalled(t, "OnInvoiceOverdue", mock.Anything, mock.Anything)
}

func TestCancel_NotifiesConnectionPolicyAfterCommit(t *testing.T) {
	contract := activeContract()
	date := timeutil.Date(2026, time.March, 25)

	f := newProcessorFixture()
	f.contracts.On("GetForUpdate", mock.Anything, mock.Anything, contract.ID).Return(contract, nil)
	f.invoices.On("DeleteGeneratedFrom", mock.Anything, mock.Anything, contract.ID, date).
		Return(int64(0), nil)
	f.invoices.On("CancelRegisteredFrom", mock.Anything, mock.Anything, contract.ID, date, mock.Anything).
		Return(int64(0), nil)
	f.invoices.On("GetGeneratedSpanning", mock.Anything, mock.Anything, contract.ID, date).
		Return(nil, nil)
	f.contracts.On("SetCancellationDate", mock.Anything, mock.Anything, contract.ID, date).Return(nil)

	err := f.processor.Cancel(context.Background(), contract.ID, date)

	require.NoError(t, err)
	f.policy.AssertCalled(t, "OnInvoiceOverdue", mock.Anything, contract.ID)
}

func TestCancel_PolicyPanicDoesNotFailCancellation(t *testing.T) {
	contract := activeContract()
	date := timeutil.Date(2026, time.March, 25)

	f := newProcessorFixture()
	f.contracts.On("GetForUpdate", mock.Anything, mock.Anything, contract.ID).Return(contract, nil)
	f.invoices.On("DeleteGeneratedFrom", mock.Anything, mock.Anything, contract.ID, date).
		Return(int64(0), nil)
	f.invoices.On("CancelRegisteredFrom", mock.Anything, mock.Anything, contract.ID, date, mock.Anything).
		Return(int64(0), nil)
	f.invoices.On("GetGeneratedSpanning", mock.Anything, mock.Anything, contract.ID, date).
		Return(nil, nil)
	f.contracts.On("SetCancellationDate", mock.Anything, mock.Anything, contract.ID, date).Return(nil)

	broken := &mocks.MockConnectionPolicy{}
	broken.On("OnInvoiceOverdue", mock.Anything, contract.ID).Panic("radius down")
	processor := NewProcessor(f.db, f.contracts, f.invoices, broken, mocks.NewMockLogger())

	err := processor.Cancel(context.Background(), contract.ID, date)

	require.NoError(t, err)
	broken.AssertExpectations(t)
}
