package renewal

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tupinet/billing-engine/internal/domain"
	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/testutil/mocks"
	"github.com/tupinet/billing-engine/pkg/timeutil"
)

func plannerContract(termMonths int) *models.Contract {
	return &models.Contract{
		ID:         uuid.New(),
		SignupDate: timeutil.Today(),
		BillingDay: 10,
		TermMonths: termMonths,
	}
}

func TestPlan_UncoveredContractNeedsFullTerm(t *testing.T) {
	invoices := &mocks.MockInvoiceRepository{}
	contract := plannerContract(12)
	invoices.On("LastByContract", mock.Anything, mock.Anything, contract.ID).Return(nil, nil)

	count, err := NewPlanner(invoices).Plan(context.Background(), contract, 1)

	require.NoError(t, err)
	assert.Equal(t, 12, count)
}

func TestPlan_QuarterlyCeilsPartialWindows(t *testing.T) {
	invoices := &mocks.MockInvoiceRepository{}
	contract := plannerContract(12)
	// covered one month in: 11 months remain, 4 quarterly invoices
	last := &models.Invoice{
		ID:               uuid.New(),
		ContractID:       contract.ID,
		ServicePeriodEnd: timeutil.AddMonthsClamped(timeutil.Today(), 1),
	}
	invoices.On("LastByContract", mock.Anything, mock.Anything, contract.ID).Return(last, nil)

	count, err := NewPlanner(invoices).Plan(context.Background(), contract, 3)

	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestPlan_FullyCoveredContractNeedsNothing(t *testing.T) {
	invoices := &mocks.MockInvoiceRepository{}
	contract := plannerContract(12)
	last := &models.Invoice{
		ID:               uuid.New(),
		ContractID:       contract.ID,
		ServicePeriodEnd: timeutil.AddMonthsClamped(timeutil.Today(), 13),
	}
	invoices.On("LastByContract", mock.Anything, mock.Anything, contract.ID).Return(last, nil)

	count, err := NewPlanner(invoices).Plan(context.Background(), contract, 1)

	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPlan_RepositoryErrorPropagates(t *testing.T) {
	invoices := &mocks.MockInvoiceRepository{}
	contract := plannerContract(12)
	invoices.On("LastByContract", mock.Anything, mock.Anything, contract.ID).
		Return(nil, domain.ErrDatabaseError)

	_, err := NewPlanner(invoices).Plan(context.Background(), contract, 1)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeDatabaseError))
}

func TestPlan_InvalidMonthsPerInvoiceDefaultsToMonthly(t *testing.T) {
	invoices := &mocks.MockInvoiceRepository{}
	contract := plannerContract(6)
	invoices.On("LastByContract", mock.Anything, mock.Anything, contract.ID).Return(nil, nil)

	count, err := NewPlanner(invoices).Plan(context.Background(), contract, 0)

	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

// guard against day-of-month drift: a contract signed mid-month stays at
// whole-month granularity regardless of today's date
func TestPlan_CoverageBoundaryIsWholeMonths(t *testing.T) {
	invoices := &mocks.MockInvoiceRepository{}
	contract := plannerContract(12)
	// covered through the day before target: one partial month remains
	target := timeutil.AddMonthsClamped(timeutil.Today(), 12)
	last := &models.Invoice{
		ID:               uuid.New(),
		ContractID:       contract.ID,
		ServicePeriodEnd: target.AddDate(0, 0, -2),
	}
	invoices.On("LastByContract", mock.Anything, mock.Anything, contract.ID).Return(last, nil)

	count, err := NewPlanner(invoices).Plan(context.Background(), contract, 1)

	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
