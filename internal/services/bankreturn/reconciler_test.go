package bankreturn

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tupinet/billing-engine/internal/domain"
	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/domain/ports"
	"github.com/tupinet/billing-engine/internal/testutil/mocks"
	"github.com/tupinet/billing-engine/pkg/timeutil"
)

type reconcilerFixture struct {
	db         *mocks.MockDBPort
	profiles   *mocks.MockPaymentProfileRepository
	invoices   *mocks.MockInvoiceRepository
	batches    *mocks.MockReconciliationBatchRepository
	policy     *mocks.MockConnectionPolicy
	reconciler *Reconciler
}

func newReconcilerFixture() *reconcilerFixture {
	f := &reconcilerFixture{
		db:       &mocks.MockDBPort{},
		profiles: &mocks.MockPaymentProfileRepository{},
		invoices: &mocks.MockInvoiceRepository{},
		batches:  &mocks.MockReconciliationBatchRepository{},
		policy:   &mocks.MockConnectionPolicy{},
	}
	f.reconciler = NewReconciler(f.db, f.profiles, f.invoices, f.batches, f.policy, mocks.NewMockLogger())
	return f
}

func bradescoProfile() *models.PaymentProfile {
	return &models.PaymentProfile{
		ID:            uuid.New(),
		Name:          "Bradesco carteira 09",
		Type:          models.ProfileBoleto,
		BankCode:      "237",
		AgreementCode: "12345",
	}
}

// buildLine assembles one fixed-width 400-char line: record type at position
// 0, field values spliced at their offsets, '0' padding everywhere else
func buildLine(recordType byte, fields map[int]string) string {
	line := []byte(strings.Repeat("0", 400))
	line[0] = recordType
	for start, value := range fields {
		copy(line[start:], value)
	}
	return string(line)
}

func bradescoHeader(agreement string) string {
	return buildLine('0', map[int]string{
		26:  agreement, // padded to field{26,20} by the surrounding zeros
		94:  "250326",  // file date, ddmmyy
		108: "00042",   // file sequence
	})
}

// bradescoDetail builds one detail line for the given occurrence code,
// reference (11 digits + check digit) and paid cents
func bradescoDetail(occurrence, reference, cents string) string {
	return buildLine('1', map[int]string{
		70:  reference,
		108: occurrence,
		110: "250326",
		253: cents,
	})
}

func openInvoice(reference, amount string) *models.Invoice {
	a := decimal.RequireFromString(amount)
	return &models.Invoice{
		ID:                uuid.New(),
		ContractID:        uuid.New(),
		Amount:            a,
		OriginalAmount:    a,
		ExternalReference: reference,
	}
}

func TestImport_AppliesEveryOccurrenceKind(t *testing.T) {
	f := newReconcilerFixture()
	profile := bradescoProfile()

	registered := openInvoice("1001", "100.00")
	paid := openInvoice("1002", "100.00")
	writtenOff := openInvoice("1003", "100.00")

	file := strings.Join([]string{
		bradescoHeader("00000000000000012345"),
		bradescoDetail("02", "000000010019", "0000000000000"),
		bradescoDetail("06", "000000010027", "0000000009500"),
		bradescoDetail("09", "000000010035", "0000000000000"),
	}, "\n")

	f.profiles.On("GetByID", mock.Anything, mock.Anything, profile.ID).Return(profile, nil)
	f.batches.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.invoices.On("GetByExternalReference", mock.Anything, mock.Anything, profile.ID, "1001").Return(registered, nil)
	f.invoices.On("GetByExternalReference", mock.Anything, mock.Anything, profile.ID, "1002").Return(paid, nil)
	f.invoices.On("GetByExternalReference", mock.Anything, mock.Anything, profile.ID, "1003").Return(writtenOff, nil)
	f.invoices.On("MarkRegistered", mock.Anything, mock.Anything, registered.ID, mock.Anything).Return(nil)
	f.invoices.On("MarkPaid", mock.Anything, mock.Anything, mock.MatchedBy(func(p ports.MarkPaidParams) bool {
		return p.InvoiceID == paid.ID &&
			p.PaidAmount.Equal(decimal.RequireFromString("95.00")) &&
			p.PaidOn.Equal(timeutil.Date(2026, time.March, 25)) &&
			p.Method == models.PaymentMethodBankReturn &&
			p.DiscountGranted.Equal(decimal.RequireFromString("5.00")) &&
			p.InterestReceived.IsZero()
	})).Return(nil)
	f.invoices.On("MarkWriteoff", mock.Anything, mock.Anything, writtenOff.ID, mock.Anything).Return(nil)
	f.policy.On("OnInvoicePaid", mock.Anything, paid.ContractID).Return()

	result, err := f.reconciler.Import(context.Background(), []byte(file), profile.ID)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Registered)
	assert.Equal(t, 1, result.Paid)
	assert.Equal(t, 1, result.WrittenOff)
	assert.Empty(t, result.Unmatched)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 42, result.Batch.Sequence)
	assert.Equal(t, "237-0000042", result.Batch.RawReference)
	assert.Equal(t, models.BatchSourceBankReturn, result.Batch.Source)
	assert.Equal(t, timeutil.Date(2026, time.March, 25), result.Batch.ReceivedOn)
	f.invoices.AssertExpectations(t)
	f.policy.AssertExpectations(t)
}

func TestImport_WrongAgreementIsRejectedUpfront(t *testing.T) {
	f := newReconcilerFixture()
	profile := bradescoProfile()
	file := bradescoHeader("00000000000000054321")

	f.profiles.On("GetByID", mock.Anything, mock.Anything, profile.ID).Return(profile, nil)

	_, err := f.reconciler.Import(context.Background(), []byte(file), profile.ID)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeReconIncompatibleFile))
	f.batches.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestImport_MalformedHeader(t *testing.T) {
	f := newReconcilerFixture()
	profile := bradescoProfile()
	f.profiles.On("GetByID", mock.Anything, mock.Anything, profile.ID).Return(profile, nil)

	_, err := f.reconciler.Import(context.Background(), []byte("not a return file"), profile.ID)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeReconMalformedFile))
}

func TestImport_UnsupportedBank(t *testing.T) {
	f := newReconcilerFixture()
	profile := bradescoProfile()
	profile.BankCode = "999"
	f.profiles.On("GetByID", mock.Anything, mock.Anything, profile.ID).Return(profile, nil)

	_, err := f.reconciler.Import(context.Background(), []byte("0"), profile.ID)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeProfileUnsupportedBank))
}

func TestImport_UnknownReferenceIsSkippedNotFatal(t *testing.T) {
	f := newReconcilerFixture()
	profile := bradescoProfile()
	known := openInvoice("1001", "100.00")

	file := strings.Join([]string{
		bradescoHeader("00000000000000012345"),
		bradescoDetail("02", "000000099990", "0000000000000"), // reference 9999, unknown
		bradescoDetail("02", "000000010019", "0000000000000"),
	}, "\n")

	f.profiles.On("GetByID", mock.Anything, mock.Anything, profile.ID).Return(profile, nil)
	f.batches.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.invoices.On("GetByExternalReference", mock.Anything, mock.Anything, profile.ID, "9999").
		Return(nil, domain.ErrInvoiceNotFound)
	f.invoices.On("GetByExternalReference", mock.Anything, mock.Anything, profile.ID, "1001").Return(known, nil)
	f.invoices.On("MarkRegistered", mock.Anything, mock.Anything, known.ID, mock.Anything).Return(nil)

	result, err := f.reconciler.Import(context.Background(), []byte(file), profile.ID)

	require.NoError(t, err)
	assert.Equal(t, []string{"9999"}, result.Unmatched)
	assert.Equal(t, 1, result.Registered)
	assert.Empty(t, result.Failed)
}

func TestImport_ReprocessingIsPerInvoiceNoop(t *testing.T) {
	f := newReconcilerFixture()
	profile := bradescoProfile()

	alreadyPaid := openInvoice("1002", "100.00")
	paidOn := timeutil.Date(2026, time.March, 25)
	alreadyPaid.PaidOn = &paidOn

	file := strings.Join([]string{
		bradescoHeader("00000000000000012345"),
		bradescoDetail("06", "000000010027", "0000000009500"),
	}, "\n")

	f.profiles.On("GetByID", mock.Anything, mock.Anything, profile.ID).Return(profile, nil)
	f.batches.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.invoices.On("GetByExternalReference", mock.Anything, mock.Anything, profile.ID, "1002").Return(alreadyPaid, nil)

	result, err := f.reconciler.Import(context.Background(), []byte(file), profile.ID)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Paid)
	assert.Equal(t, 1, result.AlreadyApplied)
	f.invoices.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything)
	f.policy.AssertNotCalled(t, "OnInvoicePaid", mock.Anything, mock.Anything)
}

func TestImport_RejectionsAndTrailersAreCounted(t *testing.T) {
	f := newReconcilerFixture()
	profile := bradescoProfile()

	file := strings.Join([]string{
		bradescoHeader("00000000000000012345"),
		bradescoDetail("03", "000000010019", "0000000000000"), // bank rejected the registration
		buildLine('9', nil), // trailer
	}, "\n")

	f.profiles.On("GetByID", mock.Anything, mock.Anything, profile.ID).Return(profile, nil)
	f.batches.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := f.reconciler.Import(context.Background(), []byte(file), profile.ID)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Rejected)
	assert.Empty(t, result.Failed)
	f.invoices.AssertNotCalled(t, "GetByExternalReference", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestImport_CRLFAndTrailingNewlineTolerated(t *testing.T) {
	f := newReconcilerFixture()
	profile := bradescoProfile()
	known := openInvoice("1001", "100.00")

	file := bradescoHeader("00000000000000012345") + "\r\n" +
		bradescoDetail("02", "000000010019", "0000000000000") + "\r\n"

	f.profiles.On("GetByID", mock.Anything, mock.Anything, profile.ID).Return(profile, nil)
	f.batches.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.invoices.On("GetByExternalReference", mock.Anything, mock.Anything, profile.ID, "1001").Return(known, nil)
	f.invoices.On("MarkRegistered", mock.Anything, mock.Anything, known.ID, mock.Anything).Return(nil)

	result, err := f.reconciler.Import(context.Background(), []byte(file), profile.ID)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Registered)
}
