package gatewayhook

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
	"github.com/tupinet/billing-engine/internal/domain/ports"
	"github.com/tupinet/billing-engine/internal/testutil/mocks"
	"github.com/tupinet/billing-engine/pkg/timeutil"
)

type hookFixture struct {
	db         *mocks.MockDBPort
	events     *mocks.MockWebhookEventRepository
	invoices   *mocks.MockInvoiceRepository
	batches    *mocks.MockReconciliationBatchRepository
	gateway    *mocks.MockGatewayClient
	policy     *mocks.MockConnectionPolicy
	profileID  uuid.UUID
	reconciler *Reconciler
}

func newHookFixture() *hookFixture {
	f := &hookFixture{
		db:        &mocks.MockDBPort{},
		events:    &mocks.MockWebhookEventRepository{},
		invoices:  &mocks.MockInvoiceRepository{},
		batches:   &mocks.MockReconciliationBatchRepository{},
		gateway:   &mocks.MockGatewayClient{},
		policy:    &mocks.MockConnectionPolicy{},
		profileID: uuid.New(),
	}
	f.reconciler = NewReconciler(
		f.db, f.profileID, f.events, f.invoices, f.batches, f.gateway, f.policy, mocks.NewMockLogger())
	return f
}

func storedEvent(token string) *models.WebhookEvent {
	return &models.WebhookEvent{
		ID:    uuid.New(),
		Token: token,
	}
}

func gatewayInvoice(amount string) *models.Invoice {
	a := decimal.RequireFromString(amount)
	return &models.Invoice{
		ID:             uuid.New(),
		ContractID:     uuid.New(),
		Amount:         a,
		OriginalAmount: a,
	}
}

func TestReceive_StoresTheTokenBeforeProcessing(t *testing.T) {
	f := newHookFixture()
	f.events.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(e *models.WebhookEvent) bool {
		return e.Token == "tok-123" && e.ID != uuid.Nil
	})).Return(nil)

	id, err := f.reconciler.Receive(context.Background(), "tok-123")

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	f.events.AssertExpectations(t)
}

func TestProcess_PaidSubEventSettlesTheInvoice(t *testing.T) {
	f := newHookFixture()
	event := storedEvent("tok-123")
	invoice := gatewayInvoice("100.00")
	bankDay := time.Date(2026, time.March, 25, 16, 40, 0, 0, time.UTC)

	f.events.On("GetByID", mock.Anything, mock.Anything, event.ID).Return(event, nil)
	f.gateway.On("ExchangeToken", mock.Anything, "tok-123").Return([]models.GatewayChargeEvent{{
		Type:             models.GatewayEventPaid,
		Status:           "paid",
		ChargeID:         "ch_1",
		CustomID:         invoice.ID.String(),
		ValueCents:       10250,
		ReceivedByBankAt: bankDay,
	}}, nil)
	f.batches.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(b *models.ReconciliationBatch) bool {
		return b.PaymentProfileID == f.profileID &&
			b.Source == models.BatchSourceGateway &&
			b.RawReference == "tok-123"
	})).Return(nil)
	f.invoices.On("GetForUpdate", mock.Anything, mock.Anything, invoice.ID).Return(invoice, nil)
	f.invoices.On("MarkPaid", mock.Anything, mock.Anything, mock.MatchedBy(func(p ports.MarkPaidParams) bool {
		return p.InvoiceID == invoice.ID &&
			p.PaidAmount.Equal(decimal.RequireFromString("102.50")) &&
			p.PaidOn.Equal(timeutil.Date(2026, time.March, 25)) &&
			p.Method == models.PaymentMethodGateway &&
			p.InterestReceived.Equal(decimal.RequireFromString("2.50")) &&
			p.DiscountGranted.IsZero()
	})).Return(nil)
	f.events.On("MarkProcessed", mock.Anything, mock.Anything, event.ID, mock.Anything).Return(nil)
	f.policy.On("OnInvoicePaid", mock.Anything, invoice.ContractID).Return()

	result, err := f.reconciler.Process(context.Background(), event.ID)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Paid)
	f.invoices.AssertExpectations(t)
	f.policy.AssertExpectations(t)
}

func TestProcess_RedeliveredEventIsANoop(t *testing.T) {
	f := newHookFixture()
	event := storedEvent("tok-123")
	processedAt := timeutil.Now()
	event.ProcessedAt = &processedAt

	f.events.On("GetByID", mock.Anything, mock.Anything, event.ID).Return(event, nil)

	result, err := f.reconciler.Process(context.Background(), event.ID)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Paid)
	f.gateway.AssertNotCalled(t, "ExchangeToken", mock.Anything, mock.Anything)
	f.batches.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_CancelledSubEventKeepsTheAuditTrail(t *testing.T) {
	f := newHookFixture()
	event := storedEvent("tok-123")
	// already cancelled locally: the gateway's reason still gets recorded
	invoice := gatewayInvoice("100.00")
	cancelledAt := timeutil.Now()
	invoice.CancelledAt = &cancelledAt

	f.events.On("GetByID", mock.Anything, mock.Anything, event.ID).Return(event, nil)
	f.gateway.On("ExchangeToken", mock.Anything, "tok-123").Return([]models.GatewayChargeEvent{{
		Type:         models.GatewayEventCancelled,
		Status:       "canceled",
		CustomID:     invoice.ID.String(),
		CancelReason: "expired by bank",
	}}, nil)
	f.batches.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.invoices.On("GetForUpdate", mock.Anything, mock.Anything, invoice.ID).Return(invoice, nil)
	f.invoices.On("SetGatewayCancelReason", mock.Anything, mock.Anything, invoice.ID, "expired by bank").Return(nil)
	f.events.On("MarkProcessed", mock.Anything, mock.Anything, event.ID, mock.Anything).Return(nil)
	// the cancelled transition prompts a suspension re-evaluation once it
	// has committed
	f.policy.On("OnInvoiceOverdue", mock.Anything, invoice.ContractID).Return()

	result, err := f.reconciler.Process(context.Background(), event.ID)

	require.NoError(t, err)
	assert.Equal(t, 1, result.CancelConfirms)
	f.invoices.AssertExpectations(t)
	f.policy.AssertExpectations(t)
}

func TestProcess_AlreadyPaidInvoiceIsSkipped(t *testing.T) {
	f := newHookFixture()
	event := storedEvent("tok-123")
	invoice := gatewayInvoice("100.00")
	paidOn := timeutil.Date(2026, time.March, 20)
	invoice.PaidOn = &paidOn

	f.events.On("GetByID", mock.Anything, mock.Anything, event.ID).Return(event, nil)
	f.gateway.On("ExchangeToken", mock.Anything, "tok-123").Return([]models.GatewayChargeEvent{{
		Type:       models.GatewayEventPaid,
		CustomID:   invoice.ID.String(),
		ValueCents: 10000,
	}}, nil)
	f.batches.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.invoices.On("GetForUpdate", mock.Anything, mock.Anything, invoice.ID).Return(invoice, nil)
	f.events.On("MarkProcessed", mock.Anything, mock.Anything, event.ID, mock.Anything).Return(nil)

	result, err := f.reconciler.Process(context.Background(), event.ID)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Paid)
	assert.Equal(t, 1, result.Skipped)
	f.invoices.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_UnknownInvoiceDoesNotFailTheDelivery(t *testing.T) {
	f := newHookFixture()
	event := storedEvent("tok-123")
	unknownID := uuid.New()
	known := gatewayInvoice("100.00")

	f.events.On("GetByID", mock.Anything, mock.Anything, event.ID).Return(event, nil)
	f.gateway.On("ExchangeToken", mock.Anything, "tok-123").Return([]models.GatewayChargeEvent{
		{Type: models.GatewayEventRegistered, CustomID: unknownID.String()},
		{Type: models.GatewayEventRegistered, CustomID: known.ID.String()},
		{Type: models.GatewayEventRegistered, CustomID: "not-a-uuid"},
	}, nil)
	f.batches.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.invoices.On("GetForUpdate", mock.Anything, mock.Anything, unknownID).Return(nil, domain.ErrInvoiceNotFound)
	f.invoices.On("GetForUpdate", mock.Anything, mock.Anything, known.ID).Return(known, nil)
	f.invoices.On("MarkRegistered", mock.Anything, mock.Anything, known.ID, mock.Anything).Return(nil)
	f.events.On("MarkProcessed", mock.Anything, mock.Anything, event.ID, mock.Anything).Return(nil)

	result, err := f.reconciler.Process(context.Background(), event.ID)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Registered)
	assert.Equal(t, 2, result.Skipped)
}

func TestProcess_StaleMarkProcessedIsSuccess(t *testing.T) {
	f := newHookFixture()
	event := storedEvent("tok-123")

	f.events.On("GetByID", mock.Anything, mock.Anything, event.ID).Return(event, nil)
	f.gateway.On("ExchangeToken", mock.Anything, "tok-123").Return([]models.GatewayChargeEvent{}, nil)
	f.batches.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	// a concurrent redelivery committed first
	f.events.On("MarkProcessed", mock.Anything, mock.Anything, event.ID, mock.Anything).
		Return(domain.ErrWebhookStaleEvent)

	result, err := f.reconciler.Process(context.Background(), event.ID)

	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestProcess_ExchangeFailureLeavesEventUnprocessed(t *testing.T) {
	f := newHookFixture()
	event := storedEvent("tok-123")

	f.events.On("GetByID", mock.Anything, mock.Anything, event.ID).Return(event, nil)
	f.gateway.On("ExchangeToken", mock.Anything, "tok-123").
		Return(nil, domain.NewDomainError(domain.ErrorCodeWebhookExchange, "gateway unreachable"))

	_, err := f.reconciler.Process(context.Background(), event.ID)

	require.Error(t, err)
	f.events.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.batches.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}
