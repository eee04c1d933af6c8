// Package gatewayhook reconciles payment-gateway webhook deliveries against
// invoices. Deliveries may arrive duplicated and out of order; every state
// transition is idempotent and guarded by the stored event's processed-at
// stamp.
package gatewayhook

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/tupinet/billing-engine/internal/domain"
	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/domain/ports"
	"github.com/tupinet/billing-engine/pkg/observability"
	"github.com/tupinet/billing-engine/pkg/timeutil"
)

// ProcessResult summarizes what one webhook delivery changed
type ProcessResult struct {
	Batch *models.ReconciliationBatch

	Paid           int
	Registered     int
	WrittenOff     int
	CancelConfirms int
	Skipped        int
}

// Reconciler processes stored webhook events for the payment profile the
// gateway is configured on
type Reconciler struct {
	db        ports.DBPort
	profileID uuid.UUID
	events    ports.WebhookEventRepository
	invoices  ports.InvoiceRepository
	batches   ports.ReconciliationBatchRepository
	gateway   ports.GatewayClient
	policy    ports.ConnectionPolicy
	logger    ports.Logger
}

// NewReconciler creates a webhook reconciler bound to the api-gateway
// payment profile
func NewReconciler(
	db ports.DBPort,
	profileID uuid.UUID,
	events ports.WebhookEventRepository,
	invoices ports.InvoiceRepository,
	batches ports.ReconciliationBatchRepository,
	gateway ports.GatewayClient,
	policy ports.ConnectionPolicy,
	logger ports.Logger,
) *Reconciler {
	return &Reconciler{
		db:        db,
		profileID: profileID,
		events:    events,
		invoices:  invoices,
		batches:   batches,
		gateway:   gateway,
		policy:    policy,
		logger:    logger,
	}
}

// Receive stores a freshly delivered notification token and returns the
// event id to process. Storing before processing keeps a crash from losing
// the delivery.
func (r *Reconciler) Receive(ctx context.Context, token string) (uuid.UUID, error) {
	event := &models.WebhookEvent{
		ID:    uuid.New(),
		Token: token,
	}
	if err := r.events.Create(ctx, nil, event); err != nil {
		return uuid.Nil, err
	}
	return event.ID, nil
}

// Process resolves the event's token into sub-events and applies each one.
// A redelivered event that has already been processed is a successful no-op.
// The token exchange happens before any transaction opens; no network wait
// ever sits inside a transaction boundary.
func (r *Reconciler) Process(ctx context.Context, eventID uuid.UUID) (*ProcessResult, error) {
	event, err := r.events.GetByID(ctx, nil, eventID)
	if err != nil {
		return nil, err
	}
	if event.Processed() {
		r.logger.Debug("webhook event already processed",
			ports.String("event_id", eventID.String()),
		)
		return &ProcessResult{}, nil
	}

	subEvents, err := r.gateway.ExchangeToken(ctx, event.Token)
	if err != nil {
		return nil, err
	}

	// one batch per delivery, created before any invoice mutation so
	// partial progress stays attributable
	batch := &models.ReconciliationBatch{
		ID:               uuid.New(),
		PaymentProfileID: r.profileID,
		Source:           models.BatchSourceGateway,
		ReceivedOn:       timeutil.Today(),
		RawReference:     event.Token,
	}
	if err := r.batches.Create(ctx, nil, batch); err != nil {
		return nil, err
	}

	result := &ProcessResult{Batch: batch}
	for _, sub := range subEvents {
		r.applySubEvent(ctx, batch, sub, result)
	}

	if err := r.events.MarkProcessed(ctx, nil, eventID, timeutil.Now()); err != nil {
		// a concurrent redelivery got there first; its work already committed
		if domain.IsStaleEvent(err) {
			return result, nil
		}
		return nil, err
	}

	r.logger.Info("webhook delivery processed",
		ports.String("event_id", eventID.String()),
		ports.Int("paid", result.Paid),
		ports.Int("registered", result.Registered),
		ports.Int("written_off", result.WrittenOff),
		ports.Int("skipped", result.Skipped),
	)
	return result, nil
}

// applySubEvent handles one typed sub-event in its own transaction. Unknown
// invoices and unknown event types are skipped, never fatal to the delivery.
func (r *Reconciler) applySubEvent(ctx context.Context, batch *models.ReconciliationBatch, sub models.GatewayChargeEvent, result *ProcessResult) {
	invoiceID, err := uuid.Parse(sub.CustomID)
	if err != nil {
		r.logger.Warn("sub-event carries an unparseable invoice id",
			ports.String("custom_id", sub.CustomID),
			ports.String("charge_id", sub.ChargeID),
		)
		result.Skipped++
		return
	}

	var notifyPaid, notifyCancelled uuid.UUID

	err = r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		invoice, err := r.invoices.GetForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}

		switch sub.Type {
		case models.GatewayEventPaid, models.GatewayEventPreIdentified:
			if invoice.IsPaid() || invoice.IsCancelled() {
				result.Skipped++
				return nil
			}
			paid := decimal.New(sub.ValueCents, -2)
			invoice.ApplyPaymentDelta(paid)

			paidOn := timeutil.Today()
			if !sub.ReceivedByBankAt.IsZero() {
				paidOn = timeutil.StartOfDay(sub.ReceivedByBankAt)
			}
			if err := r.invoices.MarkPaid(ctx, tx, ports.MarkPaidParams{
				InvoiceID:        invoice.ID,
				PaidOn:           paidOn,
				PaidAmount:       paid,
				Method:           models.PaymentMethodGateway,
				InterestReceived: invoice.InterestReceived,
				DiscountGranted:  invoice.DiscountGranted,
				PaidBatchID:      batch.ID,
			}); err != nil {
				return err
			}
			notifyPaid = invoice.ContractID
			result.Paid++
			return nil

		case models.GatewayEventRegistered:
			if invoice.IsRegistered() {
				result.Skipped++
				return nil
			}
			result.Registered++
			return r.invoices.MarkRegistered(ctx, tx, invoice.ID, batch.ID)

		case models.GatewayEventManuallySettled:
			if invoice.IsWrittenOff() {
				result.Skipped++
				return nil
			}
			result.WrittenOff++
			return r.invoices.MarkWriteoff(ctx, tx, invoice.ID, batch.ID)

		case models.GatewayEventCancelled:
			// audit-preserving on both paths: the gateway's reason is
			// recorded as metadata whether or not the invoice was already
			// cancelled locally; rows are never purged
			notifyCancelled = invoice.ContractID
			result.CancelConfirms++
			return r.invoices.SetGatewayCancelReason(ctx, tx, invoice.ID, sub.CancelReason)

		default:
			result.Skipped++
			return nil
		}
	})
	if err != nil {
		if domain.IsNotFoundError(err) {
			r.logger.Warn("sub-event references unknown invoice",
				ports.String("invoice_id", invoiceID.String()),
				ports.String("charge_id", sub.ChargeID),
			)
			result.Skipped++
			return
		}
		r.logger.Error("sub-event failed",
			ports.String("invoice_id", invoiceID.String()),
			ports.String("status", sub.Status),
			ports.Err(err),
		)
		result.Skipped++
		return
	}

	if notifyPaid != uuid.Nil {
		observability.RecordInvoicePaid(r.profileID.String(), string(models.PaymentMethodGateway), sub.ValueCents)
		if r.policy != nil {
			r.policy.OnInvoicePaid(ctx, notifyPaid)
		}
	}
	// a cancelled charge is grounds to re-evaluate suspension, same as an
	// overdue invoice
	if notifyCancelled != uuid.Nil && r.policy != nil {
		r.policy.OnInvoiceOverdue(ctx, notifyCancelled)
	}
}
