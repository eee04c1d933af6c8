// Package cancellation ends a contract's billing at a given date, cleaning
// up the invoices the bank never needs to see and prorating the one it does.
package cancellation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tupinet/billing-engine/internal/domain/ports"
	"github.com/tupinet/billing-engine/internal/services/proration"
	"github.com/tupinet/billing-engine/pkg/timeutil"
)

// Processor applies a contract cancellation. All steps run in one
// transaction: partial cancellation is never visible.
type Processor struct {
	db        ports.DBPort
	contracts ports.ContractRepository
	invoices  ports.InvoiceRepository
	policy    ports.ConnectionPolicy
	logger    ports.Logger
}

// NewProcessor creates a new cancellation processor
func NewProcessor(
	db ports.DBPort,
	contracts ports.ContractRepository,
	invoices ports.InvoiceRepository,
	policy ports.ConnectionPolicy,
	logger ports.Logger,
) *Processor {
	return &Processor{
		db:        db,
		contracts: contracts,
		invoices:  invoices,
		policy:    policy,
		logger:    logger,
	}
}

// Cancel ends a contract's billing at the given date:
//
//  1. Generated invoices whose period starts on or after the date are hard
//     deleted; the bank never saw them.
//  2. Registered-but-unpaid invoices in the same range are soft-cancelled;
//     they must remain for bank bookkeeping.
//  3. The still-Generated invoice spanning the date, if any, is re-priced to
//     the used fraction of its period. A Registered or Paid invoice spanning
//     the date is left alone.
//
// The cancellation date is permanent: repeating the call with any date after
// the first changes nothing. Cancelling exactly on a period start deletes
// that invoice rather than leaving a zero-amount one.
func (p *Processor) Cancel(ctx context.Context, contractID uuid.UUID, date time.Time) error {
	date = timeutil.StartOfDay(date)

	err := p.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		contract, err := p.contracts.GetForUpdate(ctx, tx, contractID)
		if err != nil {
			return err
		}

		deleted, err := p.invoices.DeleteGeneratedFrom(ctx, tx, contractID, date)
		if err != nil {
			return err
		}

		cancelled, err := p.invoices.CancelRegisteredFrom(ctx, tx, contractID, date, timeutil.Now())
		if err != nil {
			return err
		}

		if err := p.prorateSpanning(ctx, tx, contractID, date); err != nil {
			return err
		}

		if contract.IsActive() {
			if err := p.contracts.SetCancellationDate(ctx, tx, contractID, date); err != nil {
				return err
			}
		}

		p.logger.Info("contract cancelled",
			ports.String("contract_id", contractID.String()),
			ports.String("cancellation_date", date.Format(time.DateOnly)),
			ports.Int64("invoices_deleted", deleted),
			ports.Int64("invoices_cancelled", cancelled),
		)
		return nil
	})
	if err != nil {
		return err
	}

	p.notifyPolicy(ctx, contractID)
	return nil
}

// notifyPolicy asks the connection policy to re-evaluate the contract's
// connections once the cancellation has committed. Fire-and-forget: the
// collaborator failing must not surface as a cancellation failure.
func (p *Processor) notifyPolicy(ctx context.Context, contractID uuid.UUID) {
	if p.policy == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("connection policy panicked",
				ports.String("contract_id", contractID.String()),
			)
		}
	}()
	p.policy.OnInvoiceOverdue(ctx, contractID)
}

// prorateSpanning re-prices the single Generated invoice whose service
// period contains the cancellation date. Recomputing from original_amount
// keeps a repeated cancellation from compounding the discount.
func (p *Processor) prorateSpanning(ctx context.Context, tx ports.DBTX, contractID uuid.UUID, date time.Time) error {
	invoice, err := p.invoices.GetGeneratedSpanning(ctx, tx, contractID, date)
	if err != nil {
		return err
	}
	if invoice == nil {
		return nil
	}

	fraction, err := proration.FractionUsed(invoice.ServicePeriodStart, invoice.ServicePeriodEnd, date)
	if err != nil {
		return fmt.Errorf("prorate spanning invoice: %w", err)
	}

	amount := invoice.OriginalAmount.Mul(fraction).Round(2)
	if amount.Equal(invoice.Amount) {
		return nil
	}
	return p.invoices.UpdateAmount(ctx, tx, invoice.ID, amount)
}
