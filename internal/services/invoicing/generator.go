// Package invoicing turns contracts into invoice rows: period chaining,
// due-date stabilization, installment surcharges and first-period proration.
package invoicing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tupinet/billing-engine/internal/domain"
	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/domain/ports"
	"github.com/tupinet/billing-engine/internal/services/proration"
	"github.com/tupinet/billing-engine/pkg/observability"
	"github.com/tupinet/billing-engine/pkg/timeutil"
)

// Generator creates invoices for a contract. Generation per contract is
// serialized on the contract row lock; external references come from the
// payment profile's atomic counter, so concurrent generation across
// contracts sharing a profile never collides.
type Generator struct {
	db        ports.DBPort
	contracts ports.ContractRepository
	invoices  ports.InvoiceRepository
	profiles  ports.PaymentProfileRepository
	logger    ports.Logger
}

// NewGenerator creates a new invoice generator
func NewGenerator(
	db ports.DBPort,
	contracts ports.ContractRepository,
	invoices ports.InvoiceRepository,
	profiles ports.PaymentProfileRepository,
	logger ports.Logger,
) *Generator {
	return &Generator{
		db:        db,
		contracts: contracts,
		invoices:  invoices,
		profiles:  profiles,
		logger:    logger,
	}
}

// Generate creates count invoices for the contract, each covering
// monthsPerInvoice calendar months. The first period of a contract starts at
// its signup date; every later period starts the day after the previous
// invoice's service period ends.
func (g *Generator) Generate(ctx context.Context, contractID uuid.UUID, count, monthsPerInvoice int) ([]*models.Invoice, error) {
	if count <= 0 {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "invoice count must be positive").
			WithDetail("count", count)
	}
	if monthsPerInvoice <= 0 {
		monthsPerInvoice = 1
	}

	var created []*models.Invoice

	err := g.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		contract, err := g.contracts.GetForUpdate(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if !contract.IsActive() {
			return domain.NewDomainError(domain.ErrorCodeContractCancelled, "contract is cancelled").
				WithDetail("contract_id", contractID.String())
		}

		last, err := g.invoices.LastByContract(ctx, tx, contractID)
		if err != nil {
			return err
		}

		firstReference, err := g.profiles.AllocateReferences(ctx, tx, contract.PaymentProfileID, count)
		if err != nil {
			return err
		}

		created, err = g.buildInvoices(contract, last, count, monthsPerInvoice, firstReference)
		if err != nil {
			return err
		}

		for _, invoice := range created {
			if err := g.invoices.Create(ctx, tx, invoice); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(created) > 0 {
		observability.RecordInvoicesGenerated(created[0].PaymentProfileID.String(), len(created))
	}
	g.logger.Info("invoices generated",
		ports.String("contract_id", contractID.String()),
		ports.Int("count", len(created)),
	)
	return created, nil
}

// buildInvoices computes the invoice chain in memory. Only the first invoice
// of a contract is ever prorated: later periods always start on a due-date
// boundary and cover the whole window.
func (g *Generator) buildInvoices(contract *models.Contract, last *models.Invoice, count, monthsPerInvoice int, firstReference int64) ([]*models.Invoice, error) {
	var (
		periodStart     time.Time
		prevDue         time.Time
		nextInstallment int
		firstOfContract bool
	)
	if last != nil {
		periodStart = timeutil.StartOfDay(last.ServicePeriodEnd).AddDate(0, 0, 1)
		prevDue = timeutil.StartOfDay(last.DueDate)
		nextInstallment = last.InstallmentNumber + 1
	} else {
		periodStart = timeutil.StartOfDay(contract.SignupDate)
		prevDue = periodStart
		nextInstallment = 1
		firstOfContract = true
	}

	invoices := make([]*models.Invoice, 0, count)
	for n := 0; n < count; n++ {
		due := nextDueDate(prevDue, contract.BillingDay, monthsPerInvoice)

		installment := nextInstallment + n
		base := contract.BasePrice().Add(contract.InstallmentSurcharge(installment))

		amount := base
		if firstOfContract && n == 0 {
			fraction, err := proration.FractionUsed(
				periodStart,
				timeutil.AddMonthsClamped(periodStart, monthsPerInvoice),
				due,
			)
			if err != nil {
				return nil, fmt.Errorf("prorate first invoice: %w", err)
			}
			amount = base.Mul(fraction)
		}
		amount = amount.Round(2)

		invoices = append(invoices, &models.Invoice{
			ID:                 uuid.New(),
			ContractID:         contract.ID,
			PaymentProfileID:   contract.PaymentProfileID,
			Amount:             amount,
			OriginalAmount:     amount,
			DueDate:            due,
			OriginalDueDate:    due,
			InstallmentNumber:  installment,
			ExternalReference:  strconv.FormatInt(firstReference+int64(n), 10),
			ServicePeriodStart: periodStart,
			ServicePeriodEnd:   due,
		})

		periodStart = due.AddDate(0, 0, 1)
		prevDue = due
	}
	return invoices, nil
}

// nextDueDate advances the previous due date by months, clamps the result's
// day-of-month to the contract's billing day (or the month's last day when
// shorter), and skips one more month when the clamped date lands 2-10 days
// after the anchor. The band keeps two due dates from falling a few days
// apart when the billing day sits awkwardly against a month boundary.
func nextDueDate(prev time.Time, billingDay, months int) time.Time {
	tentative := timeutil.AddMonthsClamped(prev, months)
	due := timeutil.ClampDayOfMonth(tentative, billingDay)

	if gap := timeutil.DaysBetween(prev, due); gap >= 2 && gap <= 10 {
		due = timeutil.ClampDayOfMonth(timeutil.AddMonthsClamped(tentative, 1), billingDay)
	}
	return due
}
