// Package renewal keeps contracts covered with invoices through their term
// and runs the batch jobs that do so across a payment profile.
package renewal

import (
	"context"

	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/domain/ports"
	"github.com/tupinet/billing-engine/pkg/timeutil"
)

// Planner computes how many invoices a contract still needs to stay covered
// through its term
type Planner struct {
	invoices ports.InvoiceRepository
}

// NewPlanner creates a new renewal planner
func NewPlanner(invoices ports.InvoiceRepository) *Planner {
	return &Planner{invoices: invoices}
}

// Plan returns the number of invoices needed so the contract's invoiced
// coverage reaches term_months from today. Zero means nothing to do.
func (p *Planner) Plan(ctx context.Context, contract *models.Contract, monthsPerInvoice int) (int, error) {
	if monthsPerInvoice <= 0 {
		monthsPerInvoice = 1
	}

	last, err := p.invoices.LastByContract(ctx, nil, contract.ID)
	if err != nil {
		return 0, err
	}

	coveredThrough := timeutil.StartOfDay(contract.SignupDate)
	if last != nil {
		coveredThrough = timeutil.StartOfDay(last.ServicePeriodEnd).AddDate(0, 0, 1)
	}

	target := timeutil.AddMonthsClamped(timeutil.Today(), contract.TermMonths)
	monthsRemaining := timeutil.WholeMonthsBetween(coveredThrough, target)
	if monthsRemaining <= 0 {
		return 0, nil
	}

	// ceil division: a partial trailing window still needs an invoice
	return (monthsRemaining + monthsPerInvoice - 1) / monthsPerInvoice, nil
}
