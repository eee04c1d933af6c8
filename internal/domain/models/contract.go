package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan is the catalog entry a contract bills against
type Plan struct {
	ID           uuid.UUID
	Name         string
	MonthlyPrice decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Contract represents a customer's service agreement. Renewal and
// cancellation mutate it here; creation and deletion belong to onboarding.
type Contract struct {
	ID                uuid.UUID
	CustomerID        uuid.UUID
	PlanID            uuid.UUID
	PaymentProfileID  uuid.UUID
	SignupDate        time.Time
	BillingDay        int // 1-31, clamped to month length when shorter
	TermMonths        int
	CancellationDate  *time.Time // append-only: never cleared once set
	CustomPrice       *decimal.Decimal
	CustomDescription *string
	InstallmentAmount decimal.Decimal
	InstallmentCount  int
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// Plan is populated by repository reads that join the catalog
	Plan *Plan
}

// IsActive reports whether the contract has not been cancelled
func (c *Contract) IsActive() bool {
	return c.CancellationDate == nil
}

// BasePrice returns the custom price override when present, otherwise the
// plan's monthly price
func (c *Contract) BasePrice() decimal.Decimal {
	if c.CustomPrice != nil {
		return *c.CustomPrice
	}
	if c.Plan != nil {
		return c.Plan.MonthlyPrice
	}
	return decimal.Zero
}

// InstallmentSurcharge returns the per-invoice share of the contract's
// installment amount, or zero when the invoice is past the installment run
func (c *Contract) InstallmentSurcharge(installmentNumber int) decimal.Decimal {
	if c.InstallmentCount <= 0 || installmentNumber > c.InstallmentCount {
		return decimal.Zero
	}
	return c.InstallmentAmount.DivRound(decimal.NewFromInt(int64(c.InstallmentCount)), 2)
}

// RenewalCandidate is a contract plus the unpaid-invoice counts the batch
// runner needs to decide eligibility
type RenewalCandidate struct {
	Contract       Contract
	OverdueUnpaid  int
	UpcomingUnpaid int
}

// Renewable applies the batch-renewal eligibility rule: active, at most one
// unpaid overdue invoice and at most one upcoming unpaid invoice
func (rc *RenewalCandidate) Renewable() bool {
	return rc.Contract.IsActive() && rc.OverdueUnpaid <= 1 && rc.UpcomingUnpaid <= 1
}
