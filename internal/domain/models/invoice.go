package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is derived from the invoice's flag fields for reporting.
// The nullable flags remain the persisted source of truth so that paid and
// written-off can coexist.
type InvoiceStatus string

const (
	// InvoiceGenerated means created locally, never transmitted to a bank
	InvoiceGenerated InvoiceStatus = "generated"
	// InvoiceRegistered means transmitted to the bank; hard deletion forbidden
	InvoiceRegistered InvoiceStatus = "registered"
	// InvoicePaid is terminal for payment purposes
	InvoicePaid InvoiceStatus = "paid"
	// InvoiceCancelled is terminal; amount and paid fields are frozen
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// PaymentMethod identifies the reconciliation channel that settled an invoice
type PaymentMethod string

const (
	PaymentMethodBankReturn PaymentMethod = "bank_return"
	PaymentMethodGateway    PaymentMethod = "gateway"
)

// Invoice represents one billed period of a contract
type Invoice struct {
	ID                  uuid.UUID
	ContractID          uuid.UUID
	PaymentProfileID    uuid.UUID
	Amount              decimal.Decimal
	OriginalAmount      decimal.Decimal
	DueDate             time.Time
	OriginalDueDate     time.Time
	InstallmentNumber   int
	ExternalReference   string // "nosso número", unique per payment profile
	ServicePeriodStart  time.Time
	ServicePeriodEnd    time.Time
	PaidOn              *time.Time
	PaidAmount          *decimal.Decimal
	PaymentMethod       PaymentMethod
	InterestReceived    decimal.Decimal
	DiscountGranted     decimal.Decimal
	CancelledAt         *time.Time
	GatewayCancelReason *string
	RegisteredBatchID   *uuid.UUID
	WriteoffBatchID     *uuid.UUID
	PaidBatchID         *uuid.UUID
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Status derives the composite state from the flag fields. Cancellation wins
// over payment for reporting; the write-off flag is orthogonal (see
// IsWrittenOff) and deliberately absent here.
func (i *Invoice) Status() InvoiceStatus {
	switch {
	case i.CancelledAt != nil:
		return InvoiceCancelled
	case i.PaidOn != nil:
		return InvoicePaid
	case i.RegisteredBatchID != nil:
		return InvoiceRegistered
	default:
		return InvoiceGenerated
	}
}

// IsPaid reports whether a payment has been applied
func (i *Invoice) IsPaid() bool {
	return i.PaidOn != nil
}

// IsCancelled reports whether the invoice was soft-cancelled
func (i *Invoice) IsCancelled() bool {
	return i.CancelledAt != nil
}

// IsRegistered reports whether the bank has seen this invoice
func (i *Invoice) IsRegistered() bool {
	return i.RegisteredBatchID != nil
}

// IsWrittenOff reports the orthogonal bookkeeping flag; legitimately true
// together with paid or cancelled
func (i *Invoice) IsWrittenOff() bool {
	return i.WriteoffBatchID != nil
}

// Deletable reports whether hard deletion is allowed: only while Generated
func (i *Invoice) Deletable() bool {
	return i.Status() == InvoiceGenerated
}

// Overdue reports whether the invoice is unpaid past its due date
func (i *Invoice) Overdue(asOf time.Time) bool {
	return i.PaidOn == nil && i.CancelledAt == nil && i.DueDate.Before(asOf)
}

// ContainsDate reports whether the service period covers the given date,
// both bounds inclusive
func (i *Invoice) ContainsDate(d time.Time) bool {
	return !d.Before(i.ServicePeriodStart) && !d.After(i.ServicePeriodEnd)
}

// ApplyPaymentDelta splits the difference between the externally reported
// paid amount and the billed amount into discount granted or interest
// received. Only one of the two is ever non-zero.
func (i *Invoice) ApplyPaymentDelta(paid decimal.Decimal) {
	delta := paid.Sub(i.Amount)
	switch {
	case delta.IsNegative():
		i.DiscountGranted = delta.Neg()
		i.InterestReceived = decimal.Zero
	case delta.IsPositive():
		i.InterestReceived = delta
		i.DiscountGranted = decimal.Zero
	default:
		i.DiscountGranted = decimal.Zero
		i.InterestReceived = decimal.Zero
	}
}
