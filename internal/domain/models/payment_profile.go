package models

import (
	"time"

	"github.com/google/uuid"
)

// ProfileType distinguishes the collection channel a profile bills through
type ProfileType string

const (
	ProfileBoleto  ProfileType = "boleto"
	ProfileDebit   ProfileType = "debit"
	ProfileGateway ProfileType = "api-gateway"
)

// PaymentProfile is the bank/gateway account configuration invoices are
// billed through. Read-only during reconciliation except for its counters,
// which only ever move forward.
type PaymentProfile struct {
	ID            uuid.UUID
	Name          string
	Type          ProfileType
	BankCode      string // e.g. "001", "237", "341"
	Agency        string
	AccountNumber string
	WalletCode    string // "carteira"
	VariationCode string
	AgreementCode string // "convênio", matched against return-file headers
	// NextReference is the monotonic external-reference allocator; gaps are
	// acceptable, duplicates are not
	NextReference int64
	// RemittanceSequence counts outgoing files; incremented once per
	// generation, never reused
	RemittanceSequence int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
