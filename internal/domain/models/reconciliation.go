package models

import (
	"time"

	"github.com/google/uuid"
)

// BatchSource identifies what produced a reconciliation batch
type BatchSource string

const (
	BatchSourceBankReturn BatchSource = "bank_return"
	BatchSourceGateway    BatchSource = "gateway"
)

// ReconciliationBatch groups the invoice state changes caused by one imported
// bank return file or one gateway webhook delivery. Immutable after creation.
type ReconciliationBatch struct {
	ID               uuid.UUID
	PaymentProfileID uuid.UUID
	Source           BatchSource
	ReceivedOn       time.Time
	Sequence         int
	// RawReference is the file name or gateway charge id the batch came from
	RawReference string
	// RawContent holds the original file bytes for audit; empty for gateway
	// deliveries
	RawContent []byte
	CreatedAt  time.Time
}

// GatewayEventType classifies the sub-events decoded from a webhook token
type GatewayEventType string

const (
	GatewayEventPaid            GatewayEventType = "paid"
	GatewayEventPreIdentified   GatewayEventType = "pre_identified"
	GatewayEventRegistered      GatewayEventType = "registered"
	GatewayEventCancelled       GatewayEventType = "cancelled"
	GatewayEventManuallySettled GatewayEventType = "manually_settled"
)

// GatewayChargeEvent is one typed sub-event carried by a webhook delivery
type GatewayChargeEvent struct {
	Type             GatewayEventType
	Status           string
	ChargeID         string
	CustomID         string // the invoice primary key, as assigned at issue time
	ValueCents       int64
	ReceivedByBankAt time.Time
	CancelReason     string
}

// WebhookEvent is one stored gateway notification. ProcessedAt guards against
// redelivery.
type WebhookEvent struct {
	ID          uuid.UUID
	Token       string
	Attempts    int
	ProcessedAt *time.Time
	CreatedAt   time.Time
}

// Processed reports whether redelivery should short-circuit
func (e *WebhookEvent) Processed() bool {
	return e.ProcessedAt != nil
}
