package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/tupinet/billing-engine/internal/domain/models"
)

// ConnectionPolicy is notified after invoice state transitions commit so it
// can re-evaluate suspension for the contract's connections. Both calls are
// fire-and-forget: failures are logged, never propagated.
type ConnectionPolicy interface {
	OnInvoicePaid(ctx context.Context, contractID uuid.UUID)
	OnInvoiceOverdue(ctx context.Context, contractID uuid.UUID)
}

// RemittanceBuilder serializes a batch of invoices into a bank-specific
// outgoing file. The byte-level format is its business; this engine owns only
// the selection and the trigger.
type RemittanceBuilder interface {
	Build(ctx context.Context, profile *models.PaymentProfile, sequence int, invoices []*models.Invoice) error
}

// GatewayClient exchanges an opaque webhook notification token for the typed
// charge-status sub-events it represents. Called before any transaction is
// opened; no network waits happen inside a transaction boundary.
type GatewayClient interface {
	ExchangeToken(ctx context.Context, token string) ([]models.GatewayChargeEvent, error)
}
