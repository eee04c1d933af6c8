// Package connection holds the engine-side stand-in for the provisioning
// system's connection policy. Suspension decisions happen in the
// provisioning stack; this adapter only hands the signal over.
package connection

import (
	"context"

	"github.com/google/uuid"
	"github.com/tupinet/billing-engine/internal/domain/ports"
)

// LoggingPolicy implements ports.ConnectionPolicy by logging the signal.
// Deployments that propagate suspension to RADIUS swap in their own
// implementation.
type LoggingPolicy struct {
	logger ports.Logger
}

// NewLoggingPolicy creates a logging connection policy
func NewLoggingPolicy(logger ports.Logger) *LoggingPolicy {
	return &LoggingPolicy{logger: logger}
}

func (p *LoggingPolicy) OnInvoicePaid(ctx context.Context, contractID uuid.UUID) {
	p.logger.Info("connection policy: invoice paid",
		ports.String("contract_id", contractID.String()),
	)
}

func (p *LoggingPolicy) OnInvoiceOverdue(ctx context.Context, contractID uuid.UUID) {
	p.logger.Info("connection policy: invoice overdue",
		ports.String("contract_id", contractID.String()),
	)
}
