package renewal

import (
	"context"

	"github.com/google/uuid"
	"github.com/tupinet/billing-engine/internal/domain/ports"
	"github.com/tupinet/billing-engine/pkg/timeutil"
)

// OverdueSweeper notifies the connection policy about contracts holding
// unpaid invoices past due, so suspension gets re-evaluated without waiting
// for a reconciliation event
type OverdueSweeper struct {
	invoices ports.InvoiceRepository
	policy   ports.ConnectionPolicy
	logger   ports.Logger
}

// NewOverdueSweeper creates a new overdue sweeper
func NewOverdueSweeper(invoices ports.InvoiceRepository, policy ports.ConnectionPolicy, logger ports.Logger) *OverdueSweeper {
	return &OverdueSweeper{
		invoices: invoices,
		policy:   policy,
		logger:   logger,
	}
}

// NotifyOverdue fires OnInvoiceOverdue for every contract on the profile
// with an unpaid invoice past due, returning how many were notified
func (s *OverdueSweeper) NotifyOverdue(ctx context.Context, profileID uuid.UUID) (int, error) {
	contracts, err := s.invoices.ListOverdueContracts(ctx, nil, profileID, timeutil.Today())
	if err != nil {
		return 0, err
	}

	for _, contractID := range contracts {
		s.notify(ctx, contractID)
	}

	s.logger.Info("overdue sweep finished",
		ports.String("payment_profile_id", profileID.String()),
		ports.Int("notified", len(contracts)),
	)
	return len(contracts), nil
}

// notify is fire-and-forget: the policy collaborator failing must not fail
// the sweep
func (s *OverdueSweeper) notify(ctx context.Context, contractID uuid.UUID) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("connection policy panicked",
				ports.String("contract_id", contractID.String()),
			)
		}
	}()
	s.policy.OnInvoiceOverdue(ctx, contractID)
}
