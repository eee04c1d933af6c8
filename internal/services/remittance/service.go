// Package remittance owns the selection of invoices the bank still needs to
// hear about. The byte-level outgoing file format belongs to the
// RemittanceBuilder collaborator; this engine owns only the predicates and
// the trigger.
package remittance

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/domain/ports"
	"github.com/tupinet/billing-engine/pkg/timeutil"
)

// selectionWindowDays bounds both selections: registrations for invoices due
// within the next 30 days, write-offs for closures in the last 30 days
const selectionWindowDays = 30

// Service selects pending invoices and triggers outgoing file generation
type Service struct {
	db       ports.DBPort
	profiles ports.PaymentProfileRepository
	invoices ports.InvoiceRepository
	builder  ports.RemittanceBuilder
	logger   ports.Logger
}

// NewService creates a remittance service
func NewService(
	db ports.DBPort,
	profiles ports.PaymentProfileRepository,
	invoices ports.InvoiceRepository,
	builder ports.RemittanceBuilder,
	logger ports.Logger,
) *Service {
	return &Service{
		db:       db,
		profiles: profiles,
		invoices: invoices,
		builder:  builder,
		logger:   logger,
	}
}

// PendingRegistration returns open invoices the bank has not seen yet, due
// within the selection window
func (s *Service) PendingRegistration(ctx context.Context, profileID uuid.UUID) ([]*models.Invoice, error) {
	dueBefore := timeutil.Today().AddDate(0, 0, selectionWindowDays)
	return s.invoices.ListPendingRegistration(ctx, nil, profileID, dueBefore)
}

// PendingWriteoff returns registered invoices the bank still needs told to
// close: paid outside the bank within the window, or cancelled after
// registration
func (s *Service) PendingWriteoff(ctx context.Context, profileID uuid.UUID) ([]*models.Invoice, error) {
	paidSince := timeutil.Today().AddDate(0, 0, -selectionWindowDays)
	return s.invoices.ListPendingWriteoff(ctx, nil, profileID, paidSince)
}

// BuildResult reports one outgoing file generation
type BuildResult struct {
	Sequence     int
	Registration int
	Writeoff     int
}

// BuildRemittance selects both pending sets, advances the profile's file
// sequence and hands the invoices to the builder. The sequence is consumed
// even if the builder fails: outgoing sequences are never reused.
func (s *Service) BuildRemittance(ctx context.Context, profileID uuid.UUID) (*BuildResult, error) {
	profile, err := s.profiles.GetByID(ctx, nil, profileID)
	if err != nil {
		return nil, err
	}

	registration, err := s.PendingRegistration(ctx, profileID)
	if err != nil {
		return nil, err
	}
	writeoff, err := s.PendingWriteoff(ctx, profileID)
	if err != nil {
		return nil, err
	}

	var sequence int
	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sequence, err = s.profiles.NextRemittanceSequence(ctx, tx, profileID)
		return err
	})
	if err != nil {
		return nil, err
	}

	invoices := make([]*models.Invoice, 0, len(registration)+len(writeoff))
	invoices = append(invoices, registration...)
	invoices = append(invoices, writeoff...)

	if err := s.builder.Build(ctx, profile, sequence, invoices); err != nil {
		return nil, err
	}

	s.logger.Info("remittance built",
		ports.String("payment_profile_id", profileID.String()),
		ports.Int("sequence", sequence),
		ports.Int("registration", len(registration)),
		ports.Int("writeoff", len(writeoff)),
	)
	return &BuildResult{
		Sequence:     sequence,
		Registration: len(registration),
		Writeoff:     len(writeoff),
	}, nil
}
