package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tupinet/billing-engine/internal/domain"
	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/domain/ports"
)

// PaymentProfileRepository implements ports.PaymentProfileRepository on pgx
type PaymentProfileRepository struct {
	db ports.DBPort
}

// NewPaymentProfileRepository creates a new payment profile repository
func NewPaymentProfileRepository(db ports.DBPort) *PaymentProfileRepository {
	return &PaymentProfileRepository{db: db}
}

func (r *PaymentProfileRepository) q(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// GetByID retrieves a payment profile by primary key
func (r *PaymentProfileRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.PaymentProfile, error) {
	var p models.PaymentProfile
	err := r.q(db).QueryRow(ctx, `
		SELECT id, name, type, bank_code, agency, account_number,
			wallet_code, variation_code, agreement_code,
			next_reference, remittance_sequence, created_at, updated_at
		FROM payment_profiles
		WHERE id = $1`, id).Scan(
		&p.ID, &p.Name, &p.Type, &p.BankCode, &p.Agency, &p.AccountNumber,
		&p.WalletCode, &p.VariationCode, &p.AgreementCode,
		&p.NextReference, &p.RemittanceSequence, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("get payment profile: %w", err)
	}
	return &p, nil
}

// AllocateReferences advances the profile's reference counter by n in one
// atomic statement and returns the first reference of the reserved block.
// Concurrent callers get disjoint blocks; gaps from failed generations are
// never reused.
func (r *PaymentProfileRepository) AllocateReferences(ctx context.Context, tx ports.DBTX, id uuid.UUID, n int) (int64, error) {
	if n <= 0 {
		return 0, domain.NewDomainError(domain.ErrorCodeValidationFailed, "reference block size must be positive").
			WithDetail("n", n)
	}

	var next int64
	err := r.q(tx).QueryRow(ctx, `
		UPDATE payment_profiles
		SET next_reference = next_reference + $2, updated_at = now()
		WHERE id = $1
		RETURNING next_reference`, id, n).Scan(&next)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrProfileNotFound
		}
		return 0, fmt.Errorf("allocate references: %w", err)
	}
	return next - int64(n), nil
}

// NextRemittanceSequence increments and returns the outgoing file counter
func (r *PaymentProfileRepository) NextRemittanceSequence(ctx context.Context, tx ports.DBTX, id uuid.UUID) (int, error) {
	var seq int
	err := r.q(tx).QueryRow(ctx, `
		UPDATE payment_profiles
		SET remittance_sequence = remittance_sequence + 1, updated_at = now()
		WHERE id = $1
		RETURNING remittance_sequence`, id).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrProfileNotFound
		}
		return 0, fmt.Errorf("next remittance sequence: %w", err)
	}
	return seq, nil
}
