package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tupinet/billing-engine/internal/domain"
	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/domain/ports"
)

const contractColumns = `
	c.id, c.customer_id, c.plan_id, c.payment_profile_id, c.signup_date,
	c.billing_day, c.term_months, c.cancellation_date, c.custom_price,
	c.custom_description, c.installment_amount, c.installment_count,
	c.created_at, c.updated_at,
	p.id, p.name, p.monthly_price, p.created_at, p.updated_at`

// ContractRepository implements ports.ContractRepository on pgx
type ContractRepository struct {
	db ports.DBPort
}

// NewContractRepository creates a new contract repository
func NewContractRepository(db ports.DBPort) *ContractRepository {
	return &ContractRepository{db: db}
}

func (r *ContractRepository) q(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// GetByID retrieves a contract with its plan
func (r *ContractRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.Contract, error) {
	row := r.q(db).QueryRow(ctx, `
		SELECT `+contractColumns+`
		FROM contracts c
		JOIN plans p ON p.id = c.plan_id
		WHERE c.id = $1`, id)

	return scanContract(row)
}

// GetForUpdate locks the contract row for the enclosing transaction.
// NOWAIT turns lock contention into an immediate generation-conflict error
// instead of queueing a second writer behind the first.
func (r *ContractRepository) GetForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*models.Contract, error) {
	row := r.q(tx).QueryRow(ctx, `
		SELECT `+contractColumns+`
		FROM contracts c
		JOIN plans p ON p.id = c.plan_id
		WHERE c.id = $1
		FOR UPDATE OF c NOWAIT`, id)

	contract, err := scanContract(row)
	if err != nil {
		if isLockNotAvailable(err) {
			return nil, domain.WrapError(domain.ErrorCodeInvoiceGenerationConflict,
				"contract is locked by a concurrent operation", err).
				WithDetail("contract_id", id.String())
		}
		return nil, err
	}
	return contract, nil
}

// ListRenewalCandidates returns active contracts on the profile together with
// their unpaid-invoice counts, oldest signup first
func (r *ContractRepository) ListRenewalCandidates(ctx context.Context, db ports.DBTX, profileID uuid.UUID, asOf time.Time) ([]*models.RenewalCandidate, error) {
	rows, err := r.q(db).Query(ctx, `
		SELECT `+contractColumns+`,
			COUNT(i.id) FILTER (WHERE i.due_date <  $2) AS overdue_unpaid,
			COUNT(i.id) FILTER (WHERE i.due_date >= $2) AS upcoming_unpaid
		FROM contracts c
		JOIN plans p ON p.id = c.plan_id
		LEFT JOIN invoices i ON i.contract_id = c.id
			AND i.paid_on IS NULL
			AND i.cancelled_at IS NULL
		WHERE c.payment_profile_id = $1
			AND c.cancellation_date IS NULL
		GROUP BY c.id, p.id
		ORDER BY c.signup_date, c.id`, profileID, asOf)
	if err != nil {
		return nil, fmt.Errorf("list renewal candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*models.RenewalCandidate
	for rows.Next() {
		candidate, err := scanRenewalCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan renewal candidate: %w", err)
		}
		candidates = append(candidates, candidate)
	}
	return candidates, rows.Err()
}

// SetCancellationDate records the cancellation date once; an existing date is
// never overwritten
func (r *ContractRepository) SetCancellationDate(ctx context.Context, tx ports.DBTX, id uuid.UUID, date time.Time) error {
	// the IS NULL guard makes a repeat cancellation a no-op: the first
	// recorded date is permanent
	_, err := r.q(tx).Exec(ctx, `
		UPDATE contracts
		SET cancellation_date = $2, updated_at = now()
		WHERE id = $1 AND cancellation_date IS NULL`, id, date)
	if err != nil {
		return fmt.Errorf("set cancellation date: %w", err)
	}
	return nil
}

func scanContract(row pgx.Row) (*models.Contract, error) {
	c, _, err := scanContractFields(row, false)
	return c, err
}

func scanRenewalCandidate(row pgx.Row) (*models.RenewalCandidate, error) {
	c, counts, err := scanContractFields(row, true)
	if err != nil {
		return nil, err
	}
	return &models.RenewalCandidate{
		Contract:       *c,
		OverdueUnpaid:  counts[0],
		UpcomingUnpaid: counts[1],
	}, nil
}

func scanContractFields(row pgx.Row, withCounts bool) (*models.Contract, [2]int, error) {
	var (
		c           models.Contract
		plan        models.Plan
		counts      [2]int
		cancelledOn pgtype.Date
		customPrice pgtype.Numeric
		customDesc  pgtype.Text
		installment pgtype.Numeric
		planPrice   pgtype.Numeric
	)

	dest := []interface{}{
		&c.ID, &c.CustomerID, &c.PlanID, &c.PaymentProfileID, &c.SignupDate,
		&c.BillingDay, &c.TermMonths, &cancelledOn, &customPrice,
		&customDesc, &installment, &c.InstallmentCount,
		&c.CreatedAt, &c.UpdatedAt,
		&plan.ID, &plan.Name, &planPrice, &plan.CreatedAt, &plan.UpdatedAt,
	}
	if withCounts {
		dest = append(dest, &counts[0], &counts[1])
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, counts, domain.ErrContractNotFound
		}
		return nil, counts, fmt.Errorf("scan contract: %w", err)
	}

	c.SignupDate = c.SignupDate.UTC()
	c.CancellationDate = datePtr(cancelledOn)
	c.CustomDescription = textPtr(customDesc)

	var err error
	if c.CustomPrice, err = pgNumericToDecimalPtr(customPrice); err != nil {
		return nil, counts, fmt.Errorf("convert custom price: %w", err)
	}
	if c.InstallmentAmount, err = pgNumericToDecimal(installment); err != nil {
		return nil, counts, fmt.Errorf("convert installment amount: %w", err)
	}
	if plan.MonthlyPrice, err = pgNumericToDecimal(planPrice); err != nil {
		return nil, counts, fmt.Errorf("convert plan price: %w", err)
	}
	c.Plan = &plan

	return &c, counts, nil
}
