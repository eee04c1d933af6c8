package renewal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tupinet/billing-engine/internal/domain"
	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/domain/ports"
	"github.com/tupinet/billing-engine/internal/services/invoicing"
	"github.com/tupinet/billing-engine/pkg/timeutil"
)

// Result is the structured partial-success report of one batch run, keyed by
// contract id
type Result struct {
	Succeeded []string
	Skipped   []string
	Failed    map[string]string
}

// Total returns the number of contracts the run considered
func (r *Result) Total() int {
	return len(r.Succeeded) + len(r.Skipped) + len(r.Failed)
}

// Runner renews every eligible contract billed through one payment profile.
// One contract's failure never aborts the batch.
type Runner struct {
	contracts ports.ContractRepository
	planner   *Planner
	generator *invoicing.Generator
	logger    ports.Logger
}

// NewRunner creates a new batch renewal runner
func NewRunner(
	contracts ports.ContractRepository,
	planner *Planner,
	generator *invoicing.Generator,
	logger ports.Logger,
) *Runner {
	return &Runner{
		contracts: contracts,
		planner:   planner,
		generator: generator,
		logger:    logger,
	}
}

// Run renews all renewable contracts on the payment profile. A contract with
// more than one overdue or more than one upcoming unpaid invoice is skipped,
// not failed. Generation conflicts are retried once with fresh state before
// counting as a failure.
func (r *Runner) Run(ctx context.Context, profileID uuid.UUID, monthsPerInvoice int) (*Result, error) {
	candidates, err := r.contracts.ListRenewalCandidates(ctx, nil, profileID, timeutil.Today())
	if err != nil {
		return nil, err
	}

	result := &Result{Failed: make(map[string]string)}

	for i := range candidates {
		candidate := candidates[i]
		id := candidate.Contract.ID.String()

		if !candidate.Renewable() {
			result.Skipped = append(result.Skipped, id)
			continue
		}

		renewed, err := r.renewOne(ctx, &candidate.Contract, monthsPerInvoice)
		switch {
		case err != nil:
			r.logger.Warn("contract renewal failed",
				ports.String("contract_id", id),
				ports.Err(err),
			)
			result.Failed[id] = err.Error()
		case renewed:
			result.Succeeded = append(result.Succeeded, id)
		default:
			result.Skipped = append(result.Skipped, id)
		}
	}

	r.logger.Info("batch renewal finished",
		ports.String("payment_profile_id", profileID.String()),
		ports.Int("succeeded", len(result.Succeeded)),
		ports.Int("skipped", len(result.Skipped)),
		ports.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// renewOne reports whether any invoices were generated. Panics from a single
// contract are converted to failures so the batch keeps going.
func (r *Runner) renewOne(ctx context.Context, contract *models.Contract, monthsPerInvoice int) (renewed bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during renewal: %v", p)
		}
	}()

	count, err := r.planner.Plan(ctx, contract, monthsPerInvoice)
	if err != nil {
		return false, err
	}
	if count <= 0 {
		return false, nil
	}

	_, err = r.generator.Generate(ctx, contract.ID, count, monthsPerInvoice)
	if domain.IsGenerationConflict(err) {
		// concurrent run won the contract lock or a reference collided;
		// re-plan against whatever state it committed
		count, err = r.planner.Plan(ctx, contract, monthsPerInvoice)
		if err != nil {
			return false, err
		}
		if count <= 0 {
			return false, nil
		}
		_, err = r.generator.Generate(ctx, contract.ID, count, monthsPerInvoice)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
