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

// ReconciliationBatchRepository implements ports.ReconciliationBatchRepository
type ReconciliationBatchRepository struct {
	db ports.DBPort
}

// NewReconciliationBatchRepository creates a new batch repository
func NewReconciliationBatchRepository(db ports.DBPort) *ReconciliationBatchRepository {
	return &ReconciliationBatchRepository{db: db}
}

func (r *ReconciliationBatchRepository) q(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// Create persists a batch. Batches are append-only; there is no update path.
func (r *ReconciliationBatchRepository) Create(ctx context.Context, db ports.DBTX, batch *models.ReconciliationBatch) error {
	_, err := r.q(db).Exec(ctx, `
		INSERT INTO reconciliation_batches (
			id, payment_profile_id, source, received_on, sequence,
			raw_reference, raw_content
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		batch.ID, batch.PaymentProfileID, string(batch.Source), batch.ReceivedOn,
		batch.Sequence, batch.RawReference, batch.RawContent)
	if err != nil {
		return fmt.Errorf("create reconciliation batch: %w", err)
	}
	return nil
}

// WebhookEventRepository implements ports.WebhookEventRepository
type WebhookEventRepository struct {
	db ports.DBPort
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db ports.DBPort) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) q(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// Create stores a freshly received notification before any processing starts,
// so a crash mid-flight still leaves an auditable row
func (r *WebhookEventRepository) Create(ctx context.Context, db ports.DBTX, event *models.WebhookEvent) error {
	_, err := r.q(db).Exec(ctx, `
		INSERT INTO webhook_events (id, token, attempts)
		VALUES ($1, $2, $3)`,
		event.ID, event.Token, event.Attempts)
	if err != nil {
		return fmt.Errorf("create webhook event: %w", err)
	}
	return nil
}

// GetByID retrieves a stored notification
func (r *WebhookEventRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.WebhookEvent, error) {
	var (
		e         models.WebhookEvent
		processed pgtype.Timestamptz
	)
	err := r.q(db).QueryRow(ctx, `
		SELECT id, token, attempts, processed_at, created_at
		FROM webhook_events
		WHERE id = $1`, id).Scan(&e.ID, &e.Token, &e.Attempts, &processed, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWebhookEventNotFound
		}
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	e.ProcessedAt = timestamptzPtr(processed)
	return &e, nil
}

// MarkProcessed stamps the redelivery guard. The processed_at IS NULL guard
// keeps the first completion authoritative under concurrent redelivery.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, db ports.DBTX, id uuid.UUID, at time.Time) error {
	tag, err := r.q(db).Exec(ctx, `
		UPDATE webhook_events
		SET processed_at = $2, attempts = attempts + 1
		WHERE id = $1 AND processed_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWebhookStaleEvent
	}
	return nil
}
