package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a lookup matches no rows.
	ErrNotFound = errors.New("db: not found")

	// ErrDuplicateEvent is returned when an insert collides with the partial
	// unique index on (provider, event_id). This is the authoritative dedup
	// guard; the application-level pre-check only avoids the common case.
	ErrDuplicateEvent = errors.New("db: duplicate webhook event")
)

const uniqueViolationCode = "23505"

type WebhookEventRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookEventRepository(pool *pgxpool.Pool) *WebhookEventRepository {
	return &WebhookEventRepository{pool: pool}
}

func (r *WebhookEventRepository) Create(ctx context.Context, entity *WebhookEventEntity) (*WebhookEventEntity, error) {
	query := `INSERT INTO webhook_event (id, provider, event_id, request_ref, payload, signature, status, received_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		entity.ID, entity.Provider, entity.EventID, entity.RequestRef,
		entity.Payload, entity.Signature, entity.Status, entity.ReceivedAt,
	).Scan(&entity.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, ErrDuplicateEvent
		}
		return nil, errors.Wrap(err, "inserting webhook event")
	}
	return entity, nil
}

func (r *WebhookEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*WebhookEventEntity, error) {
	query := `SELECT id, provider, event_id, request_ref, payload, signature, status, error, received_at, processed_at
	          FROM webhook_event WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *WebhookEventRepository) GetByProviderAndEventID(ctx context.Context, provider, eventID string) (*WebhookEventEntity, error) {
	query := `SELECT id, provider, event_id, request_ref, payload, signature, status, error, received_at, processed_at
	          FROM webhook_event WHERE provider = $1 AND event_id = $2`
	return r.scanOne(r.pool.QueryRow(ctx, query, provider, eventID))
}

func (r *WebhookEventRepository) scanOne(row pgx.Row) (*WebhookEventEntity, error) {
	var entity WebhookEventEntity
	err := row.Scan(
		&entity.ID, &entity.Provider, &entity.EventID, &entity.RequestRef,
		&entity.Payload, &entity.Signature, &entity.Status, &entity.Error,
		&entity.ReceivedAt, &entity.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "scanning webhook event")
	}
	return &entity, nil
}

// MarkProcessed moves the receipt out of RECEIVED and stamps processed_at.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE webhook_event SET status = $2, error = NULL, processed_at = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, EventProcessed, time.Now())
	return errors.Wrap(err, "marking webhook event processed")
}

// MarkFailed records a terminal processing failure with a human-readable
// reason. The row stays for audit; nothing retries it automatically.
func (r *WebhookEventRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `UPDATE webhook_event SET status = $2, error = $3, processed_at = $4 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, EventFailed, reason, time.Now())
	return errors.Wrap(err, "marking webhook event failed")
}
