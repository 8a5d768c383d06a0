package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// CollectionRepository reads and updates collections and their transactions.
// Webhook-driven updates go through tx-scoped methods so a collection and
// its transactions change in one atomic unit.
type CollectionRepository struct {
	pool *pgxpool.Pool
}

func NewCollectionRepository(pool *pgxpool.Pool) *CollectionRepository {
	return &CollectionRepository{pool: pool}
}

func (r *CollectionRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	return tx, nil
}

func (r *CollectionRepository) Create(ctx context.Context, entity *CollectionEntity) (*CollectionEntity, error) {
	query := `INSERT INTO collection (id, request_ref, provider_ref, status, amount, currency, needs_validation, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		entity.ID, entity.RequestRef, entity.ProviderRef, entity.Status,
		entity.Amount, entity.Currency, entity.NeedsValidation, time.Now(),
	).Scan(&entity.ID)
	if err != nil {
		return nil, errors.Wrap(err, "inserting collection")
	}
	return entity, nil
}

func (r *CollectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*CollectionEntity, error) {
	query := selectCollection + ` WHERE id = $1`
	return scanCollection(r.pool.QueryRow(ctx, query, id))
}

// SelectForUpdateByRef locks and returns the collection matching requestRef,
// falling back to providerRef when no row matches. Must run inside tx so the
// row lock holds until commit.
func (r *CollectionRepository) SelectForUpdateByRef(ctx context.Context, tx pgx.Tx, requestRef, providerRef string) (*CollectionEntity, error) {
	query := selectCollection + ` WHERE request_ref = $1 FOR UPDATE`
	entity, err := scanCollection(tx.QueryRow(ctx, query, requestRef))
	if err == nil {
		return entity, nil
	}
	if !errors.Is(err, ErrNotFound) || providerRef == "" {
		return nil, err
	}

	query = selectCollection + ` WHERE provider_ref = $1 FOR UPDATE`
	return scanCollection(tx.QueryRow(ctx, query, providerRef))
}

func (r *CollectionRepository) SelectForUpdateByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*CollectionEntity, error) {
	query := selectCollection + ` WHERE id = $1 FOR UPDATE`
	return scanCollection(tx.QueryRow(ctx, query, id))
}

// UpdateStatus persists a status change, optionally recording the provider
// reference and validation flag reported alongside it.
func (r *CollectionRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, providerRef *string, needsValidation bool) error {
	query := `UPDATE collection
	          SET status = $2,
	              provider_ref = COALESCE($3, provider_ref),
	              needs_validation = $4,
	              updated_at = $5
	          WHERE id = $1`
	_, err := tx.Exec(ctx, query, id, status, providerRef, needsValidation, time.Now())
	return errors.Wrap(err, "updating collection status")
}

// UpdateProviderRef records the provider reference without touching status,
// for deliveries the transition engine skipped.
func (r *CollectionRepository) UpdateProviderRef(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerRef string) error {
	query := `UPDATE collection SET provider_ref = $2, updated_at = $3 WHERE id = $1`
	_, err := tx.Exec(ctx, query, id, providerRef, time.Now())
	return errors.Wrap(err, "updating collection provider_ref")
}

func (r *CollectionRepository) CreateTransaction(ctx context.Context, entity *TransactionEntity) (*TransactionEntity, error) {
	query := `INSERT INTO transaction (id, collection_id, type, amount, currency, status, request_ref, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		entity.ID, entity.CollectionID, entity.Type, entity.Amount,
		entity.Currency, entity.Status, entity.RequestRef, time.Now(),
	).Scan(&entity.ID)
	if err != nil {
		return nil, errors.Wrap(err, "inserting transaction")
	}
	return entity, nil
}

func (r *CollectionRepository) GetTransactionsByCollection(ctx context.Context, collectionID uuid.UUID) ([]*TransactionEntity, error) {
	query := `SELECT id, collection_id, type, amount, currency, status, request_ref, created_at, updated_at
	          FROM transaction WHERE collection_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, collectionID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting transactions")
	}
	defer rows.Close()

	var entities []*TransactionEntity
	for rows.Next() {
		var entity TransactionEntity
		err := rows.Scan(
			&entity.ID, &entity.CollectionID, &entity.Type, &entity.Amount,
			&entity.Currency, &entity.Status, &entity.RequestRef,
			&entity.CreatedAt, &entity.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scanning transaction")
		}
		entities = append(entities, &entity)
	}
	return entities, rows.Err()
}

// UpdatePendingTransactionStatuses propagates a collection status to its
// transactions. Only PENDING rows move; transactions already settled keep
// their status.
func (r *CollectionRepository) UpdatePendingTransactionStatuses(ctx context.Context, tx pgx.Tx, collectionID uuid.UUID, status string) (int64, error) {
	query := `UPDATE transaction SET status = $2, updated_at = $3
	          WHERE collection_id = $1 AND status = 'PENDING'`
	tag, err := tx.Exec(ctx, query, collectionID, status, time.Now())
	if err != nil {
		return 0, errors.Wrap(err, "updating transaction statuses")
	}
	return tag.RowsAffected(), nil
}

const selectCollection = `SELECT id, request_ref, provider_ref, status, amount, currency, needs_validation, created_at, updated_at
	FROM collection`

func scanCollection(row pgx.Row) (*CollectionEntity, error) {
	var entity CollectionEntity
	err := row.Scan(
		&entity.ID, &entity.RequestRef, &entity.ProviderRef, &entity.Status,
		&entity.Amount, &entity.Currency, &entity.NeedsValidation,
		&entity.CreatedAt, &entity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "scanning collection")
	}
	return &entity, nil
}
