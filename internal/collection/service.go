// Package collection owns webhook-driven and operator-driven updates to
// collections and their transactions. All status changes, whatever their
// origin, funnel through ApplyStatus so the transition rules are enforced in
// exactly one place.
package collection

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"kore-service/internal/db"
	"kore-service/internal/payload"
	"kore-service/internal/provider"
	"kore-service/internal/status"
	"kore-service/internal/transition"
)

var (
	// ErrNotFound is returned when no collection matches the given refs.
	ErrNotFound = errors.New("collection: not found")

	// ErrValidationNotRequired is returned when OTP submission is attempted
	// on a collection that is not waiting for validation.
	ErrValidationNotRequired = errors.New("collection: validation not required")
)

type Service struct {
	repo       *db.CollectionRepository
	normalizer *status.Normalizer
	client     *provider.Client
	logger     *slog.Logger
}

func NewService(repo *db.CollectionRepository, normalizer *status.Normalizer, client *provider.Client, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		normalizer: normalizer,
		client:     client,
		logger:     logger,
	}
}

// ApplyStatus locates the collection by request ref (provider ref as
// fallback) and applies the proposed status under the transition rules,
// propagating terminal statuses to the collection's pending transactions.
// The collection row and its transactions change in a single database
// transaction.
//
// The returned bool reports whether the status actually changed; a skipped
// transition is expected behavior, not an error.
func (s *Service) ApplyStatus(ctx context.Context, requestRef, providerRef, proposed string, needsValidation, allowOverride bool) (*db.CollectionEntity, bool, error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	entity, err := s.repo.SelectForUpdateByRef(ctx, tx, requestRef, providerRef)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, false, errors.Wrapf(ErrNotFound, "request_ref=%s", requestRef)
		}
		return nil, false, err
	}

	fields := transition.UpdateFields(entity.Status, proposed, allowOverride)
	newStatus, applied := fields["status"]

	if applied {
		var providerRefPtr *string
		if providerRef != "" {
			providerRefPtr = &providerRef
		}

		if err := s.repo.UpdateStatus(ctx, tx, entity.ID, newStatus, providerRefPtr, needsValidation); err != nil {
			return nil, false, err
		}

		updated, err := s.repo.UpdatePendingTransactionStatuses(ctx, tx, entity.ID, transactionStatus(newStatus))
		if err != nil {
			return nil, false, err
		}

		s.logger.InfoContext(ctx, "Applied collection status",
			"collectionId", entity.ID, "from", entity.Status, "to", newStatus,
			"transactionsUpdated", updated)

		entity.Status = newStatus
		entity.NeedsValidation = needsValidation
		if providerRefPtr != nil {
			entity.ProviderRef = providerRefPtr
		}
	} else {
		// Expected for idempotent re-deliveries and late lower-rank webhooks.
		s.logger.InfoContext(ctx, "Skipped collection status update",
			"collectionId", entity.ID, "current", entity.Status, "proposed", proposed)

		if providerRef != "" && entity.ProviderRef == nil {
			if err := s.repo.UpdateProviderRef(ctx, tx, entity.ID, providerRef); err != nil {
				return nil, false, err
			}
			entity.ProviderRef = &providerRef
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, errors.Wrap(err, "committing collection update")
	}

	return entity, applied, nil
}

// Validate submits an OTP (or other challenge input) to the provider for a
// collection awaiting validation and applies the resulting status through
// the shared update path.
func (s *Service) Validate(ctx context.Context, collectionID uuid.UUID, otp string) (*db.CollectionEntity, error) {
	entity, err := s.repo.GetByID(ctx, collectionID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !entity.NeedsValidation {
		return nil, ErrValidationNotRequired
	}
	if entity.Status != transition.StatusPending {
		return nil, errors.Errorf("collection status is %s, must be PENDING to validate", entity.Status)
	}

	result, err := s.client.Validate(ctx, entity.RequestRef, otp)
	if err != nil {
		return nil, err
	}

	return s.applyProviderResult(ctx, entity, result)
}

// QueryStatus asks the provider for the current transaction status and
// applies it through the shared update path.
func (s *Service) QueryStatus(ctx context.Context, collectionID uuid.UUID) (*db.CollectionEntity, error) {
	entity, err := s.repo.GetByID(ctx, collectionID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	result, err := s.client.Query(ctx, entity.RequestRef)
	if err != nil {
		return nil, err
	}

	return s.applyProviderResult(ctx, entity, result)
}

// OverrideStatus is the operator escape hatch: it bypasses the forward-only
// rule, including terminal-state protection.
func (s *Service) OverrideStatus(ctx context.Context, collectionID uuid.UUID, newStatus string) (*db.CollectionEntity, error) {
	entity, err := s.repo.GetByID(ctx, collectionID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.logger.WarnContext(ctx, "Overriding collection status",
		"collectionId", entity.ID, "from", entity.Status, "to", newStatus)

	updated, _, err := s.ApplyStatus(ctx, entity.RequestRef, "", newStatus, false, true)
	return updated, err
}

func (s *Service) applyProviderResult(ctx context.Context, entity *db.CollectionEntity, result *provider.Result) (*db.CollectionEntity, error) {
	rawStatus, _ := payload.ExtractStatus(result.Data)
	normalized, needsValidation := s.normalizer.Normalize(rawStatus)
	providerRef, _ := payload.ExtractProviderRef(result.Data)

	updated, _, err := s.ApplyStatus(ctx, entity.RequestRef, providerRef, normalized, needsValidation, false)
	return updated, err
}

// transactionStatus maps a collection status onto the transaction rows it
// propagates to. Non-terminal collection statuses keep transactions PENDING.
func transactionStatus(collectionStatus string) string {
	switch collectionStatus {
	case transition.StatusSuccess:
		return transition.StatusSuccess
	case transition.StatusFailed:
		return transition.StatusFailed
	default:
		return transition.StatusPending
	}
}
