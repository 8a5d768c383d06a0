// Package webhook orchestrates inbound webhook deliveries: receipt and
// deduplication on the hot HTTP path, then extraction, locking and the
// status-transition engine in background processing.
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"kore-service/internal/collection"
	"kore-service/internal/db"
	"kore-service/internal/lock"
	"kore-service/internal/logcontext"
	"kore-service/internal/payload"
	"kore-service/internal/provider"
	"kore-service/internal/status"
	"kore-service/internal/task"
)

var (
	receivedCounter  = metrics.GetOrCreateCounter(`webhook_events_total{result="received"}`)
	duplicateCounter = metrics.GetOrCreateCounter(`webhook_events_total{result="duplicate"}`)
	rejectedCounter  = metrics.GetOrCreateCounter(`webhook_events_total{result="signature_rejected"}`)

	processedCounter = metrics.GetOrCreateCounter(`webhook_processing_total{result="processed"}`)
	skippedCounter   = metrics.GetOrCreateCounter(`webhook_processing_total{result="skipped"}`)
	failedCounter    = metrics.GetOrCreateCounter(`webhook_processing_total{result="failed"}`)

	processDurationHistogram = metrics.GetOrCreateHistogram(`webhook_processing_duration_milliseconds`)
)

// EventStore is the webhook receipt persistence the orchestrator needs.
// *db.WebhookEventRepository satisfies it.
type EventStore interface {
	Create(ctx context.Context, entity *db.WebhookEventEntity) (*db.WebhookEventEntity, error)
	GetByID(ctx context.Context, id uuid.UUID) (*db.WebhookEventEntity, error)
	GetByProviderAndEventID(ctx context.Context, provider, eventID string) (*db.WebhookEventEntity, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// CollectionUpdater applies a proposed status to the owning collection.
// *collection.Service satisfies it.
type CollectionUpdater interface {
	ApplyStatus(ctx context.Context, requestRef, providerRef, proposed string, needsValidation, allowOverride bool) (*db.CollectionEntity, bool, error)
}

type Service struct {
	events        EventStore
	collections   CollectionUpdater
	locks         *lock.Manager
	normalizer    *status.Normalizer
	scheduler     task.Scheduler
	webhookSecret string
	logger        *slog.Logger
}

func NewService(events EventStore, collections CollectionUpdater, locks *lock.Manager, normalizer *status.Normalizer, webhookSecret string, logger *slog.Logger) *Service {
	return &Service{
		events:        events,
		collections:   collections,
		locks:         locks,
		normalizer:    normalizer,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// SetScheduler wires the background scheduler. Set after construction
// because the inline scheduler wraps this service.
func (s *Service) SetScheduler(scheduler task.Scheduler) {
	s.scheduler = scheduler
}

// Receive stores a receipt for an inbound delivery and schedules its
// processing. It performs one storage write and returns; nothing downstream
// can delay or fail the HTTP response.
//
// Duplicate deliveries (same provider and event id) short-circuit to the
// existing receipt with no side effects.
func (s *Service) Receive(ctx context.Context, providerName string, body []byte, signature string) (*db.WebhookEventEntity, error) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		// Malformed JSON is still stored verbatim for audit; extraction on a
		// nil payload simply finds nothing.
		s.logger.WarnContext(ctx, "Webhook body is not valid JSON", "provider", providerName, "error", err)
		decoded = nil
	}

	eventID, hasEventID := payload.ExtractEventID(decoded)
	requestRef, hasRequestRef := payload.ExtractRequestRef(decoded)

	ctx = logcontext.AppendCtx(ctx, slog.String("provider", providerName))

	if hasEventID {
		existing, err := s.events.GetByProviderAndEventID(ctx, providerName, eventID)
		if err == nil {
			s.logger.InfoContext(ctx, "Duplicate webhook event detected",
				"eventId", eventID, "existingEvent", existing.ID, "status", existing.Status)
			duplicateCounter.Inc()
			return existing, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
	}

	entity := &db.WebhookEventEntity{
		ID:         uuid.New(),
		Provider:   providerName,
		Payload:    body,
		Signature:  signature,
		Status:     db.EventReceived,
		ReceivedAt: time.Now(),
	}
	if hasEventID {
		entity.EventID = &eventID
	}
	if hasRequestRef {
		entity.RequestRef = &requestRef
	}

	created, err := s.events.Create(ctx, entity)
	if err != nil {
		if errors.Is(err, db.ErrDuplicateEvent) && hasEventID {
			// Two near-simultaneous deliveries raced past the pre-check; the
			// unique index picked a winner. Return the surviving row.
			s.logger.WarnContext(ctx, "Race creating webhook event, returning existing", "eventId", eventID)
			duplicateCounter.Inc()
			return s.events.GetByProviderAndEventID(ctx, providerName, eventID)
		}
		return nil, err
	}

	receivedCounter.Inc()
	s.logger.InfoContext(ctx, "Stored webhook event", "id", created.ID, "eventId", eventID, "requestRef", requestRef)

	if !provider.VerifyWebhookSignature(s.webhookSecret, body, signature) {
		// Recorded internally; the HTTP response is still 200 so the
		// provider's retry logic does not amplify load.
		s.logger.ErrorContext(ctx, "Webhook signature verification failed", "id", created.ID)
		rejectedCounter.Inc()
		if err := s.events.MarkFailed(ctx, created.ID, "signature verification failed"); err != nil {
			return nil, err
		}
		created.Status = db.EventFailed
		return created, nil
	}

	if s.scheduler != nil {
		if err := s.scheduler.Enqueue(ctx, created.ID); err != nil {
			// The receipt stays RECEIVED; delivery problems must not fail the
			// HTTP response that acknowledges the webhook.
			s.logger.ErrorContext(ctx, "Error scheduling webhook processing", "id", created.ID, "error", err)
		}
	}

	return created, nil
}

// Process runs the reconciliation for a stored webhook event: extract fields,
// normalize the status, serialize on the processing lock and apply the
// transition engine to the owning collection.
//
// Every terminal failure is captured on the receipt row. Nothing propagates
// back to the receive path; the HTTP response was already sent.
func (s *Service) Process(ctx context.Context, eventID uuid.UUID) error {
	startTime := time.Now()
	ctx = logcontext.AppendCtx(ctx, slog.String("webhookEventId", eventID.String()))

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return errors.Wrapf(err, "loading webhook event %s", eventID)
	}

	if event.Status == db.EventProcessed {
		// At-least-once scheduling can redeliver; processing is idempotent
		// but there is no point repeating it.
		s.logger.InfoContext(ctx, "Webhook event already processed, skipping")
		return nil
	}

	var decoded any
	if err := json.Unmarshal(event.Payload, &decoded); err != nil {
		decoded = nil
	}

	requestRef, ok := payload.ExtractRequestRef(decoded)
	if !ok && event.RequestRef != nil {
		requestRef, ok = *event.RequestRef, *event.RequestRef != ""
	}
	if !ok {
		failedCounter.Inc()
		return s.events.MarkFailed(ctx, event.ID, "no request_ref found in webhook payload")
	}

	providerRef, _ := payload.ExtractProviderRef(decoded)
	rawStatus, _ := payload.ExtractStatus(decoded)
	amount, hasAmount := payload.ExtractAmount(decoded)
	currency, _ := payload.ExtractCurrency(decoded)

	normalized, needsValidation := s.normalizer.Normalize(rawStatus)

	s.logger.InfoContext(ctx, "Processing webhook event",
		"requestRef", requestRef, "providerRef", providerRef,
		"rawStatus", rawStatus, "status", normalized, "needsValidation", needsValidation,
		"amount", amount, "hasAmount", hasAmount, "currency", currency)

	// The lock reduces races for the common case; acquisition failure is
	// non-fatal because the transition engine independently prevents unsafe
	// updates.
	held, err := s.locks.Acquire(ctx, "webhook:"+requestRef)
	if err != nil {
		s.logger.WarnContext(ctx, "Lock acquisition failed, proceeding without lock", "error", err)
		held = nil
	}

	_, applied, err := s.collections.ApplyStatus(ctx, requestRef, providerRef, normalized, needsValidation, false)

	if held != nil {
		if _, releaseErr := held.Release(ctx); releaseErr != nil {
			s.logger.WarnContext(ctx, "Error releasing processing lock", "error", releaseErr)
		}
	}

	if err != nil {
		failedCounter.Inc()
		s.logger.ErrorContext(ctx, "Error processing webhook event", "error", err)
		return s.events.MarkFailed(ctx, event.ID, err.Error())
	}

	if applied {
		processedCounter.Inc()
	} else {
		// A skipped update is successful processing, not a failure.
		skippedCounter.Inc()
	}

	if err := s.events.MarkProcessed(ctx, event.ID); err != nil {
		return err
	}

	processDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	return nil
}

var _ task.Processor = (*Service)(nil)
var _ CollectionUpdater = (*collection.Service)(nil)
