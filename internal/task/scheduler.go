// Package task schedules background processing of stored webhook events.
// The HTTP receive path only writes the receipt row; the heavy work runs via
// a Scheduler, either queue-backed (Kafka) or inline when no broker is
// configured. Callers are agnostic to which is active.
package task

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Processor handles a single stored webhook event. Implementations must
// capture their own failures; Process errors only signal delivery problems
// to the scheduler.
type Processor interface {
	Process(ctx context.Context, eventID uuid.UUID) error
}

// Scheduler enqueues a webhook event for processing.
type Scheduler interface {
	Enqueue(ctx context.Context, eventID uuid.UUID) error
}

// InlineScheduler processes events synchronously in the caller's goroutine.
// Degraded fallback for deployments without a broker; correctness is
// unchanged, only receive latency suffers.
type InlineScheduler struct {
	processor Processor
	logger    *slog.Logger
}

func NewInlineScheduler(processor Processor, logger *slog.Logger) *InlineScheduler {
	return &InlineScheduler{processor: processor, logger: logger}
}

func (s *InlineScheduler) Enqueue(ctx context.Context, eventID uuid.UUID) error {
	s.logger.DebugContext(ctx, "Processing webhook event inline", "eventId", eventID)
	return s.processor.Process(ctx, eventID)
}
