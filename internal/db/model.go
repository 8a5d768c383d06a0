package db

import (
	"time"

	"github.com/google/uuid"
)

// Webhook event receipt statuses.
const (
	EventReceived  = "RECEIVED"
	EventProcessed = "PROCESSED"
	EventFailed    = "FAILED"
)

// WebhookEventEntity is the audit record for a single webhook delivery.
// Rows are created on receipt, mutated only when processing finishes, and
// never deleted.
type WebhookEventEntity struct {
	ID          uuid.UUID
	Provider    string
	EventID     *string
	RequestRef  *string
	Payload     []byte
	Signature   string
	Status      string
	Error       *string
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}

type CollectionEntity struct {
	ID              uuid.UUID
	RequestRef      string
	ProviderRef     *string
	Status          string
	Amount          float64
	Currency        string
	NeedsValidation bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type TransactionEntity struct {
	ID           uuid.UUID
	CollectionID uuid.UUID
	Type         string
	Amount       float64
	Currency     string
	Status       string
	RequestRef   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
