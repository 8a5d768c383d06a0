package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"kore-service/internal/config"
)

const (
	defaultBatchSize      = 100
	defaultBatchTimeoutMs = 100
)

var (
	readerErrorCounter    = metrics.GetOrCreateCounter(`kafka_reader_total{result="read_error",type="webhook_event"}`)
	readerUnmarshalError  = metrics.GetOrCreateCounter(`kafka_reader_total{result="unmarshal_error",type="webhook_event"}`)
	readerProcessError    = metrics.GetOrCreateCounter(`kafka_reader_total{result="process_error",type="webhook_event"}`)
	readerSuccessCounter  = metrics.GetOrCreateCounter(`kafka_reader_total{result="success",type="webhook_event"}`)
	writerPublishCounter  = metrics.GetOrCreateCounter(`kafka_writer_total{result="published",type="webhook_event"}`)
	writerPublishErrCount = metrics.GetOrCreateCounter(`kafka_writer_total{result="publish_error",type="webhook_event"}`)
)

// processMessage is the queue payload: just the receipt id. The payload
// itself stays in the database.
type processMessage struct {
	ID uuid.UUID `json:"id"`
}

func NewWriter(cfg config.Kafka) *kafka.Writer {
	batchSize := cfg.Writer.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	batchTimeout := cfg.Writer.BatchTimeoutMs
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeoutMs
	}

	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Broker.URL),
		Topic:                  cfg.Topic.WebhookEvents,
		Balancer:               &kafka.ReferenceHash{},
		BatchSize:              batchSize,
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           time.Duration(batchTimeout) * time.Millisecond,
		Async:                  false,
		AllowAutoTopicCreation: false,
	}
}

func NewReader(cfg config.Kafka) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: strings.Split(cfg.Broker.URL, ","),
		GroupID: cfg.Reader.GroupID,
		Topic:   cfg.Topic.WebhookEvents,
	})
}

// KafkaScheduler publishes event ids to the webhook-events topic. Messages
// are keyed by event id so redeliveries of the same receipt stay ordered.
type KafkaScheduler struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaScheduler(writer *kafka.Writer, logger *slog.Logger) *KafkaScheduler {
	return &KafkaScheduler{writer: writer, logger: logger}
}

func (s *KafkaScheduler) Enqueue(ctx context.Context, eventID uuid.UUID) error {
	messageBytes, err := json.Marshal(processMessage{ID: eventID})
	if err != nil {
		return err
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(eventID.String()),
		Value: messageBytes,
	})
	if err != nil {
		writerPublishErrCount.Inc()
		return err
	}

	writerPublishCounter.Inc()
	s.logger.DebugContext(ctx, "Enqueued webhook event for processing", "eventId", eventID)
	return nil
}

// ReadWebhookEvents consumes the webhook-events topic and hands each receipt
// id to the processor. Runs until the reader is closed.
func ReadWebhookEvents(reader *kafka.Reader, processor Processor, logger *slog.Logger) {
	go func() {
		ctx := context.Background()
		for {
			logger.InfoContext(ctx, "Waiting for messages from Kafka...")
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				logger.ErrorContext(ctx, fmt.Sprintf("Error reading message: %v", err))
				readerErrorCounter.Inc()
				continue
			}

			var msg processMessage
			if err := json.Unmarshal(m.Value, &msg); err != nil {
				logger.ErrorContext(ctx, fmt.Sprintf("Error unmarshalling message: %v", err))
				readerUnmarshalError.Inc()
				continue
			}

			if err := processor.Process(ctx, msg.ID); err != nil {
				logger.ErrorContext(ctx, fmt.Sprintf("Error processing message: %v", err))
				readerProcessError.Inc()
				continue
			}
			readerSuccessCounter.Inc()
		}
	}()
}
