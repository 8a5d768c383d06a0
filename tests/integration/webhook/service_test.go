package webhook

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"kore-service/internal/collection"
	"kore-service/internal/config"
	"kore-service/internal/db"
	"kore-service/internal/lock"
	"kore-service/internal/provider"
	"kore-service/internal/status"
	"kore-service/internal/task"
	"kore-service/internal/webhook"
	"kore-service/tests/testhelpers"
)

type ServiceTestSuite struct {
	suite.Suite
	pgContainer *testhelpers.PostgresContainer
	pool        *pgxpool.Pool
	events      *db.WebhookEventRepository
	collections *db.CollectionRepository
	sut         *webhook.Service
	ctx         context.Context
}

func (s *ServiceTestSuite) SetupSuite() {
	time.Local = time.UTC

	s.ctx = context.Background()
	pgContainer, err := testhelpers.CreatePostgresContainer(s.ctx)
	if err != nil {
		log.Fatal(err)
	}
	s.pgContainer = pgContainer

	if err := db.RunMigrations(pgContainer.ConnectionString, "../../../migrations"); err != nil {
		log.Fatal(err)
	}

	pool, err := db.GetPool(pgContainer.ConnectionString)
	if err != nil {
		log.Fatal(err)
	}

	s.pool = pool
	s.events = db.NewWebhookEventRepository(pool)
	s.collections = db.NewCollectionRepository(pool)

	normalizer := status.NewNormalizer()
	// The provider client is never called here; webhook processing only
	// touches the database.
	client := provider.NewClient(config.Provider{}, slog.Default())
	collectionService := collection.NewService(s.collections, normalizer, client, slog.Default())
	locks := lock.NewManager(lock.NewNoopBackend())

	s.sut = webhook.NewService(s.events, collectionService, locks, normalizer, "", slog.Default())
	s.sut.SetScheduler(task.NewInlineScheduler(s.sut, slog.Default()))
}

func (s *ServiceTestSuite) TearDownSuite() {
	s.pool.Close()

	if err := s.pgContainer.Terminate(s.ctx); err != nil {
		log.Fatalf("error terminating postgres container: %s", err)
	}
}

func (s *ServiceTestSuite) SetupTest() {
	for _, table := range []string{"transaction", "collection", "webhook_event"} {
		if _, err := s.pool.Exec(s.ctx, "DELETE FROM "+table); err != nil {
			log.Fatalf("error truncating %s table: %s", table, err)
		}
	}
}

func (s *ServiceTestSuite) createCollection(requestRef string) *db.CollectionEntity {
	entity := &db.CollectionEntity{
		ID:         uuid.New(),
		RequestRef: requestRef,
		Status:     "PENDING",
		Amount:     50000,
		Currency:   "NGN",
	}
	created, err := s.collections.Create(s.ctx, entity)
	if err != nil {
		log.Fatal(err)
	}

	txn := &db.TransactionEntity{
		ID:           uuid.New(),
		CollectionID: entity.ID,
		Type:         "COLLECTION",
		Amount:       entity.Amount,
		Currency:     entity.Currency,
		Status:       "PENDING",
		RequestRef:   requestRef,
	}
	if _, err := s.collections.CreateTransaction(s.ctx, txn); err != nil {
		log.Fatal(err)
	}

	return created
}

func webhookBody(eventID, requestRef, providerRef, rawStatus string) []byte {
	return []byte(fmt.Sprintf(
		`{"event_id": %q, "request_ref": %q, "reference": %q, "status": %q, "amount": 50000, "currency": "NGN"}`,
		eventID, requestRef, providerRef, rawStatus))
}

func (s *ServiceTestSuite) TestSuccessfulDelivery() {
	t := s.T()

	collection := s.createCollection("req_1")

	event, err := s.sut.Receive(s.ctx, "paywithaccount", webhookBody("evt_1", "req_1", "prov_1", "Successful"), "")
	assert.NoError(t, err)

	stored, err := s.events.GetByID(s.ctx, event.ID)
	assert.NoError(t, err)
	assert.Equal(t, db.EventProcessed, stored.Status)

	updated, err := s.collections.GetByID(s.ctx, collection.ID)
	assert.NoError(t, err)
	assert.Equal(t, "SUCCESS", updated.Status)
	assert.Equal(t, "prov_1", *updated.ProviderRef)

	transactions, err := s.collections.GetTransactionsByCollection(s.ctx, collection.ID)
	assert.NoError(t, err)
	assert.Len(t, transactions, 1)
	assert.Equal(t, "SUCCESS", transactions[0].Status)
}

func (s *ServiceTestSuite) TestDuplicateDelivery() {
	t := s.T()

	collection := s.createCollection("req_1")
	body := webhookBody("evt_1", "req_1", "prov_1", "success")

	first, err := s.sut.Receive(s.ctx, "paywithaccount", body, "")
	assert.NoError(t, err)

	second, err := s.sut.Receive(s.ctx, "paywithaccount", body, "")
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int
	err = s.pool.QueryRow(s.ctx, "SELECT COUNT(*) FROM webhook_event").Scan(&count)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	updated, err := s.collections.GetByID(s.ctx, collection.ID)
	assert.NoError(t, err)
	assert.Equal(t, "SUCCESS", updated.Status)
}

func (s *ServiceTestSuite) TestConcurrentDuplicateDeliveries() {
	t := s.T()

	collection := s.createCollection("req_1")
	body := webhookBody("evt_1", "req_1", "prov_1", "success")

	// All deliveries race the pre-check; the unique index on
	// (provider, event_id) must leave exactly one receipt.
	const deliveries = 8
	results := make([]*db.WebhookEventEntity, deliveries)
	errs := make([]error, deliveries)

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.sut.Receive(s.ctx, "paywithaccount", body, "")
		}(i)
	}
	wg.Wait()

	ids := map[string]bool{}
	for i := 0; i < deliveries; i++ {
		assert.NoError(t, errs[i])
		if results[i] != nil {
			ids[results[i].ID.String()] = true
		}
	}
	assert.Len(t, ids, 1, "every delivery must resolve to the same receipt")

	var count int
	err := s.pool.QueryRow(s.ctx, "SELECT COUNT(*) FROM webhook_event").Scan(&count)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	updated, err := s.collections.GetByID(s.ctx, collection.ID)
	assert.NoError(t, err)
	assert.Equal(t, "SUCCESS", updated.Status)
}

func (s *ServiceTestSuite) TestOutOfOrderDelivery() {
	t := s.T()

	collection := s.createCollection("req_1")

	_, err := s.sut.Receive(s.ctx, "paywithaccount", webhookBody("evt_1", "req_1", "prov_1", "success"), "")
	assert.NoError(t, err)

	// A stale PENDING delivery arrives after the terminal one.
	late, err := s.sut.Receive(s.ctx, "paywithaccount", webhookBody("evt_2", "req_1", "prov_1", "pending"), "")
	assert.NoError(t, err)

	stored, err := s.events.GetByID(s.ctx, late.ID)
	assert.NoError(t, err)
	assert.Equal(t, db.EventProcessed, stored.Status, "a skipped transition is still successful processing")

	updated, err := s.collections.GetByID(s.ctx, collection.ID)
	assert.NoError(t, err)
	assert.Equal(t, "SUCCESS", updated.Status, "terminal status must survive late deliveries")
}

func (s *ServiceTestSuite) TestDeliveryByProviderRefFallback() {
	t := s.T()

	providerRef := "prov_known"
	entity := &db.CollectionEntity{
		ID:          uuid.New(),
		RequestRef:  "req_1",
		ProviderRef: &providerRef,
		Status:      "PENDING",
		Amount:      50000,
		Currency:    "NGN",
	}
	_, err := s.collections.Create(s.ctx, entity)
	assert.NoError(t, err)

	// The provider sends its own reference but not ours.
	body := []byte(`{"event_id": "evt_1", "reference": "prov_known", "status": "success"}`)
	event, err := s.sut.Receive(s.ctx, "paywithaccount", body, "")
	assert.NoError(t, err)

	stored, err := s.events.GetByID(s.ctx, event.ID)
	assert.NoError(t, err)
	assert.Equal(t, db.EventFailed, stored.Status, "no request ref at all cannot be reconciled")

	// With a request ref present that matches nothing, the provider ref
	// fallback still finds the collection.
	body = webhookBody("evt_2", "req_unknown", "prov_known", "success")
	event, err = s.sut.Receive(s.ctx, "paywithaccount", body, "")
	assert.NoError(t, err)

	stored, err = s.events.GetByID(s.ctx, event.ID)
	assert.NoError(t, err)
	assert.Equal(t, db.EventProcessed, stored.Status)

	updated, err := s.collections.GetByID(s.ctx, entity.ID)
	assert.NoError(t, err)
	assert.Equal(t, "SUCCESS", updated.Status)
}

func (s *ServiceTestSuite) TestUnknownCollectionMarksFailed() {
	t := s.T()

	event, err := s.sut.Receive(s.ctx, "paywithaccount", webhookBody("evt_1", "req_missing", "prov_1", "success"), "")
	assert.NoError(t, err, "reconciliation failures stay off the receive path")

	stored, err := s.events.GetByID(s.ctx, event.ID)
	assert.NoError(t, err)
	assert.Equal(t, db.EventFailed, stored.Status)
	assert.Contains(t, *stored.Error, "req_missing")
}

func (s *ServiceTestSuite) TestOTPDeliveryFlagsValidation() {
	t := s.T()

	collection := s.createCollection("req_1")

	_, err := s.sut.Receive(s.ctx, "paywithaccount", webhookBody("evt_1", "req_1", "prov_1", "waiting_for_otp"), "")
	assert.NoError(t, err)

	updated, err := s.collections.GetByID(s.ctx, collection.ID)
	assert.NoError(t, err)
	assert.Equal(t, "PENDING", updated.Status)
	assert.True(t, updated.NeedsValidation)
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}
