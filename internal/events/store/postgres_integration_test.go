//go:build integration

package store_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"fundledger/internal/events/models"
	"fundledger/internal/events/store"
	id "fundledger/pkg/domain"
	"fundledger/pkg/testutil/containers"
)

type PostgresOutboxSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	outbox   *store.PostgresOutbox
}

func TestPostgresOutboxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresOutboxSuite))
}

func (s *PostgresOutboxSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.outbox = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresOutboxSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "outbox_events")
	s.Require().NoError(err)
}

func (s *PostgresOutboxSuite) enqueue(tenantID id.TenantID) *models.Event {
	payload, err := json.Marshal(models.DecisionRecordedPayload{
		RecordID: uuid.NewString(),
		Result:   "approved",
	})
	s.Require().NoError(err)

	event := &models.Event{
		TenantID:   tenantID,
		EventType:  models.TypeDecisionRecorded,
		EntityType: models.EntityDecisionRecord,
		EntityID:   uuid.New(),
		Payload:    payload,
	}
	s.Require().NoError(s.outbox.Enqueue(context.Background(), event))
	return event
}

func (s *PostgresOutboxSuite) TestEnqueueAssignsMonotonicIDs() {
	tenantID := id.NewTenantID()

	first := s.enqueue(tenantID)
	second := s.enqueue(tenantID)

	s.Positive(first.ID)
	s.Greater(second.ID, first.ID)
}

func (s *PostgresOutboxSuite) TestFetchUnpublishedInEnqueueOrder() {
	ctx := context.Background()
	tenantID := id.NewTenantID()

	first := s.enqueue(tenantID)
	second := s.enqueue(tenantID)
	third := s.enqueue(tenantID)

	pending, err := s.outbox.FetchUnpublished(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(first.ID, pending[0].ID)
	s.Equal(second.ID, pending[1].ID)
	s.Equal(models.TypeDecisionRecorded, pending[0].EventType)
	s.JSONEq(string(first.Payload), string(pending[0].Payload))

	rest, err := s.outbox.FetchUnpublished(ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(rest, 3)
	s.Equal(third.ID, rest[2].ID)
}

func (s *PostgresOutboxSuite) TestMarkPublishedIsTerminal() {
	ctx := context.Background()
	tenantID := id.NewTenantID()

	first := s.enqueue(tenantID)
	second := s.enqueue(tenantID)

	s.Require().NoError(s.outbox.MarkPublished(ctx, []int64{first.ID}))

	pending, err := s.outbox.FetchUnpublished(ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(second.ID, pending[0].ID)

	// Re-marking an already published event is a no-op.
	s.Require().NoError(s.outbox.MarkPublished(ctx, []int64{first.ID, second.ID}))
	pending, err = s.outbox.FetchUnpublished(ctx, 0)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *PostgresOutboxSuite) TestMarkPublishedEmptyBatch() {
	s.Require().NoError(s.outbox.MarkPublished(context.Background(), nil))
}
