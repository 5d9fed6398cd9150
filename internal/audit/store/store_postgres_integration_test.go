//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"docflow/internal/audit"
	"docflow/internal/audit/store"
	id "docflow/pkg/domain"
	"docflow/pkg/platform/tx"
	"docflow/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "document_audit"))
}

func entry(docID id.DocumentID, trigger string, at time.Time) audit.Entry {
	return audit.Entry{
		ID:         id.NewAuditEntryID(),
		DocumentID: docID,
		TenantID:   id.TenantID(uuid.New()),
		Actor:      "system",
		Trigger:    trigger,
		From:       "RECEBIDO",
		To:         "VALIDANDO",
		Outcome:    audit.OutcomeApplied,
		RequestID:  "req-1",
		Timestamp:  at,
	}
}

func (s *PostgresStoreSuite) TestListPreservesAppendOrder() {
	ctx := context.Background()
	docID := id.NewDocumentID()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Same timestamp on purpose: insertion order must break the tie.
	triggers := []string{"create", "ocr_completed", "analysis_valid"}
	for _, tr := range triggers {
		s.Require().NoError(s.store.Append(ctx, entry(docID, tr, at)))
	}
	s.Require().NoError(s.store.Append(ctx, entry(id.NewDocumentID(), "create", at)))

	got, err := s.store.ListByDocument(ctx, docID)
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	for i, tr := range triggers {
		s.Equal(tr, got[i].Trigger)
		s.Equal(docID, got[i].DocumentID)
		s.Equal(audit.OutcomeApplied, got[i].Outcome)
	}
	s.Equal("req-1", got[0].RequestID)
}

func (s *PostgresStoreSuite) TestAppendRollsBackWithTransaction() {
	ctx := context.Background()
	docID := id.NewDocumentID()
	runner := tx.NewSQLRunner(s.postgres.DB)

	boom := errors.New("boom")
	err := runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Append(ctx, entry(docID, "create", time.Now().UTC())); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.store.ListByDocument(ctx, docID)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *PostgresStoreSuite) TestEmptyTrail() {
	got, err := s.store.ListByDocument(context.Background(), id.NewDocumentID())
	s.Require().NoError(err)
	s.NotNil(got)
	s.Empty(got)
}
