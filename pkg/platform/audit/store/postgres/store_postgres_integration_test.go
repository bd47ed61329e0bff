//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "bizreg/pkg/platform/audit"
	"bizreg/pkg/platform/audit/store/postgres"
	"bizreg/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
}

func (s *AuditStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.DropTables(ctx, "admin_audit"))
	s.Require().NoError(s.store.EnsureSchema(ctx))
}

func (s *AuditStoreSuite) TestAppendAndListRecent() {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, subject := range []string{"job-1", "job-2", "job-3"} {
		s.Require().NoError(s.store.Append(ctx, audit.Event{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Action:    audit.ActionImportTriggered,
			Actor:     "ops",
			Subject:   subject,
			RequestID: "req",
		}))
	}

	events, err := s.store.ListRecent(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal("job-3", events[0].Subject)
	s.Equal("job-2", events[1].Subject)
	s.Equal(audit.ActionImportTriggered, events[0].Action)
	s.Equal("ops", events[0].Actor)
}

func (s *AuditStoreSuite) TestAppendIsIdempotentOnID() {
	ctx := context.Background()
	event := audit.Prepare(audit.Event{Action: audit.ActionImportRejected, Actor: "ops"}, time.Now())

	s.Require().NoError(s.store.Append(ctx, event))
	s.Require().NoError(s.store.Append(ctx, event))

	events, err := s.store.ListRecent(ctx, 10)
	s.Require().NoError(err)
	s.Len(events, 1)
}
