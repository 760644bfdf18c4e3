//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ironclad/internal/audit"
	"ironclad/internal/audit/store"
	id "ironclad/pkg/domain"
	"ironclad/pkg/testutil/containers"
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
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "restoration_audit_logs"))
}

func (s *PostgresStoreSuite) TestAppendAndList() {
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	keyID := id.NewAPIKeyID()

	s.Require().NoError(s.store.Append(ctx, &audit.Record{
		ID:           id.NewAuditRecordID(),
		RequestID:    "req-unauth",
		Timestamp:    base,
		RedactedText: "Call [REDACTED_aaaaaaaaaaaa]",
		TokenCount:   1,
		ErrorCode:    "unauthorized",
		ErrorMessage: "api key revoked",
		ClientIP:     "10.0.0.1",
		UserAgent:    "curl/8.5.0",
		ClientAgent:  "curl 8.5.0",
	}))
	s.Require().NoError(s.store.Append(ctx, &audit.Record{
		ID:             id.NewAuditRecordID(),
		RequestID:      "req-ok",
		APIKeyID:       &keyID,
		ServiceName:    "billing",
		Timestamp:      base.Add(time.Minute),
		RedactedText:   "Call [REDACTED_aaaaaaaaaaaa]",
		RestoredText:   "Call 555-0100",
		TokenCount:     1,
		TokensRestored: 1,
		Success:        true,
	}))

	all, err := s.store.List(ctx, audit.Query{})
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal("req-ok", all[0].RequestID)
	s.Require().NotNil(all[0].APIKeyID)
	s.Equal(keyID, *all[0].APIKeyID)
	s.Equal("Call 555-0100", all[0].RestoredText)
	s.Nil(all[1].APIKeyID)
	s.Equal("unauthorized", all[1].ErrorCode)
	s.Empty(all[1].RestoredText)

	billing, err := s.store.List(ctx, audit.Query{ServiceName: "billing"})
	s.Require().NoError(err)
	s.Len(billing, 1)
}
