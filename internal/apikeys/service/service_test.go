package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"ironclad/internal/apikeys/models"
	"ironclad/internal/apikeys/secrets"
	"ironclad/internal/apikeys/service/mocks"
	"ironclad/internal/apikeys/store"
	id "ironclad/pkg/domain"
	dErrors "ironclad/pkg/domain-errors"
	"ironclad/pkg/platform/sentinel"
	"ironclad/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	store   *store.InMemoryStore
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = store.NewInMemoryStore()
	s.service = New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithHashCost(bcrypt.MinCost),
	)
}

func (s *ServiceSuite) TestCreateReturnsRawKeyOnce() {
	key, raw, err := s.service.Create(s.ctx, "  billing-api ")
	s.Require().NoError(err)

	s.Equal("billing-api", key.ServiceName)
	s.Equal(s.now, key.CreatedAt)
	s.NotContains(key.SecretHash, raw)

	prefix, _, err := secrets.Parse(raw)
	s.Require().NoError(err)
	s.Equal(key.Prefix, prefix)
}

func (s *ServiceSuite) TestCreateRequiresServiceName() {
	_, _, err := s.service.Create(s.ctx, "   ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestAuthenticate() {
	key, raw, err := s.service.Create(s.ctx, "billing-api")
	s.Require().NoError(err)

	s.Run("valid key records usage", func() {
		got, err := s.service.Authenticate(s.ctx, raw)
		s.Require().NoError(err)
		s.Equal(key.ID, got.ID)
		s.EqualValues(1, got.UsageCount)

		stored, err := s.store.FindByID(s.ctx, key.ID)
		s.Require().NoError(err)
		s.EqualValues(1, stored.UsageCount)
		s.Require().NotNil(stored.LastUsedAt)
		s.Equal(s.now, *stored.LastUsedAt)
	})

	s.Run("wrong secret", func() {
		_, err := s.service.Authenticate(s.ctx, secrets.Format(key.Prefix, "not-the-secret"))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown prefix", func() {
		_, err := s.service.Authenticate(s.ctx, "ick_00000000_whatever")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("malformed and missing", func() {
		for _, rawKey := range []string{"", "Bearer abc", "ick_only"} {
			_, err := s.service.Authenticate(s.ctx, rawKey)
			s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), rawKey)
		}
	})

	s.Run("revoked key", func() {
		_, err := s.service.Revoke(s.ctx, key.ID)
		s.Require().NoError(err)
		_, err = s.service.Authenticate(s.ctx, raw)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal("api key revoked", dErrors.MessageOf(err))
	})
}

func (s *ServiceSuite) TestRevokeIsIdempotent() {
	key, _, err := s.service.Create(s.ctx, "billing-api")
	s.Require().NoError(err)

	first, err := s.service.Revoke(s.ctx, key.ID)
	s.Require().NoError(err)
	s.True(first.Revoked)

	later := requestcontext.WithTime(context.Background(), s.now.Add(time.Hour))
	second, err := s.service.Revoke(later, key.ID)
	s.Require().NoError(err)
	s.True(second.Revoked)
	s.Equal(*first.RevokedAt, *second.RevokedAt)
}

func (s *ServiceSuite) TestRevokeUnknownKey() {
	_, err := s.service.Revoke(s.ctx, id.NewAPIKeyID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestListFiltersRevoked() {
	a, _, err := s.service.Create(s.ctx, "billing-api")
	s.Require().NoError(err)
	_, _, err = s.service.Create(s.ctx, "billing-api")
	s.Require().NoError(err)
	_, _, err = s.service.Create(s.ctx, "search-api")
	s.Require().NoError(err)
	_, err = s.service.Revoke(s.ctx, a.ID)
	s.Require().NoError(err)

	active, err := s.service.List(s.ctx, models.Filter{ServiceName: "billing-api"})
	s.Require().NoError(err)
	s.Len(active, 1)

	all, err := s.service.List(s.ctx, models.Filter{ServiceName: "billing-api", IncludeRevoked: true})
	s.Require().NoError(err)
	s.Len(all, 2)
}

func TestAuthenticateStoreOutage(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockStore(ctrl)
	svc := New(mockStore, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	mockStore.EXPECT().FindByPrefix(gomock.Any(), "0a1b2c3d").
		Return(nil, errors.New("dial tcp: connection refused"))

	_, err := svc.Authenticate(context.Background(), "ick_0a1b2c3d_secret")
	if !dErrors.HasCode(err, dErrors.CodeStorageUnavailable) {
		t.Fatalf("expected storage_unavailable, got %v", err)
	}
}

func TestAuthenticateUsageFailureIsBestEffort(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockStore(ctrl)
	svc := New(mockStore, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithHashCost(bcrypt.MinCost))

	hash, err := secrets.Hash("secret", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	key := &models.APIKey{ID: id.NewAPIKeyID(), Prefix: "0a1b2c3d", SecretHash: hash, ServiceName: "svc"}

	mockStore.EXPECT().FindByPrefix(gomock.Any(), "0a1b2c3d").Return(key, nil)
	mockStore.EXPECT().RecordUsage(gomock.Any(), key.ID, gomock.Any()).Return(sentinel.ErrUnavailable)

	got, err := svc.Authenticate(context.Background(), "ick_0a1b2c3d_secret")
	if err != nil {
		t.Fatalf("expected authentication to succeed, got %v", err)
	}
	if got.UsageCount != 0 {
		t.Fatalf("usage count should be unchanged when the update fails")
	}
}

func TestCreateRetriesPrefixCollision(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockStore(ctrl)
	svc := New(mockStore, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithHashCost(bcrypt.MinCost))

	gomock.InOrder(
		mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict),
		mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil),
	)

	_, raw, err := svc.Create(context.Background(), "svc")
	if err != nil || raw == "" {
		t.Fatalf("expected second attempt to succeed, got %v", err)
	}
}
