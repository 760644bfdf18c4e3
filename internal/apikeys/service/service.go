// Package service manages restoration API keys: issuance, listing,
// revocation and authentication.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ironclad/internal/apikeys/models"
	"ironclad/internal/apikeys/secrets"
	id "ironclad/pkg/domain"
	dErrors "ironclad/pkg/domain-errors"
	"ironclad/pkg/platform/sentinel"
	"ironclad/pkg/requestcontext"
)

const (
	maxServiceNameLength = 128
	maxCreateAttempts    = 3
)

// Store persists API keys. Lookups return sentinel.ErrNotFound for unknown
// keys; Create returns sentinel.ErrConflict when the prefix is taken.
type Store interface {
	Create(ctx context.Context, key *models.APIKey) error
	FindByID(ctx context.Context, keyID id.APIKeyID) (*models.APIKey, error)
	FindByPrefix(ctx context.Context, prefix string) (*models.APIKey, error)
	List(ctx context.Context, filter models.Filter) ([]*models.APIKey, error)
	Revoke(ctx context.Context, keyID id.APIKeyID, at time.Time) (*models.APIKey, error)
	RecordUsage(ctx context.Context, keyID id.APIKeyID, at time.Time) error
}

type Service struct {
	store    Store
	logger   *slog.Logger
	hashCost int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.hashCost = cost
		}
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		logger:   slog.Default(),
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create issues a key for serviceName. The raw key is returned once and
// cannot be recovered later.
func (s *Service) Create(ctx context.Context, serviceName string) (*models.APIKey, string, error) {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		return nil, "", dErrors.New(dErrors.CodeValidation, "service_name is required")
	}
	if len(serviceName) > maxServiceNameLength {
		return nil, "", dErrors.New(dErrors.CodeValidation, "service_name is too long")
	}

	for attempt := 1; ; attempt++ {
		prefix, secret, raw, err := secrets.Generate()
		if err != nil {
			return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate api key")
		}
		hash, err := secrets.Hash(secret, s.hashCost)
		if err != nil {
			return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash api key")
		}
		key := &models.APIKey{
			ID:          id.NewAPIKeyID(),
			Prefix:      prefix,
			SecretHash:  hash,
			ServiceName: serviceName,
			CreatedAt:   requestcontext.Now(ctx),
		}
		err = s.store.Create(ctx, key)
		if err == nil {
			s.logger.InfoContext(ctx, "api key created",
				"api_key_id", key.ID.String(),
				"prefix", key.Prefix,
				"service_name", serviceName,
				"admin", requestcontext.Admin(ctx),
			)
			return key, raw, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) || attempt >= maxCreateAttempts {
			return nil, "", dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "could not store api key")
		}
	}
}

func (s *Service) List(ctx context.Context, filter models.Filter) ([]*models.APIKey, error) {
	keys, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "could not list api keys")
	}
	return keys, nil
}

// Revoke is one-way. Revoking an already revoked key returns it unchanged.
func (s *Service) Revoke(ctx context.Context, keyID id.APIKeyID) (*models.APIKey, error) {
	key, err := s.store.FindByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "api key not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "could not load api key")
	}
	if key.Revoked {
		return key, nil
	}

	key, err = s.store.Revoke(ctx, keyID, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "api key not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "could not revoke api key")
	}
	s.logger.InfoContext(ctx, "api key revoked",
		"api_key_id", keyID.String(),
		"service_name", key.ServiceName,
		"admin", requestcontext.Admin(ctx),
	)
	return key, nil
}

// Authenticate resolves rawKey to an active key. Every failure to identify
// an active key is reported as unauthorized; only store outages differ.
// The usage counter is updated best effort.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (*models.APIKey, error) {
	if strings.TrimSpace(rawKey) == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "api key required")
	}
	prefix, secret, err := secrets.Parse(rawKey)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "malformed api key")
	}

	key, err := s.store.FindByPrefix(ctx, prefix)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "could not load api key")
	}
	if err := secrets.Verify(secret, key.SecretHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not verify api key")
	}
	if key.Revoked {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "api key revoked")
	}

	now := requestcontext.Now(ctx)
	if err := s.store.RecordUsage(ctx, key.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to record api key usage",
			"api_key_id", key.ID.String(),
			"error", err,
		)
	} else {
		key.UsageCount++
		key.LastUsedAt = &now
	}
	return key, nil
}
