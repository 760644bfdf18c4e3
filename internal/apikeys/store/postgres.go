package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ironclad/internal/apikeys/models"
	"ironclad/internal/platform/postgres"
	id "ironclad/pkg/domain"
	"ironclad/pkg/platform/sentinel"
)

const defaultListLimit = 100

// PostgresStore persists keys in the api_keys table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const keyColumns = `id, prefix, secret_hash, service_name, created_at, last_used_at, usage_count, revoked, revoked_at`

func (s *PostgresStore) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (id, prefix, secret_hash, service_name, created_at, usage_count, revoked)
		VALUES ($1, $2, $3, $4, $5, 0, FALSE)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(key.ID), key.Prefix, key.SecretHash, key.ServiceName, key.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("api key prefix %s: %w", key.Prefix, sentinel.ErrConflict)
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, keyID id.APIKeyID) (*models.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE id = $1`, uuid.UUID(keyID))
	key, err := scanKey(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("api key %s: %w", keyID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find api key: %w", err)
	}
	return key, nil
}

func (s *PostgresStore) FindByPrefix(ctx context.Context, prefix string) (*models.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE prefix = $1`, prefix)
	key, err := scanKey(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("api key prefix %s: %w", prefix, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find api key by prefix: %w", err)
	}
	return key, nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.Filter) ([]*models.APIKey, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
		SELECT ` + keyColumns + `
		FROM api_keys
		WHERE ($1 = '' OR service_name = $1)
			AND ($2 OR NOT revoked)
		ORDER BY created_at DESC, prefix
		LIMIT $3 OFFSET $4
	`
	rows, err := s.db.QueryContext(ctx, query, filter.ServiceName, filter.IncludeRevoked, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	keys := []*models.APIKey{}
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, keyID id.APIKeyID, at time.Time) (*models.APIKey, error) {
	query := `
		UPDATE api_keys
		SET revoked = TRUE, revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
		RETURNING ` + keyColumns
	key, err := scanKey(s.db.QueryRowContext(ctx, query, uuid.UUID(keyID), at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("api key %s: %w", keyID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("revoke api key: %w", err)
	}
	return key, nil
}

func (s *PostgresStore) RecordUsage(ctx context.Context, keyID id.APIKeyID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = $2 WHERE id = $1`,
		uuid.UUID(keyID), at)
	if err != nil {
		return fmt.Errorf("record api key usage: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("api key %s: %w", keyID, sentinel.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (*models.APIKey, error) {
	var (
		key       models.APIKey
		keyID     uuid.UUID
		lastUsed  sql.NullTime
		revokedAt sql.NullTime
	)
	if err := row.Scan(&keyID, &key.Prefix, &key.SecretHash, &key.ServiceName, &key.CreatedAt,
		&lastUsed, &key.UsageCount, &key.Revoked, &revokedAt); err != nil {
		return nil, err
	}
	key.ID = id.APIKeyID(keyID)
	if lastUsed.Valid {
		key.LastUsedAt = &lastUsed.Time
	}
	if revokedAt.Valid {
		key.RevokedAt = &revokedAt.Time
	}
	return &key, nil
}
