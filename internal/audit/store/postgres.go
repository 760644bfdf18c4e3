package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"ironclad/internal/audit"
	id "ironclad/pkg/domain"
)

const defaultListLimit = 100

// PostgresStore writes to restoration_audit_logs. Inserts only; records are
// never updated.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, rec *audit.Record) error {
	query := `
		INSERT INTO restoration_audit_logs (
			id, request_id, api_key_id, service_name, timestamp,
			redacted_text, restored_text, token_count, tokens_restored,
			success, error_code, error_message, client_ip, user_agent, client_agent
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	var keyID *uuid.UUID
	if rec.APIKeyID != nil {
		k := uuid.UUID(*rec.APIKeyID)
		keyID = &k
	}
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(rec.ID),
		rec.RequestID,
		keyID,
		rec.ServiceName,
		rec.Timestamp,
		rec.RedactedText,
		nullString(rec.RestoredText),
		rec.TokenCount,
		rec.TokensRestored,
		rec.Success,
		nullString(rec.ErrorCode),
		nullString(rec.ErrorMessage),
		rec.ClientIP,
		rec.UserAgent,
		rec.ClientAgent,
	)
	if err != nil {
		return fmt.Errorf("insert restoration audit record: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, q audit.Query) ([]*audit.Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
		SELECT id, request_id, api_key_id, service_name, timestamp,
			redacted_text, restored_text, token_count, tokens_restored,
			success, error_code, error_message, client_ip, user_agent, client_agent
		FROM restoration_audit_logs
		WHERE ($1 = '' OR service_name = $1)
		ORDER BY timestamp DESC, id
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.QueryContext(ctx, query, q.ServiceName, limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("query restoration audit records: %w", err)
	}
	defer rows.Close()

	records := []*audit.Record{}
	for rows.Next() {
		var (
			rec       audit.Record
			recID     uuid.UUID
			keyID     uuid.NullUUID
			restored  sql.NullString
			errCode   sql.NullString
			errDetail sql.NullString
		)
		if err := rows.Scan(&recID, &rec.RequestID, &keyID, &rec.ServiceName, &rec.Timestamp,
			&rec.RedactedText, &restored, &rec.TokenCount, &rec.TokensRestored,
			&rec.Success, &errCode, &errDetail, &rec.ClientIP, &rec.UserAgent, &rec.ClientAgent); err != nil {
			return nil, fmt.Errorf("scan restoration audit record: %w", err)
		}
		rec.ID = id.AuditRecordID(recID)
		if keyID.Valid {
			k := id.APIKeyID(keyID.UUID)
			rec.APIKeyID = &k
		}
		rec.RestoredText = restored.String
		rec.ErrorCode = errCode.String
		rec.ErrorMessage = errDetail.String
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restoration audit records: %w", err)
	}
	return records, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
