package verification

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

const defaultListLimit = 100

// PostgresStore persists results in verification_results. A retried
// verification overwrites the earlier row for the same request.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, res Result) error {
	query := `
		INSERT INTO verification_results (
			request_id, state, tier, score, rationale, skipped, skip_reason,
			token_count, purged_token_ids, purge_error, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (request_id) DO UPDATE SET
			state = EXCLUDED.state,
			tier = EXCLUDED.tier,
			score = EXCLUDED.score,
			rationale = EXCLUDED.rationale,
			skipped = EXCLUDED.skipped,
			skip_reason = EXCLUDED.skip_reason,
			token_count = EXCLUDED.token_count,
			purged_token_ids = EXCLUDED.purged_token_ids,
			purge_error = EXCLUDED.purge_error,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`
	var score sql.NullFloat64
	if res.Score != nil {
		score = sql.NullFloat64{Float64: *res.Score, Valid: true}
	}
	purged := res.PurgedTokenIDs
	if purged == nil {
		purged = []string{}
	}
	_, err := s.db.ExecContext(ctx, query,
		res.RequestID, string(res.State), string(res.Tier), score, res.Rationale,
		res.Skipped, res.SkipReason, res.TokenCount, pq.Array(purged),
		res.PurgeError, res.StartedAt, res.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save verification result: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]Result, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
		SELECT request_id, state, tier, score, rationale, skipped, skip_reason,
			token_count, purged_token_ids, purge_error, started_at, finished_at
		FROM verification_results
		ORDER BY finished_at DESC, request_id
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list verification results: %w", err)
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		var (
			r      Result
			state  string
			tier   string
			score  sql.NullFloat64
			purged []string
		)
		if err := rows.Scan(&r.RequestID, &state, &tier, &score, &r.Rationale, &r.Skipped,
			&r.SkipReason, &r.TokenCount, pq.Array(&purged), &r.PurgeError, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan verification result: %w", err)
		}
		r.State = State(state)
		r.Tier = State(tier)
		if score.Valid {
			v := score.Float64
			r.Score = &v
		}
		if len(purged) > 0 {
			r.PurgedTokenIDs = purged
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification results: %w", err)
	}
	return results, nil
}
