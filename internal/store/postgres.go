package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-tracker/internal/unit"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Gateway. Unit documents are jsonb
// rows merged with the || operator; quiz results are append-only rows.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on an open pool. The schema must already
// be applied (see database.Migrate).
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// SaveUnit merges u into the document under key. A write whose body matches
// the checksum of the previous write leaves the row untouched.
func (s *PostgresStore) SaveUnit(ctx context.Context, key string, u unit.Unit) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode unit %s: %w", key, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO unit_documents (key, kind, roadmap_id, node_id, data, checksum, updated_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, NOW())
		 ON CONFLICT (key) DO UPDATE
		 SET data = unit_documents.data || EXCLUDED.data,
		     checksum = EXCLUDED.checksum,
		     updated_at = EXCLUDED.updated_at
		 WHERE unit_documents.checksum IS DISTINCT FROM EXCLUDED.checksum`,
		key,
		string(u.Kind),
		u.RoadmapID,
		u.NodeID,
		string(data),
		Checksum(data),
	)
	if err != nil {
		return fmt.Errorf("save unit %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) SaveQuizResult(ctx context.Context, r unit.QuizResult) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if r.ID == "" {
		return fmt.Errorf("quiz result id is required")
	}
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	completedAt := r.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO quiz_results (id, result_key, roadmap_id, node_id, user_id, score, raw_score, passed, answers, completed_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)`,
		r.ID,
		r.Key,
		r.RoadmapID,
		r.NodeID,
		r.UserID,
		r.Score,
		r.RawScore,
		r.Passed,
		string(answers),
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quiz result: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadUnit(ctx context.Context, key string) (unit.Unit, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM unit_documents WHERE key = $1`,
		key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return unit.Unit{}, fmt.Errorf("load unit %s: %w", key, ErrNotFound)
		}
		return unit.Unit{}, fmt.Errorf("load unit %s: %w", key, err)
	}

	var u unit.Unit
	if err := json.Unmarshal(data, &u); err != nil {
		return unit.Unit{}, fmt.Errorf("decode document %s: %w", key, err)
	}
	return u, nil
}

func (s *PostgresStore) ListQuizResults(ctx context.Context, roadmapID string) ([]unit.QuizResult, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, result_key, roadmap_id, node_id, user_id, score, raw_score, passed, answers, completed_at
		 FROM quiz_results
		 WHERE roadmap_id = $1
		 ORDER BY completed_at ASC`,
		roadmapID,
	)
	if err != nil {
		return nil, fmt.Errorf("query quiz results: %w", err)
	}
	defer rows.Close()

	var out []unit.QuizResult
	for rows.Next() {
		var r unit.QuizResult
		var answers []byte
		if err := rows.Scan(
			&r.ID,
			&r.Key,
			&r.RoadmapID,
			&r.NodeID,
			&r.UserID,
			&r.Score,
			&r.RawScore,
			&r.Passed,
			&answers,
			&r.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan quiz result: %w", err)
		}
		if len(answers) > 0 {
			if err := json.Unmarshal(answers, &r.Answers); err != nil {
				return nil, fmt.Errorf("decode answers of %s: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz results: %w", err)
	}
	return out, nil
}
