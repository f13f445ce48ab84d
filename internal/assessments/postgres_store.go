package assessments

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vigialabs/vigia/internal/pagination"
	"github.com/vigialabs/vigia/internal/risk"
)

// PostgresStore persists assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the assessments table and indexes.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS assessments (
			id                 VARCHAR(36) PRIMARY KEY,
			entity_id          VARCHAR(255) NOT NULL,
			entity_type        VARCHAR(50) NOT NULL,
			region             VARCHAR(10) NOT NULL,
			score              DOUBLE PRECISION NOT NULL CHECK (score >= 0 AND score <= 1),
			level              VARCHAR(20) NOT NULL CHECK (level IN ('low','medium','high','critical')),
			recommended_action VARCHAR(20) NOT NULL,
			category_scores    JSONB NOT NULL DEFAULT '{}',
			top_factors        JSONB NOT NULL DEFAULT '[]',
			cached             BOOLEAN NOT NULL DEFAULT FALSE,
			evaluated_at       TIMESTAMPTZ NOT NULL,
			created_at         TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_assessments_entity ON assessments (entity_id, evaluated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_assessments_region ON assessments (region, evaluated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_assessments_level ON assessments (level, evaluated_at DESC);
	`)
	return err
}

func (p *PostgresStore) Record(ctx context.Context, r *risk.CombinedResult) error {
	categoryScores, err := json.Marshal(r.CategoryScores)
	if err != nil {
		return fmt.Errorf("marshal category scores: %w", err)
	}
	topFactors, err := json.Marshal(r.TopFactors)
	if err != nil {
		return fmt.Errorf("marshal top factors: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO assessments (
			id, entity_id, entity_type, region, score,
			level, recommended_action, category_scores, top_factors, cached,
			evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.EntityID, r.EntityType, r.Region, r.Score,
		string(r.Level), string(r.RecommendedAction), categoryScores, topFactors, r.Cached,
		r.EvaluatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*risk.CombinedResult, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, entity_id, entity_type, region, score,
		       level, recommended_action, category_scores, top_factors, cached,
		       evaluated_at
		FROM assessments WHERE id = $1`, id)

	r, err := scanAssessment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

func (p *PostgresStore) List(ctx context.Context, f Filter) (*Page, error) {
	cursor, err := pagination.Decode(f.Cursor)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(f.Limit)

	query := `
		SELECT id, entity_id, entity_type, region, score,
		       level, recommended_action, category_scores, top_factors, cached,
		       evaluated_at
		FROM assessments WHERE 1=1`
	args := []interface{}{}
	n := 0
	arg := func(v interface{}) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if f.Region != "" {
		query += " AND region = " + arg(f.Region)
	}
	if f.EntityID != "" {
		query += " AND entity_id = " + arg(f.EntityID)
	}
	if f.MinLevel != "" {
		switch f.MinLevel {
		case risk.LevelMedium:
			query += " AND level IN ('medium','high','critical')"
		case risk.LevelHigh:
			query += " AND level IN ('high','critical')"
		case risk.LevelCritical:
			query += " AND level = 'critical'"
		}
	}
	if cursor != nil {
		query += fmt.Sprintf(" AND (evaluated_at, id) < (%s, %s)", arg(cursor.CreatedAt), arg(cursor.ID))
	}
	query += " ORDER BY evaluated_at DESC, id DESC LIMIT " + arg(limit+1)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var matched []*risk.CombinedResult
	for rows.Next() {
		r, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		matched = append(matched, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, next, hasMore := pagination.ComputePage(matched, limit, func(r *risk.CombinedResult) (time.Time, string) {
		return r.EvaluatedAt, r.ID
	})
	return &Page{Items: items, NextCursor: next, HasMore: hasMore}, nil
}

func (p *PostgresStore) CountSince(ctx context.Context, t time.Time) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assessments WHERE evaluated_at >= $1`, t).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAssessment(sc scanner) (*risk.CombinedResult, error) {
	r := &risk.CombinedResult{}
	var (
		level          string
		action         string
		categoryScores []byte
		topFactors     []byte
	)

	err := sc.Scan(
		&r.ID, &r.EntityID, &r.EntityType, &r.Region, &r.Score,
		&level, &action, &categoryScores, &topFactors, &r.Cached,
		&r.EvaluatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Level = risk.Level(level)
	r.RecommendedAction = risk.Action(action)
	if err := json.Unmarshal(categoryScores, &r.CategoryScores); err != nil {
		return nil, fmt.Errorf("unmarshal category scores: %w", err)
	}
	if err := json.Unmarshal(topFactors, &r.TopFactors); err != nil {
		return nil, fmt.Errorf("unmarshal top factors: %w", err)
	}
	return r, nil
}

var _ Store = (*PostgresStore)(nil)
