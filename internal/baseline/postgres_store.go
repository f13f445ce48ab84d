package baseline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists observations and baselines in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed baseline store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the baseline tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS baseline_observations (
			id           BIGSERIAL PRIMARY KEY,
			entity_id    VARCHAR(128) NOT NULL,
			amount       DOUBLE PRECISION NOT NULL DEFAULT 0,
			area         VARCHAR(128) NOT NULL DEFAULT '',
			device_id    VARCHAR(128) NOT NULL DEFAULT '',
			observed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_baseline_observations_entity
			ON baseline_observations (entity_id, observed_at DESC);

		CREATE TABLE IF NOT EXISTS entity_baselines (
			entity_id      VARCHAR(128) PRIMARY KEY,
			mean_amount    DOUBLE PRECISION NOT NULL,
			stddev_amount  DOUBLE PRECISION NOT NULL,
			hour_counts    JSONB NOT NULL DEFAULT '[]',
			sample_count   INTEGER NOT NULL,
			known_areas    JSONB NOT NULL DEFAULT '[]',
			known_devices  JSONB NOT NULL DEFAULT '[]',
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresStore) AppendObservation(ctx context.Context, obs *Observation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO baseline_observations (entity_id, amount, area, device_id, observed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, obs.EntityID, obs.Amount, obs.Area, obs.DeviceID, obs.ObservedAt)
	if err != nil {
		return fmt.Errorf("append observation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ObservationsSince(ctx context.Context, entityID string, since time.Time) ([]*Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, amount, area, device_id, observed_at
		FROM baseline_observations
		WHERE entity_id = $1 AND observed_at > $2
		ORDER BY observed_at
	`, entityID, since)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.ID, &o.EntityID, &o.Amount, &o.Area, &o.DeviceID, &o.ObservedAt); err != nil {
			continue
		}
		result = append(result, &o)
	}
	return result, rows.Err()
}

func (s *PostgresStore) EntitiesWithObservations(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT entity_id FROM baseline_observations WHERE observed_at > $1
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list active entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			result = append(result, id)
		}
	}
	return result, rows.Err()
}

func (s *PostgresStore) PruneObservations(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM baseline_observations WHERE observed_at < $1`, before)
	return err
}

func (s *PostgresStore) SaveBaselines(ctx context.Context, baselines []*EntityBaseline) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin baseline batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, b := range baselines {
		hours, _ := json.Marshal(b.HourCounts)
		areas, _ := json.Marshal(b.KnownAreas)
		devices, _ := json.Marshal(b.KnownDevices)

		_, err := tx.ExecContext(ctx, `
			INSERT INTO entity_baselines
				(entity_id, mean_amount, stddev_amount, hour_counts, sample_count, known_areas, known_devices, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (entity_id) DO UPDATE SET
				mean_amount = EXCLUDED.mean_amount,
				stddev_amount = EXCLUDED.stddev_amount,
				hour_counts = EXCLUDED.hour_counts,
				sample_count = EXCLUDED.sample_count,
				known_areas = EXCLUDED.known_areas,
				known_devices = EXCLUDED.known_devices,
				updated_at = EXCLUDED.updated_at
		`, b.EntityID, b.MeanAmount, b.StddevAmount, hours, b.SampleCount, areas, devices, b.UpdatedAt)
		if err != nil {
			return fmt.Errorf("save baseline %s: %w", b.EntityID, err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) AllBaselines(ctx context.Context) ([]*EntityBaseline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, mean_amount, stddev_amount, hour_counts, sample_count, known_areas, known_devices, updated_at
		FROM entity_baselines
	`)
	if err != nil {
		return nil, fmt.Errorf("list baselines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*EntityBaseline
	for rows.Next() {
		var b EntityBaseline
		var hours, areas, devices []byte
		if err := rows.Scan(&b.EntityID, &b.MeanAmount, &b.StddevAmount, &hours,
			&b.SampleCount, &areas, &devices, &b.UpdatedAt); err != nil {
			continue
		}
		_ = json.Unmarshal(hours, &b.HourCounts)
		_ = json.Unmarshal(areas, &b.KnownAreas)
		_ = json.Unmarshal(devices, &b.KnownDevices)
		result = append(result, &b)
	}
	return result, rows.Err()
}
