// Package history reads finished matches from Postgres and keeps the latest prediction per fixture.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"footpredict/internal/model"

	_ "github.com/lib/pq"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS matches (
		id BIGSERIAL PRIMARY KEY,
		home_team VARCHAR(100) NOT NULL,
		away_team VARCHAR(100) NOT NULL,
		home_goals INTEGER,
		away_goals INTEGER,
		competition VARCHAR(100),
		played_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_played_at ON matches(played_at)`,
	`CREATE TABLE IF NOT EXISTS predictions (
		fixture_id VARCHAR(100) PRIMARY KEY,
		snapshot_version BIGINT NOT NULL,
		payload JSONB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

// Store wraps a Postgres connection.
type Store struct {
	DB *sql.DB
}

// Connect opens and pings the database.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	return &Store{DB: db}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.DB.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

type matchRow struct {
	home, away  string
	homeGoals   sql.NullInt64
	awayGoals   sql.NullInt64
	competition sql.NullString
	playedAt    sql.NullTime
}

// LoadMatches returns finished matches played at or after since, oldest first.
// A zero since loads everything. Rows without a score are rejected.
func (s *Store) LoadMatches(ctx context.Context, since time.Time) ([]model.MatchObservation, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT home_team, away_team, home_goals, away_goals, competition, played_at
		FROM matches
		WHERE played_at IS NULL OR played_at >= $1
		ORDER BY played_at NULLS FIRST, id`, since)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var out []model.MatchObservation
	for rows.Next() {
		var r matchRow
		if err := rows.Scan(&r.home, &r.away, &r.homeGoals, &r.awayGoals, &r.competition, &r.playedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m, err := r.observation(len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r matchRow) observation(i int) (model.MatchObservation, error) {
	if !r.homeGoals.Valid || !r.awayGoals.Valid {
		return model.MatchObservation{}, &model.TrainingError{Reason: "missing score", Index: i}
	}
	m := model.MatchObservation{
		Home:      r.home,
		Away:      r.away,
		HomeGoals: int(r.homeGoals.Int64),
		AwayGoals: int(r.awayGoals.Int64),
	}
	if r.competition.Valid {
		m.Competition = r.competition.String
	}
	if r.playedAt.Valid {
		m.Date = r.playedAt.Time.UTC()
	}
	return m, nil
}

// SavePrediction upserts the latest prediction for a fixture.
func (s *Store) SavePrediction(ctx context.Context, p model.Prediction, at time.Time) error {
	if p.FixtureID == "" {
		return fmt.Errorf("save prediction: empty fixture id")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO predictions (fixture_id, snapshot_version, payload, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (fixture_id) DO UPDATE
		SET snapshot_version = EXCLUDED.snapshot_version,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		p.FixtureID, int64(p.SnapshotVersion), string(body), at.UTC())
	if err != nil {
		return fmt.Errorf("upsert prediction: %w", err)
	}
	return nil
}
