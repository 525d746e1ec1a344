package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"footpredict/internal/model"

	"github.com/redis/go-redis/v9"
)

const (
	MatchesKey  = "footpredict:matches"
	FixturesKey = "footpredict:fixtures"
	SnapshotKey = "footpredict:snapshot"
	SnapshotTTL = 30 * 24 * time.Hour
)

// MatchRecord is a finished match as written by the upstream collector. Goals are pointers
// so that a missing score can be told apart from a goalless one.
type MatchRecord struct {
	HomeTeam    string `json:"home_team"`
	AwayTeam    string `json:"away_team"`
	HomeGoals   *int   `json:"home_goals"`
	AwayGoals   *int   `json:"away_goals"`
	Date        string `json:"date"`
	Competition string `json:"competition"`
}

// FixtureRecord is an upcoming match as written by the upstream collector.
type FixtureRecord struct {
	ID          string `json:"id"`
	HomeTeam    string `json:"home_team"`
	AwayTeam    string `json:"away_team"`
	Competition string `json:"competition"`
	Kickoff     string `json:"kickoff"`
}

// Reader reads match history and upcoming fixtures from Redis.
type Reader struct {
	client *redis.Client
}

// NewReader returns a Reader.
func NewReader(client *redis.Client) *Reader {
	return &Reader{client: client}
}

// ReadMatches returns the match history, or nil if the key is missing.
func (r *Reader) ReadMatches(ctx context.Context) ([]model.MatchObservation, error) {
	b, err := r.client.Get(ctx, MatchesKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var raw []MatchRecord
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal matches: %w", err)
	}
	return ConvertMatches(raw)
}

// ReadFixtures returns the upcoming fixtures, or nil if the key is missing.
func (r *Reader) ReadFixtures(ctx context.Context) ([]model.Fixture, error) {
	b, err := r.client.Get(ctx, FixturesKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var raw []FixtureRecord
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal fixtures: %w", err)
	}
	return ConvertFixtures(raw), nil
}

// ConvertMatches turns raw records into observations. History is strict: a record with a
// missing team, a missing score or an unparseable date fails the whole load.
func ConvertMatches(raw []MatchRecord) ([]model.MatchObservation, error) {
	out := make([]model.MatchObservation, 0, len(raw))
	for i, m := range raw {
		if m.HomeTeam == "" || m.AwayTeam == "" {
			return nil, &model.TrainingError{Reason: "missing team", Index: i}
		}
		if m.HomeGoals == nil || m.AwayGoals == nil {
			return nil, &model.TrainingError{Reason: "missing score", Index: i}
		}
		var date time.Time
		if m.Date != "" {
			d, err := parseDate(m.Date)
			if err != nil {
				return nil, &model.TrainingError{Reason: "bad date", Index: i, Err: err}
			}
			date = d
		}
		out = append(out, model.MatchObservation{
			Home:        m.HomeTeam,
			Away:        m.AwayTeam,
			HomeGoals:   *m.HomeGoals,
			AwayGoals:   *m.AwayGoals,
			Date:        date,
			Competition: m.Competition,
		})
	}
	return out, nil
}

// ConvertFixtures turns raw records into fixtures. Fixtures are lenient: missing fields are
// passed through empty so the batch predictor reports them per slot.
func ConvertFixtures(raw []FixtureRecord) []model.Fixture {
	out := make([]model.Fixture, len(raw))
	for i, f := range raw {
		kickoff, _ := parseDate(f.Kickoff)
		out[i] = model.Fixture{
			ID:          f.ID,
			Home:        f.HomeTeam,
			Away:        f.AwayTeam,
			Competition: f.Competition,
			Kickoff:     kickoff,
		}
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// SnapshotCache stores the latest published snapshot so a restart can serve before retraining.
type SnapshotCache struct {
	client *redis.Client
}

// NewSnapshotCache returns a SnapshotCache.
func NewSnapshotCache(client *redis.Client) *SnapshotCache {
	return &SnapshotCache{client: client}
}

// Save writes the snapshot.
func (c *SnapshotCache) Save(ctx context.Context, s *model.Snapshot) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return c.client.Set(ctx, SnapshotKey, body, SnapshotTTL).Err()
}

// Load returns the cached snapshot or nil if none is stored.
func (c *SnapshotCache) Load(ctx context.Context) (*model.Snapshot, error) {
	b, err := c.client.Get(ctx, SnapshotKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.DecodeSnapshot(b)
}
