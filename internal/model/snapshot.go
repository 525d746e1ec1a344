package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// Registry is the set of teams seen in training. It is never modified after a snapshot is built.
type Registry struct {
	teams map[string]Team
}

func newRegistry(teams []Team) Registry {
	m := make(map[string]Team, len(teams))
	for _, t := range teams {
		m[t.ID] = t
	}
	return Registry{teams: m}
}

// Lookup returns the team with the given id, ignoring surrounding whitespace.
func (r Registry) Lookup(id string) (Team, bool) {
	t, ok := r.teams[teamKey(id)]
	return t, ok
}

// Len returns the number of teams.
func (r Registry) Len() int { return len(r.teams) }

// Teams returns all teams sorted by id.
func (r Registry) Teams() []Team {
	out := make([]Team, 0, len(r.teams))
	for _, t := range r.teams {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot is an immutable bundle of everything needed to predict, as of one training run.
type Snapshot struct {
	version      uint64
	trainedAt    time.Time
	league       LeagueParams
	registry     Registry
	competitions map[string]CompetitionFactor
	diag         Diagnostics
}

func (s *Snapshot) Version() uint64          { return s.version }
func (s *Snapshot) TrainedAt() time.Time     { return s.trainedAt }
func (s *Snapshot) League() LeagueParams     { return s.league }
func (s *Snapshot) Registry() Registry       { return s.registry }
func (s *Snapshot) Diagnostics() Diagnostics { return s.diag }

// Competition returns the goal factor fitted for a competition.
func (s *Snapshot) Competition(name string) (CompetitionFactor, bool) {
	c, ok := s.competitions[name]
	return c, ok
}

// Competitions returns the fitted competition factors sorted by name.
func (s *Snapshot) Competitions() []CompetitionFactor {
	out := make([]CompetitionFactor, 0, len(s.competitions))
	for _, c := range s.competitions {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Rates returns the expected goals for both sides of a fixture. A team missing from the
// registry gets league-average strength and its known flag is false.
func (s *Snapshot) Rates(f Fixture) (home, away float64, homeKnown, awayKnown bool) {
	h, homeKnown := s.registry.Lookup(f.Home)
	a, awayKnown := s.registry.Lookup(f.Away)
	home, away = s.league.rates(h.Attack, h.Defense, a.Attack, a.Defense)
	if c, ok := s.competitions[f.Competition]; ok && f.Competition != "" {
		home *= c.GoalFactor
		away *= c.GoalFactor
	}
	return home, away, homeKnown, awayKnown
}

// TeamRank is one row of a model info leaderboard.
type TeamRank struct {
	Team        string  `json:"team"`
	Value       float64 `json:"value"`
	Uncertainty float64 `json:"uncertainty"`
	Matches     int     `json:"matches"`
}

// Info summarises a snapshot for operators.
type Info struct {
	Version      uint64              `json:"version"`
	TrainedAt    time.Time           `json:"trained_at"`
	TeamCount    int                 `json:"team_count"`
	League       LeagueParams        `json:"league"`
	Diagnostics  Diagnostics         `json:"diagnostics"`
	TopAttack    []TeamRank          `json:"top_attack"`
	TopDefense   []TeamRank          `json:"top_defense"`
	Competitions []CompetitionFactor `json:"competitions"`
}

const topTeams = 5

// Info builds the model summary, including the five strongest attacks and defences.
func (s *Snapshot) Info() Info {
	teams := s.registry.Teams()
	attack := make([]TeamRank, len(teams))
	defense := make([]TeamRank, len(teams))
	for i, t := range teams {
		attack[i] = TeamRank{Team: t.ID, Value: t.Attack, Uncertainty: math.Sqrt(t.AttackVar), Matches: t.Matches}
		defense[i] = TeamRank{Team: t.ID, Value: t.Defense, Uncertainty: math.Sqrt(t.DefenseVar), Matches: t.Matches}
	}
	sort.SliceStable(attack, func(i, j int) bool { return attack[i].Value > attack[j].Value })
	sort.SliceStable(defense, func(i, j int) bool { return defense[i].Value > defense[j].Value })
	if len(attack) > topTeams {
		attack = attack[:topTeams]
		defense = defense[:topTeams]
	}
	return Info{
		Version:      s.version,
		TrainedAt:    s.trainedAt,
		TeamCount:    s.registry.Len(),
		League:       s.league,
		Diagnostics:  s.diag,
		TopAttack:    attack,
		TopDefense:   defense,
		Competitions: s.Competitions(),
	}
}

type snapshotJSON struct {
	Version      uint64              `json:"version"`
	TrainedAt    time.Time           `json:"trained_at"`
	League       LeagueParams        `json:"league"`
	Teams        []Team              `json:"teams"`
	Competitions []CompetitionFactor `json:"competitions,omitempty"`
	Diagnostics  Diagnostics         `json:"diagnostics"`
}

// MarshalJSON encodes the snapshot for caching.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Version:      s.version,
		TrainedAt:    s.trainedAt,
		League:       s.league,
		Teams:        s.registry.Teams(),
		Competitions: s.Competitions(),
		Diagnostics:  s.diag,
	})
}

// DecodeSnapshot rebuilds a snapshot produced by MarshalJSON. Non-finite parameters are rejected.
func DecodeSnapshot(b []byte) (*Snapshot, error) {
	var raw snapshotJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if len(raw.Teams) == 0 {
		return nil, fmt.Errorf("decode snapshot: no teams")
	}
	l := raw.League
	if !finite(l.Intercept, l.HomeAdvantage, l.AttackSpread, l.DefenseSpread) {
		return nil, fmt.Errorf("decode snapshot: non-finite league parameters")
	}
	for _, t := range raw.Teams {
		if t.ID == "" || !finite(t.Attack, t.Defense, t.AttackVar, t.DefenseVar) {
			return nil, fmt.Errorf("decode snapshot: invalid team %q", t.ID)
		}
	}
	comps := make(map[string]CompetitionFactor, len(raw.Competitions))
	for _, c := range raw.Competitions {
		if !finite(c.GoalFactor) || c.GoalFactor <= 0 {
			return nil, fmt.Errorf("decode snapshot: invalid competition %q", c.Name)
		}
		comps[c.Name] = c
	}
	return &Snapshot{
		version:      raw.Version,
		trainedAt:    raw.TrainedAt,
		league:       l,
		registry:     newRegistry(raw.Teams),
		competitions: comps,
		diag:         raw.Diagnostics,
	}, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
