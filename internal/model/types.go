package model

import (
	"strings"
	"time"
)

// MatchObservation is one finished match used for training. Immutable input.
type MatchObservation struct {
	Home        string    `json:"home_team"`
	Away        string    `json:"away_team"`
	HomeGoals   int       `json:"home_goals"`
	AwayGoals   int       `json:"away_goals"`
	Date        time.Time `json:"date"`
	Competition string    `json:"competition,omitempty"`
}

// Fixture is an upcoming match. ID is the upstream key and may be empty.
type Fixture struct {
	ID          string    `json:"id,omitempty"`
	Home        string    `json:"home_team"`
	Away        string    `json:"away_team"`
	Competition string    `json:"competition,omitempty"`
	Kickoff     time.Time `json:"kickoff,omitempty"`
}

// Team is a club's fitted strength. Attack and Defense are on the log-rate scale,
// zero is league average; a higher Defense concedes fewer goals.
type Team struct {
	ID           string  `json:"id"`
	Attack       float64 `json:"attack"`
	Defense      float64 `json:"defense"`
	AttackVar    float64 `json:"attack_var"`
	DefenseVar   float64 `json:"defense_var"`
	Matches      int     `json:"matches"`
	GoalsFor     int     `json:"goals_for"`
	GoalsAgainst int     `json:"goals_against"`
}

// LeagueParams are the league-level hyper-parameters of one training run.
type LeagueParams struct {
	Intercept     float64 `json:"intercept"`
	HomeAdvantage float64 `json:"home_advantage"`
	AttackSpread  float64 `json:"attack_spread"`
	DefenseSpread float64 `json:"defense_spread"`
	AvgHomeGoals  float64 `json:"avg_home_goals"`
	AvgAwayGoals  float64 `json:"avg_away_goals"`
}

// CompetitionFactor scales both expected-goal rates for fixtures in a competition.
type CompetitionFactor struct {
	Name       string  `json:"name"`
	Matches    int     `json:"matches"`
	GoalFactor float64 `json:"goal_factor"`
}

// Diagnostics describes how the fit went. LatestMatch is the newest dated training match,
// zero if none was dated.
type Diagnostics struct {
	Matches      int       `json:"matches"`
	Iterations   int       `json:"iterations"`
	Converged    bool      `json:"converged"`
	LogPosterior float64   `json:"log_posterior"`
	LatestMatch  time.Time `json:"latest_match"`
}

// Outcome labels for Prediction.Outcome.
const (
	OutcomeHome = "HOME"
	OutcomeDraw = "DRAW"
	OutcomeAway = "AWAY"
)

// Prediction is the forecast for one fixture.
type Prediction struct {
	FixtureID         string  `json:"fixture_id,omitempty"`
	Home              string  `json:"home_team"`
	Away              string  `json:"away_team"`
	Competition       string  `json:"competition,omitempty"`
	HomeWin           float64 `json:"home_win"`
	Draw              float64 `json:"draw"`
	AwayWin           float64 `json:"away_win"`
	ExpectedHomeGoals float64 `json:"expected_home_goals"`
	ExpectedAwayGoals float64 `json:"expected_away_goals"`
	Over25            float64 `json:"over_2_5"`
	BothTeamsScore    float64 `json:"both_teams_score"`
	MostLikelyScore   string  `json:"most_likely_score"`
	Confidence        float64 `json:"confidence"`
	Outcome           string  `json:"outcome"`
	HomeFallback      bool    `json:"home_fallback"`
	AwayFallback      bool    `json:"away_fallback"`
	SnapshotVersion   uint64  `json:"snapshot_version"`
}

// Cold reports whether either side was served from the league-average prior.
func (p Prediction) Cold() bool {
	return p.HomeFallback || p.AwayFallback
}

// BatchItem is one slot of a batch result: exactly one of Prediction or Err is set.
type BatchItem struct {
	Prediction *Prediction
	Err        error
}

// teamKey is the canonical form of a team id: surrounding whitespace is not significant.
func teamKey(id string) string {
	return strings.TrimSpace(id)
}

func (f Fixture) problem() string {
	home, away := teamKey(f.Home), teamKey(f.Away)
	switch {
	case home == "":
		return "missing home team"
	case away == "":
		return "missing away team"
	case home == away:
		return "home and away are the same team"
	}
	return ""
}
