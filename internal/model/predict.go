package model

import (
	"errors"
	"fmt"
	"math"
)

const over25Line = 2.5

// Predict forecasts one fixture from a snapshot. Teams missing from the snapshot are
// predicted at league-average strength and flagged; the call still succeeds.
// The result depends only on the snapshot and the fixture.
func Predict(s *Snapshot, f Fixture) (Prediction, error) {
	if s == nil {
		return Prediction{}, ErrNoSnapshot
	}
	if reason := f.problem(); reason != "" {
		return Prediction{}, &FixtureError{Index: -1, Reason: reason}
	}

	lh, la, homeKnown, awayKnown := s.Rates(f)
	grid := NewScoreGrid(lh, la)

	home, draw, away := grid.MatchOdds()
	total := home + draw + away
	home, draw, away = home/total, draw/total, away/total

	over, _ := grid.OverUnder(over25Line)
	hg, ag, _ := grid.MostLikelyScore()

	p := Prediction{
		FixtureID:         f.ID,
		Home:              teamKey(f.Home),
		Away:              teamKey(f.Away),
		Competition:       f.Competition,
		HomeWin:           home,
		Draw:              draw,
		AwayWin:           away,
		ExpectedHomeGoals: lh,
		ExpectedAwayGoals: la,
		Over25:            over,
		BothTeamsScore:    grid.BothTeamsToScore(),
		MostLikelyScore:   fmt.Sprintf("%d-%d", hg, ag),
		Confidence:        math.Max(home, math.Max(draw, away)),
		Outcome:           outcome(home, draw, away),
		HomeFallback:      !homeKnown,
		AwayFallback:      !awayKnown,
		SnapshotVersion:   s.Version(),
	}
	return p, nil
}

func outcome(home, draw, away float64) string {
	switch {
	case home > draw && home > away:
		return OutcomeHome
	case draw > away:
		return OutcomeDraw
	default:
		return OutcomeAway
	}
}

// PredictBatch predicts every fixture against the one snapshot it is given. The result has
// one slot per fixture in input order; malformed fixtures get a *FixtureError in their slot
// and do not affect the others.
func PredictBatch(s *Snapshot, fixtures []Fixture) ([]BatchItem, error) {
	if s == nil {
		return nil, ErrNoSnapshot
	}
	items := make([]BatchItem, len(fixtures))
	for i, f := range fixtures {
		p, err := Predict(s, f)
		if err != nil {
			var fe *FixtureError
			if errors.As(err, &fe) {
				err = &FixtureError{Index: i, Reason: fe.Reason}
			}
			items[i] = BatchItem{Err: err}
			continue
		}
		items[i] = BatchItem{Prediction: &p}
	}

	for _, it := range items {
		if it.Prediction != nil && it.Prediction.SnapshotVersion != s.Version() {
			return nil, ErrStaleSnapshot
		}
	}
	return items, nil
}
