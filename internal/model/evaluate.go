package model

import (
	"math"
	"time"
)

// Evaluation scores a snapshot's 1X2 forecasts against finished matches.
type Evaluation struct {
	Matches  int     `json:"matches"`
	Hits     int     `json:"hits"`
	Accuracy float64 `json:"accuracy"`
	// Brier is the mean multi-class Brier score over home/draw/away; lower is better.
	Brier float64 `json:"brier"`
	// LogLoss is the mean negative log probability of the actual outcome.
	LogLoss float64 `json:"log_loss"`
}

const minOutcomeProb = 1e-12

// Evaluate predicts every match with the snapshot and compares against the result.
// Malformed matches are skipped.
func Evaluate(s *Snapshot, matches []MatchObservation) (Evaluation, error) {
	if s == nil {
		return Evaluation{}, ErrNoSnapshot
	}
	var ev Evaluation
	for _, m := range matches {
		if m.HomeGoals < 0 || m.AwayGoals < 0 {
			continue
		}
		p, err := Predict(s, Fixture{Home: m.Home, Away: m.Away, Competition: m.Competition})
		if err != nil {
			continue
		}
		actual := resultOf(m)
		probs := [3]float64{p.HomeWin, p.Draw, p.AwayWin}
		want := [3]float64{}
		switch actual {
		case OutcomeHome:
			want[0] = 1
		case OutcomeDraw:
			want[1] = 1
		default:
			want[2] = 1
		}
		for k := range probs {
			d := probs[k] - want[k]
			ev.Brier += d * d
			if want[k] == 1 {
				ev.LogLoss -= math.Log(math.Max(probs[k], minOutcomeProb))
			}
		}
		if p.Outcome == actual {
			ev.Hits++
		}
		ev.Matches++
	}
	if ev.Matches > 0 {
		n := float64(ev.Matches)
		ev.Accuracy = float64(ev.Hits) / n
		ev.Brier /= n
		ev.LogLoss /= n
	}
	return ev, nil
}

func resultOf(m MatchObservation) string {
	switch {
	case m.HomeGoals > m.AwayGoals:
		return OutcomeHome
	case m.HomeGoals == m.AwayGoals:
		return OutcomeDraw
	default:
		return OutcomeAway
	}
}

// PlayedAfter returns the dated matches strictly after t, in input order.
func PlayedAfter(matches []MatchObservation, t time.Time) []MatchObservation {
	var out []MatchObservation
	for _, m := range matches {
		if !m.Date.IsZero() && m.Date.After(t) {
			out = append(out, m)
		}
	}
	return out
}
