package model

import "math"

const (
	minGridGoals = 10
	maxGridGoals = 150
)

// ScoreGrid is the joint distribution of (home goals, away goals), truncated and
// renormalised so that it sums to one.
type ScoreGrid struct {
	MaxGoals int
	P        [][]float64 // [home][away]
}

// NewScoreGrid builds the grid for independent Poisson goals. The bound grows with the
// larger rate so that the truncated tail stays negligible before renormalising; it is
// capped at maxGridGoals.
func NewScoreGrid(lambdaHome, lambdaAway float64) *ScoreGrid {
	n := gridBound(math.Max(lambdaHome, lambdaAway))

	home := make([]float64, n+1)
	away := make([]float64, n+1)
	for k := 0; k <= n; k++ {
		home[k] = poissonProb(lambdaHome, k)
		away[k] = poissonProb(lambdaAway, k)
	}

	p := make([][]float64, n+1)
	var total float64
	for i := range p {
		p[i] = make([]float64, n+1)
		for j := range p[i] {
			p[i][j] = home[i] * away[j]
			total += p[i][j]
		}
	}
	if total > 0 {
		for i := range p {
			for j := range p[i] {
				p[i][j] /= total
			}
		}
	}
	return &ScoreGrid{MaxGoals: n, P: p}
}

func gridBound(top float64) int {
	if math.IsNaN(top) || top > maxGridGoals {
		return maxGridGoals
	}
	n := int(math.Ceil(top + 10*math.Sqrt(top) + 10))
	if n < minGridGoals {
		return minGridGoals
	}
	if n > maxGridGoals {
		return maxGridGoals
	}
	return n
}

// MatchOdds aggregates the grid into home win, draw and away win.
func (g *ScoreGrid) MatchOdds() (home, draw, away float64) {
	for i, row := range g.P {
		for j, p := range row {
			switch {
			case i > j:
				home += p
			case i == j:
				draw += p
			default:
				away += p
			}
		}
	}
	return home, draw, away
}

// OverUnder returns the probability of total goals above and below line (e.g. 2.5).
func (g *ScoreGrid) OverUnder(line float64) (over, under float64) {
	for i, row := range g.P {
		for j, p := range row {
			if float64(i+j) > line {
				over += p
			} else {
				under += p
			}
		}
	}
	return over, under
}

// BothTeamsToScore returns the probability that both sides score at least once.
func (g *ScoreGrid) BothTeamsToScore() float64 {
	var both float64
	for i := 1; i < len(g.P); i++ {
		for j := 1; j < len(g.P[i]); j++ {
			both += g.P[i][j]
		}
	}
	return both
}

// MostLikelyScore returns the modal scoreline.
func (g *ScoreGrid) MostLikelyScore() (home, away int, p float64) {
	for i, row := range g.P {
		for j, q := range row {
			if q > p {
				home, away, p = i, j, q
			}
		}
	}
	return home, away, p
}

// CorrectScore returns the probability of one scoreline, zero outside the grid.
func (g *ScoreGrid) CorrectScore(home, away int) float64 {
	if home < 0 || away < 0 || home > g.MaxGoals || away > g.MaxGoals {
		return 0
	}
	return g.P[home][away]
}

// Total returns the grid mass; one up to rounding.
func (g *ScoreGrid) Total() float64 {
	var total float64
	for _, row := range g.P {
		for _, p := range row {
			total += p
		}
	}
	return total
}
