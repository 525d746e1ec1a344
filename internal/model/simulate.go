package model

import (
	"errors"
	"math"
	"math/rand"
)

// SimulationTolerance bounds the gap between Simulate with at least MinSimulationPaths
// paths and the closed-form probabilities from Predict.
const (
	SimulationTolerance = 0.01
	MinSimulationPaths  = 100000
)

// SimulationResult holds Monte Carlo outcome frequencies for one fixture.
type SimulationResult struct {
	Paths         int
	HomeWin       float64
	Draw          float64
	AwayWin       float64
	MeanHomeGoals float64
	MeanAwayGoals float64
}

// Simulate samples scorelines for a fixture. All randomness comes from rng, so a seeded
// generator makes the result reproducible.
func Simulate(s *Snapshot, f Fixture, paths int, rng *rand.Rand) (SimulationResult, error) {
	if s == nil {
		return SimulationResult{}, ErrNoSnapshot
	}
	if reason := f.problem(); reason != "" {
		return SimulationResult{}, &FixtureError{Index: -1, Reason: reason}
	}
	if paths <= 0 {
		return SimulationResult{}, errors.New("simulate: paths must be positive")
	}
	if rng == nil {
		return SimulationResult{}, errors.New("simulate: nil random source")
	}

	lh, la, _, _ := s.Rates(f)
	var home, draw, away, goalsH, goalsA int
	for i := 0; i < paths; i++ {
		hg := samplePoisson(rng, lh)
		ag := samplePoisson(rng, la)
		goalsH += hg
		goalsA += ag
		switch {
		case hg > ag:
			home++
		case hg == ag:
			draw++
		default:
			away++
		}
	}
	n := float64(paths)
	return SimulationResult{
		Paths:         paths,
		HomeWin:       float64(home) / n,
		Draw:          float64(draw) / n,
		AwayWin:       float64(away) / n,
		MeanHomeGoals: float64(goalsH) / n,
		MeanAwayGoals: float64(goalsA) / n,
	}, nil
}

// CheckSimulation simulates a fixture with MinSimulationPaths seeded paths and returns the
// largest gap between the simulated and closed-form 1X2 probabilities. A gap above
// SimulationTolerance means the score grid and the sampler disagree.
func CheckSimulation(s *Snapshot, f Fixture, seed int64) (float64, error) {
	p, err := Predict(s, f)
	if err != nil {
		return 0, err
	}
	res, err := Simulate(s, f, MinSimulationPaths, rand.New(rand.NewSource(seed)))
	if err != nil {
		return 0, err
	}
	gap := math.Abs(res.HomeWin - p.HomeWin)
	gap = math.Max(gap, math.Abs(res.Draw-p.Draw))
	gap = math.Max(gap, math.Abs(res.AwayWin-p.AwayWin))
	return gap, nil
}

// samplePoisson draws from Poisson(lambda) by multiplying uniforms; a normal
// approximation takes over for large rates.
func samplePoisson(rng *rand.Rand, lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	if lambda >= 30 {
		return int(math.Max(0, math.Round(rng.NormFloat64()*math.Sqrt(lambda)+lambda)))
	}
	limit := math.Exp(-lambda)
	p := 1.0
	k := 0
	for p > limit {
		k++
		p *= rng.Float64()
	}
	return k - 1
}
