package model

import (
	"context"
	"math"
	"sort"
	"time"
)

const (
	defaultMaxIterations = 500
	defaultTolerance     = 1e-7
	maxNewtonStep        = 1.0
	// Competitions need this many matches before they get their own goal factor.
	minCompetitionMatches = 10
	// Pseudo-matches pulling a competition factor toward 1.
	competitionPseudoMatches = 20.0
	// Goal counts above this are treated as corrupt data.
	maxMatchGoals = 50
)

// TrainOptions controls one training run.
type TrainOptions struct {
	MaxIterations int
	Tolerance     float64
	// HalfLife down-weights older matches relative to the newest one; zero disables decay.
	HalfLife time.Duration
	// Version is stamped on the produced snapshot.
	Version uint64
	// Now stamps the training time; time.Now when nil.
	Now func() time.Time
}

// DefaultTrainOptions returns the options used when a field is left zero.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{MaxIterations: defaultMaxIterations, Tolerance: defaultTolerance}
}

func (o TrainOptions) withDefaults() TrainOptions {
	if o.MaxIterations <= 0 {
		o.MaxIterations = defaultMaxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = defaultTolerance
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// ValidateMatches rejects an empty history and any malformed record.
func ValidateMatches(matches []MatchObservation) error {
	if len(matches) == 0 {
		return &TrainingError{Reason: "no historical matches", Index: -1}
	}
	for i, m := range matches {
		home, away := teamKey(m.Home), teamKey(m.Away)
		switch {
		case home == "" || away == "":
			return &TrainingError{Reason: "missing team identifier", Index: i}
		case home == away:
			return &TrainingError{Reason: "team cannot play itself", Index: i}
		case m.HomeGoals < 0 || m.AwayGoals < 0:
			return &TrainingError{Reason: "negative goal count", Index: i}
		case m.HomeGoals > maxMatchGoals || m.AwayGoals > maxMatchGoals:
			return &TrainingError{Reason: "implausible goal count", Index: i}
		}
	}
	return nil
}

// Train fits the hierarchical model by empirical-Bayes MAP estimation: coordinate Newton
// steps on the intercept, home advantage and every team strength, followed by an update of
// the league spreads from the current strengths and their Laplace variances. The run is
// deterministic for a given input order. The returned snapshot is new; nothing passed in is
// modified.
func Train(ctx context.Context, matches []MatchObservation, opts TrainOptions) (*Snapshot, error) {
	if err := ValidateMatches(matches); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	f := newFitter(matches, opts.HalfLife)
	iterations, converged := 0, false
	for iterations < opts.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, &TrainingError{Reason: "cancelled", Index: -1, Err: err}
		}
		delta := f.sweep()
		iterations++
		if !f.finite() {
			return nil, &TrainingError{Reason: "inference diverged", Index: -1}
		}
		if delta < opts.Tolerance {
			converged = true
			break
		}
	}

	lp := f.logPosterior()
	if !finite(lp) {
		return nil, &TrainingError{Reason: "non-finite log posterior", Index: -1}
	}

	return &Snapshot{
		version:      opts.Version,
		trainedAt:    opts.Now().UTC(),
		league:       f.league(),
		registry:     newRegistry(f.teams()),
		competitions: f.competitionFactors(matches),
		diag: Diagnostics{
			Matches:      len(matches),
			Iterations:   iterations,
			Converged:    converged,
			LogPosterior: lp,
			LatestMatch:  latestDate(matches),
		},
	}, nil
}

type observation struct {
	home, away   int
	homeG, awayG int
	weight       float64
}

type fitter struct {
	ids    []string
	obs    []observation
	byHome [][]int
	byAway [][]int

	intercept, homeAdv     float64
	att, def               []float64
	attVar, defVar         []float64
	attSpread2, defSpread2 float64
}

func newFitter(matches []MatchObservation, halfLife time.Duration) *fitter {
	seen := make(map[string]struct{})
	for _, m := range matches {
		seen[teamKey(m.Home)] = struct{}{}
		seen[teamKey(m.Away)] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	n := len(ids)
	f := &fitter{
		ids:        ids,
		obs:        make([]observation, len(matches)),
		byHome:     make([][]int, n),
		byAway:     make([][]int, n),
		att:        make([]float64, n),
		def:        make([]float64, n),
		attVar:     make([]float64, n),
		defVar:     make([]float64, n),
		attSpread2: initialSpread2,
		defSpread2: initialSpread2,
	}

	weights := matchWeights(matches, halfLife)
	var sumW, homeGoals, awayGoals float64
	for k, m := range matches {
		h, a := index[teamKey(m.Home)], index[teamKey(m.Away)]
		f.obs[k] = observation{home: h, away: a, homeG: m.HomeGoals, awayG: m.AwayGoals, weight: weights[k]}
		f.byHome[h] = append(f.byHome[h], k)
		f.byAway[a] = append(f.byAway[a], k)
		sumW += weights[k]
		homeGoals += weights[k] * float64(m.HomeGoals)
		awayGoals += weights[k] * float64(m.AwayGoals)
	}
	// smoothed so a goalless history still has a finite starting point
	avgHome := (homeGoals + 0.5) / (sumW + 1)
	avgAway := (awayGoals + 0.5) / (sumW + 1)
	f.intercept = math.Log(avgAway)
	f.homeAdv = math.Log(avgHome / avgAway)
	return f
}

func latestDate(matches []MatchObservation) time.Time {
	var newest time.Time
	for _, m := range matches {
		if m.Date.After(newest) {
			newest = m.Date
		}
	}
	return newest
}

// matchWeights halves a match's weight every halfLife before the newest match.
// Undated matches keep full weight.
func matchWeights(matches []MatchObservation, halfLife time.Duration) []float64 {
	w := make([]float64, len(matches))
	for i := range w {
		w[i] = 1
	}
	if halfLife <= 0 {
		return w
	}
	newest := latestDate(matches)
	for i, m := range matches {
		if m.Date.IsZero() {
			continue
		}
		age := newest.Sub(m.Date)
		w[i] = math.Exp2(-float64(age) / float64(halfLife))
	}
	return w
}

func (f *fitter) rates(o observation) (float64, float64) {
	home := math.Exp(f.intercept + f.homeAdv + f.att[o.home] - f.def[o.away])
	away := math.Exp(f.intercept + f.att[o.away] - f.def[o.home])
	return home, away
}

func newtonStep(grad, curvature float64) float64 {
	step := grad / curvature
	if step > maxNewtonStep {
		return maxNewtonStep
	}
	if step < -maxNewtonStep {
		return -maxNewtonStep
	}
	return step
}

// sweep runs one pass over every parameter and returns the largest change.
func (f *fitter) sweep() float64 {
	var delta float64
	track := func(d float64) {
		if a := math.Abs(d); a > delta {
			delta = a
		}
	}

	var g, h float64
	for _, o := range f.obs {
		lh, la := f.rates(o)
		g += o.weight * (float64(o.homeG) - lh + float64(o.awayG) - la)
		h += o.weight * (lh + la)
	}
	d := newtonStep(g-f.intercept/fixedEffectVar, h+1/fixedEffectVar)
	f.intercept += d
	track(d)

	g, h = 0, 0
	for _, o := range f.obs {
		lh, _ := f.rates(o)
		g += o.weight * (float64(o.homeG) - lh)
		h += o.weight * lh
	}
	d = newtonStep(g-f.homeAdv/fixedEffectVar, h+1/fixedEffectVar)
	f.homeAdv += d
	track(d)

	for i := range f.ids {
		d = newtonStep(f.attackTerms(i))
		f.att[i] += d
		track(d)
		d = newtonStep(f.defenseTerms(i))
		f.def[i] += d
		track(d)
	}
	track(f.alignRidges())

	for i := range f.ids {
		_, ha := f.attackTerms(i)
		_, hd := f.defenseTerms(i)
		f.attVar[i] = 1 / ha
		f.defVar[i] = 1 / hd
	}
	a2 := spreadUpdate(f.att, f.attVar)
	d2 := spreadUpdate(f.def, f.defVar)
	track(a2 - f.attSpread2)
	track(d2 - f.defSpread2)
	f.attSpread2, f.defSpread2 = a2, d2
	return delta
}

// alignRidges moves along the directions the likelihood cannot see to the prior's optimum:
// every attack shifted against the intercept, every defence shifted with it, and both
// shifted together. Coordinate steps crawl along these ridges on large histories.
func (f *fitter) alignRidges() float64 {
	n := float64(len(f.ids))
	var maxShift float64
	shift := func(vals []float64, c float64) {
		for i := range vals {
			vals[i] += c
		}
		if a := math.Abs(c); a > maxShift {
			maxShift = a
		}
	}

	c := (f.intercept/fixedEffectVar - sum(f.att)/f.attSpread2) / (n/f.attSpread2 + 1/fixedEffectVar)
	shift(f.att, c)
	f.intercept -= c

	c = -(sum(f.def)/f.defSpread2 + f.intercept/fixedEffectVar) / (n/f.defSpread2 + 1/fixedEffectVar)
	shift(f.def, c)
	f.intercept += c

	c = -(sum(f.att)/f.attSpread2 + sum(f.def)/f.defSpread2) / (n/f.attSpread2 + n/f.defSpread2)
	shift(f.att, c)
	shift(f.def, c)
	return maxShift
}

func sum(vs []float64) float64 {
	var s float64
	for _, v := range vs {
		s += v
	}
	return s
}

// attackTerms returns the log-posterior gradient and negative curvature for attack[i].
func (f *fitter) attackTerms(i int) (grad, curvature float64) {
	for _, k := range f.byHome[i] {
		o := f.obs[k]
		lh, _ := f.rates(o)
		grad += o.weight * (float64(o.homeG) - lh)
		curvature += o.weight * lh
	}
	for _, k := range f.byAway[i] {
		o := f.obs[k]
		_, la := f.rates(o)
		grad += o.weight * (float64(o.awayG) - la)
		curvature += o.weight * la
	}
	return grad - f.att[i]/f.attSpread2, curvature + 1/f.attSpread2
}

// defenseTerms is attackTerms for defense[i]; defence lowers the opponent's rate.
func (f *fitter) defenseTerms(i int) (grad, curvature float64) {
	for _, k := range f.byHome[i] {
		o := f.obs[k]
		_, la := f.rates(o)
		grad += o.weight * (la - float64(o.awayG))
		curvature += o.weight * la
	}
	for _, k := range f.byAway[i] {
		o := f.obs[k]
		lh, _ := f.rates(o)
		grad += o.weight * (lh - float64(o.homeG))
		curvature += o.weight * lh
	}
	return grad - f.def[i]/f.defSpread2, curvature + 1/f.defSpread2
}

func (f *fitter) finite() bool {
	if !finite(f.intercept, f.homeAdv, f.attSpread2, f.defSpread2) {
		return false
	}
	return finite(f.att...) && finite(f.def...)
}

func (f *fitter) logPosterior() float64 {
	var lp float64
	for _, o := range f.obs {
		lh, la := f.rates(o)
		lp += o.weight * (poissonLogProb(lh, o.homeG) + poissonLogProb(la, o.awayG))
	}
	for i := range f.ids {
		lp += normalLogPrior(f.att[i], f.attSpread2) + normalLogPrior(f.def[i], f.defSpread2)
	}
	lp += normalLogPrior(f.intercept, fixedEffectVar) + normalLogPrior(f.homeAdv, fixedEffectVar)
	lp += inverseGammaLogPrior(f.attSpread2) + inverseGammaLogPrior(f.defSpread2)
	return lp
}

func (f *fitter) league() LeagueParams {
	return LeagueParams{
		Intercept:     f.intercept,
		HomeAdvantage: f.homeAdv,
		AttackSpread:  math.Sqrt(f.attSpread2),
		DefenseSpread: math.Sqrt(f.defSpread2),
		AvgHomeGoals:  math.Exp(f.intercept + f.homeAdv),
		AvgAwayGoals:  math.Exp(f.intercept),
	}
}

func (f *fitter) teams() []Team {
	teams := make([]Team, len(f.ids))
	for i, id := range f.ids {
		teams[i] = Team{
			ID:         id,
			Attack:     f.att[i],
			Defense:    f.def[i],
			AttackVar:  f.attVar[i],
			DefenseVar: f.defVar[i],
		}
	}
	for _, o := range f.obs {
		teams[o.home].Matches++
		teams[o.home].GoalsFor += o.homeG
		teams[o.home].GoalsAgainst += o.awayG
		teams[o.away].Matches++
		teams[o.away].GoalsFor += o.awayG
		teams[o.away].GoalsAgainst += o.homeG
	}
	return teams
}

// competitionFactors compares observed goals in each competition with what the fitted
// model expects there, shrunk toward 1.
func (f *fitter) competitionFactors(matches []MatchObservation) map[string]CompetitionFactor {
	type tally struct {
		n                  int
		observed, expected float64
	}
	tallies := make(map[string]*tally)
	for k, m := range matches {
		if m.Competition == "" {
			continue
		}
		t, ok := tallies[m.Competition]
		if !ok {
			t = &tally{}
			tallies[m.Competition] = t
		}
		lh, la := f.rates(f.obs[k])
		t.n++
		t.observed += float64(m.HomeGoals + m.AwayGoals)
		t.expected += lh + la
	}

	out := make(map[string]CompetitionFactor)
	for name, t := range tallies {
		if t.n < minCompetitionMatches {
			continue
		}
		prior := competitionPseudoMatches * t.expected / float64(t.n)
		out[name] = CompetitionFactor{
			Name:       name,
			Matches:    t.n,
			GoalFactor: (t.observed + prior) / (t.expected + prior),
		}
	}
	return out
}
