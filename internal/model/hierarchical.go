package model

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Model:
//
//	log λ_home = intercept + home advantage + attack[home] − defense[away]
//	log λ_away = intercept                  + attack[away] − defense[home]
//	attack[i] ~ N(0, σ_att²), defense[i] ~ N(0, σ_def²)
//	σ² ~ InverseGamma(spreadShape, spreadScale)
//	goals ~ Poisson(λ)
//
// The shared normal prior is what pools sparse teams toward the league average.
const (
	spreadShape = 2.0
	spreadScale = 0.04
	// prior variance of intercept and home advantage
	fixedEffectVar = 100.0
	initialSpread2 = 0.1
)

func (l LeagueParams) rates(homeAtt, homeDef, awayAtt, awayDef float64) (float64, float64) {
	home := math.Exp(l.Intercept + l.HomeAdvantage + homeAtt - awayDef)
	away := math.Exp(l.Intercept + awayAtt - homeDef)
	return home, away
}

// poissonLogProb is log P(X = k) for X ~ Poisson(lambda).
func poissonLogProb(lambda float64, k int) float64 {
	return distuv.Poisson{Lambda: lambda}.LogProb(float64(k))
}

func poissonProb(lambda float64, k int) float64 {
	return distuv.Poisson{Lambda: lambda}.Prob(float64(k))
}

// normalLogPrior is the log density of x under N(0, v) without the constant.
func normalLogPrior(x, v float64) float64 {
	return -0.5*x*x/v - 0.5*math.Log(v)
}

// inverseGammaLogPrior is the log density of v under InverseGamma(spreadShape, spreadScale) without the constant.
func inverseGammaLogPrior(v float64) float64 {
	return -(spreadShape+1)*math.Log(v) - spreadScale/v
}

// spreadUpdate is the MAP update of a prior variance given the current strengths
// and their Laplace variances.
func spreadUpdate(values, variances []float64) float64 {
	var ss float64
	for i, v := range values {
		ss += v*v + variances[i]
	}
	return (spreadScale + 0.5*ss) / (spreadShape + float64(len(values))/2 + 1)
}
