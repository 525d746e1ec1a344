package model

import (
	"errors"
	"math"
	"testing"
)

func trainedLeague(t *testing.T) *Snapshot {
	t.Helper()
	matches, _ := syntheticLeague(2, 21)
	return mustTrain(t, matches)
}

func TestPredict_ProbabilitiesSumToOne(t *testing.T) {
	snap := trainedLeague(t)
	ids := []string{"team-00", "team-07", "team-19", "UnknownTeamX"}
	for _, h := range ids {
		for _, a := range ids {
			if h == a {
				continue
			}
			p, err := Predict(snap, Fixture{Home: h, Away: a})
			if err != nil {
				t.Fatalf("Predict(%s, %s): %v", h, a, err)
			}
			sum := p.HomeWin + p.Draw + p.AwayWin
			if math.Abs(sum-1) > 1e-6 {
				t.Errorf("Predict(%s, %s) sum = %v; want 1", h, a, sum)
			}
			for _, v := range []float64{p.HomeWin, p.Draw, p.AwayWin, p.Over25, p.BothTeamsScore} {
				if v < 0 || v > 1 {
					t.Errorf("Predict(%s, %s) probability out of range: %+v", h, a, p)
				}
			}
		}
	}
}

func TestPredict_UnknownTeamFallsBack(t *testing.T) {
	snap := trainedLeague(t)
	p, err := Predict(snap, Fixture{Home: "UnknownTeamX", Away: "team-03"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if !p.HomeFallback || p.AwayFallback {
		t.Errorf("fallback flags = (%v, %v); want (true, false)", p.HomeFallback, p.AwayFallback)
	}
	if !p.Cold() {
		t.Error("Cold() = false; want true")
	}

	known, _ := Predict(snap, Fixture{Home: "team-00", Away: "team-03"})
	if known.Cold() {
		t.Error("known fixture reported as cold")
	}

	// Unknown home side plays at league-average strength.
	opp, _ := snap.Registry().Lookup("team-03")
	l := snap.League()
	want := math.Exp(l.Intercept + l.HomeAdvantage - opp.Defense)
	if math.Abs(p.ExpectedHomeGoals-want) > 1e-12 {
		t.Errorf("ExpectedHomeGoals = %v; want %v", p.ExpectedHomeGoals, want)
	}
}

func TestPredict_Deterministic(t *testing.T) {
	snap := trainedLeague(t)
	f := Fixture{ID: "fx-1", Home: "team-02", Away: "team-15"}
	a, _ := Predict(snap, f)
	b, _ := Predict(snap, f)
	if a != b {
		t.Errorf("Predict not deterministic: %+v vs %+v", a, b)
	}
	if a.FixtureID != "fx-1" {
		t.Errorf("FixtureID = %q; want fx-1", a.FixtureID)
	}
}

func TestPredict_StrongerTeamFavoured(t *testing.T) {
	snap := trainedLeague(t)
	p, _ := Predict(snap, Fixture{Home: "team-00", Away: "team-19"})
	if p.Outcome != OutcomeHome {
		t.Errorf("Outcome = %s; want %s", p.Outcome, OutcomeHome)
	}
	if p.Confidence != p.HomeWin {
		t.Errorf("Confidence = %v; want HomeWin %v", p.Confidence, p.HomeWin)
	}
	if p.ExpectedHomeGoals <= p.ExpectedAwayGoals {
		t.Errorf("expected goals %v <= %v", p.ExpectedHomeGoals, p.ExpectedAwayGoals)
	}
}

func TestPredict_MalformedFixture(t *testing.T) {
	snap := trainedLeague(t)
	cases := []Fixture{
		{Home: "", Away: "team-01"},
		{Home: "team-01", Away: ""},
		{Home: "team-01", Away: "team-01"},
	}
	for _, f := range cases {
		_, err := Predict(snap, f)
		var fe *FixtureError
		if !errors.As(err, &fe) {
			t.Errorf("Predict(%+v) err = %v; want *FixtureError", f, err)
		}
	}
}

func TestPredict_NilSnapshot(t *testing.T) {
	if _, err := Predict(nil, Fixture{Home: "a", Away: "b"}); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("err = %v; want ErrNoSnapshot", err)
	}
	if _, err := PredictBatch(nil, nil); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("batch err = %v; want ErrNoSnapshot", err)
	}
}

func TestPredict_CompetitionFactorScalesRates(t *testing.T) {
	matches, _ := syntheticLeague(2, 17)
	for i := range matches {
		if i%3 == 0 {
			matches[i].Competition = "cup"
			matches[i].HomeGoals += 2
		}
	}
	snap := mustTrain(t, matches)
	cup, ok := snap.Competition("cup")
	if !ok {
		t.Fatal("cup factor missing")
	}
	base, _ := Predict(snap, Fixture{Home: "team-04", Away: "team-09"})
	scaled, _ := Predict(snap, Fixture{Home: "team-04", Away: "team-09", Competition: "cup"})
	if math.Abs(scaled.ExpectedHomeGoals-base.ExpectedHomeGoals*cup.GoalFactor) > 1e-9 {
		t.Errorf("cup home xG = %v; want %v", scaled.ExpectedHomeGoals, base.ExpectedHomeGoals*cup.GoalFactor)
	}
	unknownComp, _ := Predict(snap, Fixture{Home: "team-04", Away: "team-09", Competition: "nope"})
	if unknownComp.ExpectedHomeGoals != base.ExpectedHomeGoals {
		t.Errorf("unknown competition changed rates: %v vs %v", unknownComp.ExpectedHomeGoals, base.ExpectedHomeGoals)
	}
}

func TestPredictBatch_MalformedItem(t *testing.T) {
	snap := trainedLeague(t)
	items, err := PredictBatch(snap, []Fixture{
		{Home: "team-01", Away: "team-02"},
		{Home: "", Away: "team-04"},
	})
	if err != nil {
		t.Fatalf("PredictBatch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d; want 2", len(items))
	}
	if items[0].Err != nil || items[0].Prediction == nil {
		t.Errorf("items[0] = %+v; want prediction", items[0])
	}
	var fe *FixtureError
	if !errors.As(items[1].Err, &fe) {
		t.Fatalf("items[1].Err = %v; want *FixtureError", items[1].Err)
	}
	if fe.Index != 1 {
		t.Errorf("FixtureError.Index = %d; want 1", fe.Index)
	}
	if items[1].Prediction != nil {
		t.Error("items[1] should not carry a prediction")
	}
}

func TestPredictBatch_PreservesOrder(t *testing.T) {
	snap := trainedLeague(t)
	fixtures := []Fixture{
		{ID: "a", Home: "team-05", Away: "team-06"},
		{ID: "b", Home: "team-07", Away: "team-08"},
		{ID: "c", Home: "team-09", Away: "team-10"},
	}
	items, err := PredictBatch(snap, fixtures)
	if err != nil {
		t.Fatalf("PredictBatch: %v", err)
	}
	for i, it := range items {
		if it.Prediction.FixtureID != fixtures[i].ID {
			t.Errorf("items[%d].FixtureID = %q; want %q", i, it.Prediction.FixtureID, fixtures[i].ID)
		}
		if it.Prediction.SnapshotVersion != snap.Version() {
			t.Errorf("items[%d] version = %d; want %d", i, it.Prediction.SnapshotVersion, snap.Version())
		}
	}
}

func TestOutcome(t *testing.T) {
	cases := []struct {
		h, d, a float64
		want    string
	}{
		{0.5, 0.3, 0.2, OutcomeHome},
		{0.3, 0.4, 0.3, OutcomeDraw},
		{0.2, 0.3, 0.5, OutcomeAway},
	}
	for _, tc := range cases {
		if got := outcome(tc.h, tc.d, tc.a); got != tc.want {
			t.Errorf("outcome(%v, %v, %v) = %s; want %s", tc.h, tc.d, tc.a, got, tc.want)
		}
	}
}

func TestPredict_PaddedTeamIDs(t *testing.T) {
	snap := trainedLeague(t)
	padded, err := Predict(snap, Fixture{Home: " team-04", Away: "team-09\t"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if padded.Cold() {
		t.Error("padded ids of known teams reported as cold")
	}
	plain, _ := Predict(snap, Fixture{Home: "team-04", Away: "team-09"})
	if padded != plain {
		t.Errorf("padded prediction = %+v; want %+v", padded, plain)
	}
}
