package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSnapshot_JSONRoundTrip(t *testing.T) {
	matches, _ := syntheticLeague(2, 31)
	for i := range matches {
		if i%2 == 0 {
			matches[i].Competition = "league"
		}
	}
	snap := mustTrain(t, matches)

	b, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := DecodeSnapshot(b)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if got.Version() != snap.Version() || !got.TrainedAt().Equal(snap.TrainedAt()) {
		t.Errorf("header = (%d, %v); want (%d, %v)", got.Version(), got.TrainedAt(), snap.Version(), snap.TrainedAt())
	}
	if got.Registry().Len() != snap.Registry().Len() {
		t.Errorf("teams = %d; want %d", got.Registry().Len(), snap.Registry().Len())
	}

	for _, f := range []Fixture{
		{Home: "team-00", Away: "team-05"},
		{Home: "team-11", Away: "newcomer", Competition: "league"},
	} {
		want, _ := Predict(snap, f)
		have, _ := Predict(got, f)
		if want != have {
			t.Errorf("prediction changed after round trip:\n got %+v\nwant %+v", have, want)
		}
	}
}

func TestDecodeSnapshot_Rejects(t *testing.T) {
	cases := map[string]string{
		"garbage":         `{not json`,
		"no teams":        `{"version":1,"teams":[]}`,
		"unnamed team":    `{"version":1,"teams":[{"id":"","attack":0.1}]}`,
		"bad competition": `{"version":1,"teams":[{"id":"a"}],"competitions":[{"name":"cup","goal_factor":0}]}`,
	}
	for name, raw := range cases {
		if _, err := DecodeSnapshot([]byte(raw)); err == nil {
			t.Errorf("%s: want error", name)
		}
	}
}

func TestSnapshot_Info(t *testing.T) {
	matches, truth := syntheticLeague(3, 19)
	snap := mustTrain(t, matches)
	info := snap.Info()

	if info.TeamCount != 20 {
		t.Errorf("TeamCount = %d; want 20", info.TeamCount)
	}
	if len(info.TopAttack) != 5 || len(info.TopDefense) != 5 {
		t.Fatalf("top lists = %d/%d; want 5/5", len(info.TopAttack), len(info.TopDefense))
	}
	for i := 1; i < len(info.TopAttack); i++ {
		if info.TopAttack[i].Value > info.TopAttack[i-1].Value {
			t.Errorf("TopAttack not sorted at %d", i)
		}
		if info.TopDefense[i].Value > info.TopDefense[i-1].Value {
			t.Errorf("TopDefense not sorted at %d", i)
		}
	}
	for _, r := range info.TopAttack {
		if strings.Compare(r.Team, truth[10].id) >= 0 {
			t.Errorf("weak team %s in top attack", r.Team)
		}
		if r.Uncertainty <= 0 {
			t.Errorf("%s uncertainty = %v; want > 0", r.Team, r.Uncertainty)
		}
	}
}

func TestRegistry_TeamsSorted(t *testing.T) {
	r := newRegistry([]Team{{ID: "c"}, {ID: "a"}, {ID: "b"}})
	teams := r.Teams()
	for i, want := range []string{"a", "b", "c"} {
		if teams[i].ID != want {
			t.Errorf("Teams()[%d] = %s; want %s", i, teams[i].ID, want)
		}
	}
	if _, ok := r.Lookup("z"); ok {
		t.Error("Lookup(z) found a team")
	}
}
