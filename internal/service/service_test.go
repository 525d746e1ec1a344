package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"footpredict/internal/model"
)

// roundRobin plays a double round robin between n teams with random scores.
func roundRobin(n int, seed int64) []model.MatchObservation {
	rng := rand.New(rand.NewSource(seed))
	var out []model.MatchObservation
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			out = append(out, model.MatchObservation{
				Home:      fmt.Sprintf("club-%d", i),
				Away:      fmt.Sprintf("club-%d", j),
				HomeGoals: rng.Intn(4),
				AwayGoals: rng.Intn(3),
			})
		}
	}
	return out
}

func TestService_NotTrained(t *testing.T) {
	s := New(Options{})
	if _, err := s.Predict("a", "b"); !errors.Is(err, ErrNotTrained) {
		t.Errorf("Predict err = %v; want ErrNotTrained", err)
	}
	if _, err := s.PredictBatch([]model.Fixture{{Home: "a", Away: "b"}}); !errors.Is(err, ErrNotTrained) {
		t.Errorf("PredictBatch err = %v; want ErrNotTrained", err)
	}
	if _, err := s.ModelInfo(); !errors.Is(err, ErrNotTrained) {
		t.Errorf("ModelInfo err = %v; want ErrNotTrained", err)
	}
}

func TestService_RetrainIncrementsVersion(t *testing.T) {
	s := New(Options{})
	matches := roundRobin(6, 1)
	for want := uint64(1); want <= 3; want++ {
		snap, err := s.Retrain(context.Background(), matches)
		if err != nil {
			t.Fatalf("Retrain: %v", err)
		}
		if snap.Version() != want {
			t.Errorf("Version = %d; want %d", snap.Version(), want)
		}
		if s.Snapshot() != snap {
			t.Error("retrained snapshot not published")
		}
	}
	info, err := s.ModelInfo()
	if err != nil {
		t.Fatalf("ModelInfo: %v", err)
	}
	if info.Version != 3 || info.TeamCount != 6 {
		t.Errorf("info = (v%d, %d teams); want (v3, 6 teams)", info.Version, info.TeamCount)
	}
}

func TestService_FailedRetrainKeepsSnapshot(t *testing.T) {
	s := New(Options{})
	prev, err := s.Retrain(context.Background(), roundRobin(4, 2))
	if err != nil {
		t.Fatalf("Retrain: %v", err)
	}

	_, err = s.Retrain(context.Background(), nil)
	var te *model.TrainingError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v; want *model.TrainingError", err)
	}
	if s.Snapshot() != prev {
		t.Error("failed retrain replaced the published snapshot")
	}

	bad := []model.MatchObservation{{Home: "x", Away: "x"}}
	if _, err := s.Retrain(context.Background(), bad); err == nil {
		t.Error("self match: want error")
	}
	if s.Snapshot() != prev {
		t.Error("malformed retrain replaced the published snapshot")
	}

	next, err := s.Retrain(context.Background(), roundRobin(4, 2))
	if err != nil {
		t.Fatalf("Retrain: %v", err)
	}
	if next.Version() != prev.Version()+1 {
		t.Errorf("Version after failures = %d; want %d", next.Version(), prev.Version()+1)
	}
}

func TestService_Predict(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(Options{Now: func() time.Time { return at }})
	if _, err := s.Retrain(context.Background(), roundRobin(5, 3)); err != nil {
		t.Fatalf("Retrain: %v", err)
	}
	p, err := s.Predict("club-0", "UnknownTeamX")
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if p.HomeFallback || !p.AwayFallback {
		t.Errorf("fallback = (%v, %v); want (false, true)", p.HomeFallback, p.AwayFallback)
	}
	if p.SnapshotVersion != 1 {
		t.Errorf("SnapshotVersion = %d; want 1", p.SnapshotVersion)
	}
	info, _ := s.ModelInfo()
	if !info.TrainedAt.Equal(at) {
		t.Errorf("TrainedAt = %v; want %v", info.TrainedAt, at)
	}
	var fe *model.FixtureError
	if _, err := s.Predict("", "club-1"); !errors.As(err, &fe) {
		t.Errorf("empty home err = %v; want *model.FixtureError", err)
	}
}

func TestService_BatchConsistentDuringRetrain(t *testing.T) {
	s := New(Options{})
	matches := roundRobin(8, 4)
	if _, err := s.Retrain(context.Background(), matches); err != nil {
		t.Fatalf("Retrain: %v", err)
	}

	fixtures := make([]model.Fixture, 0, 56)
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			if i != j {
				fixtures = append(fixtures, model.Fixture{Home: fmt.Sprintf("club-%d", i), Away: fmt.Sprintf("club-%d", j)})
			}
		}
	}

	start := s.Snapshot().Version()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			if _, err := s.Retrain(ctx, matches); err != nil && ctx.Err() == nil {
				t.Errorf("background Retrain: %v", err)
				return
			}
		}
	}()

	// Keep batching until the batches themselves have straddled at least two retrains.
	deadline := time.Now().Add(30 * time.Second)
	first, last := uint64(0), uint64(0)
	for n := 0; n < 50 || last < first+2; n++ {
		if time.Now().After(deadline) {
			t.Fatalf("after %d batches saw versions %d..%d; want a span of at least 2", n, first, last)
		}
		items, err := s.PredictBatch(fixtures)
		if err != nil {
			t.Fatalf("PredictBatch: %v", err)
		}
		v := items[0].Prediction.SnapshotVersion
		for i, it := range items {
			if it.Prediction.SnapshotVersion != v {
				t.Fatalf("batch %d item %d version %d; want %d", n, i, it.Prediction.SnapshotVersion, v)
			}
		}
		if n == 0 {
			first = v
		}
		if v < last {
			t.Fatalf("batch %d version %d went backwards from %d", n, v, last)
		}
		last = v
	}
	if first < start || last <= start {
		t.Errorf("batch versions %d..%d; want advance past %d", first, last, start)
	}
}

func TestService_Restore(t *testing.T) {
	s := New(Options{})
	snap, err := model.Train(context.Background(), roundRobin(4, 5), model.TrainOptions{Version: 9})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if !s.Restore(snap) {
		t.Fatal("Restore into empty service = false")
	}
	if s.Restore(snap) {
		t.Error("Restore of same version = true; want false")
	}
	if s.Restore(nil) {
		t.Error("Restore(nil) = true")
	}
	next, err := s.Retrain(context.Background(), roundRobin(4, 5))
	if err != nil {
		t.Fatalf("Retrain: %v", err)
	}
	if next.Version() != 10 {
		t.Errorf("Version after restore = %d; want 10", next.Version())
	}
}
