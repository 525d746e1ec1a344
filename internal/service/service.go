// Package service publishes trained snapshots and serves predictions from them.
// Readers never block: every call loads the current snapshot once and works on it.
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"footpredict/internal/model"
)

// ErrNotTrained is returned by the read operations before the first successful retrain.
var ErrNotTrained = errors.New("service: model not trained")

// Options configures retraining.
type Options struct {
	HalfLife      time.Duration
	MaxIterations int
	Tolerance     float64
	Now           func() time.Time
}

// Service holds the published snapshot.
type Service struct {
	current atomic.Pointer[model.Snapshot]
	retrain sync.Mutex
	opts    Options
}

// New returns a Service with nothing published.
func New(opts Options) *Service {
	return &Service{opts: opts}
}

// Restore publishes a snapshot built elsewhere (e.g. a warm start from cache) if it is newer
// than the current one. It reports whether the snapshot was installed.
func (s *Service) Restore(snap *model.Snapshot) bool {
	if snap == nil {
		return false
	}
	s.retrain.Lock()
	defer s.retrain.Unlock()
	if cur := s.current.Load(); cur != nil && cur.Version() >= snap.Version() {
		return false
	}
	s.current.Store(snap)
	return true
}

// Snapshot returns the published snapshot, or nil.
func (s *Service) Snapshot() *model.Snapshot {
	return s.current.Load()
}

// Predict forecasts a fixture between two teams.
func (s *Service) Predict(home, away string) (model.Prediction, error) {
	return s.PredictFixture(model.Fixture{Home: home, Away: away})
}

// PredictFixture forecasts one fixture against the current snapshot.
func (s *Service) PredictFixture(f model.Fixture) (model.Prediction, error) {
	snap := s.current.Load()
	if snap == nil {
		return model.Prediction{}, ErrNotTrained
	}
	return model.Predict(snap, f)
}

// PredictBatch forecasts every fixture against a single snapshot, even if a retrain
// publishes a new one while the batch runs.
func (s *Service) PredictBatch(fixtures []model.Fixture) ([]model.BatchItem, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNotTrained
	}
	return model.PredictBatch(snap, fixtures)
}

// ModelInfo summarises the current snapshot.
func (s *Service) ModelInfo() (model.Info, error) {
	snap := s.current.Load()
	if snap == nil {
		return model.Info{}, ErrNotTrained
	}
	return snap.Info(), nil
}

// Retrain fits a new snapshot and publishes it with the next version number.
// On failure the previous snapshot stays published and the error is returned.
// Concurrent calls are serialised; predictions keep using the old snapshot meanwhile.
func (s *Service) Retrain(ctx context.Context, matches []model.MatchObservation) (*model.Snapshot, error) {
	s.retrain.Lock()
	defer s.retrain.Unlock()

	var next uint64 = 1
	if cur := s.current.Load(); cur != nil {
		next = cur.Version() + 1
	}
	snap, err := model.Train(ctx, matches, model.TrainOptions{
		MaxIterations: s.opts.MaxIterations,
		Tolerance:     s.opts.Tolerance,
		HalfLife:      s.opts.HalfLife,
		Version:       next,
		Now:           s.opts.Now,
	})
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	return snap, nil
}
