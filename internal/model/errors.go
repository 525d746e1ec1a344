package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSnapshot is returned when predicting without a trained snapshot.
	ErrNoSnapshot = errors.New("model: no snapshot")
	// ErrStaleSnapshot means a batch carried results from more than one snapshot.
	// It is an invariant violation and the batch must not be served.
	ErrStaleSnapshot = errors.New("model: batch mixed snapshot versions")
)

// TrainingError is returned when a retrain cannot produce a snapshot.
// Index is the offending match position, or -1 when the failure is not tied to one match.
type TrainingError struct {
	Reason string
	Index  int
	Err    error
}

func (e *TrainingError) Error() string {
	msg := "training failed: " + e.Reason
	if e.Index >= 0 {
		msg = fmt.Sprintf("training failed: match %d: %s", e.Index, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TrainingError) Unwrap() error { return e.Err }

// FixtureError marks a malformed fixture. In a batch it occupies the fixture's slot.
type FixtureError struct {
	Index  int
	Reason string
}

func (e *FixtureError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("malformed fixture %d: %s", e.Index, e.Reason)
	}
	return "malformed fixture: " + e.Reason
}
