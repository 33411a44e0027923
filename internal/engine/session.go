package engine

import (
	"time"

	"github.com/rfsync/rfsync/internal/scanner"
)

// Direction selects which flow(s) a session runs.
type Direction string

const (
	// DirectionGet pulls remote field values into local annotations.
	DirectionGet Direction = "get"
	// DirectionPatch pushes local tag values to the remote store.
	DirectionPatch Direction = "patch"
	// DirectionBoth runs get before patch per test case.
	DirectionBoth Direction = "both"
)

// State is the lifecycle position of a session.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateResolving
	StateWriting
	StateCompleted
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateResolving:
		return "resolving"
	case StateWriting:
		return "writing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome classifies what happened to one scenario.
type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Result is one ledger entry. Entries keep scan order, independent of
// fetch or patch completion order, so reports are deterministic.
type Result struct {
	ID      int
	File    string
	Title   string
	Outcome Outcome
	Reason  string
}

// Session is one engine invocation. It owns no persistent state and is
// discarded after its summary is reported.
type Session struct {
	Direction  Direction
	State      State
	StartedAt  time.Time
	FinishedAt time.Time

	// Results holds one entry per scanned scenario, in scan order.
	Results []Result

	// Staged counts remote test cases written to the staging file because
	// no local scenario referenced them.
	Staged int
}

// newSession starts the ledger for one run.
func newSession(dir Direction) *Session {
	return &Session{
		Direction: dir,
		State:     StateIdle,
		StartedAt: time.Now(),
	}
}

// record appends a ledger entry for a scenario.
func (s *Session) record(tc scanner.TestCase, id int, outcome Outcome, reason string) {
	s.Results = append(s.Results, Result{
		ID:      id,
		File:    tc.File,
		Title:   tc.Title,
		Outcome: outcome,
		Reason:  reason,
	})
}

// Counts sums ledger outcomes.
func (s *Session) Counts() (updated, unchanged, skipped, failed int) {
	for _, r := range s.Results {
		switch r.Outcome {
		case OutcomeUpdated:
			updated++
		case OutcomeUnchanged:
			unchanged++
		case OutcomeSkipped:
			skipped++
		case OutcomeFailed:
			failed++
		}
	}
	return
}

// Failures returns the failed entries, in scan order.
func (s *Session) Failures() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Outcome == OutcomeFailed {
			out = append(out, r)
		}
	}
	return out
}
