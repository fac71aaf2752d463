package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/sessionkeeper/internal/browser"
	"github.com/jmylchreest/sessionkeeper/internal/logger"
)

// Solver resolves a challenge wall on page and describes the outcome.
type Solver interface {
	Solve(ctx context.Context, page browser.Page) (outcome string, err error)
}

// SolverFunc adapts a function to Solver.
type SolverFunc func(ctx context.Context, page browser.Page) (string, error)

func (f SolverFunc) Solve(ctx context.Context, page browser.Page) (string, error) {
	return f(ctx, page)
}

// ErrNoSolver is the failure recorded when no solver is configured.
var ErrNoSolver = errors.New("no challenge solver configured")

// ChallengeState is the lifecycle position of one challenge.
type ChallengeState int

const (
	ChallengeIdle ChallengeState = iota
	ChallengeDetected
	ChallengeSolving
	ChallengeSolved
	ChallengeFailed
)

func (s ChallengeState) String() string {
	switch s {
	case ChallengeIdle:
		return "idle"
	case ChallengeDetected:
		return "challenge_detected"
	case ChallengeSolving:
		return "solving"
	case ChallengeSolved:
		return "solved"
	case ChallengeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s ChallengeState) Terminal() bool {
	return s == ChallengeSolved || s == ChallengeFailed
}

var challengeTransitions = map[ChallengeState][]ChallengeState{
	ChallengeIdle:     {ChallengeDetected},
	ChallengeDetected: {ChallengeSolving},
	ChallengeSolving:  {ChallengeSolved, ChallengeFailed},
}

// ChallengeEvent records one detected challenge and its progress.
type ChallengeEvent struct {
	ID         string
	URL        string
	DetectedAt time.Time

	mu      sync.Mutex
	state   ChallengeState
	outcome string
	reason  string
	history []ChallengeState
}

func newChallengeEvent(url string) *ChallengeEvent {
	c := &ChallengeEvent{ID: uuid.NewString(), URL: url, DetectedAt: time.Now().UTC()}
	_ = c.transition(ChallengeDetected)
	return c
}

func (c *ChallengeEvent) transition(to ChallengeState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, allowed := range challengeTransitions[c.state] {
		if allowed == to {
			c.state = to
			c.history = append(c.history, to)
			return nil
		}
	}
	return fmt.Errorf("invalid challenge transition %s -> %s", c.state, to)
}

// State returns the current state.
func (c *ChallengeEvent) State() ChallengeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns every state entered, in order.
func (c *ChallengeEvent) History() []ChallengeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChallengeState(nil), c.history...)
}

// Outcome returns the solver's outcome once solved.
func (c *ChallengeEvent) Outcome() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Reason returns the failure reason once failed.
func (c *ChallengeEvent) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// solve drives record from Detected to a terminal state. It never returns
// an error: the outcome is logged and recorded.
func (sc *SecureContext) solve(ctx context.Context, record *ChallengeEvent, page browser.Page) {
	if err := record.transition(ChallengeSolving); err != nil {
		sc.log.Error("challenge state", "challenge_id", record.ID, "error", err)
		return
	}

	outcome, err := sc.runSolver(ctx, page)
	if err != nil {
		record.mu.Lock()
		record.reason = err.Error()
		record.mu.Unlock()
		_ = record.transition(ChallengeFailed)
		sc.log.Warn("challenge failed", "challenge_id", record.ID, "url", record.URL, "reason", err)
		logger.Metadata("Challenge failed: %s (%s): %v", record.URL, record.ID, err)
		return
	}

	record.mu.Lock()
	record.outcome = outcome
	record.mu.Unlock()
	_ = record.transition(ChallengeSolved)
	sc.log.Info("challenge solved", "challenge_id", record.ID, "url", record.URL, "outcome", outcome)
	logger.Metadata("Challenge solved: %s (%s): %s", record.URL, record.ID, outcome)
}

func (sc *SecureContext) runSolver(ctx context.Context, page browser.Page) (outcome string, err error) {
	if sc.solver == nil {
		return "", ErrNoSolver
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("solver panicked: %v", r)
		}
	}()
	return sc.solver.Solve(ctx, page)
}
