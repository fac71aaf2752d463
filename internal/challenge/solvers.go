package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/sessionkeeper/internal/browser"
	"github.com/jmylchreest/sessionkeeper/internal/session"
)

// WithTimeout bounds every solve by d. A solve still running at the
// deadline fails with ErrChallengeTimeout, even if the wrapped solver
// ignores its context; it is left to finish in the background.
func WithTimeout(s session.Solver, d time.Duration) session.Solver {
	return session.SolverFunc(func(ctx context.Context, page browser.Page) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type solved struct {
			outcome string
			err     error
		}
		done := make(chan solved, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- solved{err: fmt.Errorf("solver panicked: %v", r)}
				}
			}()
			outcome, err := s.Solve(ctx, page)
			done <- solved{outcome: outcome, err: err}
		}()

		select {
		case res := <-done:
			if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("%w after %s", ErrChallengeTimeout, d)
			}
			return res.outcome, res.err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("%w after %s", ErrChallengeTimeout, d)
			}
			return "", ctx.Err()
		}
	})
}

// Fallback tries each solver in order and returns the first success.
func Fallback(solvers ...session.Solver) session.Solver {
	return session.SolverFunc(func(ctx context.Context, page browser.Page) (string, error) {
		if len(solvers) == 0 {
			return "", ErrNoSolvers
		}
		var errs []error
		for i, s := range solvers {
			outcome, err := s.Solve(ctx, page)
			if err == nil {
				return outcome, nil
			}
			errs = append(errs, fmt.Errorf("solver %d: %w", i+1, err))
			if ctx.Err() != nil {
				break
			}
		}
		return "", errors.Join(errs...)
	})
}
