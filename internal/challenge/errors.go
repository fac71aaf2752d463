// Package challenge detects and solves anti-bot challenge walls.
package challenge

import "errors"

var (
	// ErrChallengeTimeout means a solve did not finish in its time bound.
	ErrChallengeTimeout = errors.New("challenge timeout")
	// ErrCaptcha means the challenge needs a human.
	ErrCaptcha = errors.New("captcha challenge detected")
	// ErrAntiBot means the site blocked the request outright.
	ErrAntiBot = errors.New("anti-bot protection detected")
	// ErrFlareSolverrUnavailable means the FlareSolverr service is not reachable.
	ErrFlareSolverrUnavailable = errors.New("FlareSolverr service unavailable")
	// ErrNoSolvers is returned by an empty Fallback.
	ErrNoSolvers = errors.New("no challenge solvers")
)
