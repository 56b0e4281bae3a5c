// Package throttle implements the unlock endpoint's persistent
// exponential-backoff gate. State lives in vstore.UnlockThrottleRecord;
// this package only contains the math and the gate decision.
package throttle

import "time"

const (
	capAttempts = 8
	capSeconds  = 300
)

// State mirrors vstore.UnlockThrottleRecord without importing it, so this
// package stays a pure function library callers can unit-test in isolation.
type State struct {
	FailedAttempts int
	NextAllowedAt  time.Time
}

// Allowed reports whether an unlock attempt may proceed at now.
func Allowed(s State, now time.Time) bool {
	if s.NextAllowedAt.IsZero() {
		return true
	}
	return !now.Before(s.NextAllowedAt)
}

// OnFailure returns the next state after a failed unlock attempt: increment
// failed_attempts, set next_allowed_at = now + 2^min(failed_attempts, 8)
// seconds, capped at 300s.
func OnFailure(s State, now time.Time) State {
	attempts := s.FailedAttempts + 1
	delay := DelaySeconds(attempts)
	return State{
		FailedAttempts: attempts,
		NextAllowedAt:  now.Add(time.Duration(delay) * time.Second),
	}
}

// OnSuccess resets the throttle to (0, null).
func OnSuccess() State {
	return State{}
}

// DelaySeconds computes the backoff ladder: 2^min(attempts,8), capped at
// 300. attempts <= 0 yields 0 (no delay).
func DelaySeconds(attempts int) int {
	if attempts <= 0 {
		return 0
	}
	n := attempts
	if n > capAttempts {
		n = capAttempts
	}
	delay := 1 << uint(n)
	if delay > capSeconds {
		delay = capSeconds
	}
	return delay
}
