package domain

import "time"

// FailureState is the lockout-relevant slice of an account: the consecutive
// failure counter and the optional lock timestamp.
type FailureState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// LockoutPolicy is a pure state-transition function over FailureState.
// It never touches the store; persistence and atomicity are the caller's job.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// DefaultLockoutPolicy matches the service defaults: five consecutive
// failures lock the account for fifteen minutes.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: 5, Duration: 15 * time.Minute}
}

// IsLocked reports whether the lock timestamp is set and still in the future.
func IsLocked(st FailureState, now time.Time) bool {
	return st.LockedUntil != nil && st.LockedUntil.After(now)
}

// OnFailure increments the failure counter and, when the new count reaches
// the threshold, sets the lock timestamp. The counter is not reset by
// locking; only a later success clears it.
func (p LockoutPolicy) OnFailure(st FailureState, now time.Time) FailureState {
	st.FailedAttempts++
	if st.FailedAttempts >= p.MaxAttempts {
		lockedUntil := now.Add(p.Duration).UTC()
		st.LockedUntil = &lockedUntil
	}
	return st
}

// OnSuccess resets the counter and clears the lock. A clean state passes
// through unchanged.
func (p LockoutPolicy) OnSuccess(st FailureState) FailureState {
	if st.FailedAttempts == 0 && st.LockedUntil == nil {
		return st
	}
	return FailureState{}
}
