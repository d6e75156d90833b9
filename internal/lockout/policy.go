// Package lockout decides when repeated login failures lock an account.
// It holds no state; callers persist the returned CredentialState atomically.
package lockout

import (
	"time"

	"github.com/and161185/plaze/internal/model"
)

const (
	// MaxAttempts is the number of consecutive failures that locks an account.
	MaxAttempts = 3
	// LockDuration is how long a lock lasts.
	LockDuration = 15 * time.Minute
)

// IsLocked reports whether a lock is in force at now.
func IsLocked(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && now.Before(*lockedUntil)
}

// LockExpired reports whether a lock is recorded but no longer in force.
func LockExpired(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && !now.Before(*lockedUntil)
}

// ShouldLock reports whether the incremented counter reaches the threshold.
func ShouldLock(attempts int) bool { return attempts >= MaxAttempts }

// Duration returns the lock length.
func Duration() time.Duration { return LockDuration }

// NextOnFailure returns the state after one more failed attempt.
func NextOnFailure(current int, now time.Time) model.CredentialState {
	next := model.CredentialState{FailedAttempts: current + 1}
	if ShouldLock(next.FailedAttempts) {
		until := now.Add(LockDuration)
		next.LockedUntil = &until
	}
	return next
}

// NextOnSuccess returns the state after a successful login.
func NextOnSuccess() model.CredentialState { return model.CredentialState{} }

// NextOnExpiredLock returns the state after clearing an expired lock.
func NextOnExpiredLock() model.CredentialState { return model.CredentialState{} }
