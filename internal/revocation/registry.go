// Package revocation keeps the process-local set of logged-out tokens.
// The set is not persisted: a restart forgets every revocation.
package revocation

import (
	"sync"
	"time"

	"github.com/and161185/plaze/internal/errs"
)

const minSweep = 64

// Registry maps revoked token ids (jti) to the token expiry.
// Entries are dropped once the token has expired, since Verify rejects it anyway.
// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	ids       map[string]time.Time
	now       func() time.Time
	nextSweep int
}

// New returns an empty registry using the wall clock.
func New() *Registry { return NewWithClock(time.Now) }

// NewWithClock returns an empty registry that reads time from now.
func NewWithClock(now func() time.Time) *Registry {
	return &Registry{ids: make(map[string]time.Time), now: now, nextSweep: minSweep}
}

// Add revokes the token with id jti until exp.
// It returns errs.ErrAlreadyRevoked if the id is revoked already.
func (r *Registry) Add(jti string, exp time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[jti]; ok {
		return errs.ErrAlreadyRevoked
	}
	r.ids[jti] = exp
	if len(r.ids) >= r.nextSweep {
		r.sweep(r.now())
	}
	return nil
}

// Contains reports whether the token with id jti is revoked.
func (r *Registry) Contains(jti string) bool {
	r.mu.RLock()
	_, ok := r.ids[jti]
	r.mu.RUnlock()
	return ok
}

// Len returns the number of tracked ids.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// Prune drops every entry whose token has expired and returns how many were removed.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweep(r.now())
}

// sweep requires r.mu held for writing.
func (r *Registry) sweep(now time.Time) int {
	n := 0
	for id, exp := range r.ids {
		if !now.Before(exp) {
			delete(r.ids, id)
			n++
		}
	}
	r.nextSweep = max(minSweep, 2*len(r.ids))
	return n
}
