// Package ratelimit enforces minimum spacing between outbound calls to a
// single external provider, with support for both self-paced waits and
// externally-observed back-off (e.g. a 503 from the remote).
package ratelimit

import (
	"sync"
	"time"
)

// checkTolerance absorbs small scheduling jitter so a waiter arriving a few
// milliseconds before its allowance isn't forced to sleep an extra cycle.
const checkTolerance = 15 * time.Millisecond

// Limiter serializes callers behind a single minimum-spacing policy. Callers
// racing at the same instant are released in FIFO order of claim, spaced at
// least Wait apart. The lock is never held across a sleep: Wait claims a
// slot, releases the lock, then sleeps only if it must.
type Limiter struct {
	wait time.Duration

	mu              sync.Mutex
	nextAllowedTime time.Time
	claimedNextTime time.Time
}

// New creates a Limiter that enforces at least `wait` between successive
// claims.
func New(wait time.Duration) *Limiter {
	return &Limiter{wait: wait}
}

// Wait blocks until this caller's claimed slot arrives. Multiple concurrent
// callers are queued and released in the order they called Wait.
func (l *Limiter) Wait() {
	for {
		d, ready := l.claim()
		if ready {
			return
		}
		time.Sleep(d)
	}
}

// claim records this caller's position in the queue and reports how long it
// must still sleep. It never sleeps itself, so the lock is only ever held
// for the duration of the bookkeeping.
func (l *Limiter) claim() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	if l.nextAllowedTime.IsZero() {
		l.nextAllowedTime = now.Add(l.wait)
		return 0, true
	}

	if now.After(l.nextAllowedTime.Add(-checkTolerance)) {
		l.nextAllowedTime = now.Add(l.wait)
		return 0, true
	}

	newClaim := l.nextAllowedTime
	if !l.claimedNextTime.IsZero() && !l.claimedNextTime.Before(l.nextAllowedTime) {
		newClaim = l.claimedNextTime.Add(l.wait)
	}
	l.claimedNextTime = newClaim

	return newClaim.Sub(now), false
}

// ObserveExternalBackoff forces the next allowance to now+d, discarding any
// slot other goroutines may have already claimed. Used when the remote
// signals it is overloaded (HTTP 503) and wants every caller to back off by
// a fixed amount regardless of the base spacing.
func (l *Limiter) ObserveExternalBackoff(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextAllowedTime = time.Now().Add(d)
	l.claimedNextTime = time.Time{}
}
