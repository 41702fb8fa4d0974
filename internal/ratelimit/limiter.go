// Package ratelimit gates how often an action may run.
package ratelimit

import (
	"sync"
	"time"

	"github.com/banshee-data/geotrack/internal/timeutil"
)

// Limiter is a leaky bucket of one. Run executes its action only when at
// least Interval has passed since the last action it executed; otherwise the
// call is dropped. Nothing is queued or retried.
type Limiter struct {
	interval time.Duration
	clock    timeutil.Clock

	mu      sync.Mutex
	last    time.Time
	fired   bool
	skipped int64
}

// New returns a Limiter with the given interval. A nil clock uses the real
// clock. A non-positive interval lets every call through.
func New(interval time.Duration, clock timeutil.Clock) *Limiter {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Limiter{interval: interval, clock: clock}
}

// Allow reports whether an action may run now and, if so, records now as
// the last run. Check and update happen under one lock so two concurrent
// callers can never both pass.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if l.fired && now.Sub(l.last) < l.interval {
		l.skipped++
		return false
	}
	l.last = now
	l.fired = true
	return true
}

// Run executes action if the gate is open and reports whether it ran.
// The action runs outside the lock.
func (l *Limiter) Run(action func()) bool {
	if !l.Allow() {
		return false
	}
	action()
	return true
}

// Interval returns the configured interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Skipped returns how many calls have been dropped so far.
func (l *Limiter) Skipped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.skipped
}
