package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/geotrack/internal/geometry"
	"github.com/banshee-data/geotrack/internal/timeutil"
)

// ErrNoFix is returned by a LocationProvider that has no usable position.
var ErrNoFix = errors.New("no location fix available")

// LocationProvider supplies the device's current position. It is queried
// once per persistence batch.
type LocationProvider interface {
	CurrentFix(ctx context.Context) (geometry.Fix, error)
}

// LatestFix is a LocationProvider holding the most recently reported fix.
// Fixes older than maxAge are treated as unavailable; a zero maxAge never
// expires them.
type LatestFix struct {
	maxAge time.Duration
	clock  timeutil.Clock

	mu  sync.RWMutex
	fix geometry.Fix
	at  time.Time
	set bool
}

// NewLatestFix creates an empty LatestFix. A nil clock uses the real clock.
func NewLatestFix(maxAge time.Duration, clock timeutil.Clock) *LatestFix {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &LatestFix{maxAge: maxAge, clock: clock}
}

// Set records fix as the current position.
func (l *LatestFix) Set(fix geometry.Fix) error {
	if !fix.Valid() {
		return fmt.Errorf("invalid fix %+v", fix)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fix = fix
	l.at = l.clock.Now()
	l.set = true
	return nil
}

// CurrentFix implements LocationProvider.
func (l *LatestFix) CurrentFix(_ context.Context) (geometry.Fix, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.set {
		return geometry.Fix{}, ErrNoFix
	}
	if age := l.clock.Since(l.at); l.maxAge > 0 && age > l.maxAge {
		return geometry.Fix{}, fmt.Errorf("%w: last fix is %s old", ErrNoFix, age)
	}
	return l.fix, nil
}
