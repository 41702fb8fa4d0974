package geostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/geotrack/internal/config"
	"github.com/banshee-data/geotrack/internal/timeutil"
)

var (
	// ErrNotFound is returned when no record exists for a key.
	ErrNotFound = errors.New("geostore: record not found")

	// ErrConflict is returned by a conditional write that lost a race with
	// another writer.
	ErrConflict = errors.New("geostore: version conflict")

	// ErrTooManyRetries is returned when a transaction kept conflicting
	// until its attempts ran out.
	ErrTooManyRetries = errors.New("geostore: too many conflicting retries")
)

// TxFunc computes the new state of a record. current is a private copy of
// the stored record, or nil when none exists. Returning an error aborts the
// transaction without writing; it is not retried.
type TxFunc func(current *Record) (*Record, error)

// Store is a keyed record store with optimistic transactions.
type Store interface {
	// Get returns the record stored under id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// RunTransaction reads the record under id, applies fn and writes the
	// result only if no other writer committed in between. Conflicts are
	// retried with backoff. The committed record is returned.
	RunTransaction(ctx context.Context, id string, fn TxFunc) (*Record, error)

	// List returns up to limit records ordered by Tracked, newest first.
	// A non-positive limit returns every record.
	List(ctx context.Context, limit int) ([]Record, error)
}

// RetryPolicy bounds how a Store retries conflicting transactions.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Clock          timeutil.Clock
}

// DefaultRetryPolicy returns the retry policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicyFromTuning(config.EmptyTuningConfig())
}

// RetryPolicyFromTuning builds a RetryPolicy from a loaded TuningConfig.
func RetryPolicyFromTuning(cfg *config.TuningConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.GetStoreMaxAttempts(),
		InitialBackoff: cfg.GetStoreInitialBackoff(),
		MaxBackoff:     cfg.GetStoreMaxBackoff(),
		Clock:          timeutil.RealClock{},
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Clock == nil {
		p.Clock = timeutil.RealClock{}
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	return p
}

// versioned is the primitive a backend supplies; runTransaction layers the
// optimistic retry loop on top.
type versioned interface {
	// load returns a private copy of the record, or ErrNotFound.
	load(ctx context.Context, id string) (*Record, error)

	// put writes rec if the stored version still equals prev (0 meaning
	// absent) and stamps rec.Version. It returns ErrConflict otherwise.
	put(ctx context.Context, rec *Record, prev int64) error
}

func runTransaction(ctx context.Context, s versioned, policy RetryPolicy, id string, fn TxFunc) (*Record, error) {
	policy = policy.normalized()
	backoff := policy.InitialBackoff

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current, err := s.load(ctx, id)
		var prev int64
		switch {
		case errors.Is(err, ErrNotFound):
			current = nil
		case err != nil:
			return nil, fmt.Errorf("load %s: %w", id, err)
		default:
			prev = current.Version
		}

		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, fmt.Errorf("transaction for %s produced no record", id)
		}
		next = next.clone()
		next.ID = id
		next.sanitize()

		err = s.put(ctx, next, prev)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("write %s: %w", id, err)
		}
		if attempt >= policy.MaxAttempts {
			return nil, fmt.Errorf("%w: %s after %d attempts", ErrTooManyRetries, id, attempt)
		}

		if backoff > 0 {
			policy.Clock.Sleep(backoff)
			backoff = min(backoff*2, policy.MaxBackoff)
		}
	}
}
