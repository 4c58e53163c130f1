package advisory

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-faster/errors"
	"github.com/go-logr/logr"
	"github.com/jordigilh/rtx/internal/dependency"
	"github.com/sony/gobreaker"
)

// ErrAuthFailed is returned by a provider's do function when the upstream
// source rejects credentials. Authentication failure
// disables the provider for the rest of the run.
var ErrAuthFailed = errors.New("advisory provider: authentication failed")

// SourceConfig carries the per-provider parameters needed to be
// configurable.
type SourceConfig struct {
	BatchSize          int
	MaxInFlight        int
	RequestTimeout     time.Duration
	RetryCount         int
	Disabled           bool
	AuthToken          string
}

// DefaultSourceConfig returns rtx's defaults: 5s timeout, 2
// retries, concurrency in the 4-6 range (5 chosen as the midpoint).
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		BatchSize:      500,
		MaxInFlight:    5,
		RequestTimeout: 5 * time.Second,
		RetryCount:     2,
	}
}

// guardedProvider wraps a Provider with a circuit breaker and a retry
// policy, and tracks whether the source has permanently disabled itself
// after an authentication failure. It implements Provider itself so the
// Orchestrator can treat guarded and bare providers identically.
type guardedProvider struct {
	inner    Provider
	cfg      SourceConfig
	cb       *gobreaker.CircuitBreaker
	disabled bool
	log      logr.Logger
}

// Guard wraps inner with a circuit breaker named after inner's source, per
// failure isolation: a struggling source
// must not cascade into the rest of the run. log is used to record the
// provider's permanent disablement on an authentication failure; pass
// logr.Discard() if that event doesn't need to be surfaced.
func Guard(inner Provider, cfg SourceConfig, log logr.Logger) Provider {
	st := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	}
	return &guardedProvider{inner: inner, cfg: cfg, cb: gobreaker.NewCircuitBreaker(st), log: log}
}

func (g *guardedProvider) Name() string { return g.inner.Name() }

func (g *guardedProvider) EnrichBatch(ctx context.Context, deps []dependency.Dependency) (Batch, error) {
	if g.cfg.Disabled || g.disabled {
		return unavailableBatch(deps), nil
	}

	operation := func() (Batch, error) {
		raw, err := g.cb.Execute(func() (interface{}, error) {
			cctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
			defer cancel()
			return g.inner.EnrichBatch(cctx, deps)
		})
		if err != nil {
			if errors.Is(err, ErrAuthFailed) {
				// Not retryable: a 401/403 won't resolve itself within the
				// retry window, so fail fast instead of burning tries.
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return raw.(Batch), nil
	}

	b, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(g.cfg.RetryCount+1)),
	)
	if err != nil {
		if errors.Is(err, ErrAuthFailed) {
			g.disabled = true
			g.log.Error(err, "advisory provider disabled after authentication failure", "source", g.Name())
		}
		return unavailableBatch(deps), nil
	}
	return b, nil
}

func unavailableBatch(deps []dependency.Dependency) Batch {
	b := make(Batch, len(deps))
	for _, d := range deps {
		b[d.KeyOf()] = Outcome{Unavailable: true}
	}
	return b
}
