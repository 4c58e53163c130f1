// Package orchestrator drives the dependency trust pipeline end to end:
// fan out to advisory and metadata providers under global and per-source
// concurrency ceilings, merge their results per dependency, derive trust
// signals, evaluate policy, and assemble the final Report.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/jordigilh/rtx/internal/advisory"
	"github.com/jordigilh/rtx/internal/dependency"
	"github.com/jordigilh/rtx/internal/metadata"
	"github.com/jordigilh/rtx/internal/policy"
	"github.com/jordigilh/rtx/internal/report"
	"github.com/jordigilh/rtx/internal/signal"
	"github.com/jordigilh/rtx/internal/telemetry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithGlobalConcurrency bounds the total number of in-flight provider calls
// across every source, independent of each source's own ceiling.
func WithGlobalConcurrency(n int64) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.globalSem = semaphore.NewWeighted(n)
		}
	}
}

// WithSourceConcurrency overrides the per-source concurrency ceiling for a
// named source. Unnamed sources fall back to defaultSourceConcurrency.
func WithSourceConcurrency(source string, n int64) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sourceSems[source] = semaphore.NewWeighted(n)
		}
	}
}

// WithThresholds overrides the default trust-signal thresholds.
func WithThresholds(th signal.Thresholds) Option {
	return func(o *Orchestrator) { o.thresholds = th }
}

// WithClock overrides the orchestrator's notion of "now", for deterministic
// tests of age/churn-dependent signals.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithDisabledSources records sources that were turned off in config before
// the Orchestrator was even built (as opposed to disabling themselves
// mid-run after an authentication failure). Run reports these as
// report.SourceDisabled rather than silently omitting them from
// Report.Sources.
func WithDisabledSources(names ...string) Option {
	return func(o *Orchestrator) {
		o.disabledSources = append(o.disabledSources, names...)
	}
}

// WithMetrics attaches the Prometheus collectors Run and its fan-out
// report timing and failures to. A nil or never-set Metrics leaves
// observation as a no-op, so tests and ad-hoc runs don't need one.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

const defaultSourceConcurrency = 5

// Orchestrator owns the provider set and drives one pipeline run per call
// to Run. It holds no per-run state, so one Orchestrator can be reused
// across many Run calls (e.g. baseline and proposed pre-upgrade passes).
type Orchestrator struct {
	advisoryProviders []advisory.Provider
	metadataProviders []metadata.Provider
	engine            *policy.Engine
	thresholds        signal.Thresholds
	now               func() time.Time
	disabledSources   []string
	metrics           *telemetry.Metrics

	globalSem  *semaphore.Weighted
	sourceMu   sync.Mutex
	sourceSems map[string]*semaphore.Weighted
}

// New builds an Orchestrator. engine must already be compiled (see
// policy.NewEngine); a nil engine is a programmer error.
func New(engine *policy.Engine, advisoryProviders []advisory.Provider, metadataProviders []metadata.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		advisoryProviders: advisoryProviders,
		metadataProviders: metadataProviders,
		engine:            engine,
		thresholds:        signal.DefaultThresholds(),
		now:               time.Now,
		globalSem:         semaphore.NewWeighted(32),
		sourceSems:        make(map[string]*semaphore.Weighted),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// observeProvider records one provider call's latency and outcome against
// o.metrics, or does nothing if no Metrics was attached via WithMetrics.
func (o *Orchestrator) observeProvider(source string, start time.Time, failed bool) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveProvider(source, start, failed)
}

func (o *Orchestrator) sourceSem(name string) *semaphore.Weighted {
	o.sourceMu.Lock()
	defer o.sourceMu.Unlock()
	if sem, ok := o.sourceSems[name]; ok {
		return sem
	}
	sem := semaphore.NewWeighted(defaultSourceConcurrency)
	o.sourceSems[name] = sem
	return sem
}

// acquire blocks until both the global ceiling and the named source's own
// ceiling admit one more in-flight call, implementing the two-layer
// concurrency model.
func (o *Orchestrator) acquire(ctx context.Context, source string) (release func(), err error) {
	if err := o.globalSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	sem := o.sourceSem(source)
	if err := sem.Acquire(ctx, 1); err != nil {
		o.globalSem.Release(1)
		return nil, err
	}
	return func() {
		sem.Release(1)
		o.globalSem.Release(1)
	}, nil
}

// Run executes one full pipeline pass over deps and returns the assembled
// Report. A provider failing, timing out, or losing its race against ctx
// never fails the run as a whole: its affected dependencies are marked
// unavailable for that source and Run still returns whatever it gathered
// for everything else, rather than an empty Report plus an error.
func (o *Orchestrator) Run(ctx context.Context, deps []dependency.Dependency) (report.Report, error) {
	startedAt := o.now()
	builder := report.NewBuilder(startedAt)
	for _, name := range o.disabledSources {
		builder.SetSourceOutcome(name, report.SourceDisabled)
	}

	bundles := make(map[dependency.Key]*ResultBundle, len(deps))
	var bundlesMu sync.Mutex
	for _, d := range deps {
		bundles[d.KeyOf()] = newResultBundle(d)
	}

	if err := o.fanOutAdvisories(ctx, deps, bundles, &bundlesMu, builder); err != nil {
		return report.Report{}, err
	}
	if err := o.fanOutMetadata(ctx, deps, bundles, &bundlesMu, builder); err != nil {
		return report.Report{}, err
	}

	if err := o.deriveAndEvaluate(ctx, deps, bundles, builder); err != nil {
		return report.Report{}, err
	}

	r := builder.Build(o.now())
	if o.metrics != nil {
		o.metrics.ObserveRun(startedAt, len(deps))
	}
	return r, nil
}

// fanOutAdvisories dispatches one EnrichBatch call per advisory provider,
// each gated by the two-layer semaphore, and merges the results into
// bundles. Providers run concurrently with each other; a run only
// requires ordering be deterministic in the final report, not in transit.
func (o *Orchestrator) fanOutAdvisories(ctx context.Context, deps []dependency.Dependency, bundles map[dependency.Key]*ResultBundle, mu *sync.Mutex, builder *report.Builder) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range o.advisoryProviders {
		p := p
		g.Go(func() error {
			release, err := o.acquire(gctx, p.Name())
			if err != nil {
				// Couldn't get a turn to call the provider, most often because
				// ctx was already done. Mark its dependencies unavailable and
				// let the rest of the run proceed instead of aborting the
				// whole report.
				mu.Lock()
				for _, d := range deps {
					if b, ok := bundles[d.KeyOf()]; ok {
						b.Unavailable[p.Name()] = true
					}
				}
				builder.SetSourceOutcome(p.Name(), report.SourceDegraded)
				mu.Unlock()
				return nil
			}
			defer release()

			start := o.now()
			batch, err := p.EnrichBatch(gctx, deps)
			o.observeProvider(p.Name(), start, err != nil)
			if err != nil {
				// A provider returning a hard error (rather than marking its
				// own entries Unavailable) has already violated its contract;
				// treat the whole batch as unavailable rather than abort the
				// run.
				mu.Lock()
				for _, d := range deps {
					if b, ok := bundles[d.KeyOf()]; ok {
						b.Unavailable[p.Name()] = true
					}
				}
				builder.SetSourceOutcome(p.Name(), report.SourceDegraded)
				mu.Unlock()
				return nil
			}

			degraded := false
			mu.Lock()
			for key, outcome := range batch {
				b, ok := bundles[key]
				if !ok {
					continue
				}
				if outcome.Unavailable {
					b.Unavailable[p.Name()] = true
					degraded = true
					continue
				}
				b.Advisories = append(b.Advisories, outcome.Advisories...)
			}
			if degraded {
				builder.SetSourceOutcome(p.Name(), report.SourceDegraded)
			} else {
				builder.SetSourceOutcome(p.Name(), report.SourceOK)
			}
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// fanOutMetadata dispatches one FetchMetadata call per (provider,
// dependency) pair whose ecosystem the provider claims, bounded by the
// two-layer semaphore.
func (o *Orchestrator) fanOutMetadata(ctx context.Context, deps []dependency.Dependency, bundles map[dependency.Key]*ResultBundle, mu *sync.Mutex, builder *report.Builder) error {
	g, gctx := errgroup.WithContext(ctx)
	sourceDegraded := make(map[string]bool)
	var sdMu sync.Mutex

	for _, p := range o.metadataProviders {
		p := p
		for _, d := range deps {
			if d.Ecosystem != p.Ecosystem() {
				continue
			}
			d := d
			g.Go(func() error {
				release, err := o.acquire(gctx, providerSourceName(p))
				if err != nil {
					// Same as the advisory fan-out: a lost race against ctx marks
					// this dependency unavailable for this source rather than
					// aborting the run.
					mu.Lock()
					if b, ok := bundles[d.KeyOf()]; ok {
						b.Unavailable[providerSourceName(p)] = true
					}
					sdMu.Lock()
					sourceDegraded[providerSourceName(p)] = true
					sdMu.Unlock()
					mu.Unlock()
					return nil
				}
				defer release()

				start := o.now()
				meta, err := p.FetchMetadata(gctx, d)
				o.observeProvider(providerSourceName(p), start, err != nil || meta.Unavailable)
				mu.Lock()
				b, ok := bundles[d.KeyOf()]
				if ok {
					if err != nil || meta.Unavailable {
						b.Unavailable[providerSourceName(p)] = true
						sdMu.Lock()
						sourceDegraded[providerSourceName(p)] = true
						sdMu.Unlock()
					} else {
						b.Metadata = meta
					}
				}
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, p := range o.metadataProviders {
		name := providerSourceName(p)
		if sourceDegraded[name] {
			builder.SetSourceOutcome(name, report.SourceDegraded)
		} else {
			builder.SetSourceOutcome(name, report.SourceOK)
		}
	}
	return nil
}

func providerSourceName(p metadata.Provider) string {
	return "metadata:" + string(p.Ecosystem())
}

// deriveAndEvaluate runs the Signal Deriver and Policy Engine for every
// dependency concurrently. Both are safe for concurrent use: Derive is a
// pure function and Engine.Evaluate only takes a lock to read its prepared
// query, never across Eval itself.
//
// It deliberately runs against context.WithoutCancel(ctx) rather than ctx
// itself: by the time a run reaches this stage, every network call has
// already finished or been marked unavailable, so there is nothing left
// here that a deadline should cut short. Letting the original cancellation
// reach this stage would turn a pipeline that's merely slow to fetch
// advisories into one that renders no report at all.
func (o *Orchestrator) deriveAndEvaluate(ctx context.Context, deps []dependency.Dependency, bundles map[dependency.Key]*ResultBundle, builder *report.Builder) error {
	type verdictRow struct {
		dep         dependency.Dependency
		verdict     policy.Verdict
		unavailable []string
	}
	rows := make([]verdictRow, len(deps))

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	sem := semaphore.NewWeighted(defaultSourceConcurrency * 2)
	for i, d := range deps {
		i, d := i, d
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			b := bundles[d.KeyOf()]
			advisory.SortAdvisories(b.Advisories)
			sig := signal.Derive(d, b.Advisories, b.Metadata, o.thresholds, o.now())
			verdict, err := o.engine.Evaluate(gctx, sig)
			if err != nil {
				return errors.Wrap(err, "orchestrator: evaluate policy")
			}
			rows[i] = verdictRow{dep: d, verdict: verdict, unavailable: b.unavailableSources()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range rows {
		builder.AddVerdict(r.dep, r.verdict, r.unavailable)
	}
	return nil
}
