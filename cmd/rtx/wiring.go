package main

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-logr/logr"
	"github.com/jordigilh/rtx/internal/advisory"
	"github.com/jordigilh/rtx/internal/cache"
	"github.com/jordigilh/rtx/internal/config"
	"github.com/jordigilh/rtx/internal/dependency"
	"github.com/jordigilh/rtx/internal/metadata"
	"github.com/jordigilh/rtx/internal/notify"
	"github.com/jordigilh/rtx/internal/orchestrator"
	"github.com/jordigilh/rtx/internal/policy"
	"github.com/jordigilh/rtx/internal/report"
	"github.com/jordigilh/rtx/internal/signal"
	"github.com/jordigilh/rtx/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func redisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func notifySlack(ctx context.Context, cfg config.Config, r report.Report) error {
	webhook := config.ResolveToken(cfg.Notify.SlackWebhookEnv)
	if webhook == "" {
		return nil
	}
	minSeverity := policy.SeverityMedium
	if cfg.Notify.MinSeverity != "" {
		minSeverity = policy.ParseSeverity(cfg.Notify.MinSeverity)
	}
	n := notify.NewSlackNotifier(webhook, minSeverity)
	return n.Notify(ctx, r)
}

func thresholdsFromConfig(tc config.ThresholdConfig) signal.Thresholds {
	return signal.Thresholds{
		AbandonmentDays:      tc.AbandonmentDays,
		ChurnHighPerMonth:    tc.ChurnHighPerMonth,
		ChurnMediumPerMonth:  tc.ChurnMediumPerMonth,
		BusFactorZeroMax:     tc.BusFactorZeroMax,
		BusFactorOneMax:      tc.BusFactorOneMax,
		LowMaturityReleases:  tc.LowMaturityReleases,
		TyposquatMaxDistance: tc.TyposquatMaxDistance,
	}
}

// buildCache constructs the cache backend cfg selects, defaulting to an
// in-memory LRU for any backend other than "file" or "redis". A file
// backend without a dir, or a redis backend without an address, is an
// error.
func buildCache(cfg config.CacheConfig) (cache.Cache, error) {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = cache.DefaultMaxEntries
	}

	switch cfg.Backend {
	case "file":
		if cfg.Dir == "" {
			return nil, errors.New("config: cache.dir is required for the file backend")
		}
		return cache.NewFileCache(cfg.Dir, maxEntries)
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, errors.New("config: cache.redis_addr is required for the redis backend")
		}
		return cache.NewRedisCache(redisClient(cfg.RedisAddr), "rtx", maxEntries), nil
	default:
		return cache.NewMemoryCache(maxEntries), nil
	}
}

// releaseURLFor returns a registry release-info URL builder for eco. Real
// deployments point these at the ecosystem's actual registry API; rtx
// ships sane per-ecosystem defaults so `rtx scan` works out of the box.
func releaseURLFor(eco dependency.Ecosystem) func(dependency.Dependency) string {
	switch eco {
	case dependency.NPM:
		return func(d dependency.Dependency) string {
			return fmt.Sprintf("https://registry.npmjs.org/%s", d.Name)
		}
	case dependency.PyPI:
		return func(d dependency.Dependency) string {
			return fmt.Sprintf("https://pypi.org/pypi/%s/json", d.Name)
		}
	case dependency.Cargo:
		return func(d dependency.Dependency) string {
			return fmt.Sprintf("https://crates.io/api/v1/crates/%s", d.Name)
		}
	case dependency.Go:
		return func(d dependency.Dependency) string {
			return fmt.Sprintf("https://proxy.golang.org/%s/@latest", d.Name)
		}
	default:
		return func(d dependency.Dependency) string { return "" }
	}
}

// buildTyposquatCorpus loads the static popular-name corpus cfg points at,
// or returns nil if no path is configured. A nil corpus simply means
// RegistryProvider never flags typosquats, rather than failing the run.
func buildTyposquatCorpus(cfg config.Config) (metadata.PopularNameCorpus, error) {
	if cfg.TyposquatCorpusPath == "" {
		return nil, nil
	}
	corpus, err := metadata.NewStaticCorpus(cfg.TyposquatCorpusPath)
	if err != nil {
		return nil, errors.Wrap(err, "rtx: load typosquat corpus")
	}
	return corpus, nil
}

// buildOrchestrator assembles the full provider set and returns a ready
// Orchestrator. log records events a provider can't surface any other way,
// such as permanently disabling itself after an authentication failure;
// reg collects the run's Prometheus metrics (pass prometheus.NewRegistry()
// when the caller doesn't already have one, e.g. to serve on the configured
// metrics_addr).
func buildOrchestrator(ctx context.Context, cfg config.Config, log logr.Logger, reg prometheus.Registerer) (*orchestrator.Orchestrator, error) {
	metrics := telemetry.NewMetrics(reg)

	c, err := buildCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	c = cache.WithMetrics(c, metrics)

	corpus, err := buildTyposquatCorpus(cfg)
	if err != nil {
		return nil, err
	}

	var advisoryProviders []advisory.Provider
	var disabledSources []string
	for name, sc := range cfg.Sources {
		if sc.Disabled {
			disabledSources = append(disabledSources, name)
			continue
		}
		guardCfg := advisory.SourceConfig{
			BatchSize:      sc.BatchSize,
			MaxInFlight:    sc.MaxInFlight,
			RequestTimeout: sc.RequestTimeout,
			RetryCount:     sc.RetryCount,
			AuthToken:      config.ResolveToken(sc.AuthTokenEnv),
		}
		var inner advisory.Provider
		switch name {
		case "osv":
			inner = advisory.NewOSVProvider(sc.Endpoint, c)
		default:
			inner = advisory.NewPlatformProvider(sc.Endpoint, guardCfg.AuthToken, c)
		}
		advisoryProviders = append(advisoryProviders, advisory.Guard(inner, guardCfg, log))
	}

	var metadataProviders []metadata.Provider
	for _, eco := range dependency.KnownEcosystems() {
		metadataProviders = append(metadataProviders, metadata.NewRegistryProvider(
			eco, releaseURLFor(eco), corpus, 200, cfg.Thresholds.TyposquatMaxDistance,
		))
	}

	engine, err := policy.NewEngine(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "rtx: build policy engine")
	}

	opts := []orchestrator.Option{
		orchestrator.WithGlobalConcurrency(int64(cfg.GlobalConcurrency)),
		orchestrator.WithThresholds(thresholdsFromConfig(cfg.Thresholds)),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithDisabledSources(disabledSources...),
	}
	return orchestrator.New(engine, advisoryProviders, metadataProviders, opts...), nil
}
