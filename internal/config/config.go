// Package config loads and validates rtx's run configuration: a TOML file
// under the [rtx] table, overridable by RTX_-prefixed environment
// variables, validated with struct tags before any network call is made.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// SourceConfig is the per-advisory/metadata-source slice of the config
// file, keyed by source name in TOML ([rtx.sources.osv], [rtx.sources.ghsa]).
type SourceConfig struct {
	Endpoint       string        `toml:"endpoint" validate:"omitempty,url"`
	AuthTokenEnv   string        `toml:"auth_token_env"`
	BatchSize      int           `toml:"batch_size" validate:"gte=1"`
	MaxInFlight    int           `toml:"max_in_flight" validate:"gte=1"`
	RequestTimeout time.Duration `toml:"request_timeout" validate:"gt=0"`
	RetryCount     int           `toml:"retry_count" validate:"gte=0"`
	Disabled       bool          `toml:"disabled"`
}

// CacheConfig selects and sizes the cache backend.
type CacheConfig struct {
	Backend    string `toml:"backend" validate:"oneof=memory file redis"`
	Dir        string `toml:"dir"`
	RedisAddr  string `toml:"redis_addr"`
	MaxEntries int    `toml:"max_entries" validate:"gte=1"`
}

// ThresholdConfig mirrors signal.Thresholds so operators can tune trust
// rules without a rebuild.
type ThresholdConfig struct {
	AbandonmentDays      int `toml:"abandonment_days" validate:"gte=1"`
	ChurnHighPerMonth    int `toml:"churn_high_per_month" validate:"gte=1"`
	ChurnMediumPerMonth  int `toml:"churn_medium_per_month" validate:"gte=1"`
	BusFactorZeroMax     int `toml:"bus_factor_zero_max" validate:"gte=0"`
	BusFactorOneMax      int `toml:"bus_factor_one_max" validate:"gte=0"`
	LowMaturityReleases  int `toml:"low_maturity_releases" validate:"gte=1"`
	TyposquatMaxDistance int `toml:"typosquat_max_distance" validate:"gte=1"`
}

// NotifyConfig gates the optional Slack run-summary notification.
type NotifyConfig struct {
	SlackWebhookEnv   string `toml:"slack_webhook_env"`
	MinSeverity       string `toml:"min_severity" validate:"omitempty,oneof=low medium high critical"`
}

// Config is the root [rtx] table.
type Config struct {
	GlobalConcurrency int                     `toml:"global_concurrency" validate:"gte=1"`
	Sources           map[string]SourceConfig `toml:"sources"`
	Cache             CacheConfig             `toml:"cache"`
	Thresholds        ThresholdConfig         `toml:"thresholds"`
	Notify            NotifyConfig            `toml:"notify"`
	MetricsAddr       string                  `toml:"metrics_addr"`
	// TyposquatCorpusPath points at a JSON file of per-ecosystem popular
	// package names (see metadata.StaticCorpus). Left empty, typosquat
	// detection never fires for lack of a candidate pool - a silent
	// degrade, not a startup error, since the corpus is optional input.
	TyposquatCorpusPath string `toml:"typosquat_corpus_path"`
}

type root struct {
	RTX Config `toml:"rtx"`
}

// Default returns the configuration rtx runs with when no file is given.
func Default() Config {
	return Config{
		GlobalConcurrency: 32,
		Sources: map[string]SourceConfig{
			"osv": {
				Endpoint:       "https://api.osv.dev/v1/querybatch",
				BatchSize:      500,
				MaxInFlight:    5,
				RequestTimeout: 5 * time.Second,
				RetryCount:     2,
			},
		},
		Cache: CacheConfig{
			Backend:    "memory",
			MaxEntries: 512,
		},
		Thresholds: ThresholdConfig{
			AbandonmentDays:      540,
			ChurnHighPerMonth:    10,
			ChurnMediumPerMonth:  5,
			BusFactorZeroMax:     0,
			BusFactorOneMax:      1,
			LowMaturityReleases:  3,
			TyposquatMaxDistance: 2,
		},
		MetricsAddr: ":9090",
	}
}

// Load reads path (if non-empty) as TOML, applies RTX_-prefixed
// environment overrides, then validates the result. An empty path loads
// the defaults and applies environment overrides on top of them.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "config: read file")
		}
		var r root
		if err := toml.Unmarshal(data, &r); err != nil {
			return Config{}, errors.Wrap(err, "config: parse toml")
		}
		cfg = mergeNonZero(cfg, r.RTX)
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeNonZero overlays file-provided values onto the defaults. TOML
// unmarshals into a fresh struct, so a top-level scalar absent from the
// file stays at base's default rather than zeroing out. Tables are taken
// whole, not field by field: [rtx.sources] replaces the default sources
// when it has any entry, [rtx.cache] replaces the default cache table when
// it sets backend, [rtx.thresholds] replaces the default thresholds when it
// sets abandonment_days, and [rtx.notify] replaces the default when it sets
// either of its keys. Fields a replacing table leaves out are zero.
func mergeNonZero(base, file Config) Config {
	if file.GlobalConcurrency != 0 {
		base.GlobalConcurrency = file.GlobalConcurrency
	}
	if len(file.Sources) > 0 {
		base.Sources = file.Sources
	}
	if file.Cache.Backend != "" {
		base.Cache = file.Cache
	}
	if file.Thresholds.AbandonmentDays != 0 {
		base.Thresholds = file.Thresholds
	}
	if file.Notify.SlackWebhookEnv != "" || file.Notify.MinSeverity != "" {
		base.Notify = file.Notify
	}
	if file.MetricsAddr != "" {
		base.MetricsAddr = file.MetricsAddr
	}
	if file.TyposquatCorpusPath != "" {
		base.TyposquatCorpusPath = file.TyposquatCorpusPath
	}
	return base
}

// applyEnvOverrides walks a small fixed set of RTX_ environment variables,
// each taking precedence over file and default values. Unset variables
// never touch cfg.
func applyEnvOverrides(cfg *Config) {
	if v, ok := lookupEnv("RTX_GLOBAL_CONCURRENCY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GlobalConcurrency = n
		}
	}
	if v, ok := lookupEnv("RTX_CACHE_BACKEND"); ok {
		cfg.Cache.Backend = v
	}
	if v, ok := lookupEnv("RTX_CACHE_DIR"); ok {
		cfg.Cache.Dir = v
	}
	if v, ok := lookupEnv("RTX_REDIS_ADDR"); ok {
		cfg.Cache.RedisAddr = v
	}
	if v, ok := lookupEnv("RTX_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := lookupEnv("RTX_NOTIFY_MIN_SEVERITY"); ok {
		cfg.Notify.MinSeverity = strings.ToLower(v)
	}
	if v, ok := lookupEnv("RTX_TYPOSQUAT_CORPUS_PATH"); ok {
		cfg.TyposquatCorpusPath = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func validate(cfg Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return errors.Wrap(err, "config: validation failed")
	}
	for name, sc := range cfg.Sources {
		if err := v.Struct(sc); err != nil {
			return errors.Wrapf(err, "config: source %q validation failed", name)
		}
	}
	return nil
}

// ResolveToken reads the environment variable named by envVar, returning
// an empty string if envVar itself is empty or unset. Auth tokens are
// never stored in the TOML file directly.
func ResolveToken(envVar string) string {
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}
