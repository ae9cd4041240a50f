// Package config loads pixel-hawk's engine-internal settings: the nest
// root, upstream tile backend, cadence, and fetch timeouts. The
// bootstrap/CLI flag-vs-env precedence that resolves the nest root
// itself is an out-of-scope collaborator (spec.md §1); this package only
// loads what the Engine needs once that root is known.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Engine is the subset of config.yaml (plus environment overrides) the
// Engine reads at startup.
type Engine struct {
	NestRoot             string        `yaml:"nest-root" mapstructure:"nest-root"`
	UpstreamBaseURL      string        `yaml:"upstream-base-url" mapstructure:"upstream-base-url"`
	CycleInterval        time.Duration `yaml:"cycle-interval" mapstructure:"cycle-interval"`
	ConnectTimeout       time.Duration `yaml:"connect-timeout" mapstructure:"connect-timeout"`
	TotalTimeout         time.Duration `yaml:"total-timeout" mapstructure:"total-timeout"`
	MaxConsecutiveErrors int           `yaml:"max-consecutive-errors" mapstructure:"max-consecutive-errors"`
}

// DefaultCycleInterval is 30·(1+√5) seconds, chosen per spec.md §4.8 to be
// dissonant with a known upstream 30-second cache period.
const DefaultCycleInterval = 97080 * time.Millisecond

func defaults() Engine {
	return Engine{
		UpstreamBaseURL:      "https://backend.example/tiles",
		CycleInterval:        DefaultCycleInterval,
		ConnectTimeout:       10 * time.Second,
		TotalTimeout:         30 * time.Second,
		MaxConsecutiveErrors: 3,
	}
}

// Load reads <nestRoot>/config.yaml via viper, layering environment
// variable overrides (PIXELHAWK_UPSTREAM_BASE_URL, PIXELHAWK_CYCLE_SECONDS)
// on top. A missing config file is not an error: defaults apply.
func Load(nestRoot string) (*Engine, error) {
	cfg := defaults()
	cfg.NestRoot = nestRoot

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(nestRoot)
	v.SetEnvPrefix("PIXELHAWK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	} else if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if secs := os.Getenv("PIXELHAWK_CYCLE_SECONDS"); secs != "" {
		if d, err := time.ParseDuration(secs + "s"); err == nil {
			cfg.CycleInterval = d
		}
	}
	if base := os.Getenv("PIXELHAWK_UPSTREAM_BASE_URL"); base != "" {
		cfg.UpstreamBaseURL = base
	}

	return &cfg, nil
}

// DBPath returns the path to the SQLite database file under the nest root.
func (e *Engine) DBPath() string {
	return filepath.Join(e.NestRoot, "data", "pixel-hawk.db")
}

// TilesDir, ProjectsDir, SnapshotsDir are the cache directories under the
// nest root (spec.md §6).
func (e *Engine) TilesDir() string     { return filepath.Join(e.NestRoot, "tiles") }
func (e *Engine) ProjectsDir() string  { return filepath.Join(e.NestRoot, "projects") }
func (e *Engine) SnapshotsDir() string { return filepath.Join(e.NestRoot, "snapshots") }
