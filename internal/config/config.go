// Package config loads server configuration.
//
// Precedence, lowest first: built-in defaults, the YAML file, the process
// environment (including a .env file loaded by the binary), command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/awsl-project/clinicpulse/internal/query"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "CLINICPULSE_"

// Source kinds beyond the executor kinds.
const (
	KindAuto = ""
	KindNone = "none"
)

type Config struct {
	Addr          string            `yaml:"addr"`
	StaticDir     string            `yaml:"static_dir"`
	LogLevel      string            `yaml:"log_level"`
	TopProcedures int               `yaml:"top_procedures"`
	Source        SourceConfig      `yaml:"source"`
	Snapshot      SnapshotConfig    `yaml:"snapshot"`
	Queries       map[string]string `yaml:"queries"`
}

// SourceConfig describes the primary remote source.
type SourceConfig struct {
	// Kind is http, sql or none. Empty picks http when URL is set, sql when
	// DSN is set, none otherwise.
	Kind           string `yaml:"kind"`
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	DSN            string `yaml:"dsn"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxConns       int32  `yaml:"max_conns"`
}

// SnapshotConfig locates the fallback snapshot files.
type SnapshotConfig struct {
	Claims string `yaml:"claims"`
	Ledger string `yaml:"ledger"`
}

func Default() *Config {
	return &Config{
		Addr:          ":9880",
		LogLevel:      "info",
		TopProcedures: 10,
		Source:        SourceConfig{TimeoutSeconds: 30},
		Snapshot: SnapshotConfig{
			Claims: "data/claims.csv",
			Ledger: "data/ledger.csv",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays CLINICPULSE_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("ADDR", &c.Addr)
	str("STATIC_DIR", &c.StaticDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("SOURCE_KIND", &c.Source.Kind)
	str("SOURCE_URL", &c.Source.URL)
	str("SOURCE_API_KEY", &c.Source.APIKey)
	str("DSN", &c.Source.DSN)
	str("CLAIMS_SNAPSHOT", &c.Snapshot.Claims)
	str("LEDGER_SNAPSHOT", &c.Snapshot.Ledger)

	var errs []error
	num := func(name string, set func(int)) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		set(n)
	}
	num("TOP_PROCEDURES", func(n int) { c.TopProcedures = n })
	num("SOURCE_TIMEOUT", func(n int) { c.Source.TimeoutSeconds = n })
	num("SOURCE_MAX_CONNS", func(n int) { c.Source.MaxConns = int32(n) })
	return errors.Join(errs...)
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	switch c.Source.ResolvedKind() {
	case KindNone:
	case query.KindHTTP:
		if c.Source.URL == "" {
			return errors.New("source.url is required for the http source")
		}
	case query.KindSQL:
		if c.Source.DSN == "" {
			return errors.New("source.dsn is required for the sql source")
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	if c.Snapshot.Claims == "" || c.Snapshot.Ledger == "" {
		return errors.New("snapshot.claims and snapshot.ledger are required")
	}
	if c.TopProcedures < 0 {
		return errors.New("top_procedures must not be negative")
	}
	if c.Source.TimeoutSeconds < 0 {
		return errors.New("source.timeout_seconds must not be negative")
	}
	return nil
}

// ResolvedKind applies the auto-detection rule to Kind.
func (s SourceConfig) ResolvedKind() string {
	kind := strings.ToLower(strings.TrimSpace(s.Kind))
	if kind != KindAuto {
		return kind
	}
	switch {
	case s.URL != "":
		return query.KindHTTP
	case s.DSN != "":
		return query.KindSQL
	default:
		return KindNone
	}
}

// QueryOptions converts the source section for query.NewExecutor.
func (s SourceConfig) QueryOptions() query.Options {
	return query.Options{
		Kind:     s.ResolvedKind(),
		URL:      s.URL,
		APIKey:   s.APIKey,
		DSN:      s.DSN,
		Timeout:  time.Duration(s.TimeoutSeconds) * time.Second,
		MaxConns: s.MaxConns,
	}
}
