package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/awsl-project/clinicpulse/internal/query"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Source.ResolvedKind() != KindNone {
		t.Errorf("default source kind = %q, want none", cfg.Source.ResolvedKind())
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clinicpulse.yaml")
	content := `
addr: ":8088"
top_procedures: 5
source:
  url: "https://query.example.com/v1/query"
  timeout_seconds: 12
snapshot:
  claims: /srv/claims.parquet
queries:
  top_procedures: "SELECT name, revenue, visits FROM top LIMIT {limit}"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8088" || cfg.TopProcedures != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Snapshot.Claims != "/srv/claims.parquet" || cfg.Snapshot.Ledger != "data/ledger.csv" {
		t.Errorf("snapshot = %+v, want file value plus default ledger", cfg.Snapshot)
	}
	if !strings.Contains(cfg.Queries["top_procedures"], "{limit}") {
		t.Errorf("queries = %v", cfg.Queries)
	}

	opts := cfg.Source.QueryOptions()
	if opts.Kind != query.KindHTTP || opts.Timeout != 12*time.Second {
		t.Errorf("QueryOptions = %+v", opts)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("addr: [unclosed"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
	if cfg, err := Load(""); err != nil || cfg.Addr != ":9880" {
		t.Errorf("Load(\"\") = %+v, %v", cfg, err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"CLINICPULSE_ADDR":             ":7000",
		"CLINICPULSE_DSN":              "postgres://u@db/clinic",
		"CLINICPULSE_TOP_PROCEDURES":   "3",
		"CLINICPULSE_SOURCE_MAX_CONNS": "4",
		"CLINICPULSE_LEDGER_SNAPSHOT":  "/tmp/ledger.csv",
		"CLINICPULSE_STATIC_DIR":       "",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Addr != ":7000" || cfg.TopProcedures != 3 || cfg.Source.MaxConns != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Snapshot.Ledger != "/tmp/ledger.csv" {
		t.Errorf("ledger = %q", cfg.Snapshot.Ledger)
	}
	if cfg.Source.ResolvedKind() != query.KindSQL {
		t.Errorf("kind = %q, want sql", cfg.Source.ResolvedKind())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestApplyEnv_BadNumber(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{"CLINICPULSE_SOURCE_TIMEOUT": "soon"}))
	if err == nil || !strings.Contains(err.Error(), "CLINICPULSE_SOURCE_TIMEOUT") {
		t.Errorf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http without url", func(c *Config) { c.Source.Kind = "http" }},
		{"sql without dsn", func(c *Config) { c.Source.Kind = "sql" }},
		{"unknown kind", func(c *Config) { c.Source.Kind = "ftp" }},
		{"missing claims", func(c *Config) { c.Snapshot.Claims = "" }},
		{"negative top", func(c *Config) { c.TopProcedures = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
