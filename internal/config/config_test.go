package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ashirbekov/txinsights/internal/llm"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "txinsights.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if cfg.Sink.Driver != DefaultSinkDriver {
		t.Errorf("Sink.Driver = %q, want %q", cfg.Sink.Driver, DefaultSinkDriver)
	}
	if cfg.Load.BatchSize != DefaultBatchSize {
		t.Errorf("Load.BatchSize = %d, want %d", cfg.Load.BatchSize, DefaultBatchSize)
	}
	if cfg.Load.Workers != DefaultLoadWorkers {
		t.Errorf("Load.Workers = %d, want %d", cfg.Load.Workers, DefaultLoadWorkers)
	}
	if cfg.Query.DisplayLimit != DefaultDisplayLimit {
		t.Errorf("Query.DisplayLimit = %d, want %d", cfg.Query.DisplayLimit, DefaultDisplayLimit)
	}
	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
	if cfg.Gemini.Model != llm.DefaultModel {
		t.Errorf("Gemini.Model = %q, want %q", cfg.Gemini.Model, llm.DefaultModel)
	}
}

func TestLoadFile(t *testing.T) {
	p := writeConfig(t, `
log:
  level: debug
server:
  addr: ":9090"
sink:
  driver: sqlite
  path: /data/tx.db
  table: txns
gemini:
  api_key: abc123
  model: gemini-2.5-pro
load:
  batch_size: 250
  abort_on_error: true
query:
  display_limit: 50
`)

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Sink.Driver != "sqlite" || cfg.Sink.Path != "/data/tx.db" || cfg.Sink.Table != "txns" {
		t.Errorf("Sink = %+v", cfg.Sink)
	}
	if cfg.Gemini.APIKey != "abc123" || cfg.Gemini.Model != "gemini-2.5-pro" {
		t.Errorf("Gemini = %+v", cfg.Gemini)
	}
	if cfg.Load.BatchSize != 250 || !cfg.Load.AbortOnError {
		t.Errorf("Load = %+v", cfg.Load)
	}
	if cfg.Query.DisplayLimit != 50 {
		t.Errorf("Query.DisplayLimit = %d", cfg.Query.DisplayLimit)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() accepted a missing explicit config file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	p := writeConfig(t, `
sink:
  driver: sqlite
load:
  batch_size: 250
`)
	t.Setenv("TXINSIGHTS_SINK__DRIVER", "postgres")
	t.Setenv("TXINSIGHTS_LOAD__BATCH_SIZE", "42")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Sink.Driver != "postgres" {
		t.Errorf("Sink.Driver = %q, env override lost", cfg.Sink.Driver)
	}
	if cfg.Load.BatchSize != 42 {
		t.Errorf("Load.BatchSize = %d, env override lost", cfg.Load.BatchSize)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TXINSIGHTS_SINK__DRIVER", "sink.driver"},
		{"TXINSIGHTS_GEMINI__API_KEY", "gemini.api_key"},
		{"TXINSIGHTS_LOG__LEVEL", "log.level"},
	}
	for _, tt := range tests {
		if got := envKey(tt.in); got != tt.want {
			t.Errorf("envKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGeminiKeyEnvFallback(t *testing.T) {
	p := writeConfig(t, "sink:\n  driver: sqlite\n")
	t.Setenv("GEMINI_API_KEY", "from-env")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Gemini.APIKey != "from-env" {
		t.Errorf("Gemini.APIKey = %q, want bare env fallback", cfg.Gemini.APIKey)
	}
}

func TestExpandEnvVarsInDSN(t *testing.T) {
	p := writeConfig(t, `
sink:
  driver: postgres
  dsn: postgres://svc:${TX_PGPASS}@db:5432/tx
`)
	t.Setenv("TX_PGPASS", "hunter2")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Sink.DSN != "postgres://svc:hunter2@db:5432/tx" {
		t.Errorf("Sink.DSN = %q", cfg.Sink.DSN)
	}
}

func TestExpandEnvVarsLeavesUnknown(t *testing.T) {
	if got := expandEnvVars("${TX_DEFINITELY_UNSET_VAR}"); got != "${TX_DEFINITELY_UNSET_VAR}" {
		t.Errorf("expandEnvVars() = %q, want the literal back", got)
	}
}

func TestBadValuesNormalized(t *testing.T) {
	p := writeConfig(t, `
load:
  batch_size: -5
  workers: 0
query:
  display_limit: 0
`)

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Load.BatchSize != DefaultBatchSize {
		t.Errorf("Load.BatchSize = %d", cfg.Load.BatchSize)
	}
	if cfg.Load.Workers != DefaultLoadWorkers {
		t.Errorf("Load.Workers = %d", cfg.Load.Workers)
	}
	if cfg.Query.DisplayLimit != DefaultDisplayLimit {
		t.Errorf("Query.DisplayLimit = %d", cfg.Query.DisplayLimit)
	}
}

func TestToSinkConfig(t *testing.T) {
	cfg := &Config{Sink: SinkConfig{
		Driver:  "bigquery",
		Project: "analytics-prod",
		Dataset: "cards",
		Table:   "txns",
	}}

	sc := cfg.ToSinkConfig()
	if sc.Driver != "bigquery" || sc.Project != "analytics-prod" || sc.Dataset != "cards" || sc.Table != "txns" {
		t.Errorf("ToSinkConfig() = %+v", sc)
	}
}

func TestToGeminiConfig(t *testing.T) {
	cfg := &Config{Gemini: GeminiConfig{APIKey: "k", Model: "gemini-2.5-flash"}}

	gc := cfg.ToGeminiConfig()
	if gc.APIKey != "k" || gc.Model != "gemini-2.5-flash" {
		t.Errorf("ToGeminiConfig() = %+v", gc)
	}
}
