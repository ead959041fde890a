// Package config loads service configuration from an optional YAML file with
// TXINSIGHTS_-prefixed environment overrides.
package config

import (
	"github.com/ashirbekov/txinsights/internal/llm"
	"github.com/ashirbekov/txinsights/internal/sink"
)

// SinkConfig selects and parameterizes the relational sink.
type SinkConfig struct {
	Driver  string `koanf:"driver"` // duckdb, sqlite, postgres, bigquery
	Path    string `koanf:"path"`   // database file for embedded drivers
	DSN     string `koanf:"dsn"`    // connection string for postgres
	Project string `koanf:"project"`
	Dataset string `koanf:"dataset"`
	Table   string `koanf:"table"`
}

// GeminiConfig holds reasoning-service credentials.
type GeminiConfig struct {
	APIKey string `koanf:"api_key"`
	Model  string `koanf:"model"`
}

// LoadConfig tunes the parquet ingest path.
type LoadConfig struct {
	BatchSize    int  `koanf:"batch_size"`
	AbortOnError bool `koanf:"abort_on_error"`
	Workers      int  `koanf:"workers"` // async load-job workers
}

// QueryConfig tunes the question-answering path.
type QueryConfig struct {
	DisplayLimit int `koanf:"display_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `koanf:"level"`
}

// Config is the full service configuration. Binaries load it once and hand
// plain parameters down; packages below cmd never see this struct.
type Config struct {
	Log    LogConfig    `koanf:"log"`
	Server ServerConfig `koanf:"server"`
	Sink   SinkConfig   `koanf:"sink"`
	Gemini GeminiConfig `koanf:"gemini"`
	Load   LoadConfig   `koanf:"load"`
	Query  QueryConfig  `koanf:"query"`
}

// ToSinkConfig materializes the sink package's driver configuration.
func (c *Config) ToSinkConfig() sink.Config {
	return sink.Config{
		Driver:  c.Sink.Driver,
		Path:    c.Sink.Path,
		DSN:     c.Sink.DSN,
		Project: c.Sink.Project,
		Dataset: c.Sink.Dataset,
		Table:   c.Sink.Table,
	}
}

// ToGeminiConfig materializes the reasoning-service client configuration.
func (c *Config) ToGeminiConfig() llm.GeminiConfig {
	return llm.GeminiConfig{APIKey: c.Gemini.APIKey, Model: c.Gemini.Model}
}

// applyDefaults normalizes values an operator left out or set to nonsense.
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Sink.Driver == "" {
		c.Sink.Driver = DefaultSinkDriver
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = llm.DefaultModel
	}
	if c.Load.BatchSize <= 0 {
		c.Load.BatchSize = DefaultBatchSize
	}
	if c.Load.Workers <= 0 {
		c.Load.Workers = DefaultLoadWorkers
	}
	if c.Query.DisplayLimit <= 0 {
		c.Query.DisplayLimit = DefaultDisplayLimit
	}
}
