package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ashirbekov/txinsights/internal/ingest"
	"github.com/ashirbekov/txinsights/internal/query"
)

// ConfigFileName is the config file looked up in the working directory when
// no explicit path is given.
const ConfigFileName = "txinsights.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "txinsights.yml"

// EnvPrefix marks environment variables that override config keys.
// Double underscore separates sections: TXINSIGHTS_SINK__DRIVER → sink.driver.
const EnvPrefix = "TXINSIGHTS_"

const (
	DefaultLogLevel     = "info"
	DefaultAddr         = ":8080"
	DefaultSinkDriver   = "duckdb"
	DefaultBatchSize    = ingest.DefaultBatchSize
	DefaultLoadWorkers  = 2
	DefaultDisplayLimit = query.DefaultDisplayLimit
)

// Load reads configuration from an optional YAML file plus environment
// overrides. Precedence (highest to lowest): env vars > config file >
// defaults. An empty path means "use txinsights.yaml from the working
// directory if present".
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// The original deployment configures the model key as a bare
	// GEMINI_API_KEY variable; honor that spelling too.
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	cfg.Sink.DSN = expandEnvVars(cfg.Sink.DSN)
	cfg.Gemini.APIKey = expandEnvVars(cfg.Gemini.APIKey)

	cfg.applyDefaults()
	return &cfg, nil
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"log.level":           DefaultLogLevel,
		"server.addr":         DefaultAddr,
		"sink.driver":         DefaultSinkDriver,
		"load.batch_size":     DefaultBatchSize,
		"load.workers":        DefaultLoadWorkers,
		"query.display_limit": DefaultDisplayLimit,
	}
}

// findConfigFile finds the config file in the working directory.
// Returns empty string if not found.
func findConfigFile() string {
	if _, err := os.Stat(ConfigFileName); err == nil {
		return ConfigFileName
	}
	if _, err := os.Stat(ConfigFileNameAlt); err == nil {
		return ConfigFileNameAlt
	}
	return ""
}

// envKey maps TXINSIGHTS_SINK__DRIVER to sink.driver.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns with environment variable values,
// so credentials can stay out of the config file.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if val := os.Getenv(name); val != "" {
			return val
		}
		return match
	})
}
