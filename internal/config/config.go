// Package config loads profiler configuration from YAML with environment
// variable defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// SubstrateConfig selects and configures the substrate backend.
type SubstrateConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`
}

// Config holds the full profiler configuration.
type Config struct {
	// Input is the root path of the raw line-protocol batch.
	Input string `yaml:"input"`

	// Output is the directory recipes and reports are written to.
	Output string `yaml:"output"`

	Substrate SubstrateConfig `yaml:"substrate"`

	// SampleLimit caps per-family uniform samples.
	SampleLimit int `yaml:"sample_limit"`

	// TopK caps categorical top-value lists.
	TopK int `yaml:"top_k"`

	// ListenAddr is the address the serve command binds to.
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the configuration seeded from environment variables.
func Default() Config {
	return Config{
		Input:  getEnv("PROFILER_INPUT", "./input"),
		Output: getEnv("PROFILER_OUTPUT", "./output"),
		Substrate: SubstrateConfig{
			Backend:    getEnv("PROFILER_SUBSTRATE", "memory"),
			SQLitePath: getEnv("PROFILER_SQLITE_PATH", "profiler.db"),
		},
		SampleLimit: getEnvInt("PROFILER_SAMPLE_LIMIT", 1000),
		TopK:        getEnvInt("PROFILER_TOP_K", 100),
		ListenAddr:  getEnv("PROFILER_LISTEN_ADDR", "0.0.0.0:8080"),
	}
}

// Load reads a YAML config file over the environment defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the run cannot proceed with.
func (c Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input path must not be empty")
	}
	if c.Output == "" {
		return fmt.Errorf("output path must not be empty")
	}
	switch c.Substrate.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown substrate backend: %s", c.Substrate.Backend)
	}
	if c.SampleLimit <= 0 {
		return fmt.Errorf("sample_limit must be positive")
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
