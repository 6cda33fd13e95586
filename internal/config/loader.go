package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"modeldash/internal/common/fsutil"
)

// Duration is a time.Duration that reads and writes strings like "60s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// CORS configures the opt-in CORS middleware.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Config holds runtime parameters for the dashboard.
// Zero values mean "unspecified"; Merge only copies set fields.
type Config struct {
	BackendURL             string   `json:"backend_url" yaml:"backend_url" toml:"backend_url"`
	Addr                   string   `json:"addr" yaml:"addr" toml:"addr"`
	RefreshInterval        Duration `json:"refresh_interval" yaml:"refresh_interval" toml:"refresh_interval"`
	RequestTimeout         Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	LogLevel               string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat              string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	LogFile                string   `json:"log_file" yaml:"log_file" toml:"log_file"`
	MaxBodyBytes           int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	MaxConcurrentMutations int      `json:"max_concurrent_mutations" yaml:"max_concurrent_mutations" toml:"max_concurrent_mutations"`
	CORS                   CORS     `json:"cors" yaml:"cors" toml:"cors"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BackendURL:             "http://localhost:11434",
		Addr:                   ":8080",
		RefreshInterval:        Duration(60 * time.Second),
		LogLevel:               "info",
		LogFormat:              "console",
		MaxBodyBytes:           1 << 20,
		MaxConcurrentMutations: 4,
	}
}

// DefaultPath is where the CLI looks for a config file when none is given.
const DefaultPath = "~/.config/modeldash/config.yaml"

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml. A leading ~ is expanded.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// LoadDefault loads DefaultPath when it exists and returns a zero Config otherwise.
func LoadDefault() (Config, error) {
	p, err := fsutil.ExpandHome(DefaultPath)
	if err != nil || !fsutil.PathExists(p) {
		return Config{}, nil
	}
	return Load(p)
}

// Merge returns c with every set field of over applied on top.
func (c Config) Merge(over Config) Config {
	if over.BackendURL != "" {
		c.BackendURL = over.BackendURL
	}
	if over.Addr != "" {
		c.Addr = over.Addr
	}
	if over.RefreshInterval != 0 {
		c.RefreshInterval = over.RefreshInterval
	}
	if over.RequestTimeout != 0 {
		c.RequestTimeout = over.RequestTimeout
	}
	if over.LogLevel != "" {
		c.LogLevel = over.LogLevel
	}
	if over.LogFormat != "" {
		c.LogFormat = over.LogFormat
	}
	if over.LogFile != "" {
		c.LogFile = over.LogFile
	}
	if over.MaxBodyBytes != 0 {
		c.MaxBodyBytes = over.MaxBodyBytes
	}
	if over.MaxConcurrentMutations != 0 {
		c.MaxConcurrentMutations = over.MaxConcurrentMutations
	}
	if over.CORS.Enabled || len(over.CORS.Origins) > 0 || len(over.CORS.Methods) > 0 || len(over.CORS.Headers) > 0 {
		c.CORS = over.CORS
	}
	return c
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MODELDASH_"

// ApplyEnv overrides fields from MODELDASH_* variables read through lookup
// (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("BACKEND_URL", &c.BackendURL)
	str("ADDR", &c.Addr)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("LOG_FILE", &c.LogFile)
	for name, dst := range map[string]*Duration{"REFRESH_INTERVAL": &c.RefreshInterval, "REQUEST_TIMEOUT": &c.RequestTimeout} {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
		}
	}
	if v, ok := lookup(EnvPrefix + "MAX_BODY_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_BODY_BYTES: %w", EnvPrefix, err)
		}
		c.MaxBodyBytes = n
	}
	if v, ok := lookup(EnvPrefix + "MAX_CONCURRENT_MUTATIONS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_CONCURRENT_MUTATIONS: %w", EnvPrefix, err)
		}
		c.MaxConcurrentMutations = n
	}
	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok && v != "" {
		c.CORS.Enabled = true
		c.CORS.Origins = splitCSV(v)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configurations the dashboard cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BackendURL) == "" {
		return fmt.Errorf("backend url is required")
	}
	if i := strings.Index(c.BackendURL, "://"); i >= 0 {
		if scheme := strings.ToLower(c.BackendURL[:i]); scheme != "http" && scheme != "https" {
			return fmt.Errorf("backend url: unsupported scheme %q", scheme)
		}
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", time.Duration(c.RefreshInterval))
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}
	if c.MaxConcurrentMutations < 0 {
		return fmt.Errorf("max concurrent mutations must not be negative")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", c.LogFormat)
	}
	return nil
}
