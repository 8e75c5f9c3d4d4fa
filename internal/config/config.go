package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alvmarrod/link-weaver/internal/record"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "LINKWEAVER_"

// Config holds all runtime configuration parameters
type Config struct {
	MaxRedirectHops    int    `json:"max_redirect_hops" yaml:"max_redirect_hops"`
	ResolveSource      *bool  `json:"resolve_source" yaml:"resolve_source"`
	RedirectRef        string `json:"redirect_ref" yaml:"redirect_ref"`
	LinkSourceRef      string `json:"link_source_ref" yaml:"link_source_ref"`
	LinkTargetRef      string `json:"link_target_ref" yaml:"link_target_ref"`
	RequireGzip        bool   `json:"require_gzip" yaml:"require_gzip"`
	SortChunkSize      int    `json:"sort_chunk_size" yaml:"sort_chunk_size"`
	SortWorkers        int    `json:"sort_workers" yaml:"sort_workers"`
	TempDir            string `json:"temp_dir" yaml:"temp_dir"`
	DBPath             string `json:"db_path" yaml:"db_path"`
	MetricsPath        string `json:"metrics_path" yaml:"metrics_path"`
	PromTextfile       string `json:"prom_textfile" yaml:"prom_textfile"`
	LogLevel           string `json:"log_level" yaml:"log_level"`
	ProgressIntervalMs int    `json:"progress_interval_ms" yaml:"progress_interval_ms"`
	DumpsBaseURL       string `json:"dumps_base_url" yaml:"dumps_base_url"`
	RequestTimeoutMs   int    `json:"request_timeout_ms" yaml:"request_timeout_ms"`
}

// LoadConfig reads configuration from an optional JSON or YAML file, applies
// defaults and LINKWEAVER_* environment overrides, then validates it.
// An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadEnvFile loads variables from a .env file into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}
	return nil
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.MaxRedirectHops == 0 {
		cfg.MaxRedirectHops = 100
	}
	if cfg.ResolveSource == nil {
		resolve := true
		cfg.ResolveSource = &resolve
	}
	if cfg.RedirectRef == "" {
		cfg.RedirectRef = "title"
	}
	if cfg.LinkSourceRef == "" {
		cfg.LinkSourceRef = "id"
	}
	if cfg.LinkTargetRef == "" {
		cfg.LinkTargetRef = "title"
	}
	if cfg.SortChunkSize == 0 {
		cfg.SortChunkSize = 1000000
	}
	if cfg.SortWorkers == 0 {
		cfg.SortWorkers = 2
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "linkweaver.db"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "metrics.json"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ProgressIntervalMs == 0 {
		cfg.ProgressIntervalMs = 10000
	}
	if cfg.DumpsBaseURL == "" {
		cfg.DumpsBaseURL = "https://dumps.wikimedia.org"
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = 10000
	}
}

// applyEnv overrides fields from LINKWEAVER_* variables
func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"REDIRECT_REF":    &cfg.RedirectRef,
		"LINK_SOURCE_REF": &cfg.LinkSourceRef,
		"LINK_TARGET_REF": &cfg.LinkTargetRef,
		"TEMP_DIR":        &cfg.TempDir,
		"DB_PATH":         &cfg.DBPath,
		"METRICS_PATH":    &cfg.MetricsPath,
		"PROM_TEXTFILE":   &cfg.PromTextfile,
		"LOG_LEVEL":       &cfg.LogLevel,
		"DUMPS_BASE_URL":  &cfg.DumpsBaseURL,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_REDIRECT_HOPS":    &cfg.MaxRedirectHops,
		"SORT_CHUNK_SIZE":      &cfg.SortChunkSize,
		"SORT_WORKERS":         &cfg.SortWorkers,
		"PROGRESS_INTERVAL_MS": &cfg.ProgressIntervalMs,
		"REQUEST_TIMEOUT_MS":   &cfg.RequestTimeoutMs,
	}
	for name, dst := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "RESOLVE_SOURCE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sRESOLVE_SOURCE: %w", EnvPrefix, err)
		}
		cfg.ResolveSource = &b
	}
	if v, ok := os.LookupEnv(EnvPrefix + "REQUIRE_GZIP"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sREQUIRE_GZIP: %w", EnvPrefix, err)
		}
		cfg.RequireGzip = b
	}
	return nil
}

// validate checks that required fields are present and values are sensible
func validate(cfg *Config) error {
	if cfg.MaxRedirectHops < 1 {
		return fmt.Errorf("max_redirect_hops must be >= 1")
	}
	for name, v := range map[string]string{
		"redirect_ref":    cfg.RedirectRef,
		"link_source_ref": cfg.LinkSourceRef,
		"link_target_ref": cfg.LinkTargetRef,
	} {
		if _, err := record.ParseRefKind(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if cfg.SortChunkSize < 1 {
		return fmt.Errorf("sort_chunk_size must be >= 1")
	}
	if cfg.SortWorkers < 1 {
		return fmt.Errorf("sort_workers must be >= 1")
	}
	if cfg.TempDir != "" {
		info, err := os.Stat(cfg.TempDir)
		if err != nil {
			return fmt.Errorf("temp_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("temp_dir: %s is not a directory", cfg.TempDir)
		}
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if cfg.ProgressIntervalMs < 100 {
		return fmt.Errorf("progress_interval_ms must be >= 100")
	}
	if cfg.RequestTimeoutMs < 1000 {
		return fmt.Errorf("request_timeout_ms must be >= 1000")
	}
	return nil
}

// ShouldResolveSource reports whether link sources are collapsed through redirects
func (c *Config) ShouldResolveSource() bool {
	return c.ResolveSource == nil || *c.ResolveSource
}

// ProgressInterval returns the progress logging period
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMs) * time.Millisecond
}

// RequestTimeout returns the HTTP timeout used when listing dumps
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// Level returns the configured log level
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
