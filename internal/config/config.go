// Package config provides configuration management for Recall.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (RECALL_*)
// 3. Project config (.recall/config.yaml in cwd)
// 4. Home config (~/.recall/config.yaml)
// 5. Defaults
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all Recall configuration.
type Config struct {
	// BaseDir is Recall's data directory, holding the database file and
	// device identity (default: ~/.recall).
	BaseDir string `yaml:"base_dir" json:"base_dir"`

	// Verbose enables verbose logging.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// Redact settings
	Redact RedactConfig `yaml:"redact" json:"redact"`

	// Watch settings
	Watch WatchConfig `yaml:"watch" json:"watch"`

	// Git settings
	Git GitConfig `yaml:"git" json:"git"`

	// Pricing settings
	Pricing PricingConfig `yaml:"pricing" json:"pricing"`

	// Device settings
	Device DeviceConfig `yaml:"device" json:"device"`
}

// RedactConfig holds default redaction behavior applied to newly
// registered sources (a source may still override it individually).
type RedactConfig struct {
	// DefaultRedactSecrets is the redact_secrets value assigned to sources
	// that don't specify one explicitly.
	DefaultRedactSecrets bool `yaml:"default_redact_secrets" json:"default_redact_secrets"`
}

// WatchConfig holds timing parameters for continuous watch (spec.md §4.6).
// They are loaded, merged and reported like every other setting, but
// internal/watch.Coordinator does not read them: it runs with fixed periods
// of 100ms (debounce), 5s (split-file poll) and 30s (rediscovery).
type WatchConfig struct {
	// StableWriteDebounceMS is the quiet period a tailed file needs before
	// it is re-ingested. Default: 100.
	StableWriteDebounceMS int `yaml:"stable_write_debounce_ms" json:"stable_write_debounce_ms"`

	// SplitFilePollIntervalSec is the polling period for split-file
	// transcript sources, which have too many leaf files to watch
	// directly. Default: 5.
	SplitFilePollIntervalSec int `yaml:"split_file_poll_interval_sec" json:"split_file_poll_interval_sec"`

	// RediscoveryIntervalSec is how often each adapter's discover() is
	// re-run to pick up new sessions and repositories. Default: 30.
	RediscoveryIntervalSec int `yaml:"rediscovery_interval_sec" json:"rediscovery_interval_sec"`
}

// GitConfig holds git-adapter-specific settings.
type GitConfig struct {
	// AuthorScope controls whose commits commits_since captures:
	// "self" (the local machine's configured git identity, the default) or
	// "all" (every author in the repository's history).
	AuthorScope string `yaml:"author_scope" json:"author_scope"`
}

// PricingConfig points at an external per-model pricing table; the
// mapping's content is out of scope (spec.md §1, §9), only the file path
// is configuration.
type PricingConfig struct {
	// PriceBookPath is a JSON file mapping model name to
	// tokenusage.ModelPrice, loaded by the tokens command.
	// Empty means no pricing is applied and cost queries return zero with
	// every encountered model listed in UnknownModels.
	PriceBookPath string `yaml:"price_book_path" json:"price_book_path"`
}

// DeviceConfig lets a user override the auto-detected device nickname.
type DeviceConfig struct {
	Nickname string `yaml:"nickname" json:"nickname"`
}

// Default config values (used in resolution and validation).
const (
	defaultBaseDirName             = ".recall"
	defaultRedactSecrets            = true
	defaultStableWriteDebounceMS    = 100
	defaultSplitFilePollIntervalSec = 5
	defaultRediscoveryIntervalSec   = 30
	defaultGitAuthorScope           = "self"
)

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		BaseDir: filepath.Join(homeDir, defaultBaseDirName),
		Verbose: false,
		Redact: RedactConfig{
			DefaultRedactSecrets: defaultRedactSecrets,
		},
		Watch: WatchConfig{
			StableWriteDebounceMS:    defaultStableWriteDebounceMS,
			SplitFilePollIntervalSec: defaultSplitFilePollIntervalSec,
			RediscoveryIntervalSec:   defaultRediscoveryIntervalSec,
		},
		Git: GitConfig{
			AuthorScope: defaultGitAuthorScope,
		},
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, _ := loadFromPath(projectConfigPath())
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	return cfg, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".recall", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("RECALL_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".recall", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("RECALL_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if os.Getenv("RECALL_VERBOSE") == "true" || os.Getenv("RECALL_VERBOSE") == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("RECALL_REDACT_SECRETS"); v != "" {
		cfg.Redact.DefaultRedactSecrets = v == "true" || v == "1"
	}
	if v := os.Getenv("RECALL_WATCH_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Watch.StableWriteDebounceMS = n
		}
	}
	if v := os.Getenv("RECALL_WATCH_POLL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Watch.SplitFilePollIntervalSec = n
		}
	}
	if v := os.Getenv("RECALL_WATCH_REDISCOVERY_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Watch.RediscoveryIntervalSec = n
		}
	}
	if v := os.Getenv("RECALL_GIT_AUTHOR_SCOPE"); v != "" {
		cfg.Git.AuthorScope = v
	}
	if v := os.Getenv("RECALL_PRICE_BOOK"); v != "" {
		cfg.Pricing.PriceBookPath = v
	}
	if v := os.Getenv("RECALL_DEVICE_NICKNAME"); v != "" {
		cfg.Device.Nickname = v
	}
	return cfg
}

// merge merges src into dst, with src values taking precedence.
func merge(dst, src *Config) *Config {
	if src.BaseDir != "" {
		dst.BaseDir = src.BaseDir
	}
	if src.Verbose {
		dst.Verbose = true
	}
	if src.Redact.DefaultRedactSecrets {
		dst.Redact.DefaultRedactSecrets = true
	}
	if src.Watch.StableWriteDebounceMS != 0 {
		dst.Watch.StableWriteDebounceMS = src.Watch.StableWriteDebounceMS
	}
	if src.Watch.SplitFilePollIntervalSec != 0 {
		dst.Watch.SplitFilePollIntervalSec = src.Watch.SplitFilePollIntervalSec
	}
	if src.Watch.RediscoveryIntervalSec != 0 {
		dst.Watch.RediscoveryIntervalSec = src.Watch.RediscoveryIntervalSec
	}
	if src.Git.AuthorScope != "" {
		dst.Git.AuthorScope = src.Git.AuthorScope
	}
	if src.Pricing.PriceBookPath != "" {
		dst.Pricing.PriceBookPath = src.Pricing.PriceBookPath
	}
	if src.Device.Nickname != "" {
		dst.Device.Nickname = src.Device.Nickname
	}
	return dst
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.recall/config.yaml"
	SourceProject Source = ".recall/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// getEnvString returns the value and whether the env var was set.
func getEnvString(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

// resolveStringField resolves a string through the precedence chain.
// Returns the resolved value and its source.
func resolveStringField(home, project, env, flag, def string) resolved {
	result := resolved{Value: def, Source: SourceDefault}

	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}

	return result
}

// ResolvedConfig shows config values with their sources, for `recall
// config show`.
type ResolvedConfig struct {
	BaseDir        resolved `json:"base_dir"`
	Verbose        resolved `json:"verbose"`
	GitAuthorScope resolved `json:"git_author_scope"`
	PriceBookPath  resolved `json:"price_book_path"`
}

type resolved struct {
	Value  interface{} `json:"value"`
	Source Source      `json:"source"`
}

// Resolve returns configuration with source tracking.
// Uses precedence chain: flags > env > project > home > defaults.
func Resolve(flagBaseDir string, flagVerbose bool) *ResolvedConfig {
	homeConfig, _ := loadFromPath(homeConfigPath())
	projectConfig, _ := loadFromPath(projectConfigPath())

	var homeBaseDir, homeGitAuthorScope, homePriceBookPath string
	var homeVerbose bool
	if homeConfig != nil {
		homeBaseDir = homeConfig.BaseDir
		homeVerbose = homeConfig.Verbose
		homeGitAuthorScope = homeConfig.Git.AuthorScope
		homePriceBookPath = homeConfig.Pricing.PriceBookPath
	}

	var projectBaseDir, projectGitAuthorScope, projectPriceBookPath string
	var projectVerbose bool
	if projectConfig != nil {
		projectBaseDir = projectConfig.BaseDir
		projectVerbose = projectConfig.Verbose
		projectGitAuthorScope = projectConfig.Git.AuthorScope
		projectPriceBookPath = projectConfig.Pricing.PriceBookPath
	}

	envBaseDir, _ := getEnvString("RECALL_BASE_DIR")
	envVerbose := os.Getenv("RECALL_VERBOSE") == "true" || os.Getenv("RECALL_VERBOSE") == "1"
	envGitAuthorScope, _ := getEnvString("RECALL_GIT_AUTHOR_SCOPE")
	envPriceBookPath, _ := getEnvString("RECALL_PRICE_BOOK")

	defaultCfg := Default()
	rc := &ResolvedConfig{
		BaseDir:        resolveStringField(homeBaseDir, projectBaseDir, envBaseDir, flagBaseDir, defaultCfg.BaseDir),
		Verbose:        resolved{Value: false, Source: SourceDefault},
		GitAuthorScope: resolveStringField(homeGitAuthorScope, projectGitAuthorScope, envGitAuthorScope, "", defaultGitAuthorScope),
		PriceBookPath:  resolveStringField(homePriceBookPath, projectPriceBookPath, envPriceBookPath, "", ""),
	}

	if homeVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceHome}
	}
	if projectVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceProject}
	}
	if envVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceEnv}
	}
	if flagVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceFlag}
	}

	return rc
}
