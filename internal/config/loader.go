// Package config provides configuration loading for playbookd.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// boolDefaults seeds the lowest-precedence layer for settings that
// default to true, so koanf's file/env layers can still override them
// to false without applyDefaults mistaking "unset" for "explicitly
// false" (koanf.Unmarshal can't tell those apart on a bare bool).
var boolDefaults = map[string]interface{}{
	"sanitize.enabled": true,
}

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, SANITIZE_ENABLED, etc.)
//  2. YAML config file (~/.config/playbookd/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, uses
// the default path: ~/.config/playbookd/config.yaml
//
// # Security Considerations
//
// File Permissions: the configuration file MUST have 0600 permissions
// (owner read/write only). Files with weaker permissions (e.g., 0644
// world-readable) are rejected, since the file may carry the validator's
// API key.
//
// Path Validation: only configuration files in allowed directories can be
// loaded:
//   - ~/.config/playbookd/ (user's config directory)
//   - /etc/playbookd/ (system-wide config directory)
//
// Absolute paths outside these directories are rejected to prevent path
// traversal attacks.
//
// File Size Limit: configuration files larger than 1MB are rejected to
// prevent resource exhaustion attacks.
//
// # Environment Variable Mapping
//
// Environment variables use underscore separator and are uppercased. The
// transformer maps environment variables to YAML field names:
//
//	SERVER_HTTP_PORT   -> server.http_port
//	SANITIZE_ENABLED   -> sanitize.enabled
//	SCORING_STALE_DAYS -> scoring.stale_days
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(boolDefaults, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load config defaults: %w", err)
	}

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "playbookd", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyTransformer), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	cfg.Production = loadProductionConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeyTransformer maps an environment variable name to its dotted
// section.field_name form (SERVER_HTTP_PORT -> server.http_port).
func envKeyTransformer(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// EnsureConfigDir creates the playbookd config directory if it doesn't
// exist, with 0700 permissions (owner read/write/execute only).
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "playbookd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// DataRoot resolves the default data root: $XDG_DATA_HOME/playbookd, or
// ~/.local/share/playbookd if XDG_DATA_HOME is unset (spec.md §6).
func DataRoot() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "playbookd"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "playbookd"), nil
}

// validateConfigPath checks if path is in allowed directories. This
// validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Allows validation of paths that don't exist yet.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "playbookd"),
		"/etc/playbookd",
	}

	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/playbookd/ or /etc/playbookd/")
}

// validateConfigFileProperties checks file permissions and size. This
// validation only runs if the file exists. It takes FileInfo from an
// already-opened file descriptor to avoid a TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "playbookd"
	}

	if cfg.Storage.DataRoot == "" {
		if root, err := DataRoot(); err == nil {
			cfg.Storage.DataRoot = root
		}
	}

	if cfg.Sanitize.AuditLevel == "" {
		cfg.Sanitize.AuditLevel = "info"
	}

	if cfg.History.Backend == "" {
		cfg.History.Backend = "none"
	}

	if cfg.Scoring.DecayHalfLifeDays == 0 {
		cfg.Scoring.DecayHalfLifeDays = 30
	}
	if cfg.Scoring.HarmfulMultiplier == 0 {
		cfg.Scoring.HarmfulMultiplier = 4
	}
	if cfg.Scoring.MinFeedbackForActive == 0 {
		cfg.Scoring.MinFeedbackForActive = 3
	}
	if cfg.Scoring.MinHelpfulForProven == 0 {
		cfg.Scoring.MinHelpfulForProven = 5
	}
	if cfg.Scoring.MaxHarmfulRatioForProven == 0 {
		cfg.Scoring.MaxHarmfulRatioForProven = 0.3
	}
	if cfg.Scoring.PruneHarmfulThreshold == 0 {
		cfg.Scoring.PruneHarmfulThreshold = 3
	}
	if cfg.Scoring.StaleDays == 0 {
		cfg.Scoring.StaleDays = 90
	}

	if cfg.Evidence.ValidationLookbackDays == 0 {
		cfg.Evidence.ValidationLookbackDays = 90
	}
	if cfg.Evidence.AutoAcceptSuccesses == 0 {
		cfg.Evidence.AutoAcceptSuccesses = 5
	}
	if cfg.Evidence.AutoRejectFailures == 0 {
		cfg.Evidence.AutoRejectFailures = 3
	}

	if cfg.Curator.DedupSimilarityThreshold == 0 {
		cfg.Curator.DedupSimilarityThreshold = 0.85
	}
	if cfg.Curator.DefaultHalfLifeDays == 0 {
		cfg.Curator.DefaultHalfLifeDays = cfg.Scoring.DecayHalfLifeDays
	}
}

// loadProductionConfig loads production-hardening configuration from
// environment variables.
func loadProductionConfig() ProductionConfig {
	prodMode := os.Getenv("PLAYBOOKD_PRODUCTION_MODE") == "1"
	localMode := os.Getenv("PLAYBOOKD_LOCAL_MODE") == "1"

	return ProductionConfig{
		Enabled:               prodMode,
		LocalModeAcknowledged: localMode,
		RequireAuthentication: prodMode && !localMode,
		RequireTLS:            prodMode && !localMode,
	}
}
