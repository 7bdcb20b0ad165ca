// Package config provides configuration loading for playbookd.
//
// Configuration is loaded from a YAML file, then overridden by
// environment variables, then hardcoded defaults fill anything still
// unset. This package covers the daemon's HTTP server, observability,
// and every domain component's tunables (sanitization, semantic
// search, history search, the external validator, scoring, evidence
// gate, and curator).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the complete playbookd configuration.
type Config struct {
	Server        ServerConfig
	Observability ObservabilityConfig
	Storage       StorageConfig

	Sanitize  SanitizeConfig
	Semantic  SemanticConfig
	History   HistoryConfig
	Validator ValidatorConfig
	Scoring   ScoringConfig
	Evidence  EvidenceConfig
	Curator   CuratorConfig

	Production ProductionConfig
}

// ServerConfig holds the httpapi server's configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
}

// StorageConfig governs where playbookd persists its files (spec.md §6).
type StorageConfig struct {
	DataRoot string `koanf:"data_root"`
}

// SanitizeConfig mirrors internal/sanitize.Config (spec.md §4.M).
type SanitizeConfig struct {
	Enabled       bool     `koanf:"enabled"`
	ExtraPatterns []string `koanf:"extra_patterns"`
	AuditLog      bool     `koanf:"audit_log"`
	AuditLevel    string   `koanf:"audit_level"`
	UseGitleaks   bool     `koanf:"use_gitleaks"`
}

// SemanticConfig mirrors internal/semantic.Config (spec.md §4.N).
type SemanticConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Model    string `koanf:"model"`
	CacheDir string `koanf:"cache_dir"`
}

// HistoryConfig selects and configures the history.Searcher backend
// (spec.md §6).
type HistoryConfig struct {
	Backend        string `koanf:"backend"` // "cass", "nats", or "none"
	CASSBinaryPath string `koanf:"cass_binary_path"`
	NATSURL        string `koanf:"nats_url"`
	NATSSubject    string `koanf:"nats_subject"`
}

// ValidatorConfig mirrors internal/validator.Config: the external
// llm.validate / llm.extractDiary service (spec.md §4.H).
type ValidatorConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// ScoringConfig mirrors internal/scoring.Config (spec.md §4.E/§6).
type ScoringConfig struct {
	DecayHalfLifeDays        float64 `koanf:"decay_half_life_days"`
	HarmfulMultiplier        float64 `koanf:"harmful_multiplier"`
	MinFeedbackForActive     float64 `koanf:"min_feedback_for_active"`
	MinHelpfulForProven      float64 `koanf:"min_helpful_for_proven"`
	MaxHarmfulRatioForProven float64 `koanf:"max_harmful_ratio_for_proven"`
	PruneHarmfulThreshold    float64 `koanf:"prune_harmful_threshold"`
	StaleDays                float64 `koanf:"stale_days"`
}

// EvidenceConfig mirrors internal/evidence.Config (spec.md §4.H/§6).
type EvidenceConfig struct {
	ValidationLookbackDays int `koanf:"validation_lookback_days"`
	AutoAcceptSuccesses    int `koanf:"auto_accept_successes"`
	AutoRejectFailures     int `koanf:"auto_reject_failures"`
}

// CuratorConfig mirrors internal/curator.Config (spec.md §4.F/§6).
type CuratorConfig struct {
	DedupSimilarityThreshold float64 `koanf:"dedup_similarity_threshold"`
	DefaultHalfLifeDays      float64 `koanf:"default_half_life_days"`
}

// ProductionConfig gates production-only hardening requirements.
type ProductionConfig struct {
	Enabled               bool
	LocalModeAcknowledged bool
	RequireAuthentication bool
	RequireTLS            bool
}

// Validate validates the configuration, mirroring the teacher's
// fail-fast config validation shape.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	switch c.History.Backend {
	case "", "none", "cass", "nats":
	default:
		return fmt.Errorf("invalid history backend: %q (must be cass, nats, or none)", c.History.Backend)
	}
	if c.History.Backend == "nats" && c.History.NATSURL == "" {
		return errors.New("history.nats_url is required when history.backend is nats")
	}
	if c.Storage.DataRoot != "" {
		if strings.Contains(c.Storage.DataRoot, "..") {
			return fmt.Errorf("data_root must not contain '..': %q", c.Storage.DataRoot)
		}
	}
	if c.Validator.BaseURL != "" {
		if err := validateHTTPURL(c.Validator.BaseURL); err != nil {
			return fmt.Errorf("validator.base_url: %w", err)
		}
	}
	return nil
}

// validateHTTPURL rejects any base URL that isn't a plain http(s)
// endpoint, since config-supplied URLs are fed straight into an HTTP
// client and schemes like "file://" or "javascript:" have no business
// appearing there.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("unsupported scheme %q (must be http or https)", u.Scheme)
	}
}
