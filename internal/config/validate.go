package config

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var recognizedBackends = map[string]bool{
	"memory":   true,
	"postgres": true,
}

// Validate checks a Config for semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		add("server.port", "must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxConcurrent < 1 {
		add("server.max_concurrent", "must be at least 1")
	}

	if cfg.GitHub.Repo != "" && strings.Count(cfg.GitHub.Repo, "/") != 1 {
		add("github.repo", "must be in owner/repo form, got %q", cfg.GitHub.Repo)
	}

	t := cfg.Triage
	if t.SimilarityThreshold <= 0 || t.SimilarityThreshold > 1 {
		add("triage.similarity_threshold", "must be in (0, 1], got %g", t.SimilarityThreshold)
	}
	if t.DecisionTimeout <= 0 {
		add("triage.decision_timeout", "must be positive")
	}
	if t.DecisionGrace < 0 {
		add("triage.decision_grace", "must not be negative")
	}

	if cfg.Analysis.MaxConcurrent < 1 {
		add("analysis.max_concurrent", "must be at least 1")
	}

	if !recognizedBackends[cfg.Index.Backend] {
		add("index.backend", "unrecognized backend %q", cfg.Index.Backend)
	}
	if cfg.Index.Backend == "postgres" && cfg.Index.DatabaseURL == "" {
		add("index.database_url", "is required for the postgres backend")
	}

	d := cfg.Discord
	if d.Enabled() {
		if d.BotToken == "" {
			add("discord.bot_token", "is required when discord is configured")
		}
		if d.ChannelID == "" {
			add("discord.channel_id", "is required when discord is configured")
		}
		if d.PublicKey == "" {
			add("discord.public_key", "is required to verify interactions")
		} else if key, err := hex.DecodeString(d.PublicKey); err != nil || len(key) != 32 {
			add("discord.public_key", "must be a 32-byte hex ed25519 key")
		}
	}
	if d.RequestsPerSecond <= 0 {
		add("discord.requests_per_second", "must be positive")
	}

	return errs
}
