package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort                = 8000
	DefaultMaxConcurrent       = 16
	DefaultShutdownTimeout     = 30 * time.Second
	DefaultSimilarityThreshold = 0.85
	DefaultDecisionTimeout     = time.Hour
	DefaultDecisionGrace       = 100 * time.Second
	DefaultModel               = "claude-3-5-haiku-20241022"
	DefaultAnalysisConcurrency = 4
	DefaultScanLimit           = 500
	DefaultDiscordRate         = 5
)

// Load reads and parses a configuration from the given YAML file path.
// Environment overrides are applied after parsing, then defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the first
// one found. Search order: ./triagegate.yaml, ~/.triagegate/config.yaml.
// When neither exists the configuration comes from the environment alone.
func LoadDefault() (*Config, error) {
	candidates := []string{"triagegate.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".triagegate", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	var cfg Config
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyEnv overlays secrets and deployment settings from the environment.
func applyEnv(cfg *Config) error {
	cfg.GitHub.WebhookSecret = getEnv("GITHUB_WEBHOOK_SECRET", cfg.GitHub.WebhookSecret)
	cfg.GitHub.Repo = getEnv("GITHUB_REPO", cfg.GitHub.Repo)
	cfg.Discord.BotToken = getEnv("DISCORD_BOT_TOKEN", cfg.Discord.BotToken)
	cfg.Discord.PublicKey = getEnv("DISCORD_PUBLIC_KEY", cfg.Discord.PublicKey)
	cfg.Discord.ChannelID = getEnv("DISCORD_CHANNEL_ID", cfg.Discord.ChannelID)
	cfg.Discord.WebhookURL = getEnv("DISCORD_WEBHOOK_URL", cfg.Discord.WebhookURL)
	cfg.Analysis.APIKey = getEnv("ANTHROPIC_API_KEY", cfg.Analysis.APIKey)
	cfg.Index.DatabaseURL = getEnv("TRIAGEGATE_DATABASE_URL", cfg.Index.DatabaseURL)
	cfg.Server.APIToken = getEnv("TRIAGEGATE_API_TOKEN", cfg.Server.APIToken)

	port, err := getEnvInt("PORT", cfg.Server.Port)
	if err != nil {
		return fmt.Errorf("parse PORT: %w", err)
	}
	cfg.Server.Port = port

	timeout, err := getEnvDuration("TRIAGEGATE_DECISION_TIMEOUT", cfg.Triage.DecisionTimeout)
	if err != nil {
		return fmt.Errorf("parse TRIAGEGATE_DECISION_TIMEOUT: %w", err)
	}
	cfg.Triage.DecisionTimeout = timeout

	if v := os.Getenv("TRIAGEGATE_OTEL_ENABLED"); v == "true" {
		cfg.Telemetry.Enabled = true
	}
	return nil
}

// applyDefaults fills every unset field with its default.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.MaxConcurrent == 0 {
		cfg.Server.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Triage.SimilarityThreshold == 0 {
		cfg.Triage.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.Triage.DecisionTimeout == 0 {
		cfg.Triage.DecisionTimeout = DefaultDecisionTimeout
	}
	if cfg.Triage.DecisionGrace == 0 {
		cfg.Triage.DecisionGrace = DefaultDecisionGrace
	}

	if cfg.Analysis.Model == "" {
		cfg.Analysis.Model = DefaultModel
	}
	if cfg.Analysis.MaxConcurrent == 0 {
		cfg.Analysis.MaxConcurrent = DefaultAnalysisConcurrency
	}

	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "memory"
		if cfg.Index.DatabaseURL != "" {
			cfg.Index.Backend = "postgres"
		}
	}
	if cfg.Index.ScanLimit == 0 {
		cfg.Index.ScanLimit = DefaultScanLimit
	}

	if cfg.Discord.RequestsPerSecond == 0 {
		cfg.Discord.RequestsPerSecond = DefaultDiscordRate
	}

	home := dataDir()
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = filepath.Join(home, "triagegate.db")
	}
	if cfg.Storage.ResultsDir == "" {
		cfg.Storage.ResultsDir = filepath.Join(home, "results")
	}
}

// dataDir returns ~/.triagegate, or a relative .triagegate if the home
// directory cannot be determined.
func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".triagegate"
	}
	return filepath.Join(home, ".triagegate")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(v)
}
