package config

import "time"

// Config is the top-level configuration parsed from triagegate.yaml.
type Config struct {
	Server    Server    `yaml:"server"`
	GitHub    GitHub    `yaml:"github"`
	Triage    Triage    `yaml:"triage"`
	Analysis  Analysis  `yaml:"analysis"`
	Index     Index     `yaml:"index"`
	Discord   Discord   `yaml:"discord"`
	Storage   Storage   `yaml:"storage"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Server configures the webhook/interactions HTTP listener.
type Server struct {
	Port            int           `yaml:"port"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// APIToken is the bearer token for the HTTP decision API, which serve
	// uses when no Discord channel is configured.
	APIToken string `yaml:"api_token"`
}

// GitHub holds the record-store settings.
type GitHub struct {
	Repo          string `yaml:"repo"` // "owner/repo"; used by CLI commands when no repo is given
	WebhookSecret string `yaml:"webhook_secret"`
}

// Triage holds pipeline tuning.
type Triage struct {
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	DecisionTimeout     time.Duration `yaml:"decision_timeout"`
	DecisionGrace       time.Duration `yaml:"decision_grace"`
}

// DecisionWait is how long the pipeline blocks for a human decision.
// It exceeds the UI-level timeout by the grace period so the UI timer
// normally fires first.
func (t Triage) DecisionWait() time.Duration {
	return t.DecisionTimeout + t.DecisionGrace
}

// Analysis configures the model-backed analysis provider.
type Analysis struct {
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// Index selects the duplicate index backend.
type Index struct {
	Backend     string `yaml:"backend"` // memory | postgres
	DatabaseURL string `yaml:"database_url"`
	ScanLimit   int    `yaml:"scan_limit"`
}

// Discord configures the interactive channel and completion notifier.
type Discord struct {
	BotToken          string  `yaml:"bot_token"`
	PublicKey         string  `yaml:"public_key"` // hex ed25519 key used to verify interactions
	ChannelID         string  `yaml:"channel_id"`
	WebhookURL        string  `yaml:"webhook_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Enabled reports whether a Discord channel is configured.
func (d Discord) Enabled() bool {
	return d.BotToken != "" || d.ChannelID != ""
}

// Storage locates the audit database and result archive.
type Storage struct {
	DBPath     string `yaml:"db_path"`
	ResultsDir string `yaml:"results_dir"`
}

// Telemetry toggles OpenTelemetry metrics.
type Telemetry struct {
	Enabled bool `yaml:"enabled"`
	Stdout  bool `yaml:"stdout"`
}
