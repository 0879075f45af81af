package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/triagegate/internal/config"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "triagegate",
	Short: "AI issue triage with a human decision gate",
	Long: `triagegate receives newly opened GitHub issues, classifies and summarizes
them with an AI model, checks for duplicates, and then waits for a single
human decision (Discord buttons, the terminal, or the HTTP API) before it
labels, comments on or closes the issue.

Configuration is read from ./triagegate.yaml or ~/.triagegate/config.yaml,
with environment overrides. The audit log (SQLite) and result archive (JSON)
live under ~/.triagegate/ by default.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads --config when given, otherwise the default locations.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to triagegate config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(triageCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(templatesCmd)
}
