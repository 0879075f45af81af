package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/triagegate/internal/github"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the duplicate-detection index",
}

var indexAddCmd = &cobra.Command{
	Use:   "add <issue>...",
	Short: "Fetch issues with gh and add them to the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Index.Backend != "postgres" {
			return fmt.Errorf("index add needs a persistent backend; set index.backend to postgres")
		}
		ctx := cmd.Context()
		idx, closeIdx, err := openIndex(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeIdx()

		repo := repoFlag(cmd, cfg.GitHub.Repo)
		gh := github.NewClient(&github.ExecRunner{})
		for _, arg := range args {
			issue, err := parseIssue(arg)
			if err != nil {
				return err
			}
			gi, err := gh.GetIssue(ctx, repo, issue)
			if err != nil {
				return fmt.Errorf("fetch issue #%d: %w", issue, err)
			}
			if err := idx.Register(ctx, gi.Number, gi.Title, gi.Body); err != nil {
				return fmt.Errorf("index issue #%d: %w", issue, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  → indexed #%d: %s\n", gi.Number, gi.Title)
		}
		return nil
	},
}

var indexSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find the closest indexed issue for a title and body",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		title, _ := cmd.Flags().GetString("title")
		body, _ := cmd.Flags().GetString("body")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		if threshold <= 0 {
			threshold = cfg.Triage.SimilarityThreshold
		}

		ctx := cmd.Context()
		idx, closeIdx, err := openIndex(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeIdx()

		m, err := idx.FindSimilar(ctx, 0, title, body, threshold)
		if err != nil {
			return fmt.Errorf("search index: %w", err)
		}
		if m == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "No match at or above %.0f%%.\n", threshold*100)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "#%d %s (similarity %.1f%%)\n", m.Issue, m.Title, m.Score*100)
		return nil
	},
}

func init() {
	indexAddCmd.Flags().String("repo", "", "owner/repo (defaults to github.repo)")

	indexSearchCmd.Flags().String("title", "", "issue title")
	indexSearchCmd.Flags().String("body", "", "issue body")
	indexSearchCmd.Flags().Float64("threshold", 0, "similarity threshold (defaults to triage.similarity_threshold)")
	indexSearchCmd.MarkFlagRequired("title")

	indexCmd.AddCommand(indexAddCmd)
	indexCmd.AddCommand(indexSearchCmd)
}
