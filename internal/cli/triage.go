package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/triagegate/internal/console"
	"github.com/lucasnoah/triagegate/internal/discord"
	"github.com/lucasnoah/triagegate/internal/github"
	"github.com/lucasnoah/triagegate/internal/triage"
)

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Run and inspect issue triage",
}

var triageRunCmd = &cobra.Command{
	Use:   "run <issue>",
	Short: "Triage one GitHub issue, asking for the decision in this terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issue, err := parseIssue(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo := repoFlag(cmd, cfg.GitHub.Repo)
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if wait, _ := cmd.Flags().GetDuration("timeout"); wait > 0 {
			cfg.Triage.DecisionTimeout = wait
			cfg.Triage.DecisionGrace = 0
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		gi, err := a.github.GetIssue(ctx, repo, issue)
		if err != nil {
			return fmt.Errorf("fetch issue #%d: %w", issue, err)
		}
		report := triage.Report{
			Issue:  gi.Number,
			Repo:   repo,
			Title:  gi.Title,
			Body:   gi.Body,
			Author: gi.Author.Login,
			URL:    gi.URL,
		}

		out := cmd.OutOrStdout()
		ch := console.New(cmd.InOrStdin(), out)
		broker := a.broker(ch)
		ch.Bind(broker)

		var records triage.RecordStore
		if dryRun {
			records = &printRecords{out: out}
		}
		var notifier triage.Notifier
		if cfg.Discord.WebhookURL != "" && !dryRun {
			client := discord.NewClient(discord.ClientConfig{RequestsPerSecond: cfg.Discord.RequestsPerSecond})
			notifier = discord.NewNotifier(client, cfg.Discord.WebhookURL, "")
		}

		res, err := a.pipeline(broker, notifier, records).Triage(ctx, report)
		if saveErr := a.store.Save(res); saveErr != nil {
			a.log.Warn("archive triage result", "error", saveErr)
		}
		printResult(out, res)
		return err
	},
}

var triageStatusCmd = &cobra.Command{
	Use:   "status <issue>",
	Short: "Show the archived result for an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issue, err := parseIssue(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store := triage.NewStore(cfg.Storage.ResultsDir)
		res, err := store.Get(repoFlag(cmd, cfg.GitHub.Repo), issue)
		if err != nil {
			return fmt.Errorf("get triage result for #%d: %w", issue, err)
		}

		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			data, _ := json.MarshalIndent(res, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	},
}

var triageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived triage results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo, _ := cmd.Flags().GetString("repo")
		status, _ := cmd.Flags().GetString("status")

		results, err := triage.NewStore(cfg.Storage.ResultsDir).List(repo, status)
		if err != nil {
			return fmt.Errorf("list triage results: %w", err)
		}

		w := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(w, "No triage results found.")
			return nil
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "REPO\tISSUE\tSTATUS\tSEVERITY\tDUPLICATE\tTITLE")
		for _, r := range results {
			dup := ""
			if r.IsDuplicate {
				dup = "#" + strconv.Itoa(r.DuplicateOf)
			}
			fmt.Fprintf(tw, "%s\t#%d\t%s\t%s\t%s\t%s\n",
				r.Report.Repo, r.Report.Issue, colorStatus(r.Status), r.Severity, dup, shorten(r.Report.Title, 50))
		}
		return tw.Flush()
	},
}

var triageEventsCmd = &cobra.Command{
	Use:   "events <issue>",
	Short: "Show the audit log for an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issue, err := parseIssue(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")
		events, err := d.ListEvents(ctx, issue, limit)
		if err != nil {
			return err
		}
		decisions, err := d.ListDecisions(ctx, issue)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if len(events) == 0 && len(decisions) == 0 {
			fmt.Fprintf(w, "No events recorded for #%d.\n", issue)
			return nil
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tRUN\tEVENT\tDETAIL")
		for _, e := range events {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Timestamp, shorten(e.RunID, 8), e.Event, shorten(e.Detail, 60))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		if len(decisions) > 0 {
			fmt.Fprintln(w)
			tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RESOLVED\tDECISION\tACTOR\tMODIFIED\tSEVERITY")
			for _, dr := range decisions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", dr.ResolvedAt, dr.Kind, dr.Actor, dr.Modified, dr.Severity)
			}
			return tw.Flush()
		}
		return nil
	},
}

// printRecords is the RecordStore used by --dry-run.
type printRecords struct {
	out io.Writer
}

func (p *printRecords) AddLabel(_ context.Context, repo string, issue int, label string) error {
	fmt.Fprintf(p.out, "  [dry-run] %s#%d: add label %q\n", repo, issue, label)
	return nil
}

func (p *printRecords) PostComment(_ context.Context, repo string, issue int, body string) error {
	fmt.Fprintf(p.out, "  [dry-run] %s#%d: comment\n%s\n", repo, issue, body)
	return nil
}

func (p *printRecords) CloseIssue(_ context.Context, repo string, issue int, reason string) error {
	fmt.Fprintf(p.out, "  [dry-run] %s#%d: close (%s)\n", repo, issue, reason)
	return nil
}

func printResult(w io.Writer, res *triage.Result) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "Issue:     #%d (%s)\n", res.Report.Issue, res.Report.Repo)
	fmt.Fprintf(w, "Title:     %s\n", res.Report.Title)
	fmt.Fprintf(w, "Status:    %s\n", colorStatus(res.Status))
	fmt.Fprintf(w, "Severity:  %s\n", res.Severity)
	fmt.Fprintf(w, "Summary:   %s\n", res.Summary)
	if res.IsDuplicate {
		fmt.Fprintf(w, "Duplicate: #%d (%.1f%%)\n", res.DuplicateOf, res.SimilarityScore*100)
	}
	if res.Decision != nil {
		fmt.Fprintf(w, "Decision:  %s", res.Decision.Kind)
		if res.Decision.Actor != "" {
			fmt.Fprintf(w, " by %s", res.Decision.Actor)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, triage.CompletionMessage(res.Report.Issue, res.Actions))
	if res.ActionError != "" {
		fmt.Fprintf(w, "Action error: %s\n", res.ActionError)
	}
	if res.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", color.RedString(res.Error))
	}
	if !res.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Finished:  %s (%s)\n", res.FinishedAt.Local().Format(time.RFC3339), res.FinishedAt.Sub(res.StartedAt).Round(time.Second))
	}
}

func colorStatus(status string) string {
	switch status {
	case triage.StatusApproved:
		return color.GreenString(status)
	case triage.StatusRejected:
		return color.YellowString(status)
	case triage.StatusTimedOut:
		return color.New(color.FgHiBlack).Sprint(status)
	case triage.StatusFailed:
		return color.RedString(status)
	}
	return status
}

func parseIssue(s string) (int, error) {
	issue, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid issue number %q: must be a positive integer", s)
	}
	if err := github.ValidateIssueNumber(issue); err != nil {
		return 0, err
	}
	return issue, nil
}

func repoFlag(cmd *cobra.Command, fallback string) string {
	if repo, _ := cmd.Flags().GetString("repo"); repo != "" {
		return repo
	}
	return fallback
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	triageRunCmd.Flags().String("repo", "", "owner/repo (defaults to github.repo)")
	triageRunCmd.Flags().Bool("dry-run", false, "print GitHub mutations instead of performing them")
	triageRunCmd.Flags().Duration("timeout", 0, "decision timeout (defaults to triage.decision_timeout + grace)")

	triageStatusCmd.Flags().String("repo", "", "owner/repo (defaults to github.repo)")
	triageStatusCmd.Flags().String("format", "text", "Output format: text or json")

	triageListCmd.Flags().String("repo", "", "only show results for owner/repo")
	triageListCmd.Flags().String("status", "", "filter by status: approved, rejected, timed_out, failed")

	triageEventsCmd.Flags().Int("limit", 200, "maximum number of events to show")

	triageCmd.AddCommand(triageRunCmd)
	triageCmd.AddCommand(triageStatusCmd)
	triageCmd.AddCommand(triageListCmd)
	triageCmd.AddCommand(triageEventsCmd)
}

