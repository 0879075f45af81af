package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/triagegate/internal/prompt"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect and customise prompt and comment templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List template names and the override directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := prompt.Names()
		sort.Strings(names)
		fmt.Fprintf(cmd.OutOrStdout(), "Override directory: %s\n", prompt.DefaultTemplateDir())
		for _, n := range names {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", n)
		}
		return nil
	},
}

var templatesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print the effective template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := prompt.NewTemplates(prompt.DefaultTemplateDir()).Get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	},
}

var templatesInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Copy the built-in templates into the override directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := prompt.DefaultTemplateDir()
		if err := prompt.NewTemplates(dir).Install(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Templates installed in %s (existing files kept).\n", dir)
		return nil
	},
}

func init() {
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesShowCmd)
	templatesCmd.AddCommand(templatesInstallCmd)
}
