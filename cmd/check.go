package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"dvbox/internal/config"
	"dvbox/internal/registry"
)

// checkCmd represents the check command.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the tool registry endpoints answer",
	Long: `Check that the tool registry and its download storage answer.

The endpoints come from the environment:
  DVBOX_REGISTRY_URL    registry API base URL
  DVBOX_REGISTRY_KEY    registry API key
  DVBOX_BLOB_BASE_URL   download storage base URL

Each probe uses a 30-second deadline and follows at most 5 redirects.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	// The registry probe needs only the environment, not the full app.
	if _, err := ensureApp(cmd); err != nil {
		return err
	}

	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	client := registry.New(env)

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	failed := false

	if err := client.CheckRegistry(ctx); err != nil {
		failed = true
		fmt.Fprintf(out, "%s registry: %v\n", text.FgRed.Sprint("✗"), err)
	} else {
		fmt.Fprintf(out, "%s registry answers\n", text.FgGreen.Sprint("✓"))
	}

	if err := client.CheckDownloads(ctx); err != nil {
		failed = true
		fmt.Fprintf(out, "%s downloads: %v\n", text.FgRed.Sprint("✗"), err)
	} else {
		fmt.Fprintf(out, "%s download storage answers\n", text.FgGreen.Sprint("✓"))
	}

	if failed {
		return fmt.Errorf("one or more registry endpoints failed the check")
	}
	return nil
}
