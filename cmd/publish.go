package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// publishCmd represents the publish command.
var publishCmd = &cobra.Command{
	Use:   "publish [table...]",
	Short: "Publish customizations",
	Long: `Publish customizations in the current connection's environment.

With no arguments every pending customization is published. With table
logical names only those tables are published.

Examples:
  dvbox publish
  dvbox publish account new_project`,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	a, err := ensureApp(cmd)
	if err != nil {
		return err
	}
	conn, err := resolveConnection(a, flagConnection)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if len(args) == 0 {
		s.Suffix = " Publishing all customizations..."
	} else {
		s.Suffix = fmt.Sprintf(" Publishing %d table(s)...", len(args))
	}
	s.Start()

	err = withReauth(ctx, a, conn, func() error {
		return a.dataverse.PublishCustomizations(ctx, conn.ID, args...)
	})
	if err != nil {
		s.FinalMSG = text.FgRed.Sprint("Publish failed") + "\n"
		s.Stop()
		return err
	}
	s.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "%s Published\n", text.FgGreen.Sprint("✓"))
	return nil
}
