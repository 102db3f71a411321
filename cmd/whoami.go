package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// whoamiCmd represents the whoami command.
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity Dataverse sees for the current connection",
	RunE:  runWhoAmI,
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoAmI(cmd *cobra.Command, args []string) error {
	a, err := ensureApp(cmd)
	if err != nil {
		return err
	}

	conn, err := resolveConnection(a, flagConnection)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var who map[string]interface{}
	err = withReauth(ctx, a, conn, func() error {
		var opErr error
		who, opErr = a.dataverse.WhoAmI(ctx, conn.ID)
		return opErr
	})
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"FIELD", "VALUE"})
	t.AppendRow(table.Row{"connection", fmt.Sprintf("%s (%s)", conn.Name, conn.URL)})
	for _, field := range []string{"UserId", "BusinessUnitId", "OrganizationId"} {
		if v, ok := who[field].(string); ok {
			t.AppendRow(table.Row{field, v})
		}
	}
	t.Render()
	return nil
}
