package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// logoutCmd represents the logout command.
var logoutCmd = &cobra.Command{
	Use:   "logout [name-or-id]",
	Short: "Discard the stored tokens for a connection",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := ensureApp(cmd)
	if err != nil {
		return err
	}

	ref := flagConnection
	if len(args) == 1 {
		ref = args[0]
	}
	conn, err := resolveConnection(a, ref)
	if err != nil {
		return err
	}

	if err := a.gateway.SignOut(conn.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed out of %s\n", conn.Name)
	return nil
}
