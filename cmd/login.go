package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// loginCmd represents the login command.
var loginCmd = &cobra.Command{
	Use:   "login [name-or-id]",
	Short: "Sign in to a Dataverse connection",
	Long: `Sign in to a connection and store the resulting tokens for this
process. Interactive connections open the system browser; client-secret
and username/password connections sign in without one.

Examples:
  dvbox login                 # sign in to the only connection
  dvbox login Contoso         # sign in to a named connection
  dvbox login -c Contoso      # same, via the global flag`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
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

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" Signing in to %s...", conn.Name)
	s.Start()

	// Narrate the interactive flow while the browser round-trip runs.
	narrateDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-narrateDone:
				return
			case <-ticker.C:
				s.Suffix = fmt.Sprintf(" Signing in to %s (%s)...", conn.Name, a.engine.CurrentFlowState())
			}
		}
	}()

	signed, err := a.gateway.SignIn(cmd.Context(), conn.ID)
	close(narrateDone)
	if err != nil {
		s.FinalMSG = text.FgRed.Sprintf("Sign-in to %s failed", conn.Name) + "\n"
		s.Stop()
		return err
	}
	s.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "%s Signed in to %s\n", text.FgGreen.Sprint("✓"), signed.Name)
	if expiry, ok := signed.TokenExpiryTime(); ok {
		fmt.Fprintf(cmd.OutOrStdout(), "  token valid until %s\n", expiry.Local().Format("15:04:05"))
	}
	return nil
}
