package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"dvbox/internal/connection"
	"dvbox/internal/dverrors"
	dvstrings "dvbox/pkg/strings"
)

// Flags for connection add. Secrets are always prompted for, never
// taken from flags, so they cannot end up in shell history.
var (
	addName        string
	addURL         string
	addType        string
	addTenantID    string
	addClientID    string
	addUsername    string
	addEnvironment string
)

// connectionCmd groups the connection management subcommands.
var connectionCmd = &cobra.Command{
	Use:     "connection",
	Aliases: []string{"conn"},
	Short:   "Manage Dataverse connections",
	Long: `Manage the stored Dataverse connections.

A connection names one environment URL plus the credentials used to
sign in to it. Connections are persisted to the settings file; access
and refresh tokens are cleared every time dvbox starts.`,
}

var connectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored connections",
	RunE:  runConnectionList,
}

var connectionAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a connection",
	Long: `Add a connection to the settings file.

Fields not supplied as flags are prompted for. Client secrets and
passwords are always prompted with hidden input.

Examples:
  dvbox connection add
  dvbox connection add --name Contoso --url https://contoso.crm.dynamics.com
  dvbox connection add --type clientSecret --tenant-id <guid> --client-id <guid>`,
	RunE: runConnectionAdd,
}

var connectionRemoveCmd = &cobra.Command{
	Use:   "remove <name-or-id>",
	Short: "Remove a connection",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectionRemove,
}

var connectionTestCmd = &cobra.Command{
	Use:   "test [name-or-id]",
	Short: "Sign in to a connection and verify environment access",
	Long: `Sign in to a connection and probe WhoAmI against its environment.

The probe proves the credentials work AND the signed-in identity is a
user of the environment, which a token alone does not guarantee.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConnectionTest,
}

func init() {
	rootCmd.AddCommand(connectionCmd)
	connectionCmd.AddCommand(connectionListCmd)
	connectionCmd.AddCommand(connectionAddCmd)
	connectionCmd.AddCommand(connectionRemoveCmd)
	connectionCmd.AddCommand(connectionTestCmd)

	connectionAddCmd.Flags().StringVar(&addName, "name", "", "display name for the connection")
	connectionAddCmd.Flags().StringVar(&addURL, "url", "", "environment URL (https://org.crm.dynamics.com)")
	connectionAddCmd.Flags().StringVar(&addType, "type", "", "authentication type: interactive, clientSecret, or usernamePassword")
	connectionAddCmd.Flags().StringVar(&addTenantID, "tenant-id", "", "Entra tenant id (clientSecret only)")
	connectionAddCmd.Flags().StringVar(&addClientID, "client-id", "", "app registration client id")
	connectionAddCmd.Flags().StringVar(&addUsername, "username", "", "user principal name (usernamePassword only)")
	connectionAddCmd.Flags().StringVar(&addEnvironment, "environment", "", "environment tag: Dev, Test, UAT, or Production")
}

func runConnectionList(cmd *cobra.Command, args []string) error {
	a, err := ensureApp(cmd)
	if err != nil {
		return err
	}

	conns := a.store.List()
	if len(conns) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No connections configured. Add one with 'dvbox connection add'.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"NAME", "ENVIRONMENT", "URL", "AUTH", "LAST USED", "ID"})
	for _, c := range conns {
		lastUsed := "-"
		if at, ok := c.LastUsedTime(); ok {
			lastUsed = at.Local().Format("2006-01-02 15:04")
		}
		env := string(c.Environment)
		if env == "" {
			env = "-"
		}
		url := dvstrings.TruncateCell(c.URL, dvstrings.DefaultCellMaxLen)
		t.AppendRow(table.Row{c.Name, env, url, string(c.AuthenticationType), lastUsed, c.ID})
	}
	t.Render()
	return nil
}

func runConnectionAdd(cmd *cobra.Command, args []string) error {
	a, err := ensureApp(cmd)
	if err != nil {
		return err
	}

	rl, err := readline.New("")
	if err != nil {
		return fmt.Errorf("failed to open terminal for prompts: %w", err)
	}
	defer rl.Close()

	conn := &connection.Connection{
		Name:        addName,
		URL:         addURL,
		Environment: connection.Environment(addEnvironment),
	}

	if conn.Name == "" {
		if conn.Name, err = promptLine(rl, "Name: "); err != nil {
			return err
		}
	}
	if conn.URL == "" {
		if conn.URL, err = promptLine(rl, "Environment URL: "); err != nil {
			return err
		}
	}

	authType := addType
	if authType == "" {
		if authType, err = promptLine(rl, "Authentication [interactive/clientSecret/usernamePassword] (interactive): "); err != nil {
			return err
		}
		if authType == "" {
			authType = string(connection.AuthInteractive)
		}
	}
	conn.AuthenticationType = connection.AuthType(authType)

	switch conn.AuthenticationType {
	case connection.AuthInteractive:
		conn.ClientID = addClientID

	case connection.AuthClientSecret:
		conn.TenantID = addTenantID
		conn.ClientID = addClientID
		if conn.TenantID == "" {
			if conn.TenantID, err = promptLine(rl, "Tenant id: "); err != nil {
				return err
			}
		}
		if conn.ClientID == "" {
			if conn.ClientID, err = promptLine(rl, "Client id: "); err != nil {
				return err
			}
		}
		secret, err := rl.ReadPassword("Client secret: ")
		if err != nil {
			return fmt.Errorf("failed to read client secret: %w", err)
		}
		conn.ClientSecret = string(secret)

	case connection.AuthUsernamePassword:
		conn.Username = addUsername
		conn.ClientID = addClientID
		if conn.Username == "" {
			if conn.Username, err = promptLine(rl, "Username: "); err != nil {
				return err
			}
		}
		password, err := rl.ReadPassword("Password: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		conn.Password = string(password)

	default:
		return dverrors.Newf(dverrors.KindConfiguration,
			"unknown authentication type %q; use interactive, clientSecret, or usernamePassword", authType)
	}

	if err := conn.Authenticatable(); err != nil {
		return err
	}

	created, err := a.store.Create(conn)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added connection %s (%s)\n", created.Name, created.ID)
	fmt.Fprintf(cmd.OutOrStdout(), "Verify it with 'dvbox connection test %s'\n", created.Name)
	return nil
}

// promptLine reads one trimmed line from the terminal.
func promptLine(rl *readline.Instance, prompt string) (string, error) {
	rl.SetPrompt(prompt)
	line, err := rl.Readline()
	if err != nil {
		return "", fmt.Errorf("prompt aborted: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runConnectionRemove(cmd *cobra.Command, args []string) error {
	a, err := ensureApp(cmd)
	if err != nil {
		return err
	}

	conn, err := resolveConnection(a, args[0])
	if err != nil {
		return err
	}
	if err := a.store.Delete(conn.ID); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed connection %s (%s)\n", conn.Name, conn.ID)
	return nil
}

func runConnectionTest(cmd *cobra.Command, args []string) error {
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

	ctx := cmd.Context()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" Signing in to %s...", conn.Name)
	s.Start()

	signed, err := a.gateway.SignIn(ctx, conn.ID)
	if err != nil {
		s.FinalMSG = text.FgRed.Sprintf("Sign-in to %s failed", conn.Name) + "\n"
		s.Stop()
		return err
	}
	conn = signed

	s.Suffix = " Checking environment access..."
	who, err := a.dataverse.WhoAmI(ctx, conn.ID)
	if err != nil {
		s.FinalMSG = text.FgRed.Sprint("The environment rejected the signed-in identity") + "\n"
		s.Stop()
		return err
	}
	s.Stop()

	env := string(conn.Environment)
	if env == "" {
		env = "untagged"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s) is reachable\n",
		text.FgGreen.Sprint("✓"), conn.Name, env)
	if userID, ok := who["UserId"].(string); ok {
		fmt.Fprintf(cmd.OutOrStdout(), "  user id:         %s\n", userID)
	}
	if orgID, ok := who["OrganizationId"].(string); ok {
		fmt.Fprintf(cmd.OutOrStdout(), "  organization id: %s\n", orgID)
	}
	return nil
}
