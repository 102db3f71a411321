package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"dvbox/internal/auth"
	"dvbox/internal/config"
	"dvbox/internal/connection"
	"dvbox/internal/dataverse"
	"dvbox/internal/dverrors"
	"dvbox/internal/events"
	"dvbox/internal/gateway"
	"dvbox/pkg/logging"
)

// Exit codes for CLI commands.
// These follow common conventions so scripts can branch on the outcome.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates a sign-in is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodePermissionDenied indicates the signed-in identity lacks access.
	ExitCodePermissionDenied = 3
)

var (
	flagConfigDir  string
	flagLogLevel   string
	flagConnection string
)

// rootCmd represents the base command for the dvbox application.
var rootCmd = &cobra.Command{
	Use:   "dvbox",
	Short: "Work with Microsoft Dataverse environments from the terminal",
	Long: `dvbox manages Dataverse connections and drives the Web API:
sign in with the Microsoft identity platform, run OData and FetchXML
queries, edit records, import solutions, and publish customizations.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This is called from the main package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
// It runs the root command under a signal-aware context and quiesces
// shared state before the process exits.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "dvbox version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	teardownApp()
	if err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps error kinds to semantic exit codes for scripting.
func exitCode(err error) int {
	switch dverrors.KindOf(err) {
	case dverrors.KindReauthRequired, dverrors.KindAuthFailed:
		return ExitCodeAuthRequired
	case dverrors.KindPermissionDenied:
		return ExitCodePermissionDenied
	default:
		return ExitCodeError
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default ~/.config/dvbox)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log verbosity: debug, info, warn, or error")
	rootCmd.PersistentFlags().StringVarP(&flagConnection, "connection", "c", "", "connection name or id (defaults to the only stored connection)")
}

// app bundles the long-lived pieces the commands share: configuration,
// the connection store, the token gateway, and the Web API service.
type app struct {
	cfg       config.Config
	settings  *connection.SettingsFile
	store     *connection.Store
	watcher   *connection.Watcher
	engine    *auth.Engine
	gateway   *gateway.Gateway
	dataverse *dataverse.Service
}

var current *app

// ensureApp builds the shared application state on first use.
func ensureApp(cmd *cobra.Command) (*app, error) {
	if current != nil {
		return current, nil
	}

	// A .env next to the working directory is a developer convenience;
	// absence is not an error.
	_ = godotenv.Load()

	dir := flagConfigDir
	if dir == "" {
		var err error
		dir, err = config.DefaultConfigDir()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	logging.Init(logging.ParseLevel(level), os.Stderr)

	settings := connection.NewSettingsFile(cfg.Settings.Path)
	store := connection.NewStore(settings, events.NewBus())

	conns, err := settings.LoadConnections()
	if err != nil {
		return nil, err
	}
	store.Load(conns)

	// Stored access and refresh tokens never survive a restart; only
	// msalAccountId does.
	if err := store.ClearAllTokens(); err != nil {
		logging.Warn("CLI", "Could not clear stored tokens on startup: %v", err)
	}

	watcher, err := connection.NewWatcher(settings, store)
	if err != nil {
		logging.Warn("CLI", "Settings file watching unavailable: %v", err)
		watcher = nil
	} else {
		watcher.Start(cmd.Context())
	}

	engine := auth.NewEngine(
		auth.WithDefaults(cfg.Auth.ClientID, cfg.Auth.TenantID),
		auth.WithBrowser(&auth.SystemBrowser{Profile: cfg.Auth.BrowserProfile}),
	)
	gw := gateway.New(store, engine)

	current = &app{
		cfg:       cfg,
		settings:  settings,
		store:     store,
		watcher:   watcher,
		engine:    engine,
		gateway:   gw,
		dataverse: dataverse.NewService(gw),
	}
	return current, nil
}

// teardownApp quiesces the gateway so no token outlives the process.
func teardownApp() {
	if current == nil {
		return
	}
	if current.watcher != nil {
		current.watcher.Stop()
	}
	current.gateway.Shutdown()
	current = nil
}

// resolveConnection picks the connection a command should act on: the
// --connection flag matched against ids first and names second, or the
// single stored connection when the flag is empty.
func resolveConnection(a *app, ref string) (*connection.Connection, error) {
	conns := a.store.List()
	if len(conns) == 0 {
		return nil, dverrors.New(dverrors.KindConfiguration,
			"no connections configured; run 'dvbox connection add' first")
	}

	if ref == "" {
		if len(conns) == 1 {
			return conns[0], nil
		}
		names := make([]string, 0, len(conns))
		for _, c := range conns {
			names = append(names, c.Name)
		}
		return nil, dverrors.Newf(dverrors.KindConfiguration,
			"multiple connections configured; pick one with --connection (%s)", strings.Join(names, ", "))
	}

	for _, c := range conns {
		if c.ID == ref {
			return c, nil
		}
	}
	for _, c := range conns {
		if strings.EqualFold(c.Name, ref) {
			return c, nil
		}
	}
	return nil, dverrors.Newf(dverrors.KindConfiguration, "no connection named %q", ref)
}

// printJSON renders a result document for terminal consumption.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withReauth runs op and, when it fails because a sign-in is needed on
// an interactive connection, drives the sign-in and retries once. This
// stands in for the interstitial a desktop shell would show.
func withReauth(ctx context.Context, a *app, conn *connection.Connection, op func() error) error {
	err := op()
	if err == nil || dverrors.KindOf(err) != dverrors.KindReauthRequired {
		return err
	}
	if conn.AuthenticationType != connection.AuthInteractive {
		return err
	}

	fmt.Fprintf(os.Stderr, "Sign-in required for %s, opening your browser...\n", conn.Name)
	if _, signErr := a.gateway.SignIn(ctx, conn.ID); signErr != nil {
		return signErr
	}
	return op()
}
