// Package cli implements the doggyday command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/otiai10/doggyday/internal/app"
	"github.com/otiai10/doggyday/internal/config"
	"github.com/otiai10/doggyday/internal/identity"
	"github.com/otiai10/doggyday/internal/logging"
	"github.com/otiai10/doggyday/internal/version"
)

// ErrNotSignedIn is returned by commands that act for the signed-in owner
var ErrNotSignedIn = errors.New("not signed in (run: doggyday login)")

var rootCmd = &cobra.Command{
	Use:   "doggyday",
	Short: "DoggyDay daycare app host",
	Long: `doggyday hosts the DoggyDay session on this device and talks to the
daycare's Firebase project.

The signed-in session is kept in a local state file, so a login in one
command carries over to the next.

Examples:
  doggyday login --email rex@example.com --password secret
  doggyday google
  doggyday dogs list
  doggyday serve --addr :8080`,
	Version:       version.CommitHash,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// staticFS is the bundled UI shell, set by main
var staticFS fs.FS

// newApp builds the app behind every command
var newApp = func(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...app.Option) (*app.App, error) {
	return app.NewFirebaseApp(ctx, cfg, logger, opts...)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which commands use for cancellation
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetStaticFS sets the UI shell served by "serve" when no static_dir is configured
func SetStaticFS(fsys fs.FS) {
	staticFS = fsys
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file (default: environment only)")
	rootCmd.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")
}

// loadConfig loads the configuration selected by the persistent flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	return cfg, nil
}

// openApp builds the app without starting it
func openApp(cmd *cobra.Command, opts ...app.Option) (*app.App, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return openAppWith(cmd, cfg, opts...)
}

func openAppWith(cmd *cobra.Command, cfg *config.Config, opts ...app.Option) (*app.App, *config.Config, error) {
	logger := logging.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)

	a, err := newApp(cmd.Context(), cfg, logger, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, cfg, nil
}

// openSession builds and starts the app, and waits for the persisted session
func openSession(cmd *cobra.Command) (*app.App, error) {
	a, _, err := openApp(cmd)
	if err != nil {
		return nil, err
	}
	a.Start(cmd.Context())
	if _, err := a.Ready(cmd.Context()); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	return a, nil
}

// currentUser returns the signed-in identity
func currentUser(a *app.App) (*identity.Session, error) {
	user := a.Session().State().User
	if user == nil {
		return nil, ErrNotSignedIn
	}
	return user, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
