package cli

import (
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/otiai10/doggyday/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session, navigation and booking API over HTTP",
	Long: `Run the app host for a UI shell.

The server exposes the session state and its changes (REST and a WebSocket
stream at /ws), the navigator with its auth guard, the Firebase-token
protected booking API, Stripe checkout and webhooks, and Prometheus metrics
at /metrics. The UI shell is served from api.static_dir when set, otherwise
from the bundled assets.

The session, navigation and /ws routes act for whoever is signed in on this
machine, so by default they are only served on a loopback address. Use
--device on|off (or api.device) to override.

Examples:
  doggyday serve
  doggyday serve --addr 127.0.0.1:8080 --config doggyday.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.API.Addr = addr
		}
		if device, _ := cmd.Flags().GetString("device"); device != "" {
			cfg.API.Device = device
			if err := cfg.API.Validate(); err != nil {
				return err
			}
		}

		var opts []app.Option
		if shell := shellFS(cfg.API.StaticDir); shell != nil {
			opts = append(opts, app.WithStaticFS(shell))
		}

		a, _, err := openAppWith(cmd, cfg, opts...)
		if err != nil {
			return err
		}
		defer a.Close()

		slog.Info("doggyday app host", "addr", cfg.API.Addr, "platform", a.Diagnose().Platform, "device_routes", cfg.API.DeviceRoutes())
		return a.Serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides api.addr)")
	serveCmd.Flags().String("device", "", "device session routes: auto, on or off (overrides api.device)")
	rootCmd.AddCommand(serveCmd)
}

// shellFS picks the UI shell: dir when set, else the bundled assets
func shellFS(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return staticFS
}
