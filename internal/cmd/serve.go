package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/botdas/internal/config"
	"github.com/Iron-Ham/botdas/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upgrade HTTP API",
	Long: `Serve the HTTP API:

  POST /api/upgrade              {owner, name, targetPackage, tree?, noPr?}
  POST /api/dashboard            {targetPackage, repositories: [{owner, name}]}
  GET  /api/tree/{owner}/{repo}  ?path=
  GET  /healthz

Requests authenticate with "Authorization: Bearer <token>", falling back to
hosting.token. Changes to the config file are applied without a restart.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default: server.addr)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	srv := server.New(rt.service(),
		server.WithLogger(rt.logger),
		server.WithAddr(rt.cfg.Server.Addr),
		server.WithReadTimeout(rt.cfg.Server.ReadTimeout()),
		server.WithDashboardParallel(rt.cfg.Dashboard.MaxParallel),
	)

	if viper.ConfigFileUsed() != "" {
		viper.OnConfigChange(func(e fsnotify.Event) {
			cfg, err := config.Load()
			if err != nil {
				rt.logger.Warn("ignoring invalid config change", "file", e.Name, "error", err)
				return
			}
			reloaded := &runtime{cfg: cfg, logger: rt.logger}
			srv.SetBackend(reloaded.service(), cfg.Dashboard.MaxParallel)
			rt.logger.Info("configuration reloaded", "file", e.Name, "op", e.Op.String())
		})
		viper.WatchConfig()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx)
}
