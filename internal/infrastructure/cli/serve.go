package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/bridge"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/config"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the shared review server",
	Long: `Serve starts the HTTP bridge on the configured port and spawns one
worker process per review session. Sessions are created on first use,
evicted when idle, and never shared between session ids.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServerConfig(configPath)
		if err != nil {
			return MapError(err)
		}

		logger := newLogger()
		slog.SetDefault(logger)

		// Fail fast on a broken exclusion config instead of surfacing it
		// per worker spawn.
		if _, warnings, err := config.LoadExclusions(cfg.ExclusionsFile); err != nil {
			return MapError(err)
		} else {
			for _, w := range warnings {
				logger.Warn("exclusion config warning", "warning", w)
			}
		}

		spawnArgs := []string{"worker"}
		if configPath != "" {
			spawnArgs = append(spawnArgs, "--config", configPath)
		}

		mgr := session.NewManager(session.ExecSpawner(spawnArgs...), session.ManagerConfig{
			Session: session.Config{
				StartupTimeout:   cfg.Session.StartupTimeout,
				CloseGrace:       cfg.Session.CloseGrace,
				MaxLineBytes:     cfg.Session.MaxLineBytes,
				SubscriberBuffer: cfg.Session.SubscriberBuffer,
			},
			IdleTimeout: cfg.Session.IdleTimeout,
			MaxSessions: cfg.Session.MaxSessions,
		}, logger)

		srv := bridge.NewServer(mgr, bridge.Config{
			Addr:           fmt.Sprintf(":%d", cfg.Port),
			RequestTimeout: cfg.RequestTimeout,
		}, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		return srv.ListenAndServe()
	},
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func init() {
	RootCmd.AddCommand(serveCmd)
}
