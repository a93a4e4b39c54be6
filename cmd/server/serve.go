package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"tradehub-admin/internal/cache"
	"tradehub-admin/internal/config"
	"tradehub-admin/internal/db"
	httpapi "tradehub-admin/internal/http"
	"tradehub-admin/internal/logging"
	"tradehub-admin/internal/metrics"
	"tradehub-admin/internal/migrations"
	"tradehub-admin/internal/realtime"
	"tradehub-admin/internal/services"
	"tradehub-admin/internal/session"

	"github.com/go-extras/cobraflags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// metricsRetention bounds how much sampling history is kept.
const metricsRetention = 24 * time.Hour

func newServeCommand() *cobra.Command {
	flags := configFlags()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Apply migrations and run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if err := cfg.RequireAuth(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

func serve(parent context.Context, cfg config.Config) error {
	log, cleanup, err := logging.New(logging.Options{
		Level:         cfg.LogLevel,
		Environment:   cfg.Env,
		Dir:           cfg.LogDir,
		RetentionDays: cfg.LogRetentionDays,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()
	if _, err := migrations.Apply(ctx, database, migrations.Files, log); err != nil {
		return err
	}
	pool, err := db.OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := cache.New(cfg.CacheTTL)
	sessions := session.NewManager(cfg.AccessTTL)
	go sessions.Run(ctx, time.Minute)
	hub := realtime.NewHub(log)
	go hub.Run(ctx)
	listener := &realtime.Listener{Pool: pool, Channel: realtime.Channel, Cache: store, Hub: hub, Log: log}
	go listener.Run(ctx)

	server := httpapi.NewServer(database, cfg, store, sessions, hub, log)
	server.HTTPMetrics = metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)
	for _, bucket := range services.ImageOwners {
		if _, err := server.Images.Store.EnsureBucket(bucket); err != nil {
			return err
		}
	}
	go metricsLoop(ctx, server)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Router(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr()), zap.String("environment", cfg.Env))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}

// metricsLoop samples the host, stores the sample and pushes it to the
// connected dashboards.
func metricsLoop(ctx context.Context, server *httpapi.Server) {
	ticker := time.NewTicker(server.Config.MetricsSampleInterval)
	defer ticker.Stop()
	prune := time.NewTicker(time.Hour)
	defer prune.Stop()
	for {
		select {
		case <-ticker.C:
			sample, err := services.CaptureMetrics(ctx, server.DB, server.Config.MetricsDiskPath)
			if err != nil {
				server.Log.Warn("metrics capture", zap.Error(err))
				continue
			}
			server.Hub.Broadcast(realtime.Event{Type: realtime.EventMetrics, Payload: sample})
		case <-prune.C:
			n, err := services.PruneMetrics(ctx, server.DB, time.Now().Add(-metricsRetention))
			if err != nil {
				server.Log.Warn("metrics prune", zap.Error(err))
				continue
			}
			server.Log.Debug("metrics pruned", zap.Int64("rows", n))
		case <-ctx.Done():
			return
		}
	}
}
