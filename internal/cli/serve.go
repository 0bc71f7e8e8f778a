package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/alerts"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/config"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/eventstream"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/httpapi"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/jobs"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/monitor"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/observability"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/persistence"
	"github.com/aicsgithub/aics-file-upload-app-sub003/pkg/log"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Track uploads and serve the local status API",
	Long: `serve subscribes to the job status service, keeps the local job cache
current and serves the status API used by the desktop front end.

It stops on SIGINT or SIGTERM and warns when uploads are still copying.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().String("http-addr", "", "listen address of the status API")
	_ = viper.BindPFlag("http-addr", serveCmd.Flags().Lookup("http-addr"))

	serveCmd.Flags().Bool("metrics", false, "expose Prometheus metrics on /metrics")
	_ = viper.BindPFlag("metrics", serveCmd.Flags().Lookup("metrics"))

	rootCmd.AddCommand(serveCmd)
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

type runner interface {
	Start(ctx context.Context) error
	Close() error
}

func runServe(ctx context.Context, cfg *config.Config) error {
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open job cache: %w", err)
	}
	defer store.Close()

	tracker := jobs.NewTracker(store)
	center := alerts.NewCenter(alerts.WithDuration(cfg.Alerts.Duration))
	client := newClient(cfg, center)
	mon := monitor.New(monitorConfig(cfg), client, tracker, center, eventstream.NewSSEDialer(nil, nil))

	settings, err := config.NewRuntimeSettingsStore(cfg.SettingsPath(), cfg.RuntimeSettings())
	if err != nil {
		return err
	}
	opts := []httpapi.Option{httpapi.WithRuntimeSettingsStore(settings)}

	if cfg.HTTP.MetricsEnabled {
		handler, shutdown, err := observability.InitMetrics()
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.Background()) }()
		if err := observability.RegisterUploadGauges(mon); err != nil {
			return err
		}
		opts = append(opts, httpapi.WithMetricsHandler(handler))
	}

	gin.SetMode(gin.ReleaseMode)
	srv := httpapi.NewServer(mon, center, opts...)

	err = runWithComponents(ctx, cfg.HTTP.Addr, mon, srv)
	if !mon.SafeToExit() {
		log.Warn("Exiting while uploads are still copying: %v", mon.IncompleteJobIDs())
	}
	return err
}

// runWithComponents starts the monitor and the HTTP server and blocks until
// ctx is done or the server fails.
func runWithComponents(ctx context.Context, addr string, mon runner, srv httpServer) error {
	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}
	defer func() {
		if err := mon.Close(); err != nil {
			log.Warn("Monitor close: %v", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Status API listening on %s", addr)
		errCh <- srv.ListenAndServe(addr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status API: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown status API: %w", err)
	}
	return nil
}
