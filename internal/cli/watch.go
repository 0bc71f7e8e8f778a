package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/alerts"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/config"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/eventstream"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/jobs"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/monitor"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/persistence"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow your uploads in the terminal",
	Long: `watch subscribes to the job status service and reprints the upload
table whenever a job changes. Alerts are printed as they are raised.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runWatch(ctx, cmd, cfg)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open job cache: %w", err)
	}
	defer store.Close()

	center := alerts.NewCenter(alerts.WithDuration(cfg.Alerts.Duration))
	tracker := jobs.NewTracker(store)
	mon := monitor.New(monitorConfig(cfg), newClient(cfg, center), tracker, center, eventstream.NewSSEDialer(nil, nil))

	changes, unsubscribe := mon.Subscribe()
	defer unsubscribe()

	if err := mon.Start(ctx); err != nil {
		return err
	}
	defer mon.Close()

	var lastAlert time.Time
	checkAlert := func() {
		if a, ok := center.Current(); ok && a.PostedAt.After(lastAlert) {
			lastAlert = a.PostedAt
			cmd.PrintErrln(renderAlert(a))
		}
	}
	refresh := func() {
		checkAlert()
		cmd.Println(renderRows(mon.Rows(), time.Now()))
		cmd.Println(dimStyle.Render(center.StatusText()))
	}
	refresh()

	// alerts such as a lost connection do not touch any job
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if !mon.SafeToExit() {
				cmd.PrintErrln(renderAlert(alerts.Alert{
					Type:    alerts.LevelWarn,
					Message: fmt.Sprintf("Uploads still copying: %v", mon.IncompleteJobIDs()),
				}))
			}
			return nil
		case <-changes:
			refresh()
		case <-ticker.C:
			checkAlert()
		}
	}
}
