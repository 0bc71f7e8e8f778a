package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/alerts"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/config"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/jobs"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/monitor"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/persistence"
	"github.com/aicsgithub/aics-file-upload-app-sub003/pkg/file"
	"github.com/aicsgithub/aics-file-upload-app-sub003/pkg/format"
)

var submitName string

var submitCmd = &cobra.Command{
	Use:   "submit <file>...",
	Short: "Register files as a new upload",
	Long: `submit registers the given files with the job status service as one
upload.

The upload is kept in the local cache as pending until a running
"fileupload serve" sees the service confirm it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		files, total, err := file.Collect(args)
		if err != nil {
			return err
		}
		name := submitName
		if name == "" {
			name = filepath.Base(filepath.Clean(args[0]))
		}

		var jobID string
		err = withLocalMonitor(cmd, cfg, func(m *monitor.Monitor) error {
			jobID, err = m.Submit(cmd.Context(), monitor.SubmitRequest{
				Name:       name,
				Files:      files,
				TotalBytes: total,
			})
			return err
		})
		if err != nil {
			return err
		}
		cmd.Printf("Submitted %s as job %s (%d files, %s)\n", name, jobID, len(files), format.Bytes(total))
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVarP(&submitName, "name", "n", "", "job name (default is the first file's name)")
	rootCmd.AddCommand(submitCmd)
}

// withLocalMonitor runs fn against a monitor backed by the local job cache.
// The monitor is not started: one-shot commands only issue requests.
func withLocalMonitor(cmd *cobra.Command, cfg *config.Config, fn func(*monitor.Monitor) error) error {
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open job cache: %w", err)
	}
	defer store.Close()

	center := alerts.NewCenter(alerts.WithDuration(cfg.Alerts.Duration))
	m := monitor.New(monitorConfig(cfg), newClient(cfg, printAlerts(cmd)), jobs.NewTracker(store), center, nil)
	if err := fn(m); err != nil {
		if current, ok := center.Current(); ok {
			cmd.PrintErrln(renderAlert(current))
		}
		return err
	}
	return nil
}
