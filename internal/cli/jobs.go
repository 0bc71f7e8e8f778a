package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/jobs"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List your upload jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newClient(cfg, printAlerts(cmd))
		list, err := client.ListJobs(cmd.Context(), cfg.JSS.User)
		if err != nil {
			return err
		}

		tracker := jobs.NewTracker(nil)
		tracker.ApplySnapshot(list)
		cmd.Println(renderRows(tracker.Rows(), time.Now()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}
