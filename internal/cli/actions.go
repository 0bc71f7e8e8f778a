package cli

import (
	"github.com/spf13/cobra"

	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/monitor"
)

var retryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Ask the job status service to retry a failed upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		err = withLocalMonitor(cmd, cfg, func(m *monitor.Monitor) error {
			return m.RetryJob(cmd.Context(), args[0])
		})
		if err != nil {
			return err
		}
		cmd.Printf("Retry requested for job %s\n", args[0])
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Stop an upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		err = withLocalMonitor(cmd, cfg, func(m *monitor.Monitor) error {
			return m.CancelJob(cmd.Context(), args[0])
		})
		if err != nil {
			return err
		}
		cmd.Printf("Cancel requested for job %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(cancelCmd)
}
