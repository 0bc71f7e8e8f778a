package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/jobs"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/persistence"
	"github.com/aicsgithub/aics-file-upload-app-sub003/pkg/icron"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and what the local cache knows about your uploads",
	Long: `status reads the local job cache written by "fileupload serve" and
reports whether it is safe to quit, without contacting the service.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := persistence.NewSQLiteStore(cfg.DBPath())
		if err != nil {
			return fmt.Errorf("open job cache: %w", err)
		}
		defer store.Close()
		tracker := jobs.NewTracker(store)

		now := time.Now()
		cmd.Println(headerStyle.Render("Configuration"))
		cmd.Printf("  Service:   %s\n", cfg.JSS.URL)
		cmd.Printf("  User:      %s\n", cfg.JSS.User)
		cmd.Printf("  Cache:     %s\n", cfg.DBPath())
		if info, err := icron.GetTriggerInfo(cfg.Stream.ResyncCron, now); err == nil {
			cmd.Printf("  Resync:    %s (next %s)\n", info.Expression, humanize.RelTime(info.Next, now, "ago", "from now"))
		}

		cmd.Println(headerStyle.Render("Uploads"))
		cmd.Printf("  Jobs:      %d\n", len(tracker.UploadJobs()))
		cmd.Printf("  Pending:   %d\n", len(tracker.Pending()))
		incomplete := tracker.IncompleteJobIDs()
		cmd.Printf("  Copying:   %d\n", len(incomplete))
		for _, id := range incomplete {
			cmd.Printf("    %s\n", dimStyle.Render(id))
		}
		cmd.Printf("  Safe to exit: %s\n", yesNo(tracker.SafeToExit()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
