// Package cli implements the fileupload command line tool.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/alerts"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/config"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/jss"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/monitor"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/retry"
	"github.com/aicsgithub/aics-file-upload-app-sub003/pkg/log"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "fileupload",
	Short: "fileupload submits uploads to the job status service and keeps track of them",
	Long: `fileupload is the command line companion of the file upload app.

It registers uploads with the job status service (JSS), follows their
progress over the service's event stream and tells you when it is safe to
quit without interrupting a copy.

Common workflows:

  Run the monitor and the local status API:
    fileupload serve

  Submit files:
    fileupload submit --name "plate 42" /data/plate42/*.czi

  List your jobs:
    fileupload jobs

  Retry or cancel a job:
    fileupload retry <job-id>
    fileupload cancel <job-id>

Configuration:
  Flags, FILEUPLOAD_* environment variables and $HOME/.fileupload.yaml win,
  then settings saved through the status API, then the plain variables
  (JSS_URL, UPLOAD_USER, DATA_DIR, ...). Set NO_COLOR to disable colored
  output.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			// Search config in home directory with name ".fileupload"
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".fileupload")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "FILEUPLOAD_VARNAME"
	viper.SetEnvPrefix("FILEUPLOAD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debug("Using config file: %s", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.fileupload.yaml)")

	rootCmd.PersistentFlags().String("jss-url", "", "job status service URL")
	_ = viper.BindPFlag("jss-url", rootCmd.PersistentFlags().Lookup("jss-url"))

	rootCmd.PersistentFlags().StringP("user", "u", "", "user whose jobs are tracked")
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))

	rootCmd.PersistentFlags().String("data-dir", "", "local cache directory")
	_ = viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))

	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// loadConfig resolves configuration from flags, viper and the environment
// and configures logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(
		config.WithJSSURL(viper.GetString("jss-url")),
		config.WithUser(viper.GetString("user")),
		config.WithDataDir(viper.GetString("data-dir")),
		config.WithLogLevel(viper.GetString("log-level")),
		config.WithHTTPAddr(viper.GetString("http-addr")),
	)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if viper.GetBool("metrics") {
		cfg.HTTP.MetricsEnabled = true
	}
	log.GetLogger().SetLevel(log.ParseLevel(cfg.System.LogLevel))
	return cfg, nil
}

func newClient(cfg *config.Config, notifier alerts.Notifier) *jss.Client {
	return jss.NewClient(cfg.JSS.URL,
		jss.WithRetryPolicy(retry.Policy{Attempts: cfg.Retry.Attempts, Delay: cfg.Retry.Delay}),
		jss.WithNotifier(notifier),
		jss.WithRequestRate(cfg.JSS.RequestRate),
	)
}

func monitorConfig(cfg *config.Config) monitor.Config {
	return monitor.Config{
		User:           cfg.JSS.User,
		ResyncSchedule: cfg.Stream.ResyncCron,
		ReconnectDelay: cfg.Stream.ReconnectDelay,
	}
}

// printAlerts echoes alerts to the command's error stream.
func printAlerts(cmd *cobra.Command) alerts.Notifier {
	return alerts.NotifierFunc(func(a alerts.Alert) {
		cmd.PrintErrln(renderAlert(a))
	})
}
