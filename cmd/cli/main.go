package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kioskd/kioskd/internal/config"
	"github.com/kioskd/kioskd/internal/models"
)

// Global configuration instance
var cfg *config.Config

var exit = func(code models.ExitCode) {
	os.Exit(int(code))
}

// loadConfig loads the configuration based on the --config flag or default locations
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, err := cmd.Flags().GetString("config")

	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	return config.Load(configFile)
}

func preRunConfigE(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = loadConfig(cmd)

	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// check if verbose flag is set
	verbose, err := cmd.Flags().GetBool("verbose")
	if err == nil && verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	return nil
}

var rootCmd = &cobra.Command{
	Use:   "kioskd",
	Short: "kioskd - unattended kiosk browser controller",
	Long: `kioskd drives a kiosk browser through pre-authentication, a local
credential gate and a supervised full session. Remote configuration
changes wipe the browser profile and restart the kiosk.

If no config file is specified, kioskd looks in the following locations:
  - ./config.yaml
  - ./config/config.yaml
  - /etc/kioskd/config.yaml
  - ~/.config/kioskd/config.yaml`,
	PersistentPreRunE: preRunConfigE,
	SilenceUsage:      true,
	Run: func(cmd *cobra.Command, args []string) {
		exit(runKiosk(cmd))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default is ./config.yaml)")
}

func GetCommandOptions() *cobra.Command {
	return rootCmd
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Errorln("Failed to execute command")
		os.Exit(1)
	}
}
