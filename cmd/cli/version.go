package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kioskd/kioskd/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	// Skip config loading so version works on a bare machine
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		info := common.GetBuildInfo()

		fmt.Printf("kioskd %s", info.Version)
		if gitCommit := info.GitCommit; gitCommit != "unknown" && len(gitCommit) > 0 {
			if len(gitCommit) > 8 {
				gitCommit = gitCommit[:8]
			}
			fmt.Printf(" (git: %s)", gitCommit)
		}
		fmt.Println()
		fmt.Printf("%s %s\n", info.GoVersion, info.Platform)
		fmt.Printf("kiosk id: %s\n", common.GetKioskIdentifier())
	},
}

func init() {

	rootCmd.AddCommand(versionCmd)
}
