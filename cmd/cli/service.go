package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/kioskd/kioskd/internal/agent"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Service management commands",
	Long:  `Manage kioskd as a system service. The service restarts kioskd after every exit.`,
}

// createService creates the service wrapper or exits the process.
func createService() service.Service {
	s, err := agent.CreateService(func(ctx context.Context) int {
		return int(runOnce(ctx))
	})
	if err != nil {
		fmt.Println(errorStyle.Render(fmt.Sprintf("Failed to create service: %v", err)))
		os.Exit(1)
	}
	return s
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install kioskd as a system service",
	Long:  `Install kioskd as a system service that starts on boot and relaunches on exit`,
	Run: func(cmd *cobra.Command, args []string) {
		s := createService()

		if err := s.Install(); err != nil {
			fmt.Println(errorStyle.Render(fmt.Sprintf("Failed to install service: %v", err)))
			printInstallInstructions()
			os.Exit(1)
		}

		fmt.Println(successStyle.Render("kioskd service installed successfully"))
		fmt.Println("   Use 'kioskd service start' to start the service")
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the kioskd service",
	Run: func(cmd *cobra.Command, args []string) {
		if err := createService().Start(); err != nil {
			fmt.Println(errorStyle.Render(fmt.Sprintf("Failed to start service: %v", err)))
			os.Exit(1)
		}

		fmt.Println(successStyle.Render("kioskd service started successfully"))
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the kioskd service",
	Run: func(cmd *cobra.Command, args []string) {
		if err := createService().Stop(); err != nil {
			fmt.Println(errorStyle.Render(fmt.Sprintf("Failed to stop service: %v", err)))
			os.Exit(1)
		}

		fmt.Println(successStyle.Render("kioskd service stopped successfully"))
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the kioskd service status",
	Run: func(cmd *cobra.Command, args []string) {
		status, err := createService().Status()
		if err != nil {
			fmt.Println(errorStyle.Render(fmt.Sprintf("Failed to get service status: %v", err)))
			os.Exit(1)
		}

		fmt.Printf("kioskd service status: %s\n", serviceStatusText(status))
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Uninstall the kioskd service",
	Run: func(cmd *cobra.Command, args []string) {
		s := createService()

		// Stop the service first if it's running
		if err := s.Stop(); err != nil {
			fmt.Println(infoStyle.Render("Service was not running"))
		}

		if err := s.Uninstall(); err != nil {
			fmt.Println(errorStyle.Render(fmt.Sprintf("Failed to uninstall service: %v", err)))
			os.Exit(1)
		}

		fmt.Println(successStyle.Render("kioskd service uninstalled successfully"))
	},
}

func serviceStatusText(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return successStyle.Render("Running")
	case service.StatusStopped:
		return warningStyle.Render("Stopped")
	default:
		return infoStyle.Render("Unknown")
	}
}

func printInstallInstructions() {
	exePath, _ := os.Executable()
	fmt.Println("\nService installation failed. You may need to run with elevated privileges:")
	fmt.Println("\nLinux:")
	fmt.Printf("   sudo %s service install\n", exePath)
	fmt.Println("\nWindows:")
	fmt.Printf("   Run as Administrator: %s service install\n", exePath)
	fmt.Println("\nmacOS:")
	fmt.Printf("   sudo %s service install\n", exePath)
}

func init() {

	rootCmd.AddCommand(serviceCmd)

	serviceCmd.AddCommand(installCmd)
	serviceCmd.AddCommand(startCmd)
	serviceCmd.AddCommand(stopCmd)
	serviceCmd.AddCommand(statusCmd)
	serviceCmd.AddCommand(removeCmd)
}
