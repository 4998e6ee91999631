package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/devstroop/console-mcp/pkg/service"
)

// defaultSocket is where the user service listens when --socket is not given.
func defaultSocket() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "console-mcp.sock")
	}
	return filepath.Join(os.TempDir(), "console-mcp.sock")
}

func serviceSocket() string {
	if socketPath != "" {
		return socketPath
	}
	return defaultSocket()
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the socket server as a systemd user service",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and start the user service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := configPath
		if cfg != "" {
			abs, err := filepath.Abs(cfg)
			if err != nil {
				return err
			}
			cfg = abs
		}
		if err := service.Install(serviceSocket(), cfg); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "console-mcp service installed and started")
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the user service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := service.Uninstall(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "console-mcp service removed")
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show socket and service state",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), service.Status(serviceSocket()))
	},
}

func init() {
	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	serviceCmd.AddCommand(serviceStatusCmd)
	rootCmd.AddCommand(serviceCmd)
}
