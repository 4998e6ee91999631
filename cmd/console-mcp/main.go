package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devstroop/console-mcp/internal/buildinfo"
	"github.com/devstroop/console-mcp/pkg/capture"
	"github.com/devstroop/console-mcp/pkg/config"
	"github.com/devstroop/console-mcp/pkg/providers"
	"github.com/devstroop/console-mcp/pkg/providers/device"
	"github.com/devstroop/console-mcp/pkg/providers/docker"
	execprov "github.com/devstroop/console-mcp/pkg/providers/exec"
	"github.com/devstroop/console-mcp/pkg/providers/logs/filetail"
	"github.com/devstroop/console-mcp/pkg/providers/logs/journald"
	"github.com/devstroop/console-mcp/pkg/providers/logs/oslog"
	"github.com/devstroop/console-mcp/pkg/providers/simulator"
	"github.com/devstroop/console-mcp/pkg/providers/systemd"
	"github.com/devstroop/console-mcp/pkg/server"
)

var (
	configPath string
	socketPath string
	verbose    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "console-mcp",
	Short: "MCP server for live system, device and simulator logs",
	Long: "console-mcp exposes the system log, attached device logs and simulator logs " +
		"as MCP tools. Without a subcommand it serves MCP on stdin/stdout.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serveStdio(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (yaml or toml)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "unix socket path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(crashesCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(callCmd)
}

// app holds everything a command needs once configuration is resolved.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *providers.Registry
	engine   *capture.Engine
	server   *server.Server
}

func setup(logOut io.Writer) (*app, error) {
	wd, _ := os.Getwd()
	cfg, path, err := config.Resolve(configPath, wd)
	if err != nil {
		return nil, err
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}

	registry := buildRegistry(cfg, logger)
	engine := capture.New(logger, cfg.EngineLimits())
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		engine:   engine,
		server:   server.New(cfg, registry, engine, logger),
	}, nil
}

func buildRegistry(cfg *config.Config, logger *slog.Logger) *providers.Registry {
	reg := providers.NewRegistry(logger)
	journal := journald.New()

	reg.Add(oslog.New())
	reg.Add(journal)
	reg.Add(simulator.New(nil))
	reg.Add(device.New(nil))
	reg.Add(systemd.New(cfg.Units, journal, logger))

	containers := docker.New(nil, logger)
	for _, path := range cfg.Compose {
		if err := containers.AddComposeFile(path, ""); err != nil {
			logger.Warn("compose file skipped", "path", path, "err", err)
		}
	}
	reg.Add(containers)

	if len(cfg.Sources) > 0 {
		custom := execprov.New()
		for name, src := range cfg.Sources {
			custom.Add(name, execprov.Spec{Command: src.Command, Args: src.Args, Description: src.Description})
		}
		reg.Add(custom)
	}
	if len(cfg.Files) > 0 {
		files := filetail.New()
		for name, path := range cfg.Files {
			files.Add(name, path)
		}
		reg.Add(files)
	}
	return reg
}

// --- Serve ---

func serveStdio(cmd *cobra.Command) error {
	a, err := setup(os.Stderr)
	if err != nil {
		return err
	}
	return a.server.ServeStdio(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP on stdio, or on a unix socket with --socket",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if socketPath == "" {
			return serveStdio(cmd)
		}
		a, err := setup(os.Stderr)
		if err != nil {
			return err
		}
		defer a.server.Shutdown()
		a.logger.Info("listening", "socket", socketPath, "version", buildinfo.Version)
		return a.server.Listen(cmd.Context(), socketPath)
	},
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "console-mcp %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

// --- Config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the console-mcp config file",
}

var configInitOutput string

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := configInitOutput
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			path = filepath.Join(home, ".config", "console-mcp", "config.yaml")
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			wd, _ := os.Getwd()
			found, err := config.Discover("", wd)
			if err != nil {
				return err
			}
			if found == "" {
				return fmt.Errorf("no config file found")
			}
			path = found
		}

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		errs := config.Validate(cfg)
		if len(errs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d custom sources)\n", path, len(cfg.Sources))
			return nil
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d error(s)\n", path, len(errs))
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  • %s\n", e)
		}
		return fmt.Errorf("%s: invalid config", path)
	},
}

func init() {
	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "", "output file path (default ~/.config/console-mcp/config.yaml)")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}
