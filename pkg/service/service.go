// Package service manages the console-mcp systemd user service that keeps a
// socket server running.
package service

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"
)

const unitName = "console-mcp.service"

// UnitContents returns the unit file that serves on socketPath with the
// binary at binaryPath.
func UnitContents(binaryPath, socketPath, configPath string) (string, error) {
	execStart := binaryPath + " serve --socket " + socketPath
	if configPath != "" {
		execStart += " --config " + configPath
	}
	opts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", "console-mcp log server"),
		unit.NewUnitOption("Unit", "Documentation", "https://github.com/devstroop/console-mcp"),
		unit.NewUnitOption("Service", "Type", "simple"),
		unit.NewUnitOption("Service", "ExecStart", execStart),
		unit.NewUnitOption("Service", "Restart", "on-failure"),
		unit.NewUnitOption("Service", "RestartSec", "5"),
		unit.NewUnitOption("Install", "WantedBy", "default.target"),
	}
	b, err := io.ReadAll(unit.Serialize(opts))
	if err != nil {
		return "", fmt.Errorf("serialize unit: %w", err)
	}
	return string(b), nil
}

// ParseExecStart returns the ExecStart line of a unit file.
func ParseExecStart(r io.Reader) (string, error) {
	opts, err := unit.DeserializeOptions(r)
	if err != nil {
		return "", fmt.Errorf("parse unit: %w", err)
	}
	for _, o := range opts {
		if o.Section == "Service" && o.Name == "ExecStart" {
			return o.Value, nil
		}
	}
	return "", fmt.Errorf("parse unit: no ExecStart")
}

// UnitPath returns the path to the systemd user unit file.
func UnitPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	return filepath.Join(configDir, "systemd", "user", unitName), nil
}

// Install writes the unit file, reloads systemd, and enables+starts the service.
func Install(socketPath, configPath string) error {
	binaryPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot resolve console-mcp path: %w", err)
	}

	unitPath, err := UnitPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}

	contents, err := UnitContents(binaryPath, socketPath, configPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(unitPath, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("cannot write unit file: %w", err)
	}

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", unitName)
}

// Uninstall stops+disables the service, removes the unit file, and reloads systemd.
func Uninstall() error {
	// Not running is fine.
	_ = systemctl("stop", unitName)
	_ = systemctl("disable", unitName)

	unitPath, err := UnitPath()
	if err != nil {
		return err
	}
	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot remove unit file: %w", err)
	}
	return systemctl("daemon-reload")
}

// Status returns a human-readable status string.
func Status(socketPath string) string {
	var lines []string

	if _, err := os.Stat(socketPath); err == nil {
		lines = append(lines, "socket: active ("+socketPath+")")
	} else {
		lines = append(lines, "socket: inactive ("+socketPath+")")
	}

	unitPath, err := UnitPath()
	if err == nil {
		if f, statErr := os.Open(unitPath); statErr == nil {
			execStart, _ := ParseExecStart(f)
			f.Close()
			out, runErr := exec.Command("systemctl", "--user", "is-active", unitName).Output()
			state := strings.TrimSpace(string(out))
			if runErr != nil && state == "" {
				state = "unknown"
			}
			lines = append(lines, "systemd user service: "+state)
			if execStart != "" {
				lines = append(lines, "command: "+execStart)
			}
		} else {
			lines = append(lines, "systemd user service: not installed")
		}
	}

	return strings.Join(lines, "\n")
}

func systemctl(args ...string) error {
	cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl --user %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
