package config

import (
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

const appName = "superkeys"

// ConfigDir returns $XDG_CONFIG_HOME/superkeys, falling back to
// ~/.config/superkeys.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(homeDir(), ".config", appName)
}

// StateDir returns $XDG_STATE_HOME/superkeys, falling back to
// ~/.local/state/superkeys.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(homeDir(), ".local", "state", appName)
}

// RuntimeDir returns $XDG_RUNTIME_DIR/superkeys, falling back to
// /run/user/<uid>/superkeys and then the temp dir.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	run := filepath.Join("/run", "user", strconv.Itoa(unix.Getuid()))
	if info, err := os.Stat(run); err == nil && info.IsDir() {
		return filepath.Join(run, appName)
	}
	return filepath.Join(os.TempDir(), appName+"-"+strconv.Itoa(unix.Getuid()))
}

// DefaultConfigPath is where superkeysd looks without -config.
func DefaultConfigPath() string { return filepath.Join(ConfigDir(), "config.toml") }

// DefaultLogPath is the log file used when logging.output includes a file.
func DefaultLogPath() string { return filepath.Join(StateDir(), "superkeysd.log") }

// DefaultTracePath is the trace database.
func DefaultTracePath() string { return filepath.Join(StateDir(), "trace.db") }

// DefaultSocketPath is the control socket.
func DefaultSocketPath() string { return filepath.Join(RuntimeDir(), "superkeysd.sock") }

// DefaultCrashDir holds crash reports.
func DefaultCrashDir() string { return filepath.Join(StateDir(), "crashes") }

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return os.TempDir()
}
