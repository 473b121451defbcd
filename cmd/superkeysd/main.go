// superkeysd - super-key remapping daemon
//
// superkeysd grabs the configured keyboards and pointers, runs every edge
// through the super-key state machine and writes the result to a virtual
// output device.
//
//	superkeysd run            Run the daemon in the foreground (default)
//	superkeysd check-config   Validate the configuration file
//	superkeysd devices        List input devices and whether they match
//	superkeysd version        Print the version
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"

	"superkeys/internal/config"
	"superkeys/internal/host"
)

// Version is set at build time.
var Version = "dev"

func main() {
	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "run":
		cmdRun(args)
	case "check-config":
		cmdCheckConfig(args)
	case "devices":
		cmdDevices(args)
	case "version":
		fmt.Printf("superkeysd %s (%s/%s, %s)\n", Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`superkeysd - Super-key remapping daemon

USAGE:
    superkeysd [command] [options]

COMMANDS:
    run                 Run the daemon in the foreground (default)
    check-config        Validate the configuration and print it
    devices             List input devices and whether they would be grabbed
    version             Print version information
    help                Show this help message

OPTIONS:
    -config <path>      Configuration file (default: $XDG_CONFIG_HOME/superkeys/config.toml)
    -log-level <level>  Override the configured log level

ENVIRONMENT:
    SUPERKEYS_LOG_LEVEL, SUPERKEYS_LOG_FORMAT, SUPERKEYS_SOCKET,
    SUPERKEYS_TRACE, SUPERKEYS_TRACE_PATH, SUPERKEYS_NOTIFY,
    SUPERKEYS_DEVICES, SUPERKEYS_EVENTS_ADDR override values from the
    configuration file.

The control socket is served while the daemon runs; use superkeysctl to
query status, reset the state machine, reload the configuration or read
the transition trace.`)
}

type commonFlags struct {
	configPath string
	logLevel   string
}

func parseFlags(name string, args []string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cf := &commonFlags{}
	fs.StringVar(&cf.configPath, "config", config.DefaultConfigPath(), "configuration file")
	fs.StringVar(&cf.logLevel, "log-level", "", "override the log level")
	fs.Parse(args)
	return fs, cf
}

func loadConfig(cf *commonFlags) *config.Config {
	cfg, res, err := config.Load(cf.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if res != nil && res.FromVersion != res.ToVersion {
		fmt.Fprintf(os.Stderr, "Note: configuration migrated from version %d to %d in memory\n",
			res.FromVersion, res.ToVersion)
	}
	if cf.logLevel != "" {
		cfg.Logging.Level = cf.logLevel
	}
	return cfg
}

func cmdCheckConfig(args []string) {
	_, cf := parseFlags("check-config", args)
	cfg := loadConfig(cf)

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
	fmt.Fprintf(os.Stderr, "%s: OK\n", cf.configPath)
}

func cmdDevices(args []string) {
	_, cf := parseFlags("devices", args)
	cfg := loadConfig(cf)
	matcher := cfg.Matcher()

	devices, err := host.Discover()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(devices) == 0 {
		fmt.Println("No input devices found.")
		return
	}
	for _, d := range devices {
		mark := " "
		if matcher.Match(d) {
			mark = "*"
		}
		fmt.Printf("%s %-20s %-40s %s\n", mark, d.Path, d.Name, deviceKind(d))
	}
	fmt.Println()
	fmt.Println("* = would be grabbed")
}

func deviceKind(d host.DeviceInfo) string {
	switch {
	case d.Keyboard && d.Pointer:
		return "keyboard+pointer"
	case d.Keyboard:
		return "keyboard"
	case d.Pointer:
		return "pointer"
	}
	return "-"
}
