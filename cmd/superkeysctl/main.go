// superkeysctl is the control CLI for superkeysd.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"superkeys/internal/config"
	"superkeys/internal/ipc"
	"superkeys/internal/passthrough"
)

var (
	socketPath = flag.String("socket", "", "control socket (default: from config)")
	configPath = flag.String("config", "", "config file used to find the socket")
	jsonOut    = flag.Bool("json", false, "print raw JSON responses")
	timeout    = flag.Duration("timeout", 5*time.Second, "request timeout")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)

	switch cmd {
	case "status":
		cmdStatus()
	case "reset":
		cmdReset()
	case "reload":
		cmdReload()
	case "trace":
		limit := 0
		if flag.NArg() >= 2 {
			n, err := strconv.Atoi(flag.Arg(1))
			if err != nil || n < 0 {
				fmt.Fprintln(os.Stderr, "Usage: superkeysctl trace [count]")
				os.Exit(1)
			}
			limit = n
		}
		cmdTrace(limit)
	case "watch":
		cmdWatch()
	case "metrics":
		cmdMetrics()
	case "ping":
		cmdPing()
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `superkeysctl - Control utility for superkeysd

Usage: superkeysctl [options] <command> [args]

Commands:
  status          Show engine state, attached devices and counters
  reset           Return the state machine to neutral and release all keys
  reload          Re-read the configuration file
  trace [count]   Print the most recent recorded transitions (default 50)
  watch           Stream state transitions until interrupted
  metrics         Print metrics in Prometheus text format
  ping            Check that the daemon is responding
  help            Show this help message

Options:
  -socket <path>  Control socket (default: $XDG_RUNTIME_DIR/superkeysd.sock)
  -config <path>  Config file used to find the socket
  -json           Print raw JSON responses
  -timeout <d>    Request timeout (default 5s)`)
}

func resolveSocket() string {
	if *socketPath != "" {
		return *socketPath
	}
	path := *configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, _, err := config.Load(path)
	if err != nil {
		return config.DefaultSocketPath()
	}
	return cfg.IPC.SocketPath
}

func connect(ctx context.Context) *ipc.Client {
	c, err := ipc.Dial(ctx, resolveSocket())
	if err != nil {
		if errors.Is(err, ipc.ErrDaemonNotRunning) {
			fmt.Fprintln(os.Stderr, "Error: superkeysd is not running")
			fmt.Fprintln(os.Stderr, "  Tip: start it with: superkeysd run")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
	c.SetTimeout(*timeout)
	return c
}

func withClient(fn func(ctx context.Context, c *ipc.Client) error) {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	c := connect(ctx)
	defer c.Close()
	if err := fn(ctx, c); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdStatus() {
	withClient(func(ctx context.Context, c *ipc.Client) error {
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(st)
		}

		e := st.Engine
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "Version:\t%s\n", st.Version)
		fmt.Fprintf(tw, "Uptime:\t%s\n", st.Uptime)
		fmt.Fprintf(tw, "Config:\t%s\n", st.ConfigPath)
		fmt.Fprintf(tw, "Node:\t%s\n", e.Node)
		fmt.Fprintf(tw, "Base layer:\t%s\n", e.BaseLayer)
		fmt.Fprintf(tw, "Layers:\t%s\n", e.Layers)
		fmt.Fprintf(tw, "Persistent:\t%t\n", e.Persistent)
		fmt.Fprintf(tw, "Composite mods:\t%s\n", e.Composite)
		fmt.Fprintf(tw, "Output mods:\t%s\n", e.OutputMods)
		fmt.Fprintf(tw, "Held keys:\t%d\n", e.HeldKeys)
		fmt.Fprintf(tw, "Drag-scroll:\t%t %s\n", e.Dragscroll, e.ScrollAxis)
		fmt.Fprintf(tw, "Routing:\tbuttons=%s pointer=%s wheel=%s\n",
			route(e.Routing.Buttons), route(e.Routing.Pointer), route(e.Routing.Wheel))
		fmt.Fprintf(tw, "Indicator:\t%s (%s) %s\n", e.Indicator.State, e.Indicator.Phase, e.Indicator.Color)
		fmt.Fprintf(tw, "Devices:\t%d\n", len(st.Devices))
		for _, d := range st.Devices {
			fmt.Fprintf(tw, "\t%s\n", d)
		}
		return tw.Flush()
	})
}

func route(s passthrough.State) string {
	switch {
	case s.Send && s.Block:
		return "pipeline"
	case s.Send:
		return "both"
	case s.Block:
		return "dropped"
	}
	return "direct"
}

func cmdReset() {
	withClient(func(ctx context.Context, c *ipc.Client) error {
		resp, err := c.Reset(ctx)
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(resp)
		}
		fmt.Printf("Reset. Node: %s\n", resp.Node)
		return nil
	})
}

func cmdReload() {
	withClient(func(ctx context.Context, c *ipc.Client) error {
		resp, err := c.Reload(ctx)
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(resp)
		}
		if !resp.Success {
			return fmt.Errorf("reload %s: %s (previous configuration kept)", resp.ConfigPath, resp.Error)
		}
		fmt.Printf("Reloaded %s\n", resp.ConfigPath)
		return nil
	})
}

func cmdTrace(limit int) {
	withClient(func(ctx context.Context, c *ipc.Client) error {
		resp, err := c.Trace(ctx, limit)
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(resp)
		}
		if !resp.Enabled {
			fmt.Println("Tracing is disabled. Set trace.enabled = true in the config.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tKEY\tEDGE\tFROM\tTO\tRESULT")
		for _, t := range resp.Transitions {
			edge := "up"
			if t.Pressed {
				edge = "down"
			}
			result := t.Result
			if t.Redispatched {
				result += " (redispatch)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.Time.Local().Format("15:04:05.000"), t.Code, edge, t.StateBefore, t.StateAfter, result)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d stored transitions in %d sessions, %d dropped this session\n",
			resp.Stats.Transitions, resp.Stats.Sessions, resp.Dropped)
		if len(resp.Sessions) > 0 {
			cur := resp.Sessions[0]
			fmt.Printf("Current session %s started %s\n", cur.UUID, cur.StartedAt.Local().Format(time.DateTime))
		}
		return nil
	})
}

func cmdWatch() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dctx, cancel := context.WithTimeout(ctx, *timeout)
	c := connect(dctx)
	cancel()
	defer c.Close()

	err := c.Subscribe(ctx, func(ev ipc.StateEvent) {
		if *jsonOut {
			printJSON(ev)
			return
		}
		edge := "up  "
		if ev.Pressed {
			edge = "down"
		}
		line := fmt.Sprintf("%s %-14s %s %s -> %s (%s)",
			ev.Time.Local().Format("15:04:05.000"), ev.Code, edge, ev.Before, ev.After, ev.Result)
		if ev.Redispatched {
			line += " redispatch"
		}
		fmt.Println(line)
	})
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdMetrics() {
	withClient(func(ctx context.Context, c *ipc.Client) error {
		text, err := c.Metrics(ctx)
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	})
}

func cmdPing() {
	withClient(func(ctx context.Context, c *ipc.Client) error {
		start := time.Now()
		if err := c.Ping(ctx); err != nil {
			return err
		}
		fmt.Printf("pong (%s)\n", time.Since(start).Round(time.Microsecond))
		return nil
	})
}
