package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/devstroop/console-mcp/pkg/server"
	"github.com/devstroop/console-mcp/pkg/transport/rpc"
)

// logFlags are the query flags shared by the log commands.
type logFlags struct {
	source        string
	last          time.Duration
	duration      time.Duration
	timeout       time.Duration
	lines         int
	level         string
	process       string
	subsystem     string
	predicate     string
	unit          string
	filter        string
	mode          string
	caseSensitive bool
	follow        bool
	export        string
}

func (f *logFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.source, "source", "s", "", "source ID or kind (default system)")
	fl.StringVar(&f.level, "level", "", "minimum level: debug, info, error, fault")
	fl.StringVar(&f.process, "process", "", "only lines from this process")
	fl.StringVar(&f.subsystem, "subsystem", "", "only lines from this subsystem or identifier")
	fl.StringVar(&f.predicate, "predicate", "", "native filter expression passed to the source tool")
	fl.StringVar(&f.unit, "unit", "", "systemd unit")
	fl.IntVarP(&f.lines, "lines", "n", 0, "maximum lines to keep")
	fl.StringVar(&f.mode, "mode", "plain", "pattern mode: plain or regex")
	fl.BoolVar(&f.caseSensitive, "case-sensitive", false, "case-sensitive matching")
}

func (f *logFlags) args(pattern string) server.Args {
	return server.Args{
		Source:        f.source,
		Last:          server.Duration(f.last),
		Duration:      server.Duration(f.duration),
		Timeout:       server.Duration(f.timeout),
		Lines:         f.lines,
		Level:         f.level,
		Process:       f.process,
		Subsystem:     f.subsystem,
		Predicate:     f.predicate,
		Unit:          f.unit,
		Pattern:       pattern,
		Filter:        f.filter,
		Mode:          f.mode,
		CaseSensitive: f.caseSensitive,
		Follow:        f.follow,
		Path:          f.export,
	}
}

// runTool runs a tool in-process and prints its text content. An error
// result becomes the command's error.
func runTool(cmd *cobra.Command, name string, args server.Args) error {
	a, err := setup(os.Stderr)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return printResult(cmd, a.server.Call(cmd.Context(), name, raw, nil))
}

func printResult(cmd *cobra.Command, res server.CallToolResult) error {
	var text []string
	for _, c := range res.Content {
		text = append(text, c.Text)
	}
	out := strings.Join(text, "\n")
	if res.IsError {
		return fmt.Errorf("%s", out)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

// --- Sources ---

var sourcesKind string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List log sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTool(cmd, server.ToolListSources, server.Args{Kind: sourcesKind})
	},
}

func init() {
	sourcesCmd.Flags().StringVar(&sourcesKind, "kind", "", "only sources of this kind")
}

// --- Show ---

var showFlags logFlags

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print recent log lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		name := server.ToolShowLogs
		if showFlags.export != "" {
			name = server.ToolExportLogs
		}
		return runTool(cmd, name, showFlags.args(""))
	},
}

func init() {
	showFlags.register(showCmd)
	showCmd.Flags().DurationVar(&showFlags.last, "last", 0, "how far back to read (default 5m)")
	showCmd.Flags().DurationVar(&showFlags.timeout, "timeout", 0, "time limit for the read")
	showCmd.Flags().StringVar(&showFlags.filter, "filter", "", "keep only lines matching this pattern")
	showCmd.Flags().StringVar(&showFlags.export, "export", "", "write the lines to this file (.gz or .zst to compress)")
}

// --- Stream ---

var streamFlags logFlags

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Capture live log lines for a while",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTool(cmd, server.ToolStreamLogs, streamFlags.args(""))
	},
}

func init() {
	streamFlags.register(streamCmd)
	streamCmd.Flags().DurationVarP(&streamFlags.duration, "duration", "d", 0, "capture window (default 10s)")
	streamCmd.Flags().StringVar(&streamFlags.filter, "filter", "", "keep only lines matching this pattern")
}

// --- Search ---

var searchFlags logFlags

var searchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Search recent or live logs for a pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, server.ToolSearchLogs, searchFlags.args(args[0]))
	},
}

func init() {
	searchFlags.register(searchCmd)
	searchCmd.Flags().DurationVar(&searchFlags.last, "last", 0, "how far back to search")
	searchCmd.Flags().DurationVar(&searchFlags.timeout, "timeout", 0, "time limit for the search")
	searchCmd.Flags().BoolVarP(&searchFlags.follow, "follow", "f", false, "search live lines instead of history")
}

// --- Watch ---

var watchFlags logFlags

var watchCmd = &cobra.Command{
	Use:   "watch <pattern>",
	Short: "Wait for a line matching a pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, server.ToolWatchLogs, watchFlags.args(args[0]))
	},
}

func init() {
	watchFlags.register(watchCmd)
	watchCmd.Flags().DurationVarP(&watchFlags.timeout, "timeout", "t", 0, "give up after this long")
}

// --- Crashes ---

var (
	crashesFilter string
	crashesLimit  int
)

var crashesCmd = &cobra.Command{
	Use:   "crashes",
	Short: "List recent crash reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTool(cmd, server.ToolListCrashReports, server.Args{Filter: crashesFilter, Limit: crashesLimit})
	},
}

func init() {
	crashesCmd.Flags().StringVar(&crashesFilter, "filter", "", "only reports whose name contains this text")
	crashesCmd.Flags().IntVar(&crashesLimit, "limit", 0, "maximum reports (default 20)")
}

// --- Call ---

var callProgress bool

var callCmd = &cobra.Command{
	Use:   "call <tool> [json-arguments]",
	Short: "Call a tool on a server listening on --socket",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if socketPath == "" {
			return fmt.Errorf("call needs --socket")
		}
		var toolArgs json.RawMessage
		if len(args) == 2 {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("arguments are not valid JSON: %s", args[1])
			}
			toolArgs = json.RawMessage(args[1])
		}

		client, err := rpc.Dial(socketPath)
		if err != nil {
			return fmt.Errorf("cannot connect to server at %s: %w", socketPath, err)
		}
		defer client.Close()
		if callProgress {
			client.OnNotification(func(method string, params json.RawMessage) {
				if method != rpc.NotificationProgress {
					return
				}
				var p struct {
					Message string `json:"message"`
				}
				if json.Unmarshal(params, &p) == nil {
					fmt.Fprintln(cmd.ErrOrStderr(), p.Message)
				}
			})
		}

		ctx := cmd.Context()
		hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Call(hctx, rpc.MethodInitialize, map[string]any{
			"protocolVersion": server.ProtocolVersion,
			"clientInfo":      map[string]string{"name": "console-mcp-cli"},
		}, nil); err != nil {
			return err
		}
		if err := client.Notify(rpc.MethodInitialized, nil); err != nil {
			return err
		}

		params := map[string]any{"name": args[0], "arguments": toolArgs}
		if callProgress {
			params["_meta"] = map[string]any{"progressToken": "cli"}
		}
		var res server.CallToolResult
		if err := client.Call(ctx, rpc.MethodToolsCall, params, &res); err != nil {
			return err
		}
		return printResult(cmd, res)
	},
}

func init() {
	callCmd.Flags().BoolVar(&callProgress, "progress", false, "print live lines to stderr as they arrive")
}
