package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/devstroop/console-mcp/pkg/capture"
	"github.com/devstroop/console-mcp/pkg/core"
	tuimodel "github.com/devstroop/console-mcp/pkg/tui/model"
)

var (
	tailFlags   logFlags
	tailPattern string
	tailUntil   bool
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow a log source in an interactive viewer",
	Long: "tail follows a source live. With --pattern matching lines are highlighted; " +
		"with --until the viewer stops at the first match.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f, err := os.CreateTemp("", "console-mcp-tail-*.log")
		if err != nil {
			return err
		}
		defer f.Close()
		a, err := setup(f)
		if err != nil {
			return err
		}

		q := tailFlags.args("").Query(true)
		target, _, err := a.registry.Resolve(cmd.Context(), q)
		if err != nil {
			return err
		}

		var (
			spec      *capture.MatchSpec
			highlight *capture.Matcher
		)
		if tailPattern != "" {
			mode, err := capture.ParseMatchMode(tailFlags.mode)
			if err != nil {
				return err
			}
			spec = &capture.MatchSpec{Mode: mode, Pattern: tailPattern, CaseSensitive: tailFlags.caseSensitive}
			if highlight, err = capture.NewMatcher(*spec); err != nil {
				return err
			}
		} else if tailUntil {
			return fmt.Errorf("--until needs --pattern")
		}

		limits := a.engine.Limits()
		run := func(ctx context.Context, observe func(core.LogLine)) (capture.Result, error) {
			opts := []capture.Option{capture.WithTargetID(q.Source), capture.WithLineObserver(observe)}
			if tailUntil {
				budget := capture.Budget{MaxDuration: orCeiling(tailFlags.timeout, limits.MaxWatchDuration)}
				return a.engine.Watch(ctx, target, *spec, budget, opts...)
			}
			budget := capture.Budget{
				MaxLines:    tailFlags.lines,
				MaxDuration: orCeiling(tailFlags.duration, limits.MaxStreamDuration),
			}
			return a.engine.Stream(ctx, target, nil, budget, opts...)
		}

		m := tuimodel.New(run, tuimodel.Options{Title: target.String(), Highlight: highlight})
		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		final, err := p.Run()
		if err != nil {
			return err
		}
		if app, ok := final.(tuimodel.App); ok && app.LastMatch() != "" {
			fmt.Fprintln(cmd.OutOrStdout(), app.LastMatch())
		}
		return nil
	},
}

func orCeiling(d, ceiling time.Duration) time.Duration {
	if d <= 0 {
		return ceiling
	}
	return d
}

func init() {
	tailFlags.register(tailCmd)
	tailCmd.Flags().StringVarP(&tailPattern, "pattern", "p", "", "highlight lines matching this pattern")
	tailCmd.Flags().BoolVar(&tailUntil, "until", false, "stop at the first line matching --pattern")
	tailCmd.Flags().DurationVarP(&tailFlags.duration, "duration", "d", 0, "how long to follow (default: the stream ceiling)")
	tailCmd.Flags().DurationVarP(&tailFlags.timeout, "timeout", "t", 0, "with --until, give up after this long")
}
