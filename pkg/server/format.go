package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/devstroop/console-mcp/pkg/capture"
	"github.com/devstroop/console-mcp/pkg/core"
)

// FormatResult renders an acquisition result as tool text. A ProcessError
// result is returned as an error so callers surface it as a failure.
func FormatResult(target core.LogTarget, res capture.Result, budget capture.Budget, notes []string) (string, error) {
	if res.Failed() {
		return "", processFailure(res)
	}

	var b strings.Builder
	name := targetName(target)
	elapsed := roundElapsed(res.Elapsed)

	switch res.Kind {
	case capture.KindMatchFound:
		fmt.Fprintf(&b, "Match found after %s: %s\n", elapsed, res.MatchedLine)
		if res.Text != "" {
			b.WriteString("\n--- output up to the match ---\n")
			b.WriteString(res.Text)
		}
	case capture.KindTimedOut:
		fmt.Fprintf(&b, "[timed out after %s, %s from %s]\n", roundElapsed(budget.MaxDuration), plural(res.Lines, "line"), name)
		b.WriteString(res.Text)
	case capture.KindCapped:
		b.WriteString(res.Text)
		fmt.Fprintf(&b, "[line cap of %d reached after %s from %s]\n", budget.MaxLines, elapsed, name)
	default:
		if res.Empty() {
			fmt.Fprintf(&b, "[no log lines from %s in %s]\n", name, elapsed)
		} else {
			b.WriteString(res.Text)
			fmt.Fprintf(&b, "[%s from %s in %s]\n", plural(res.Lines, "line"), name, elapsed)
		}
	}

	if res.Dropped > 0 {
		fmt.Fprintf(&b, "[%s beyond the cap were discarded]\n", plural(res.Dropped, "line"))
	}
	if res.Diagnostics != "" {
		b.WriteString("\n--- stderr ---\n")
		b.WriteString(res.Diagnostics)
	}
	for _, n := range notes {
		fmt.Fprintf(&b, "[%s]\n", n)
	}
	return b.String(), nil
}

func processFailure(res capture.Result) error {
	return fmt.Errorf("%s: %s", capture.CodeProcessError, res.Message)
}

func targetName(t core.LogTarget) string {
	if t.Label != "" {
		return t.Label
	}
	return t.Command
}

func roundElapsed(d time.Duration) time.Duration {
	if d >= time.Second {
		return d.Round(100 * time.Millisecond)
	}
	return d.Round(time.Millisecond)
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
