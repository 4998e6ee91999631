package server

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devstroop/console-mcp/pkg/capture"
	"github.com/devstroop/console-mcp/pkg/core"
)

// Args is the union of every tool's arguments.
type Args struct {
	Source        string   `json:"source,omitempty"`
	Kind          string   `json:"kind,omitempty"`
	Last          Duration `json:"last,omitempty"`
	Duration      Duration `json:"duration,omitempty"`
	Timeout       Duration `json:"timeout,omitempty"`
	Lines         int      `json:"lines,omitempty"`
	Level         string   `json:"level,omitempty"`
	Process       string   `json:"process,omitempty"`
	Subsystem     string   `json:"subsystem,omitempty"`
	Predicate     string   `json:"predicate,omitempty"`
	Unit          string   `json:"unit,omitempty"`
	Pattern       string   `json:"pattern,omitempty"`
	Filter        string   `json:"filter,omitempty"`
	Mode          string   `json:"mode,omitempty"`
	CaseSensitive bool     `json:"case_sensitive,omitempty"`
	Follow        bool     `json:"follow,omitempty"`
	Path          string   `json:"path,omitempty"`
	Limit         int      `json:"limit,omitempty"`
}

// Query builds the source query described by a.
func (a Args) Query(follow bool) core.Query {
	return core.Query{
		Source:    a.Source,
		Follow:    follow,
		Last:      a.Last.Std(),
		Level:     a.Level,
		Process:   a.Process,
		Subsystem: a.Subsystem,
		Predicate: a.Predicate,
		Unit:      a.Unit,
	}
}

// MatchSpec builds the matcher spec for pattern. The bool is false when
// pattern is empty.
func (a Args) MatchSpec(pattern string) (capture.MatchSpec, bool, error) {
	if pattern == "" {
		return capture.MatchSpec{}, false, nil
	}
	mode, err := capture.ParseMatchMode(a.Mode)
	if err != nil {
		return capture.MatchSpec{}, false, err
	}
	return capture.MatchSpec{Mode: mode, Pattern: pattern, CaseSensitive: a.CaseSensitive}, true, nil
}

// Duration accepts either a number of seconds or a Go duration string
// ("90s", "5m") in tool arguments.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		*d = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		v, err := ParseDuration(str)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("duration must be seconds or a string like \"30s\": %s", s)
	}
	if secs < 0 {
		return fmt.Errorf("duration must not be negative: %s", s)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ParseDuration parses "30s", "5m" or a bare number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("duration must not be negative: %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative: %q", s)
	}
	return d, nil
}
