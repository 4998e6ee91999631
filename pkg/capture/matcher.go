package capture

import (
	"fmt"
	"regexp"
	"strings"
)

// MatchMode selects how a pattern is applied to a line.
type MatchMode int

const (
	ModePlain MatchMode = iota
	ModeRegex
)

func (m MatchMode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModeRegex:
		return "regex"
	default:
		return fmt.Sprintf("MatchMode(%d)", int(m))
	}
}

// ParseMatchMode accepts "plain"/"substring" and "regex"/"regexp". Empty means plain.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plain", "substring", "text":
		return ModePlain, nil
	case "regex", "regexp":
		return ModeRegex, nil
	default:
		return 0, fmt.Errorf("unknown match mode %q", s)
	}
}

// MatchSpec configures a Matcher. The zero CaseSensitive value matches
// without regard to case in both modes.
type MatchSpec struct {
	Mode          MatchMode
	Pattern       string
	CaseSensitive bool
}

// Plain returns a case-insensitive substring spec.
func Plain(pattern string) MatchSpec {
	return MatchSpec{Mode: ModePlain, Pattern: pattern}
}

// Regex returns a case-insensitive regular expression spec.
func Regex(pattern string) MatchSpec {
	return MatchSpec{Mode: ModeRegex, Pattern: pattern}
}

// Matcher decides whether a line matches a MatchSpec. It holds no mutable
// state after construction and is safe for concurrent use.
type Matcher struct {
	spec   MatchSpec
	needle string
	re     *regexp.Regexp
}

// NewMatcher validates spec and compiles it. A regex that fails to compile
// yields *InvalidPatternError.
func NewMatcher(spec MatchSpec) (*Matcher, error) {
	m := &Matcher{spec: spec}
	switch spec.Mode {
	case ModePlain:
		m.needle = spec.Pattern
		if !spec.CaseSensitive {
			m.needle = strings.ToLower(spec.Pattern)
		}
	case ModeRegex:
		expr := spec.Pattern
		if !spec.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, &InvalidPatternError{Pattern: spec.Pattern, Err: err}
		}
		m.re = re
	default:
		return nil, fmt.Errorf("unknown match mode %v", spec.Mode)
	}
	return m, nil
}

// Matches reports whether line satisfies the match spec.
func (m *Matcher) Matches(line string) bool {
	if m.re != nil {
		return m.re.MatchString(line)
	}
	if m.spec.CaseSensitive {
		return strings.Contains(line, m.needle)
	}
	return strings.Contains(strings.ToLower(line), m.needle)
}

// Spec returns the MatchSpec the matcher was built from.
func (m *Matcher) Spec() MatchSpec {
	return m.spec
}
