package core

import "strings"

// LogTarget identifies the external command that produces a log stream.
// Filter is the source-level filter expression already embedded in the
// arguments; it is carried for display only and never interpreted here.
type LogTarget struct {
	Command string
	Label   string
	Filter  string
	args    []string
}

// NewLogTarget builds a target, copying args so later caller edits do not leak in.
func NewLogTarget(command string, args []string, filter string) LogTarget {
	return LogTarget{
		Command: command,
		Filter:  filter,
		args:    append([]string(nil), args...),
	}
}

// WithLabel returns a copy of t carrying a human-readable label.
func (t LogTarget) WithLabel(label string) LogTarget {
	t.args = append([]string(nil), t.args...)
	t.Label = label
	return t
}

// Argv returns a copy of the argument list.
func (t LogTarget) Argv() []string {
	return append([]string(nil), t.args...)
}

// String renders the command line, quoting arguments that contain spaces or quotes.
func (t LogTarget) String() string {
	parts := make([]string, 0, len(t.args)+1)
	parts = append(parts, t.Command)
	for _, a := range t.args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
