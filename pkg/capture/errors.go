package capture

import (
	"fmt"
	"strings"
)

// Error codes carried by the structured engine errors.
const (
	CodeInvalidPattern = "INVALID_PATTERN"
	CodeProcessError   = "PROCESS_ERROR"
)

// InvalidPatternError is returned when a regular expression does not compile.
// It is always produced before any process is started.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }

// Code returns CodeInvalidPattern.
func (e *InvalidPatternError) Code() string { return CodeInvalidPattern }

// ProcessError describes a producer that could not be started or that failed
// without emitting any log content.
type ProcessError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	var b strings.Builder
	if e.Err != nil {
		fmt.Fprintf(&b, "start %s: %v", e.Command, e.Err)
	} else {
		fmt.Fprintf(&b, "%s exited with status %d", e.Command, e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		b.WriteString(": ")
		b.WriteString(s)
	}
	return b.String()
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Code returns CodeProcessError.
func (e *ProcessError) Code() string { return CodeProcessError }
