package core

// Stream names used to tag log lines by the output they arrived on.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// LogLine represents a single line read from a log-producing process.
type LogLine struct {
	TargetID string `json:"target_id,omitempty"`
	TsUnixMs int64  `json:"ts_unix_ms"`
	Stream   string `json:"stream"` // "stdout" or "stderr"
	Line     string `json:"line"`
}

// Diagnostic reports whether the line came from the error stream.
func (l LogLine) Diagnostic() bool {
	return l.Stream == StreamStderr
}
