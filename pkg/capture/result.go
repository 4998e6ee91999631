package capture

import (
	"fmt"
	"time"
)

// Kind discriminates the outcome of an acquisition call.
type Kind int

const (
	KindCompleted Kind = iota
	KindCapped
	KindTimedOut
	KindMatchFound
	KindProcessError
)

func (k Kind) String() string {
	switch k {
	case KindCompleted:
		return "completed"
	case KindCapped:
		return "capped"
	case KindTimedOut:
		return "timed-out"
	case KindMatchFound:
		return "match-found"
	case KindProcessError:
		return "process-error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Result is the single outcome of one acquisition call. Text holds every
// retained line in arrival order, each terminated by LF.
type Result struct {
	Kind        Kind          `json:"kind"`
	Text        string        `json:"text,omitempty"`
	MatchedLine string        `json:"matched_line,omitempty"`
	Message     string        `json:"message,omitempty"`
	Diagnostics string        `json:"diagnostics,omitempty"`
	Lines       int           `json:"lines"`
	Dropped     int           `json:"dropped,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
	SessionID   string        `json:"session_id,omitempty"`
}

// Found reports whether a watch observed its pattern.
func (r Result) Found() bool { return r.Kind == KindMatchFound }

// Failed reports whether the producer could not deliver any log content.
func (r Result) Failed() bool { return r.Kind == KindProcessError }

// Empty reports whether no line was retained.
func (r Result) Empty() bool { return r.Lines == 0 }
