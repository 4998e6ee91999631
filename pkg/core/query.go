package core

import "time"

// Query describes which logs a caller wants before it is resolved to a LogTarget.
// Source is either a full source ID or a bare kind ("system", "simulator", ...).
type Query struct {
	Source    string        `json:"source"`
	Follow    bool          `json:"follow"`
	Last      time.Duration `json:"last,omitempty"`
	Level     string        `json:"level,omitempty"`
	Process   string        `json:"process,omitempty"`
	Subsystem string        `json:"subsystem,omitempty"`
	Predicate string        `json:"predicate,omitempty"`
	Unit      string        `json:"unit,omitempty"`
}

// NativeID returns the native part of a full source ID, or "" when Source
// names only a kind.
func (q Query) NativeID() string {
	_, _, id, err := ParseSourceID(q.Source)
	if err != nil {
		return ""
	}
	return id
}

// LastOr returns Last, or def when no window was requested.
func (q Query) LastOr(def time.Duration) time.Duration {
	if q.Last <= 0 {
		return def
	}
	return q.Last
}
