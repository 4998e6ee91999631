package core

import (
	"fmt"
	"strings"
)

// Kind represents the type of log source.
type Kind string

const (
	KindSystem    Kind = "system"
	KindDevice    Kind = "device"
	KindSimulator Kind = "simulator"
	KindUnit      Kind = "unit"
	KindContainer Kind = "container"
	KindCustom    Kind = "custom"
)

// ParseKind returns the Kind named by s, or an error for unknown names.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSystem, KindDevice, KindSimulator, KindUnit, KindContainer, KindCustom:
		return k, nil
	default:
		return "", fmt.Errorf("unknown source kind %q", s)
	}
}

// State represents the availability of a source at enumeration time.
type State string

const (
	StateAvailable   State = "available"
	StateBooted      State = "booted"
	StateShutdown    State = "shutdown"
	StateUnavailable State = "unavailable"
	StateUnknown     State = "unknown"
)

// Source is an enumerable log origin such as the host log, a device, a
// simulator, a systemd unit, a container or a configured command.
type Source struct {
	ID      string            `json:"id"`
	Kind    Kind              `json:"kind"`
	Name    string            `json:"name"`
	State   State             `json:"state"`
	Details map[string]string `json:"details,omitempty"`
}

// SourceID constructs a source ID from its components.
// Format: kind:provider:native_id
func SourceID(kind Kind, provider, nativeID string) string {
	return fmt.Sprintf("%s:%s:%s", kind, provider, nativeID)
}

// ParseSourceID splits a source ID into kind, provider, and native_id.
func ParseSourceID(id string) (kind Kind, provider, nativeID string, err error) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("invalid source ID %q: expected kind:provider:native_id", id)
	}
	return Kind(parts[0]), parts[1], parts[2], nil
}
