package capture

import (
	"strings"
	"sync"
)

// CollectorState is the outcome of offering a line to a Collector.
type CollectorState int

const (
	Accepted CollectorState = iota
	AtCapacity
)

func (s CollectorState) String() string {
	if s == AtCapacity {
		return "at-capacity"
	}
	return "accepted"
}

// Collector accumulates lines up to a fixed count. Once full it discards
// further lines; stopping the producer is left to the caller.
type Collector struct {
	mu      sync.Mutex
	buf     strings.Builder
	count   int
	dropped int
	max     int
}

// NewCollector returns a collector holding at most max lines. max <= 0 means no cap.
func NewCollector(max int) *Collector {
	return &Collector{max: max}
}

// Offer appends line plus a trailing LF while under the cap.
func (c *Collector) Offer(line string) CollectorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.max > 0 && c.count >= c.max {
		c.dropped++
		return AtCapacity
	}
	c.buf.WriteString(line)
	c.buf.WriteByte('\n')
	c.count++
	return Accepted
}

// Snapshot returns the text accumulated so far.
func (c *Collector) Snapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// Len returns the number of retained lines.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Dropped returns how many lines were refused because the collector was full.
func (c *Collector) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Full reports whether the next Offer would be refused.
func (c *Collector) Full() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max > 0 && c.count >= c.max
}
