package server

import (
	"time"

	"github.com/devstroop/console-mcp/pkg/transport/rpc"
)

const (
	progressQueue = 256
	progressFlush = 250 * time.Millisecond
)

// progressSender forwards live lines to the client as progress
// notifications from its own goroutine, so a slow client never holds up the
// engine. Lines arriving while the queue is full are dropped.
type progressSender struct {
	notify rpc.Notifier
	token  any
	queue  chan progressLine
	stop   chan struct{}
	sent   chan struct{}

	seen    int
	dropped int
}

type progressLine struct {
	n    int
	text string
}

func newProgressSender(notify rpc.Notifier, token any) *progressSender {
	p := &progressSender{
		notify: notify,
		token:  token,
		queue:  make(chan progressLine, progressQueue),
		stop:   make(chan struct{}),
		sent:   make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *progressSender) loop() {
	defer close(p.sent)
	for l := range p.queue {
		select {
		case <-p.stop:
			return
		default:
		}
		err := p.notify(rpc.NotificationProgress, map[string]any{
			"progressToken": p.token,
			"progress":      l.n,
			"message":       l.text,
		})
		if err != nil {
			return
		}
	}
}

// offer queues a line without blocking. It must be called from one
// goroutine.
func (p *progressSender) offer(line string) {
	p.seen++
	select {
	case p.queue <- progressLine{n: p.seen, text: line}:
	default:
		p.dropped++
	}
}

// close gives queued lines up to progressFlush to go out, then abandons
// them. It returns how many lines were never queued.
func (p *progressSender) close() int {
	close(p.queue)
	timer := time.NewTimer(progressFlush)
	defer timer.Stop()
	select {
	case <-p.sent:
	case <-timer.C:
		close(p.stop)
	}
	return p.dropped
}
