// Package capture implements the per-invocation output channel: a writer
// that accumulates everything a program emits while forwarding it, line by
// line, to an optional observer and an optional mirror writer.
package capture

import (
	"io"
	"strings"
	"sync"
)

// UpdateFunc observes captured output incrementally. It receives the full
// output captured so far and the delta since the previous call. Calls are
// serialized per channel and never split a line across two calls.
type UpdateFunc func(total, delta string)

// Channel buffers a single invocation's output. Each invocation owns its own
// Channel, so concurrent invocations never share state; the internal lock
// only serializes the producing goroutines of one invocation (e.g. a
// subprocess pump writing while a driver appends progress lines).
type Channel struct {
	mu      sync.Mutex
	buf     strings.Builder
	pending strings.Builder
	update  UpdateFunc
	mirror  io.Writer
}

// New creates a Channel. Both update and mirror may be nil.
func New(update UpdateFunc, mirror io.Writer) *Channel {
	return &Channel{update: update, mirror: mirror}
}

// Write implements io.Writer. Complete lines are forwarded to the observer
// and mirror immediately; a trailing partial line is held until the next
// write or Flush. Mirror failures degrade to buffering only: a mirror that
// is a proxy to some remote sink must never fail the capture.
func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf.Write(p)
	c.pending.Write(p)

	if idx := strings.LastIndexByte(c.pending.String(), '\n'); idx >= 0 {
		complete := c.pending.String()[:idx+1]
		rest := c.pending.String()[idx+1:]
		c.pending.Reset()
		c.pending.WriteString(rest)
		c.emit(complete)
	}
	return len(p), nil
}

// Flush forwards any buffered partial line to the observer and mirror.
// The runner calls this once after the program exits so the observer sees
// output that did not end in a newline.
func (c *Channel) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending.Len() == 0 {
		return
	}
	delta := c.pending.String()
	c.pending.Reset()
	c.emit(delta)
}

// String returns everything captured so far.
func (c *Channel) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// emit forwards delta to the mirror and observer. Callers hold c.mu, which
// gives the documented ordering guarantee: observer calls for one invocation
// are strictly ordered and never interleaved at sub-line granularity.
func (c *Channel) emit(delta string) {
	if c.mirror != nil {
		_, _ = io.WriteString(c.mirror, delta)
	}
	if c.update != nil {
		c.update(c.buf.String(), delta)
	}
}
