// Package relay turns an upstream SSE completion stream into a pull-based
// sequence of plain-text chunks while accumulating the full response text.
package relay

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"branchchat/pkg/logger"
	"branchchat/pkg/telemetry"
)

// doneSentinel terminates the upstream stream.
const doneSentinel = "[DONE]"

// sseEvent is the fragment shape carried on each "data:" line.
type sseEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Relay consumes an upstream event stream and re-emits text deltas on an
// unbuffered channel, so backpressure is consumer pull. The sequence is
// finite and not restartable; it ends when the upstream stream ends or the
// relay is aborted. Malformed event lines are logged and skipped, they do
// not abort the stream.
type Relay struct {
	body   io.ReadCloser
	chunks chan string
	buf    strings.Builder
	err    error

	abortOnce sync.Once
	aborted   chan struct{}
}

// Open starts reading the stream. The relay owns body and closes it when
// the stream ends or Abort is called.
func Open(body io.ReadCloser) *Relay {
	r := &Relay{
		body:    body,
		chunks:  make(chan string),
		aborted: make(chan struct{}),
	}
	go r.run()
	return r
}

// Chunks returns the channel of text deltas. It is closed when the stream
// ends, errors out, or the relay is aborted.
func (r *Relay) Chunks() <-chan string {
	return r.chunks
}

// Abort stops reading and releases the upstream connection. Remaining
// chunks are discarded; whatever text accumulated stays available.
func (r *Relay) Abort() {
	r.abortOnce.Do(func() {
		close(r.aborted)
		_ = r.body.Close()
	})
}

// Drain consumes any chunks still in flight until the channel closes.
// Call after Abort, before reading Text.
func (r *Relay) Drain() {
	for range r.chunks {
	}
}

// Text returns the accumulated response text. Valid once Chunks has been
// closed (fully consumed or drained).
func (r *Relay) Text() string {
	return r.buf.String()
}

// Err returns the terminal read error, if any. A normal end of stream and
// an abort both report nil.
func (r *Relay) Err() error {
	return r.err
}

func (r *Relay) run() {
	defer close(r.chunks)
	defer r.body.Close()

	sc := bufio.NewScanner(r.body)
	// delta fragments are small but reasoning models can emit long lines
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == doneSentinel {
			return
		}
		var ev sseEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			telemetry.RelayParseSkips.Inc()
			logger.Warn("relay_skip_malformed_event", "error", err)
			continue
		}
		if len(ev.Choices) == 0 {
			continue
		}
		content := ev.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		r.buf.WriteString(content)
		telemetry.RelayChunks.Inc()
		select {
		case r.chunks <- content:
		case <-r.aborted:
			return
		}
	}
	if err := sc.Err(); err != nil {
		select {
		case <-r.aborted:
			// reader tear-down after Abort is expected, not an error
		default:
			r.err = err
			logger.Error("relay_read_failed", "error", err)
		}
	}
}
