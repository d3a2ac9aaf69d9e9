package console

import (
	"strings"
	"sync"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/events"
)

const maxLogLines = 1000

// LogBuffer keeps the tail of everything written to it, one entry per line.
// It is meant to sit behind a log.Logger so the dashboard can show the log.
type LogBuffer struct {
	mu      sync.RWMutex
	lines   []string
	partial string
	event   *events.ChannelEvent[string]
}

func NewLogBuffer() *LogBuffer {
	return &LogBuffer{
		lines: make([]string, 0, maxLogLines),
		event: events.NewChannelEvent[string](false),
	}
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	text := b.partial + string(p)
	parts := strings.Split(text, "\n")
	b.partial = parts[len(parts)-1]
	complete := parts[:len(parts)-1]
	b.lines = append(b.lines, complete...)
	if len(b.lines) > maxLogLines {
		b.lines = b.lines[len(b.lines)-maxLogLines:]
	}
	b.mu.Unlock()

	for _, line := range complete {
		b.event.Notify(line)
	}
	return len(p), nil
}

// Add appends one line.
func (b *LogBuffer) Add(line string) {
	_, _ = b.Write([]byte(line + "\n"))
}

// Tail returns the last n lines.
func (b *LogBuffer) Tail(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	n = min(n, len(b.lines))
	out := make([]string, n)
	copy(out, b.lines[len(b.lines)-n:])
	return out
}

// Listen delivers every later line to ch without blocking.
func (b *LogBuffer) Listen(ch chan<- string) func() {
	return b.event.Listen(ch)
}
