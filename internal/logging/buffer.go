package logging

import (
	"bytes"
	"strings"
	"sync"
)

// Buffer keeps the most recent log lines in memory.
type Buffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial []byte
	dropped uint64
}

func NewBuffer(maxLines int) *Buffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &Buffer{max: maxLines}
}

// Write implements io.Writer. Input is split into lines; a trailing
// fragment without a newline is held until the next write.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := append(b.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		b.appendLineLocked(string(data[:i]))
		data = data[i+1:]
	}
	b.partial = append([]byte(nil), data...)
	return len(p), nil
}

func (b *Buffer) appendLineLocked(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	b.lines = append(b.lines, line)
	b.trimLocked()
}

func (b *Buffer) trimLocked() {
	if len(b.lines) > b.max {
		over := len(b.lines) - b.max
		b.lines = append([]string(nil), b.lines[over:]...)
		b.dropped += uint64(over)
	}
}

// Resize changes the retained line count, dropping the oldest lines if needed.
func (b *Buffer) Resize(maxLines int) {
	if maxLines <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.max = maxLines
	b.trimLocked()
}

// Snapshot returns up to tail of the newest lines and the count of lines evicted so far.
func (b *Buffer) Snapshot(tail int) (lines []string, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tail <= 0 {
		tail = 200
	}
	if tail > len(b.lines) {
		tail = len(b.lines)
	}
	return append([]string(nil), b.lines[len(b.lines)-tail:]...), b.dropped
}
