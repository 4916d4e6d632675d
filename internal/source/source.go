// Package source delivers accelerometer samples from hardware, serial
// links, recorded files or a simulator.
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"motionsense/internal/motion"
)

// ErrNoSensor is returned when no accelerometer can be opened.
var ErrNoSensor = errors.New("source: no accelerometer")

// Source produces samples until ctx is done or the input ends. emit is called
// from the Run goroutine only.
type Source interface {
	Name() string
	Run(ctx context.Context, emit func(motion.Sample)) error
}

// ParseLine parses "x,y,z" or "t_ms,x,y,z". A leading timestamp is accepted
// and ignored. Whitespace around fields is allowed.
func ParseLine(line string) (motion.Sample, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	switch len(fields) {
	case 3:
	case 4:
		if _, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64); err != nil {
			return motion.Sample{}, fmt.Errorf("invalid timestamp %q: %w", fields[0], err)
		}
		fields = fields[1:]
	default:
		return motion.Sample{}, fmt.Errorf("want 3 or 4 fields, got %d", len(fields))
	}

	var v [3]float32
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return motion.Sample{}, fmt.Errorf("invalid axis %q: %w", f, err)
		}
		v[i] = float32(x)
	}
	return motion.Sample{X: v[0], Y: v[1], Z: v[2]}, nil
}

// skipLine reports comment and blank lines.
func skipLine(line string) bool {
	line = strings.TrimSpace(line)
	return line == "" || strings.HasPrefix(line, "#")
}

// scanSamples reads newline-delimited samples from r. Lines that fail to
// parse go to onBad and are skipped.
func scanSamples(ctx context.Context, r io.Reader, emit func(motion.Sample), onBad func(line string, err error)) error {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 64*1024)
	for s.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := s.Text()
		if skipLine(line) {
			continue
		}
		sample, err := ParseLine(line)
		if err != nil {
			if onBad != nil {
				onBad(line, err)
			}
			continue
		}
		emit(sample)
	}
	if ctx.Err() != nil {
		return nil
	}
	return s.Err()
}
