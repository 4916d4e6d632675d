package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"motionsense/internal/motion"
)

// Replay file format: line-oriented text.
//
// - Blank lines and lines starting with '#' are ignored.
// - Data lines are "x,y,z" or "t_ms,x,y,z" in m/s^2.
//
// Samples are paced by Interval, not by the recorded timestamps.

type ReplayConfig struct {
	Path string
	// Interval between samples; 0 emits as fast as possible.
	Interval time.Duration
	Loop     bool
}

type Replay struct {
	cfg ReplayConfig
}

func NewReplay(cfg ReplayConfig) *Replay { return &Replay{cfg: cfg} }

func (r *Replay) Name() string { return fmt.Sprintf("replay(%s)", r.cfg.Path) }

// ReadSamples parses a whole replay stream. Unlike live sources, a bad line is an error.
func ReadSamples(rd io.Reader) ([]motion.Sample, error) {
	var out []motion.Sample
	var firstErr error
	err := scanSamples(context.Background(), rd, func(s motion.Sample) {
		out = append(out, s)
	}, func(line string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid replay line %q: %w", line, err)
		}
	})
	if err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (r *Replay) Run(ctx context.Context, emit func(motion.Sample)) error {
	f, err := os.Open(r.cfg.Path)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	samples, err := ReadSamples(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("source: %s: %w", r.cfg.Path, err)
	}
	if len(samples) == 0 {
		return fmt.Errorf("source: %s: no samples", r.cfg.Path)
	}

	var tick <-chan time.Time
	if r.cfg.Interval > 0 {
		t := time.NewTicker(r.cfg.Interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		for _, s := range samples {
			if tick != nil {
				select {
				case <-ctx.Done():
					return nil
				case <-tick:
				}
			} else if ctx.Err() != nil {
				return nil
			}
			emit(s)
		}
		if !r.cfg.Loop {
			return nil
		}
	}
}
