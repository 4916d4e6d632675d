package source

import (
	"context"
	"math"
	"time"

	"motionsense/internal/motion"
)

type SimConfig struct {
	Interval time.Duration
	// Still and Moving are the lengths of the alternating phases.
	Still  time.Duration
	Moving time.Duration
}

// Sim produces a deterministic stream that alternates between a device at
// rest and a device being shaken.
type Sim struct {
	cfg SimConfig
}

func NewSim(cfg SimConfig) *Sim {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Millisecond
	}
	if cfg.Still <= 0 {
		cfg.Still = 10 * time.Second
	}
	if cfg.Moving <= 0 {
		cfg.Moving = 5 * time.Second
	}
	return &Sim{cfg: cfg}
}

func (s *Sim) Name() string { return "sim" }

// SampleAt returns the i-th simulated sample.
func (s *Sim) SampleAt(i int) motion.Sample {
	still := int(s.cfg.Still / s.cfg.Interval)
	moving := int(s.cfg.Moving / s.cfg.Interval)
	if still < 1 {
		still = 1
	}
	if moving < 1 {
		moving = 1
	}
	phase := i % (still + moving)

	// Small sensor noise, well under the motion threshold.
	noise := 0.05 * math.Sin(float64(i)*0.7)
	if phase < still {
		return motion.Sample{X: float32(noise), Y: float32(-noise), Z: float32(motion.StandardGravity + noise)}
	}
	shake := 4.0 * math.Sin(float64(i)*1.3)
	return motion.Sample{X: float32(shake), Y: float32(noise), Z: float32(motion.StandardGravity + shake/2)}
}

func (s *Sim) Run(ctx context.Context, emit func(motion.Sample)) error {
	tick := time.NewTicker(s.cfg.Interval)
	defer tick.Stop()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			emit(s.SampleAt(i))
		}
	}
}
