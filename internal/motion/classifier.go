package motion

import (
	"math"
	"time"
)

// Significant-motion detector.
//
// Each sample is reduced to how far its magnitude is from standard gravity.
// The last WindowSize deviations are kept; once the window has filled, every
// sample classifies the device as moving when the window peak reaches the
// threshold. Only changes of that classification are reported.

const (
	StandardGravity = 9.80665

	DefaultWindowSize = 40
	DefaultThreshold  = 1.0
)

// Sample is one accelerometer reading in m/s^2.
type Sample struct {
	X, Y, Z float32
}

// Deviation returns |‖s‖ - g|.
func (s Sample) Deviation() float64 {
	x, y, z := float64(s.X), float64(s.Y), float64(s.Z)
	return math.Abs(math.Sqrt(x*x+y*y+z*z) - StandardGravity)
}

// deviation32 is the window value for s; ok is false when it is not a finite float32.
func (s Sample) deviation32() (float32, bool) {
	d := s.Deviation()
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, false
	}
	d32 := float32(d)
	if math.IsInf(float64(d32), 0) {
		return 0, false
	}
	return d32, true
}

// Valid reports whether a classifier would accept s.
func (s Sample) Valid() bool {
	_, ok := s.deviation32()
	return ok
}

type Kind int

const (
	Started Kind = iota + 1
	Ended
)

func (k Kind) String() string {
	switch k {
	case Started:
		return "started"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind Kind
	Time time.Time
}

// Moving reports whether the event opens a motion period.
func (e Event) Moving() bool { return e.Kind == Started }

type Phase int

const (
	// AwaitingWindow: fewer than WindowSize samples since construction or Reset.
	AwaitingWindow Phase = iota
	// Classifying: the window has filled at least once.
	Classifying
)

func (p Phase) String() string {
	if p == Classifying {
		return "classifying"
	}
	return "awaiting_window"
}

type Config struct {
	WindowSize int
	Threshold  float32

	// Now stamps emitted events. Defaults to time.Now.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{WindowSize: DefaultWindowSize, Threshold: DefaultThreshold}
}

// Classifier is not safe for concurrent use; callers feed it from one goroutine.
type Classifier struct {
	cfg Config

	win   window
	phase Phase

	previous bool
	current  bool
}

func NewClassifier(cfg Config) *Classifier {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Classifier{cfg: cfg, win: newWindow(cfg.WindowSize)}
}

// Ingest feeds one sample and returns a transition event, if any.
//
// Samples whose deviation is not finite are dropped without touching the
// window or state.
func (c *Classifier) Ingest(s Sample) (Event, bool) {
	d, ok := s.deviation32()
	if !ok {
		return Event{}, false
	}

	c.win.push(d)
	if c.phase == AwaitingWindow {
		if !c.win.full() {
			return Event{}, false
		}
		c.phase = Classifying
	}

	c.current = c.win.max() >= c.cfg.Threshold

	var ev Event
	changed := c.current != c.previous
	if changed {
		ev = Event{Kind: Ended, Time: c.cfg.Now()}
		if c.current {
			ev.Kind = Started
		}
	}
	c.previous = c.current
	return ev, changed
}

// Reset returns the classifier to its freshly constructed state. No event is emitted.
func (c *Classifier) Reset() {
	c.win.clear()
	c.phase = AwaitingWindow
	c.previous = false
	c.current = false
}

func (c *Classifier) Phase() Phase { return c.phase }

// Moving is the last evaluated classification (false while awaiting the window).
func (c *Classifier) Moving() bool { return c.previous }

// Len is the number of deviations currently held.
func (c *Classifier) Len() int { return c.win.n }

// Window returns the held deviations, oldest first.
func (c *Classifier) Window() []float32 { return c.win.values() }

func (c *Classifier) Config() Config { return c.cfg }
