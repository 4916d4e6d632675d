// Package monitor runs a sample source through the motion classifier and
// dispatches every transition to storage, notifiers and the indicator.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"motionsense/internal/logging"
	"motionsense/internal/motion"
	"motionsense/internal/notify"
	"motionsense/internal/source"
	"motionsense/internal/store"
)

var (
	ErrAlreadyRunning = errors.New("monitor: already running")
	ErrNoSource       = errors.New("monitor: no sample source")
	ErrSyncDisabled   = errors.New("monitor: sync is not configured")
)

const saveTimeout = 5 * time.Second

type Config struct {
	DeviceID string
	Label    string
	Motion   motion.Config
}

type RecordSaver interface {
	Save(ctx context.Context, r store.Record) error
}

type Notifier interface {
	Notify(msg notify.Message) error
}

type Indicator interface {
	Set(moving bool) error
	Close() error
}

// badLineCounter is implemented by line-oriented sources.
type badLineCounter interface {
	BadLines() uint64
}

type Syncer interface {
	Sync(ctx context.Context) (int, error)
}

// Deps are the collaborators of a Service. Only Source is required.
type Deps struct {
	Source    source.Source
	Store     RecordSaver
	Hub       *notify.Hub
	UDP       Notifier
	Indicator Indicator
	Syncer    Syncer
}

type Snapshot struct {
	Active  bool   `json:"active"`
	Source  string `json:"source"`
	Moving  bool   `json:"moving"`
	Phase   string `json:"phase"`
	Window  int    `json:"window"`
	Samples uint64 `json:"samples"`
	Dropped uint64 `json:"dropped"`
	// BadLines counts unparseable input lines, for sources that read text.
	BadLines      uint64          `json:"bad_lines"`
	StreamDropped uint64          `json:"stream_dropped"`
	Events        uint64          `json:"events"`
	LastEvent     *notify.Message `json:"last_event,omitempty"`
	Label         string          `json:"label"`
	DeviceID      string          `json:"device_id"`
	StartedAt     time.Time       `json:"started_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
}

// Service is the long-running host around one Classifier.
type Service struct {
	cfg  Config
	deps Deps
	log  *logrus.Entry

	// cmu serializes the classifier between the sampling goroutine and Reset.
	cmu sync.Mutex
	clf *motion.Classifier

	samples atomic.Uint64
	dropped atomic.Uint64
	events  atomic.Uint64

	mu        sync.RWMutex
	label     string
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	lastEvent *notify.Message
	lastErr   string

	closeOnce sync.Once
}

func New(cfg Config, deps Deps) *Service {
	return &Service{
		cfg:   cfg,
		deps:  deps,
		log:   logging.New("monitor"),
		clf:   motion.NewClassifier(cfg.Motion),
		label: cfg.Label,
	}
}

// Start launches the source on its own goroutine and returns immediately.
func (s *Service) Start(ctx context.Context) error {
	if s.deps.Source == nil {
		return ErrNoSource
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	if s.cancel != nil {
		s.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.startedAt = time.Now()
	s.lastErr = ""

	go s.run(runCtx, s.done)
	s.log.WithField("source", s.deps.Source.Name()).Info("significant motion monitoring started")
	return nil
}

func (s *Service) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	err := s.deps.Source.Run(ctx, func(sample motion.Sample) { s.ingest(ctx, sample) })

	s.mu.Lock()
	s.running = false
	if err != nil && !errors.Is(err, context.Canceled) {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	switch {
	case err == nil || errors.Is(err, context.Canceled):
		s.log.Info("sample source stopped")
	case errors.Is(err, source.ErrNoSensor):
		s.log.WithError(err).Warn("accelerometer not available")
	default:
		s.log.WithError(err).Warn("sample source failed")
	}
}

func (s *Service) ingest(ctx context.Context, sample motion.Sample) {
	s.samples.Add(1)
	if !sample.Valid() {
		s.dropped.Add(1)
		return
	}
	s.cmu.Lock()
	ev, ok := s.clf.Ingest(sample)
	s.cmu.Unlock()
	if ok {
		s.dispatch(ctx, ev)
	}
}

func (s *Service) dispatch(ctx context.Context, ev motion.Event) {
	s.events.Add(1)
	label := s.Label()
	msg := notify.NewMessage(ev, s.cfg.DeviceID, label)

	s.log.WithFields(logrus.Fields{"moving": ev.Moving(), "label": label}).
		Debugf("significant motion: %s", notify.Action(ev.Kind))

	var errs []error
	if s.deps.Store != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		err := s.deps.Store.Save(saveCtx, store.NewRecord(ev.Time, s.cfg.DeviceID, label, ev.Moving()))
		cancel()
		if err != nil {
			errs = append(errs, err)
		}
	}
	if s.deps.Hub != nil {
		s.deps.Hub.Publish(msg)
	}
	if s.deps.UDP != nil {
		if err := s.deps.UDP.Notify(msg); err != nil {
			errs = append(errs, fmt.Errorf("udp notify: %w", err))
		}
	}
	if s.deps.Indicator != nil {
		if err := s.deps.Indicator.Set(ev.Moving()); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	s.lastEvent = &msg
	if err := errors.Join(errs...); err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()
	for _, err := range errs {
		s.log.WithError(err).Warn("transition dispatch failed")
	}
}

// Stop cancels the source, waits for it to return and drives the indicator low.
// Safe to call when not running.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	if s.deps.Indicator != nil {
		_ = s.deps.Indicator.Set(false)
	}
}

// Close stops the service and releases the indicator.
func (s *Service) Close() error {
	s.Stop()
	var err error
	s.closeOnce.Do(func() {
		if s.deps.Indicator != nil {
			err = s.deps.Indicator.Close()
		}
	})
	return err
}

// Reset re-initializes the classifier. No transition is reported.
func (s *Service) Reset() {
	s.cmu.Lock()
	s.clf.Reset()
	s.cmu.Unlock()
	if s.deps.Hub != nil {
		s.deps.Hub.Forget()
	}
	if s.deps.Indicator != nil {
		_ = s.deps.Indicator.Set(false)
	}
	s.log.Debug("classifier reset")
}

// Restart stops the source, resets the classifier and starts again.
func (s *Service) Restart(ctx context.Context) error {
	s.Stop()
	s.Reset()
	return s.Start(ctx)
}

func (s *Service) SetLabel(label string) {
	s.mu.Lock()
	old := s.label
	s.label = label
	s.mu.Unlock()
	if old != label {
		s.log.WithField("label", label).Info("label updated")
	}
}

func (s *Service) Label() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.label
}

// Sync uploads pending records through the configured syncer.
func (s *Service) Sync(ctx context.Context) (int, error) {
	if s.deps.Syncer == nil {
		return 0, ErrSyncDisabled
	}
	n, err := s.deps.Syncer.Sync(ctx)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
	}
	return n, err
}

// Active reports whether samples are currently being classified.
func (s *Service) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Service) Snapshot() Snapshot {
	s.cmu.Lock()
	moving, phase, n := s.clf.Moving(), s.clf.Phase(), s.clf.Len()
	s.cmu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Active:    s.running,
		Moving:    moving,
		Phase:     phase.String(),
		Window:    n,
		Samples:   s.samples.Load(),
		Dropped:   s.dropped.Load(),
		Events:    s.events.Load(),
		Label:     s.label,
		DeviceID:  s.cfg.DeviceID,
		StartedAt: s.startedAt,
		LastError: s.lastErr,
	}
	if s.deps.Source != nil {
		snap.Source = s.deps.Source.Name()
		if c, ok := s.deps.Source.(badLineCounter); ok {
			snap.BadLines = c.BadLines()
		}
	}
	if s.deps.Hub != nil {
		snap.StreamDropped = s.deps.Hub.Dropped()
	}
	if s.lastEvent != nil {
		ev := *s.lastEvent
		snap.LastEvent = &ev
	}
	return snap
}
