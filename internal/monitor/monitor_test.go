package monitor

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motionsense/internal/motion"
	"motionsense/internal/notify"
	"motionsense/internal/source"
	"motionsense/internal/store"
)

var rest = motion.Sample{Z: motion.StandardGravity}

// scriptSource emits its samples then blocks until cancelled, or returns err if set.
type scriptSource struct {
	samples []motion.Sample
	err     error
}

func (s *scriptSource) Name() string { return "script" }

func (s *scriptSource) Run(ctx context.Context, emit func(motion.Sample)) error {
	for _, x := range s.samples {
		emit(x)
	}
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return ctx.Err()
}

type memStore struct {
	mu   sync.Mutex
	recs []store.Record
	err  error
}

func (m *memStore) Save(_ context.Context, r store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) records() []store.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Record(nil), m.recs...)
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (f *fakeNotifier) Notify(msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeIndicator struct {
	mu     sync.Mutex
	values []bool
	closed bool
}

func (f *fakeIndicator) Set(moving bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = append(f.values, moving)
	return nil
}

func (f *fakeIndicator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeIndicator) snapshot() ([]bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.values...), f.closed
}

type fakeSyncer struct {
	n   int
	err error
}

func (f fakeSyncer) Sync(context.Context) (int, error) { return f.n, f.err }

func motionScript() []motion.Sample {
	var out []motion.Sample
	for i := 0; i < motion.DefaultWindowSize; i++ {
		out = append(out, rest)
	}
	out = append(out, motion.Sample{X: 15})
	for i := 0; i < motion.DefaultWindowSize; i++ {
		out = append(out, rest)
	}
	return out
}

func TestService_DispatchesTransitions(t *testing.T) {
	st := &memStore{}
	udp := &fakeNotifier{}
	ind := &fakeIndicator{}
	hub := notify.NewHub()
	_, ch := hub.Subscribe(4)

	svc := New(Config{DeviceID: "dev-1", Label: "desk"}, Deps{
		Source:    &scriptSource{samples: motionScript()},
		Store:     st,
		Hub:       hub,
		UDP:       udp,
		Indicator: ind,
	})
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Close() })

	require.Eventually(t, func() bool {
		last := svc.Snapshot().LastEvent
		return last != nil && last.Action == notify.ActionEnded
	}, 2*time.Second, 5*time.Millisecond)

	recs := st.records()
	require.Len(t, recs, 2)
	assert.True(t, recs[0].IsMoving)
	assert.False(t, recs[1].IsMoving)
	for _, r := range recs {
		assert.Equal(t, "dev-1", r.DeviceID)
		assert.Equal(t, "desk", r.Label)
		assert.Equal(t, store.JSONVersion, r.JSONVersion)
	}

	assert.Equal(t, notify.ActionStarted, (<-ch).Action)
	assert.Equal(t, notify.ActionEnded, (<-ch).Action)
	assert.Equal(t, 2, udp.count())

	values, _ := ind.snapshot()
	assert.Equal(t, []bool{true, false}, values)

	snap := svc.Snapshot()
	assert.True(t, snap.Active)
	assert.False(t, snap.Moving)
	assert.Equal(t, "classifying", snap.Phase)
	assert.Equal(t, uint64(len(motionScript())), snap.Samples)
	assert.Equal(t, uint64(2), snap.Events)
	require.NotNil(t, snap.LastEvent)
	assert.Equal(t, notify.ActionEnded, snap.LastEvent.Action)
	assert.Empty(t, snap.LastError)
}

func TestService_StartTwice(t *testing.T) {
	svc := New(Config{}, Deps{Source: &scriptSource{}})
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()
	assert.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyRunning)
}

func TestService_StartWithoutSource(t *testing.T) {
	svc := New(Config{}, Deps{})
	assert.ErrorIs(t, svc.Start(context.Background()), ErrNoSource)
}

func TestService_StopIsIdempotent(t *testing.T) {
	ind := &fakeIndicator{}
	svc := New(Config{}, Deps{Source: &scriptSource{}, Indicator: ind})
	svc.Stop()
	require.NoError(t, svc.Start(context.Background()))
	require.True(t, svc.Active())

	svc.Stop()
	svc.Stop()
	assert.False(t, svc.Active())

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
	_, closed := ind.snapshot()
	assert.True(t, closed)
}

func TestService_SourceFailureRecorded(t *testing.T) {
	svc := New(Config{}, Deps{Source: &scriptSource{err: source.ErrNoSensor}})
	require.NoError(t, svc.Start(context.Background()))

	require.Eventually(t, func() bool { return !svc.Active() }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, svc.Snapshot().LastError, "no accelerometer")
	svc.Stop()

	// A finished source can be started again.
	require.NoError(t, svc.Start(context.Background()))
	svc.Stop()
}

func TestService_SaveErrorDoesNotStopDispatch(t *testing.T) {
	st := &memStore{err: errors.New("disk full")}
	udp := &fakeNotifier{}
	svc := New(Config{}, Deps{Source: &scriptSource{samples: motionScript()}, Store: st, UDP: udp})
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	require.Eventually(t, func() bool { return svc.Snapshot().Events == 2 && udp.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return svc.Snapshot().LastEvent != nil && !svc.Snapshot().LastEvent.Moving }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, svc.Snapshot().LastError, "disk full")
}

func TestService_DropsInvalidSamples(t *testing.T) {
	samples := []motion.Sample{rest, {X: float32(math.NaN())}, rest}
	svc := New(Config{}, Deps{Source: &scriptSource{samples: samples}})
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	require.Eventually(t, func() bool { return svc.Snapshot().Samples == 3 }, 2*time.Second, 5*time.Millisecond)
	snap := svc.Snapshot()
	assert.Equal(t, uint64(1), snap.Dropped)
	assert.Equal(t, 2, snap.Window)
	assert.Equal(t, "awaiting_window", snap.Phase)
}

func TestService_ResetAndLabel(t *testing.T) {
	var script []motion.Sample
	for i := 0; i < motion.DefaultWindowSize; i++ {
		script = append(script, motion.Sample{X: 20})
	}
	ind := &fakeIndicator{}
	svc := New(Config{Label: "a"}, Deps{Source: &scriptSource{samples: script}, Indicator: ind})
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	require.Eventually(t, func() bool {
		values, _ := ind.snapshot()
		return len(values) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, svc.Snapshot().Moving)

	svc.Reset()
	snap := svc.Snapshot()
	assert.False(t, snap.Moving)
	assert.Equal(t, 0, snap.Window)
	assert.Equal(t, "awaiting_window", snap.Phase)
	values, _ := ind.snapshot()
	assert.Equal(t, []bool{true, false}, values)

	svc.SetLabel("b")
	assert.Equal(t, "b", svc.Label())
	assert.Equal(t, "b", svc.Snapshot().Label)
}

func TestService_Sync(t *testing.T) {
	svc := New(Config{}, Deps{Source: &scriptSource{}})
	_, err := svc.Sync(context.Background())
	assert.ErrorIs(t, err, ErrSyncDisabled)

	svc = New(Config{}, Deps{Source: &scriptSource{}, Syncer: fakeSyncer{n: 3}})
	n, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	svc = New(Config{}, Deps{Source: &scriptSource{}, Syncer: fakeSyncer{err: errors.New("broker down")}})
	_, err = svc.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, "broker down", svc.Snapshot().LastError)
}

func TestService_ResetClearsStreamReplay(t *testing.T) {
	var script []motion.Sample
	for i := 0; i < motion.DefaultWindowSize; i++ {
		script = append(script, motion.Sample{X: 20})
	}
	hub := notify.NewHub()
	svc := New(Config{}, Deps{Source: &scriptSource{samples: script}, Hub: hub})
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	require.Eventually(t, func() bool {
		_, ok := hub.Last()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	svc.Reset()
	snap := svc.Snapshot()
	require.False(t, snap.Moving)
	require.Equal(t, "awaiting_window", snap.Phase)

	_, ch := hub.Subscribe(4)
	select {
	case m := <-ch:
		t.Fatalf("new subscriber replayed %s moving=%v after reset", m.Action, m.Moving)
	default:
	}
}

// endsOnceSource emits its samples and fails on the first run, then blocks on later runs.
type endsOnceSource struct {
	mu      sync.Mutex
	runs    int
	samples []motion.Sample
}

func (s *endsOnceSource) Name() string { return "ends-once" }

func (s *endsOnceSource) Run(ctx context.Context, emit func(motion.Sample)) error {
	s.mu.Lock()
	s.runs++
	first := s.runs == 1
	s.mu.Unlock()
	if first {
		for _, x := range s.samples {
			emit(x)
		}
		return errors.New("device unplugged")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestService_RestartAfterSourceEnded(t *testing.T) {
	var script []motion.Sample
	for i := 0; i < motion.DefaultWindowSize; i++ {
		script = append(script, rest)
	}
	svc := New(Config{}, Deps{Source: &endsOnceSource{samples: script}})
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	require.Eventually(t, func() bool { return !svc.Active() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "classifying", svc.Snapshot().Phase)
	assert.Contains(t, svc.Snapshot().LastError, "device unplugged")

	require.NoError(t, svc.Restart(context.Background()))
	assert.True(t, svc.Active())
	snap := svc.Snapshot()
	assert.Equal(t, "awaiting_window", snap.Phase)
	assert.Equal(t, 0, snap.Window)
	assert.Empty(t, snap.LastError)

	assert.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyRunning)
}

type lineSource struct {
	scriptSource
	bad uint64
}

func (s *lineSource) BadLines() uint64 { return s.bad }

func TestService_SnapshotCounters(t *testing.T) {
	hub := notify.NewHub()
	_, _ = hub.Subscribe(1)
	hub.Publish(notify.Message{Action: notify.ActionStarted, Moving: true})
	hub.Publish(notify.Message{Action: notify.ActionEnded})

	svc := New(Config{}, Deps{Source: &lineSource{bad: 3}, Hub: hub})
	snap := svc.Snapshot()
	assert.Equal(t, uint64(3), snap.BadLines)
	assert.Equal(t, uint64(1), snap.StreamDropped)

	snap = New(Config{}, Deps{Source: &scriptSource{}}).Snapshot()
	assert.Zero(t, snap.BadLines)
	assert.Zero(t, snap.StreamDropped)
}
