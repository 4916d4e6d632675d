// Package mqttsync uploads stored motion records to an MQTT broker.
package mqttsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"motionsense/internal/logging"
	"motionsense/internal/store"
)

type RecordStore interface {
	Unsynced(ctx context.Context, limit int) ([]store.Record, error)
	MarkSynced(ctx context.Context, ids []string) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

type Config struct {
	Topic string
	Batch int
}

// Syncer publishes unsynced records, one message per record, then marks
// them synced. A failed publish leaves the rest of the batch for next time.
type Syncer struct {
	cfg   Config
	store RecordStore
	dial  func(ctx context.Context) (Publisher, error)
	log   *logrus.Entry

	// mu serializes passes so a record is never published twice.
	mu sync.Mutex
}

func New(cfg Config, st RecordStore, dial func(ctx context.Context) (Publisher, error)) *Syncer {
	if cfg.Topic == "" {
		cfg.Topic = "motionsense/significant_motion"
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	return &Syncer{cfg: cfg, store: st, dial: dial, log: logging.New("sync")}
}

// NewMQTT returns a Syncer that opens a fresh broker session per pass.
func NewMQTT(cfg Config, st RecordStore, client ClientConfig) *Syncer {
	return New(cfg, st, func(ctx context.Context) (Publisher, error) {
		return Dial(ctx, client)
	})
}

func (s *Syncer) topicFor(r store.Record) string {
	if r.DeviceID == "" {
		return s.cfg.Topic
	}
	return strings.TrimSuffix(s.cfg.Topic, "/") + "/" + r.DeviceID
}

// Sync runs one pass and returns how many records were published.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.store.Unsynced(ctx, s.cfg.Batch)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	pub, err := s.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			s.log.WithError(err).Debug("disconnect failed")
		}
	}()

	total := 0
	for len(pending) > 0 {
		ids := make([]string, 0, len(pending))
		var pubErr error
		for _, r := range pending {
			b, err := json.Marshal(r)
			if err != nil {
				pubErr = err
				break
			}
			if err := pub.Publish(ctx, s.topicFor(r), b); err != nil {
				pubErr = err
				break
			}
			ids = append(ids, r.ID)
		}
		if err := s.store.MarkSynced(ctx, ids); err != nil {
			return total, err
		}
		total += len(ids)
		if pubErr != nil {
			return total, pubErr
		}
		if len(pending) < s.cfg.Batch {
			break
		}
		if pending, err = s.store.Unsynced(ctx, s.cfg.Batch); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Run syncs every interval until ctx is done. Failures are logged and retried next tick.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Sync(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				s.log.WithError(err).WithField("synced", n).Warn("sync failed")
				continue
			}
			if n > 0 {
				s.log.WithField("synced", n).Info("records synced")
			}
		}
	}
}

func (s *Syncer) String() string { return fmt.Sprintf("mqtt(%s)", s.cfg.Topic) }
