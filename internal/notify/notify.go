// Package notify delivers motion transitions to interested parties:
// in-process observers, stream subscribers and UDP listeners.
package notify

import (
	"encoding/json"
	"time"

	"motionsense/internal/motion"
)

const (
	ActionStarted = "ACTION_AWARE_SIGNIFICANT_MOTION_STARTED"
	ActionEnded   = "ACTION_AWARE_SIGNIFICANT_MOTION_ENDED"
)

func Action(k motion.Kind) string {
	if k == motion.Started {
		return ActionStarted
	}
	return ActionEnded
}

// Message is the wire form of a transition.
type Message struct {
	Action   string `json:"action"`
	Moving   bool   `json:"moving"`
	TimeUTC  string `json:"time_utc"`
	DeviceID string `json:"device_id,omitempty"`
	Label    string `json:"label,omitempty"`
}

func NewMessage(ev motion.Event, deviceID, label string) Message {
	return Message{
		Action:   Action(ev.Kind),
		Moving:   ev.Moving(),
		TimeUTC:  ev.Time.UTC().Format(time.RFC3339Nano),
		DeviceID: deviceID,
		Label:    label,
	}
}

// Observer receives transitions synchronously on the sampling goroutine.
// Implementations must not block.
type Observer interface {
	OnMotionStart()
	OnMotionEnd()
}

// ObserverFuncs adapts plain functions to Observer. Nil funcs are skipped.
type ObserverFuncs struct {
	Start func()
	End   func()
}

func (o ObserverFuncs) OnMotionStart() {
	if o.Start != nil {
		o.Start()
	}
}

func (o ObserverFuncs) OnMotionEnd() {
	if o.End != nil {
		o.End()
	}
}

type sender interface {
	Send(payload []byte) error
}

// UDP sends each message as one JSON datagram.
type UDP struct {
	s sender
}

func NewUDP(s sender) *UDP { return &UDP{s: s} }

func (u *UDP) Notify(msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return u.s.Send(b)
}
