// Package indicator mirrors the motion state on a GPIO output, typically an LED.
package indicator

import (
	"fmt"
	"sync"
)

type outputLine interface {
	SetValue(v int) error
	Close() error
}

// Indicator drives its line high while moving. Safe for concurrent use.
type Indicator struct {
	mu    sync.Mutex
	line  outputLine
	pin   int
	value int
}

// Open requests BCM pin pin as an output, initially low.
func Open(pin int) (*Indicator, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("indicator: invalid gpio pin %d", pin)
	}
	line, err := openLineFn(pin)
	if err != nil {
		return nil, err
	}
	return &Indicator{line: line, pin: pin}, nil
}

func (i *Indicator) Pin() int { return i.pin }

func (i *Indicator) Set(moving bool) error {
	if i == nil {
		return nil
	}
	v := 0
	if moving {
		v = 1
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.line == nil {
		return fmt.Errorf("indicator: closed")
	}
	if err := i.line.SetValue(v); err != nil {
		return fmt.Errorf("indicator: gpio%d: %w", i.pin, err)
	}
	i.value = v
	return nil
}

// Value is the last level written.
func (i *Indicator) Value() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.value
}

// Close drives the line low and releases it.
func (i *Indicator) Close() error {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.line == nil {
		return nil
	}
	_ = i.line.SetValue(0)
	err := i.line.Close()
	i.line = nil
	i.value = 0
	return err
}
