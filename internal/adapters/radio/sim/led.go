package sim

import (
	"fmt"
	"sync"

	"github.com/gattrose/gattrose-ng/internal/core/ports"
)

var _ ports.StatusLED = (*LED)(nil)

// LEDState is a snapshot of the simulated LED.
type LEDState struct {
	On      bool
	Effect  int
	R, G, B uint8
}

// LED is the simulated status LED. It records the last thing asked of it
// so tests can assert on controller-driven changes.
type LED struct {
	mu    sync.Mutex
	state LEDState
}

// NewLED starts dark.
func NewLED() *LED {
	return &LED{}
}

func (l *LED) Off() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = LEDState{}
	return nil
}

func (l *LED) Effect(n int) error {
	if n < 1 || n > 3 {
		return fmt.Errorf("unknown LED effect %d", n)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = LEDState{On: true, Effect: n}
	return nil
}

func (l *LED) Color(r, g, b uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = LEDState{On: true, R: r, G: g, B: b}
	return nil
}

// State returns the current snapshot.
func (l *LED) State() LEDState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
