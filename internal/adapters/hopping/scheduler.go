// Package hopping rotates the radio through a channel list while
// promiscuous capture runs, so a single receiver still observes traffic
// across the band. After a scan the rotation narrows to the channels
// the scan actually found networks on.
package hopping

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
	"github.com/gattrose/gattrose-ng/internal/telemetry"
)

// DefaultDwell is how long the radio stays on each channel.
const DefaultDwell = 250 * time.Millisecond

// DefaultRotation covers the busiest 2.4 GHz channels plus the common
// 5 GHz ones, used until a scan narrows the set.
var DefaultRotation = []int{1, 6, 11, 36, 40, 44, 149}

// Scheduler hops the radio round-robin over its channel list.
type Scheduler struct {
	logger *slog.Logger
	radio  ports.Radio
	dwell  time.Duration

	mu       sync.Mutex
	channels []int
	next     int
	running  bool
	stopChan chan struct{}
	errCount int

	pauseChan chan time.Duration
}

// New builds a stopped scheduler. A zero dwell picks DefaultDwell; a
// nil channel list starts from DefaultRotation.
func New(logger *slog.Logger, radio ports.Radio, channels []int, dwell time.Duration) *Scheduler {
	if dwell <= 0 {
		dwell = DefaultDwell
	}
	if len(channels) == 0 {
		channels = DefaultRotation
	}
	return &Scheduler{
		logger:    logger.With(slog.String("component", "hopper")),
		radio:     radio,
		dwell:     dwell,
		channels:  append([]int(nil), channels...),
		pauseChan: make(chan time.Duration, 1),
	}
}

// Start launches the hop loop. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	go s.run(s.stopChan)
	s.logger.Info("hopper started", slog.Duration("dwell", s.dwell))
}

// Stop halts the hop loop. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopChan)
	s.logger.Info("hopper stopped")
}

// Running reports whether the hop loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pause suspends hopping for the given duration so a scan or an attack
// burst keeps the radio where it needs it. Dropped when a pause is
// already pending.
func (s *Scheduler) Pause(d time.Duration) {
	select {
	case s.pauseChan <- d:
	default:
	}
}

// SetChannels replaces the rotation and restarts it from the first
// entry. An empty list falls back to the default rotation.
func (s *Scheduler) SetChannels(channels []int) {
	if len(channels) == 0 {
		channels = DefaultRotation
	}
	s.mu.Lock()
	s.channels = append([]int(nil), channels...)
	s.next = 0
	s.mu.Unlock()
	s.logger.Debug("rotation updated", slog.Any("channels", channels))
}

// Channels returns a copy of the current rotation.
func (s *Scheduler) Channels() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.channels...)
}

// OnGenerationReplaced narrows the rotation to the channels the new
// scan generation occupies.
func (s *Scheduler) OnGenerationReplaced(networks []domain.Network) {
	seen := make(map[int]bool)
	var channels []int
	for _, n := range networks {
		if n.Channel > 0 && !seen[n.Channel] {
			seen[n.Channel] = true
			channels = append(channels, n.Channel)
		}
	}
	sort.Ints(channels)
	s.SetChannels(channels)
}

func (s *Scheduler) run(stop chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("hopper panic", slog.Any("recover", r))
		}
	}()

	ticker := time.NewTicker(s.dwell)
	defer ticker.Stop()

	s.hop()
	for {
		select {
		case <-stop:
			return
		case d := <-s.pauseChan:
			ticker.Stop()
			s.logger.Debug("hopper paused", slog.Duration("for", d))
			select {
			case <-time.After(d):
				ticker.Reset(s.dwell)
			case <-stop:
				return
			}
		case <-ticker.C:
			s.hop()
		}
	}
}

func (s *Scheduler) hop() {
	s.mu.Lock()
	if len(s.channels) == 0 {
		s.mu.Unlock()
		return
	}
	if s.next >= len(s.channels) {
		s.next = 0
	}
	ch := s.channels[s.next]
	s.next++
	s.mu.Unlock()

	if err := s.radio.SetChannel(ch); err != nil {
		s.errCount++
		// Persistent failures would flood the log at this cadence.
		if s.errCount == 1 || s.errCount%10 == 0 {
			s.logger.Warn("retune failed",
				slog.Int("channel", ch), slog.Int("consecutive", s.errCount), slog.Any("error", err))
		}
		return
	}
	if s.errCount > 0 {
		s.logger.Info("hopper recovered", slog.Int("after_errors", s.errCount))
		s.errCount = 0
	}
	telemetry.ChannelHops.Inc()
}
