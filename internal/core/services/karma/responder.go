// Package karma answers observed directed probe requests with matching
// fake beacons, luring clients that auto-join remembered networks.
package karma

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultCooldown throttles repeated responses for the same SSID.
	DefaultCooldown = 10 * time.Second

	// maxTracked bounds the per-SSID cooldown table.
	maxTracked = 64
)

// Responder reacts to probe-request sightings while enabled. The actual
// beacon transmission happens elsewhere: send only records intent.
type Responder struct {
	logger *slog.Logger
	send   func(ssid string)

	mu       sync.Mutex
	enabled  bool
	lastSent map[string]time.Time
	cooldown time.Duration
}

// New creates a Responder. send is invoked once per lured SSID per
// cooldown window and must not block.
func New(logger *slog.Logger, send func(ssid string)) *Responder {
	return &Responder{
		logger:   logger.With(slog.String("component", "karma")),
		send:     send,
		lastSent: make(map[string]time.Time),
		cooldown: DefaultCooldown,
	}
}

// Enable toggles the responder. Disabling drops the cooldown history.
func (r *Responder) Enable(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled == on {
		return
	}
	r.enabled = on
	if !on {
		r.lastSent = make(map[string]time.Time)
	}
	r.logger.Info("karma responder toggled", slog.Bool("enabled", on))
}

// Enabled reports whether probe sightings are being answered.
func (r *Responder) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// HandleProbe is wired as the capture classifier's probe hook. A directed
// probe for ssid triggers one fake-beacon intent per cooldown window.
func (r *Responder) HandleProbe(ssid, mac string, rssi int) {
	r.mu.Lock()
	if !r.enabled || ssid == "" {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	if last, ok := r.lastSent[ssid]; ok {
		if now.Sub(last) < r.cooldown {
			r.mu.Unlock()
			return
		}
	} else if len(r.lastSent) >= maxTracked {
		r.mu.Unlock()
		return
	}
	r.lastSent[ssid] = now
	r.mu.Unlock()

	r.logger.Debug("answering probe",
		slog.String("ssid", ssid),
		slog.String("station", mac),
		slog.Int("rssi", rssi))
	r.send(ssid)
}
