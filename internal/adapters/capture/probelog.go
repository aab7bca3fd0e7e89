package capture

import (
	"sync"
	"time"

	"github.com/gattrose/gattrose-ng/internal/core/domain"
)

type probeKey struct {
	ssid string
	mac  string
}

// ProbeLog is the bounded directed-probe sighting list. Entries are
// deduplicated by (ssid, mac); repeats refresh RSSI and timestamp.
type ProbeLog struct {
	mu      sync.RWMutex
	on      bool
	entries []domain.ProbeLogEntry
	index   map[probeKey]int
}

func NewProbeLog() *ProbeLog {
	return &ProbeLog{index: make(map[probeKey]int)}
}

// Enable toggles probe logging. Turning it off discards the list.
func (p *ProbeLog) Enable(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.on = on
	if !on {
		p.entries = nil
		p.index = make(map[probeKey]int)
	}
}

// Enabled reports whether probe logging is on.
func (p *ProbeLog) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.on
}

// Observe records one directed probe. Returns false when logging is off
// or the sighting was dropped at capacity.
func (p *ProbeLog) Observe(ssid, mac string, rssi int, seen time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.on {
		return false
	}
	key := probeKey{ssid: ssid, mac: mac}
	if i, exists := p.index[key]; exists {
		p.entries[i].RSSI = rssi
		p.entries[i].Timestamp = seen
		return true
	}
	if len(p.entries) >= domain.MaxProbeEntries {
		return false
	}
	p.index[key] = len(p.entries)
	p.entries = append(p.entries, domain.ProbeLogEntry{
		SSID:      ssid,
		MAC:       mac,
		RSSI:      rssi,
		Timestamp: seen,
	})
	return true
}

// Entries returns a snapshot in first-seen order.
func (p *ProbeLog) Entries() []domain.ProbeLogEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.ProbeLogEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Clear discards all entries but keeps logging enabled.
func (p *ProbeLog) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = nil
	p.index = make(map[probeKey]int)
}
