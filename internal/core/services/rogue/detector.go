package rogue

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gattrose/gattrose-ng/internal/adapters/capture"
	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
	"github.com/gattrose/gattrose-ng/internal/telemetry"
)

// DefaultCooldown suppresses repeat alerts for the same finding.
const DefaultCooldown = 30 * time.Second

type alertKey struct {
	kind  domain.AlertKind
	bssid string
}

// Detector compares the environment against a known-good baseline and
// raises alerts on deviations: evil twins, unknown APs, and identity or
// channel changes of known APs.
type Detector struct {
	logger   *slog.Logger
	notifier ports.Notifier

	mu         sync.RWMutex
	baseline   map[string]domain.BaselineAP
	ssidOwners map[string][]string
	monitoring bool
	lastAlert  map[alertKey]time.Time
	cooldown   time.Duration
}

// New creates a detector with no baseline.
func New(logger *slog.Logger, notifier ports.Notifier) *Detector {
	return &Detector{
		logger:     logger,
		notifier:   notifier,
		baseline:   make(map[string]domain.BaselineAP),
		ssidOwners: make(map[string][]string),
		lastAlert:  make(map[alertKey]time.Time),
		cooldown:   DefaultCooldown,
	}
}

// Snapshot replaces the baseline with the given scan generation.
// An empty generation cannot form a baseline.
func (d *Detector) Snapshot(nets []domain.Network) (int, error) {
	if len(nets) == 0 {
		return 0, domain.ErrScanFirst
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseline = make(map[string]domain.BaselineAP, len(nets))
	d.ssidOwners = make(map[string][]string)
	d.lastAlert = make(map[alertKey]time.Time)
	for _, n := range nets {
		d.baseline[n.BSSID] = domain.BaselineAP{
			BSSID:   n.BSSID,
			SSID:    n.SSID,
			Channel: n.Channel,
		}
		if !n.Hidden && n.SSID != "" {
			d.ssidOwners[n.SSID] = append(d.ssidOwners[n.SSID], n.BSSID)
		}
	}
	d.logger.Info("rogue baseline captured", "aps", len(d.baseline))
	return len(d.baseline), nil
}

// StartMonitor enables diffing. Requires a baseline.
func (d *Detector) StartMonitor() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.baseline) == 0 {
		return domain.ErrNoBaseline
	}
	d.monitoring = true
	return nil
}

// StopMonitor disables diffing. Idempotent.
func (d *Detector) StopMonitor() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.monitoring = false
}

// Monitoring reports whether diffing is active.
func (d *Detector) Monitoring() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.monitoring
}

// BaselineCount returns the number of baselined APs.
func (d *Detector) BaselineCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.baseline)
}

// ObserveBeacon evaluates one live beacon sighting. Installed as the
// classifier's beacon hook.
func (d *Detector) ObserveBeacon(s capture.BeaconSighting) {
	d.evaluate(s.BSSID, s.SSID, s.Hidden, s.Channel)
}

// OnGenerationReplaced diffs a completed scan against the baseline, so
// monitoring catches APs even between beacon sightings.
func (d *Detector) OnGenerationReplaced(nets []domain.Network) {
	for _, n := range nets {
		d.evaluate(n.BSSID, n.SSID, n.Hidden, n.Channel)
	}
}

func (d *Detector) evaluate(bssid, ssid string, hidden bool, channel int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.monitoring {
		return
	}

	known, inBaseline := d.baseline[bssid]
	if inBaseline {
		if !hidden && ssid != known.SSID {
			d.raise(domain.AlertSSIDChanged, ssid, bssid, fmt.Sprintf("was:%s", known.SSID))
		}
		if channel > 0 && channel != known.Channel {
			d.raise(domain.AlertChannelChanged, known.SSID, bssid, fmt.Sprintf("ch:%d->%d", known.Channel, channel))
		}
		return
	}

	if !hidden && ssid != "" {
		if owners, dup := d.ssidOwners[ssid]; dup {
			d.raise(domain.AlertEvilTwin, ssid, bssid, fmt.Sprintf("impersonates:%s", owners[0]))
			return
		}
	}
	d.raise(domain.AlertNewAP, ssid, bssid, fmt.Sprintf("ch:%d", channel))
}

// raise runs under the detector lock.
func (d *Detector) raise(kind domain.AlertKind, ssid, bssid, detail string) {
	key := alertKey{kind: kind, bssid: bssid}
	now := time.Now()
	if last, seen := d.lastAlert[key]; seen && now.Sub(last) < d.cooldown {
		return
	}
	d.lastAlert[key] = now

	alert := domain.Alert{
		Kind:      kind,
		SSID:      ssid,
		BSSID:     bssid,
		Detail:    detail,
		Timestamp: now,
	}
	telemetry.AlertsTotal.WithLabelValues(string(kind)).Inc()
	d.logger.Warn("rogue alert", "kind", kind, "ssid", ssid, "bssid", bssid, "detail", detail)
	if d.notifier != nil {
		d.notifier.Alert(alert)
	}
}
