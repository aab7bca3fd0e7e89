// Package beacon drives SSID flood attacks through the actuator's
// beacon source hook. The actuator pulls one spec per transmit tick;
// this package only decides what the next advertisement says.
package beacon

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gattrose/gattrose-ng/internal/adapters/radio/actuator"
	"github.com/gattrose/gattrose-ng/internal/adapters/radio/inject"
	"github.com/gattrose/gattrose-ng/internal/core/domain"
)

const randomSSIDLen = 8

const ssidCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Track titles, the classic flood set. Numbered so scan lists keep the
// lyric order.
var rickrollSSIDs = []string{
	"01 Never Gonna Give You Up",
	"02 Never Gonna Let You Down",
	"03 Never Gonna Run Around",
	"04 And Desert You",
	"05 Never Gonna Make You Cry",
	"06 Never Gonna Say Goodbye",
	"07 Never Gonna Tell A Lie",
	"08 And Hurt You",
}

// Sourcer is the actuator hook the flood installs itself into.
type Sourcer interface {
	SetBeaconSource(src actuator.BeaconSource)
}

// Flood tracks the active beacon mode and feeds the actuator.
type Flood struct {
	logger *slog.Logger
	sink   Sourcer

	mu     sync.Mutex
	mode   domain.BeaconMode
	custom string
	fixed  []actuator.BeaconSpec
	next   int
	rnd    *rand.Rand
}

// New creates an idle flood controller.
func New(logger *slog.Logger, sink Sourcer) *Flood {
	return &Flood{
		logger: logger.With(slog.String("component", "beacon")),
		sink:   sink,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// StartRandom floods random 8-character SSIDs, fresh BSSID per frame,
// hopping across the 2.4GHz channels. Replaces any active mode.
func (f *Flood) StartRandom() {
	f.mu.Lock()
	f.mode = domain.BeaconRandom
	f.custom = ""
	f.fixed = nil
	f.mu.Unlock()

	f.sink.SetBeaconSource(f.nextRandom)
	f.logger.Info("beacon flood started", slog.String("mode", "random"))
}

// StartRickroll cycles the themed SSID list. Each title keeps a stable
// BSSID for the flood's lifetime so scan lists show eight networks, not
// an ever-growing pile.
func (f *Flood) StartRickroll() {
	f.mu.Lock()
	f.mode = domain.BeaconRickroll
	f.custom = ""
	f.fixed = make([]actuator.BeaconSpec, len(rickrollSSIDs))
	for i, ssid := range rickrollSSIDs {
		f.fixed[i] = actuator.BeaconSpec{SSID: ssid, BSSID: inject.RandomMAC()}
	}
	f.next = 0
	f.mu.Unlock()

	f.sink.SetBeaconSource(f.nextFixed)
	f.logger.Info("beacon flood started", slog.String("mode", "rickroll"))
}

// StartCustom floods one SSID under a stable BSSID. Empty SSIDs are
// rejected; overlong ones are truncated the way the radio module does.
func (f *Flood) StartCustom(ssid string) error {
	if ssid == "" {
		return domain.ErrMissingArgs
	}
	if len(ssid) > domain.MaxSSIDLen {
		ssid = ssid[:domain.MaxSSIDLen]
	}

	f.mu.Lock()
	f.mode = domain.BeaconCustom
	f.custom = ssid
	f.fixed = []actuator.BeaconSpec{{SSID: ssid, BSSID: inject.RandomMAC()}}
	f.next = 0
	f.mu.Unlock()

	f.sink.SetBeaconSource(f.nextFixed)
	f.logger.Info("beacon flood started", slog.String("mode", "custom"), slog.String("ssid", ssid))
	return nil
}

// Stop withdraws the beacon source. Idempotent.
func (f *Flood) Stop() {
	f.mu.Lock()
	wasOn := f.mode != domain.BeaconOff
	f.mode = domain.BeaconOff
	f.custom = ""
	f.fixed = nil
	f.mu.Unlock()

	f.sink.SetBeaconSource(nil)
	if wasOn {
		f.logger.Info("beacon flood stopped")
	}
}

// Mode reports the active flood variant.
func (f *Flood) Mode() domain.BeaconMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// Active reports whether any flood variant is running.
func (f *Flood) Active() bool {
	return f.Mode() != domain.BeaconOff
}

func (f *Flood) nextRandom() (actuator.BeaconSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mode != domain.BeaconRandom {
		return actuator.BeaconSpec{}, false
	}
	ssid := make([]byte, randomSSIDLen)
	for i := range ssid {
		ssid[i] = ssidCharset[f.rnd.Intn(len(ssidCharset))]
	}
	return actuator.BeaconSpec{
		SSID:      string(ssid),
		BSSID:     nil, // fresh random address per frame
		Channel:   1 + f.rnd.Intn(11),
		Protected: f.rnd.Intn(2) == 0,
	}, true
}

func (f *Flood) nextFixed() (actuator.BeaconSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fixed) == 0 {
		return actuator.BeaconSpec{}, false
	}
	spec := f.fixed[f.next]
	f.next = (f.next + 1) % len(f.fixed)
	return spec, true
}

// RickrollSSIDs exposes the themed list for listings and tests.
func RickrollSSIDs() []string {
	return append([]string(nil), rickrollSSIDs...)
}
