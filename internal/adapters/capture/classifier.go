package capture

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/gattrose/gattrose-ng/internal/adapters/capture/handshake"
	"github.com/gattrose/gattrose-ng/internal/adapters/capture/ie"
	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
	"github.com/gattrose/gattrose-ng/internal/telemetry"
)

const frameQueueSize = 512

// eapolDwell is how long channel hopping pauses after an EAPOL frame so
// the rest of the exchange is caught on the same channel.
const eapolDwell = 5 * time.Second

// BeaconSighting is what the rogue detector sees per beacon.
type BeaconSighting struct {
	BSSID   string
	SSID    string
	Hidden  bool
	Channel int
	RSSI    int
}

// Classifier fans captured 802.11 frames out to the registry, the
// handshake state machine, the probe log and the beacon/probe hooks.
// HandleFrame only enqueues; decoding runs on the classifier's worker.
type Classifier struct {
	logger     *slog.Logger
	registry   ports.NetworkRegistry
	notifier   ports.Notifier
	handshakes *handshake.Manager
	probes     *ProbeLog

	mu        sync.RWMutex
	onBeacon  func(BeaconSighting)
	onProbe   func(ssid, mac string, rssi int)
	pauseHook func(time.Duration)

	queue    chan ports.Frame
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewClassifier creates the classifier and starts its worker.
func NewClassifier(logger *slog.Logger, registry ports.NetworkRegistry, notifier ports.Notifier, hs *handshake.Manager, probes *ProbeLog) *Classifier {
	c := &Classifier{
		logger:     logger,
		registry:   registry,
		notifier:   notifier,
		handshakes: hs,
		probes:     probes,
		queue:      make(chan ports.Frame, frameQueueSize),
		stopChan:   make(chan struct{}),
	}
	go c.run()
	return c
}

// Close stops the worker.
func (c *Classifier) Close() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// OnBeacon installs the beacon hook. Used by the rogue detector.
func (c *Classifier) OnBeacon(fn func(BeaconSighting)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBeacon = fn
}

// OnProbe installs the probe-request hook. Used by the karma responder.
func (c *Classifier) OnProbe(fn func(ssid, mac string, rssi int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProbe = fn
}

// SetPauseHook installs the channel-scheduler pause callback, fired on
// EAPOL sightings while handshake or PMKID capture is active.
func (c *Classifier) SetPauseHook(fn func(time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseHook = fn
}

// HandleFrame implements ports.FrameSink. It never blocks the driver:
// when the queue is full the frame is dropped and counted.
func (c *Classifier) HandleFrame(f ports.Frame) {
	select {
	case c.queue <- f:
	default:
		telemetry.FramesDropped.WithLabelValues("queue_full").Inc()
	}
}

func (c *Classifier) run() {
	for {
		select {
		case f := <-c.queue:
			c.classify(f)
		case <-c.stopChan:
			return
		}
	}
}

func (c *Classifier) classify(f ports.Frame) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.FramesDropped.WithLabelValues("panic").Inc()
			c.logger.Error("frame classification panic", "recover", r)
		}
	}()

	packet := gopacket.NewPacket(f.Data, layers.LayerTypeDot11, gopacket.NoCopy)
	dot11Layer := packet.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		telemetry.FramesDropped.WithLabelValues("not_dot11").Inc()
		return
	}
	dot11, ok := dot11Layer.(*layers.Dot11)
	if !ok {
		telemetry.FramesDropped.WithLabelValues("not_dot11").Inc()
		return
	}

	switch dot11.Type.MainType() {
	case layers.Dot11TypeMgmt:
		c.classifyMgmt(packet, dot11, f)
	case layers.Dot11TypeData:
		c.classifyData(packet, dot11, f)
	default:
		telemetry.FramesProcessed.WithLabelValues("other").Inc()
	}
}

func (c *Classifier) classifyMgmt(packet gopacket.Packet, dot11 *layers.Dot11, f ports.Frame) {
	switch dot11.Type {
	case layers.Dot11TypeMgmtBeacon:
		telemetry.FramesProcessed.WithLabelValues("beacon").Inc()
		c.handleBeacon(packet, dot11, layers.LayerTypeDot11MgmtBeacon, f)
	case layers.Dot11TypeMgmtProbeResp:
		telemetry.FramesProcessed.WithLabelValues("probe_resp").Inc()
		c.handleBeacon(packet, dot11, layers.LayerTypeDot11MgmtProbeResp, f)
	case layers.Dot11TypeMgmtProbeReq:
		telemetry.FramesProcessed.WithLabelValues("probe_req").Inc()
		c.handleProbeReq(packet, dot11, f)
	default:
		telemetry.FramesProcessed.WithLabelValues("other").Inc()
	}
}

// handleBeacon covers beacons and probe responses; both advertise the
// AP identity the rogue detector and the SSID cache care about.
func (c *Classifier) handleBeacon(packet gopacket.Packet, dot11 *layers.Dot11, layerType gopacket.LayerType, f ports.Frame) {
	ieData := managementIEs(packet, layerType)
	ssid := ie.ParseSSID(ieData)

	channel := f.Channel
	if ch, err := ie.ParseChannel(ieData); err == nil {
		channel = ch
	}

	bssid := domain.FormatMAC(dot11.Address2)
	if !ssid.Hidden && c.handshakes != nil {
		c.handshakes.LearnSSID(bssid, ssid.Value)
	}

	c.mu.RLock()
	hook := c.onBeacon
	c.mu.RUnlock()
	if hook != nil {
		hook(BeaconSighting{
			BSSID:   bssid,
			SSID:    ssid.Value,
			Hidden:  ssid.Hidden,
			Channel: channel,
			RSSI:    f.RSSI,
		})
	}
}

func (c *Classifier) handleProbeReq(packet gopacket.Packet, dot11 *layers.Dot11, f ports.Frame) {
	ieData := managementIEs(packet, layers.LayerTypeDot11MgmtProbeReq)
	ssid := ie.ParseSSID(ieData)
	if ssid.Hidden || ssid.Value == "" {
		// Wildcard probe, nothing to record.
		return
	}

	mac := domain.FormatMAC(dot11.Address2)
	if c.probes != nil {
		c.probes.Observe(ssid.Value, mac, f.RSSI, time.Now())
	}

	c.mu.RLock()
	hook := c.onProbe
	c.mu.RUnlock()
	if hook != nil {
		hook(ssid.Value, mac, f.RSSI)
	}
}

func (c *Classifier) classifyData(packet gopacket.Packet, dot11 *layers.Dot11, f ports.Frame) {
	telemetry.FramesProcessed.WithLabelValues("data").Inc()

	toDS := dot11.Flags.ToDS()
	fromDS := dot11.Flags.FromDS()

	var bssidAddr, stationAddr []byte
	switch {
	case toDS && !fromDS:
		bssidAddr = dot11.Address1
		stationAddr = dot11.Address2
	case !toDS && fromDS:
		bssidAddr = dot11.Address2
		stationAddr = dot11.Address1
	case toDS && fromDS:
		// WDS frame, no station to attribute.
		return
	default:
		bssidAddr = dot11.Address3
		if macEqual(dot11.Address2, bssidAddr) {
			stationAddr = dot11.Address1
		} else {
			stationAddr = dot11.Address2
		}
	}

	if len(stationAddr) == 0 || len(bssidAddr) == 0 {
		return
	}
	// Skip group-addressed stations.
	if stationAddr[0]&0x01 != 0 {
		return
	}

	bssid := domain.FormatMAC(bssidAddr)
	station := domain.FormatMAC(stationAddr)

	if c.registry != nil {
		client, isNew, err := c.registry.ObserveClient(station, bssid, f.RSSI, time.Now())
		if err == nil && isNew && c.notifier != nil {
			c.notifier.NewClient(client.NetworkIndex, client)
		}
	}

	if c.handshakes != nil && c.handshakes.Active() {
		if eapolLayer := packet.Layer(layers.LayerTypeEAPOL); eapolLayer != nil {
			telemetry.FramesProcessed.WithLabelValues("eapol").Inc()
			raw := make([]byte, 0, len(eapolLayer.LayerContents())+len(eapolLayer.LayerPayload()))
			raw = append(raw, eapolLayer.LayerContents()...)
			raw = append(raw, eapolLayer.LayerPayload()...)
			c.handshakes.Submit(bssid, station, raw)

			// The exchange's remaining messages arrive within
			// milliseconds; hopping away now would lose them.
			c.mu.RLock()
			pause := c.pauseHook
			c.mu.RUnlock()
			if pause != nil {
				pause(eapolDwell)
			}
		}
	}
}

// managementIEs returns the information elements of a management frame.
// Older gopacket decoders leave them in the subtype layer payload; newer
// ones split them into Dot11InformationElement layers.
func managementIEs(packet gopacket.Packet, layerType gopacket.LayerType) []byte {
	if l := packet.Layer(layerType); l != nil {
		if payload := l.LayerPayload(); len(payload) > 0 {
			return payload
		}
	}
	var ieData []byte
	for _, layer := range packet.Layers() {
		if layer.LayerType() == layers.LayerTypeDot11InformationElement {
			if elem, ok := layer.(*layers.Dot11InformationElement); ok {
				ieData = append(ieData, byte(elem.ID), elem.Length)
				ieData = append(ieData, elem.Info...)
			}
		}
	}
	return ieData
}

func macEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
