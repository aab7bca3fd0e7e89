// Package pcapdrv drives a Linux monitor-mode interface through libpcap.
// Scanning is a passive channel sweep that merges beacon sightings;
// transmission wraps raw 802.11 frames in a minimal radiotap header.
// Soft-AP and BLE are radio-module features with no equivalent on this
// hardware path and report ErrNotSupported.
package pcapdrv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/gattrose/gattrose-ng/internal/adapters/capture/ie"
	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
)

// ErrNotSupported marks operations this driver cannot perform.
var ErrNotSupported = errors.New("not supported by the pcap driver")

const (
	defaultSnapLen = 65536
	// minDwell bounds how little time a sweep spends per channel.
	minDwell = 30 * time.Millisecond

	capPrivacy = 0x0010
)

// defaultSweep is used when the card does not report its channel list.
var defaultSweep = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 36, 40, 44, 48, 149, 153, 157, 161}

// wpaOUI is the vendor IE prefix of pre-RSN WPA (Microsoft OUI, type 1).
var wpaOUI = []byte{0x00, 0x50, 0xF2, 0x01}

// Config selects and prepares the capture interface.
type Config struct {
	Interface string
	SnapLen   int

	// SetupMonitor switches the interface into monitor mode on open and
	// restores managed mode on Close.
	SetupMonitor bool

	// KillConflicts stops NetworkManager and wpa_supplicant first.
	KillConflicts bool
}

var _ ports.Radio = (*Driver)(nil)

// Driver implements ports.Radio over a pcap handle.
type Driver struct {
	logger  *slog.Logger
	iface   string
	handle  *pcap.Handle
	sweep   []int
	restore bool

	mu      sync.Mutex
	channel int
	sink    ports.FrameSink
	scan    *scanState
	closed  bool

	stopChan chan struct{}
	stopOnce sync.Once
}

// scanState accumulates beacon sightings during a sweep, keyed by BSSID.
type scanState struct {
	results map[string]*domain.RawScanResult
}

// New opens the interface and starts the read loop.
func New(logger *slog.Logger, cfg Config) (*Driver, error) {
	if cfg.Interface == "" {
		return nil, fmt.Errorf("interface name required")
	}
	// The name reaches shell commands during monitor-mode setup.
	if !domain.IsValidInterface(cfg.Interface) {
		return nil, fmt.Errorf("invalid interface name %q", cfg.Interface)
	}
	if cfg.SnapLen <= 0 {
		cfg.SnapLen = defaultSnapLen
	}
	logger = logger.With(slog.String("component", "radio"), slog.String("driver", "pcap"),
		slog.String("iface", cfg.Interface))

	if cfg.KillConflicts {
		if err := KillConflictingProcesses(); err != nil {
			logger.Warn("stopping conflicting services failed", slog.Any("error", err))
		}
	}
	if cfg.SetupMonitor {
		if err := EnableMonitorMode(cfg.Interface); err != nil {
			return nil, err
		}
	}

	handle, err := pcap.OpenLive(cfg.Interface, int32(cfg.SnapLen), true, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("pcap open %s: %w", cfg.Interface, err)
	}

	d := &Driver{
		logger:   logger,
		iface:    cfg.Interface,
		handle:   handle,
		restore:  cfg.SetupMonitor,
		channel:  6,
		stopChan: make(chan struct{}),
	}
	if channels, err := InterfaceChannels(cfg.Interface); err == nil {
		d.sweep = channels
		logger.Info("card capabilities read", slog.Int("channels", len(channels)))
	} else {
		d.sweep = defaultSweep
		logger.Warn("capability probe failed, using default sweep", slog.Any("error", err))
	}

	go d.readLoop()
	return d, nil
}

func (d *Driver) readLoop() {
	source := gopacket.NewPacketSource(d.handle, d.handle.LinkType())
	packets := source.Packets()
	for {
		select {
		case <-d.stopChan:
			return
		case packet, ok := <-packets:
			if !ok {
				return
			}
			d.dispatch(packet)
		}
	}
}

// dispatch routes one captured packet: to the sweep collector during a
// scan, to active promiscuous capture otherwise.
func (d *Driver) dispatch(packet gopacket.Packet) {
	frame, rssi, freq := normalizeFrame(packet.Data())
	if frame == nil {
		return
	}

	d.mu.Lock()
	scanning := d.scan != nil
	sink := d.sink
	channel := d.channel
	d.mu.Unlock()

	if ch := channelFromFrequency(freq); ch > 0 {
		channel = ch
	}

	if scanning {
		d.recordSighting(frame, rssi, channel)
		return
	}
	if sink != nil {
		sink.HandleFrame(ports.Frame{Data: frame, RSSI: rssi, Channel: channel})
	}
}

// normalizeFrame strips the radiotap header and guarantees a 4-byte FCS
// tail, honoring the radiotap flag that reports whether the hardware
// left the checksum on.
func normalizeFrame(data []byte) (frame []byte, rssi, freq int) {
	var rt layers.RadioTap
	if err := rt.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, 0, 0
	}
	payload := rt.Payload
	if len(payload) < 10 {
		return nil, 0, 0
	}

	rssi = -100
	if rt.Present.DBMAntennaSignal() {
		rssi = int(rt.DBMAntennaSignal)
	}
	if rt.Present.Channel() {
		freq = int(rt.ChannelFrequency)
	}
	if !rt.Present.Flags() || rt.Flags&layers.RadioTapFlagsFCS == 0 {
		payload = append(payload, 0, 0, 0, 0)
	}
	return payload, rssi, freq
}

func channelFromFrequency(freq int) int {
	switch {
	case freq == 2484:
		return 14
	case freq >= 2412 && freq <= 2472:
		return (freq - 2407) / 5
	case freq >= 5035 && freq <= 5895:
		return (freq - 5000) / 5
	default:
		return 0
	}
}

// recordSighting folds a beacon or probe response into the sweep's
// result set. Later sightings refine earlier ones: strongest RSSI wins,
// a named sighting fills in a hidden one.
func (d *Driver) recordSighting(frame []byte, rssi, channel int) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeDot11, gopacket.NoCopy)
	dot11Layer := pkt.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		return
	}
	dot11, ok := dot11Layer.(*layers.Dot11)
	if !ok || len(dot11.Address3) != 6 {
		return
	}

	var layerType gopacket.LayerType
	var capFlags uint16
	switch dot11.Type {
	case layers.Dot11TypeMgmtBeacon:
		b, _ := pkt.Layer(layers.LayerTypeDot11MgmtBeacon).(*layers.Dot11MgmtBeacon)
		if b == nil {
			return
		}
		capFlags = b.Flags
		layerType = layers.LayerTypeDot11MgmtBeacon
	case layers.Dot11TypeMgmtProbeResp:
		p, _ := pkt.Layer(layers.LayerTypeDot11MgmtProbeResp).(*layers.Dot11MgmtProbeResp)
		if p == nil {
			return
		}
		capFlags = p.Flags
		layerType = layers.LayerTypeDot11MgmtProbeResp
	default:
		return
	}

	ieData := elementData(pkt, layerType)
	ssid := ie.ParseSSID(ieData)
	if ch, err := ie.ParseChannel(ieData); err == nil {
		channel = ch
	}

	var security domain.SecurityMask
	var mfp bool
	if rsnData := ie.Find(ieData, ie.TagRSN); rsnData != nil {
		if rsn, err := ie.ParseRSN(rsnData); err == nil {
			security = domain.SecurityFromRSN(rsn)
			mfp = rsn.Capabilities.MFPCapable
		}
	} else if hasWPAVendorIE(ieData) {
		security = domain.SecWPA | domain.SecTKIP
	} else if capFlags&capPrivacy != 0 {
		security = domain.SecWEP
	}

	key := string(dot11.Address3)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scan == nil {
		return
	}
	rec, exists := d.scan.results[key]
	if !exists {
		if len(d.scan.results) >= domain.MaxNetworks {
			return
		}
		rec = &domain.RawScanResult{Channel: channel, RSSI: rssi, Security: security, MFP: mfp}
		copy(rec.BSSID[:], dot11.Address3)
		if !ssid.Hidden {
			rec.SSIDLen = copy(rec.SSID[:domain.MaxSSIDLen], ssid.Value)
		}
		d.scan.results[key] = rec
		return
	}
	if rssi > rec.RSSI {
		rec.RSSI = rssi
	}
	if rec.SSIDLen == 0 && !ssid.Hidden {
		rec.SSIDLen = copy(rec.SSID[:domain.MaxSSIDLen], ssid.Value)
	}
	if rec.Security == 0 && security != 0 {
		rec.Security = security
		rec.MFP = mfp
	}
}

// elementData returns a management frame's information elements. Older
// gopacket decoders leave them in the subtype layer payload; newer ones
// split them into Dot11InformationElement layers.
func elementData(pkt gopacket.Packet, layerType gopacket.LayerType) []byte {
	if l := pkt.Layer(layerType); l != nil && len(l.LayerPayload()) > 0 {
		return l.LayerPayload()
	}
	var out []byte
	for _, layer := range pkt.Layers() {
		if layer.LayerType() == layers.LayerTypeDot11InformationElement {
			out = append(out, layer.LayerContents()...)
		}
	}
	return out
}

func hasWPAVendorIE(ieData []byte) bool {
	found := false
	ie.Iterate(ieData, func(id int, val []byte) {
		if !found && id == ie.TagVendorSpecific && len(val) >= 4 && bytes.Equal(val[:4], wpaOUI) {
			found = true
		}
	})
	return found
}

// Scan sweeps the card's channels for roughly the requested duration,
// dwelling evenly on each, then reports the merged sightings. The
// previously tuned channel is restored afterward.
func (d *Driver) Scan(ctx context.Context, duration time.Duration, collect func(*domain.RawScanResult)) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("radio closed")
	}
	if d.scan != nil {
		d.mu.Unlock()
		return fmt.Errorf("scan already active")
	}
	d.scan = &scanState{results: make(map[string]*domain.RawScanResult)}
	restore := d.channel
	d.mu.Unlock()

	dwell := duration / time.Duration(len(d.sweep))
	if dwell < minDwell {
		dwell = minDwell
	}

	var sweepErr error
	for _, ch := range d.sweep {
		if err := ctx.Err(); err != nil {
			sweepErr = err
			break
		}
		if err := d.SetChannel(ch); err != nil {
			d.logger.Debug("sweep retune failed", slog.Int("channel", ch), slog.Any("error", err))
			continue
		}
		select {
		case <-ctx.Done():
			sweepErr = ctx.Err()
		case <-time.After(dwell):
		}
		if sweepErr != nil {
			break
		}
	}

	if err := d.SetChannel(restore); err != nil {
		d.logger.Debug("channel restore failed", slog.Int("channel", restore), slog.Any("error", err))
	}

	d.mu.Lock()
	results := d.scan.results
	d.scan = nil
	d.mu.Unlock()

	if sweepErr != nil {
		return sweepErr
	}
	for _, rec := range results {
		collect(rec)
	}
	return nil
}

func (d *Driver) SetChannel(ch int) error {
	if err := SetInterfaceChannel(d.iface, ch); err != nil {
		return err
	}
	d.mu.Lock()
	d.channel = ch
	d.mu.Unlock()
	return nil
}

func (d *Driver) Channel() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channel
}

func (d *Driver) StartCapture(sink ports.FrameSink) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("radio closed")
	}
	d.sink = sink
	return nil
}

func (d *Driver) StopCapture() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = nil
	return nil
}

// Transmit wraps the raw 802.11 frame in a minimal radiotap header and
// writes it to the handle. The driver fills in timing and checksum.
func (d *Driver) Transmit(frame []byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("radio closed")
	}
	if d.scan != nil {
		d.mu.Unlock()
		return fmt.Errorf("radio busy scanning")
	}
	d.mu.Unlock()

	rt := &layers.RadioTap{
		Present: layers.RadioTapPresentRate | layers.RadioTapPresentFlags,
		Rate:    5,
		Flags:   0x0008,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, rt, gopacket.Payload(frame)); err != nil {
		return fmt.Errorf("radiotap wrap failed: %w", err)
	}
	return d.handle.WritePacketData(buf.Bytes())
}

func (d *Driver) StartAP(ports.APConfig) error {
	return fmt.Errorf("soft AP: %w", ErrNotSupported)
}

func (d *Driver) StopAP() error { return nil }

func (d *Driver) ScanBLE(context.Context, time.Duration, func(domain.BLEDevice)) error {
	return fmt.Errorf("BLE scan: %w", ErrNotSupported)
}

func (d *Driver) StartBLESpam(domain.BLESpamKind) error {
	return fmt.Errorf("BLE spam: %w", ErrNotSupported)
}

func (d *Driver) StopBLE() error { return nil }

func (d *Driver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.sink = nil
	d.mu.Unlock()

	d.stopOnce.Do(func() { close(d.stopChan) })
	if d.handle != nil {
		d.handle.Close()
	}
	if d.restore {
		DisableMonitorMode(d.iface)
	}
	return nil
}
