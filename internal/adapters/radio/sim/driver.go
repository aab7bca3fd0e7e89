// Package sim is a simulated transceiver for bench use and tests. It
// fabricates a small radio neighborhood (APs, stations, their traffic)
// and implements the full driver surface against it, including reacting
// to transmitted deauth frames with fresh handshake exchanges.
package sim

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/gattrose/gattrose-ng/internal/adapters/radio/inject"
	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
)

var commonSSIDs = []string{
	"HomeNetwork", "NETGEAR-5G", "Starbucks WiFi", "TP-Link_2.4GHz",
	"Linksys", "ATT-WiFi", "Xfinity", "Google Fiber",
	"Office-Network", "Guest-WiFi", "MyWiFi", "Home-2.4G",
	"CoffeeShop_Free", "Airport_WiFi", "Hotel-Guest", "Apartment_5G",
}

var vendorPrefixes = [][3]byte{
	{0x00, 0x17, 0xF2}, // Apple
	{0x00, 0x12, 0xFB}, // Samsung
	{0x50, 0xC7, 0xBF}, // TP-Link
	{0xA0, 0x63, 0x91}, // Netgear
	{0x00, 0x14, 0xBF}, // Linksys
	{0xF4, 0xF5, 0xD8}, // Google
	{0xFC, 0xA6, 0x67}, // Amazon
	{0x00, 0x13, 0x02}, // Intel
}

var bleNames = []string{
	"AirPods Pro", "Galaxy Buds2", "Tile Tracker", "JBL Flip 5",
	"MX Master 3", "Flipper Zero", "Mi Band 7", "Pixel Buds",
}

var channels24 = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
var channels5 = []int{36, 40, 44, 48, 149, 153, 157, 161}

// llcSNAP prefixes EAPOL payloads inside data frames.
var llcSNAP = []byte{0xAA, 0xAA, 0x03, 0x00, 0x00, 0x00, 0x88, 0x8E}

// Config shapes the simulated neighborhood. Zero values pick defaults.
type Config struct {
	// Seed fixes the world for reproducible tests; 0 seeds from the clock.
	Seed int64

	APCount      int
	StationCount int

	// FrameInterval is the capture emission cadence.
	FrameInterval time.Duration

	// ScanDelayCap shortens scans for tests; 0 honors the requested
	// duration.
	ScanDelayCap time.Duration

	BLECount int

	// APStartFails makes StartAP return an error.
	APStartFails bool
}

type simAP struct {
	ssid     string
	bssid    net.HardwareAddr
	channel  int
	rssi     int
	security domain.SecurityMask
	mfp      bool
	hidden   bool
}

type simStation struct {
	mac  net.HardwareAddr
	rssi int
	// ap indexes Driver.aps; -1 is a roaming station that only probes.
	ap int
}

var _ ports.Radio = (*Driver)(nil)

// Driver is the simulated ports.Radio.
type Driver struct {
	logger *slog.Logger
	cfg    Config

	mu       sync.Mutex
	rnd      *rand.Rand
	aps      []simAP
	stations []simStation
	channel  int
	seq      uint16
	sink     ports.FrameSink
	scanning bool
	apOn     bool
	apCfg    ports.APConfig
	bleSpam  bool
	spamKind domain.BLESpamKind
	txCount  int
	genStop  chan struct{}
	closed   bool
}

// New builds the driver and generates its radio neighborhood.
func New(logger *slog.Logger, cfg Config) *Driver {
	if cfg.APCount <= 0 {
		cfg.APCount = 12
	}
	if cfg.StationCount <= 0 {
		cfg.StationCount = 24
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 25 * time.Millisecond
	}
	if cfg.BLECount <= 0 {
		cfg.BLECount = 6
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	d := &Driver{
		logger:  logger.With(slog.String("component", "radio"), slog.String("driver", "sim")),
		cfg:     cfg,
		rnd:     rand.New(rand.NewSource(seed)),
		channel: 1,
	}
	d.populate()
	return d
}

func (d *Driver) populate() {
	seen := map[string]bool{}
	for i := 0; i < d.cfg.APCount; i++ {
		mac := d.randomMAC()
		for seen[mac.String()] {
			mac = d.randomMAC()
		}
		seen[mac.String()] = true

		ap := simAP{
			ssid:  commonSSIDs[d.rnd.Intn(len(commonSSIDs))],
			bssid: mac,
			rssi:  -30 - d.rnd.Intn(40),
		}
		if d.rnd.Float32() < 0.4 {
			ap.channel = channels5[d.rnd.Intn(len(channels5))]
		} else {
			ap.channel = channels24[d.rnd.Intn(len(channels24))]
		}
		switch r := d.rnd.Float32(); {
		case r < 0.60:
			ap.security = domain.SecWPA2 | domain.SecAES
		case r < 0.80:
			ap.security = domain.SecWPA3 | domain.SecAES
			ap.mfp = true
		case r < 0.85:
			ap.security = domain.SecWEP
		default:
			ap.security = 0
		}
		ap.hidden = d.rnd.Float32() < 0.1
		d.aps = append(d.aps, ap)
	}

	for i := 0; i < d.cfg.StationCount; i++ {
		st := simStation{
			mac:  d.randomMAC(),
			rssi: -40 - d.rnd.Intn(50),
			ap:   -1,
		}
		if d.rnd.Float32() < 0.8 {
			st.ap = d.rnd.Intn(len(d.aps))
		}
		d.stations = append(d.stations, st)
	}
}

func (d *Driver) randomMAC() net.HardwareAddr {
	p := vendorPrefixes[d.rnd.Intn(len(vendorPrefixes))]
	return net.HardwareAddr{p[0], p[1], p[2],
		byte(d.rnd.Intn(256)), byte(d.rnd.Intn(256)), byte(d.rnd.Intn(256))}
}

// Scan emits one RawScanResult per simulated AP after roughly the
// requested duration. An active capture keeps its sink but stays silent
// until the scan finishes.
func (d *Driver) Scan(ctx context.Context, duration time.Duration, collect func(*domain.RawScanResult)) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("radio closed")
	}
	if d.scanning {
		d.mu.Unlock()
		return fmt.Errorf("scan already active")
	}
	d.scanning = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.scanning = false
		d.mu.Unlock()
	}()

	delay := duration
	if d.cfg.ScanDelayCap > 0 && delay > d.cfg.ScanDelayCap {
		delay = d.cfg.ScanDelayCap
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}

	d.mu.Lock()
	results := make([]domain.RawScanResult, 0, len(d.aps))
	for _, ap := range d.aps {
		var raw domain.RawScanResult
		if !ap.hidden {
			raw.SSIDLen = copy(raw.SSID[:domain.MaxSSIDLen], ap.ssid)
		}
		copy(raw.BSSID[:], ap.bssid)
		raw.Channel = ap.channel
		raw.RSSI = d.jitter(ap.rssi)
		raw.Security = ap.security
		raw.MFP = ap.mfp
		results = append(results, raw)
	}
	d.mu.Unlock()

	for i := range results {
		collect(&results[i])
	}
	return nil
}

func (d *Driver) SetChannel(ch int) error {
	if ch <= 0 {
		return fmt.Errorf("invalid channel %d", ch)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channel = ch
	return nil
}

func (d *Driver) Channel() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channel
}

// StartCapture begins emitting simulated traffic to sink. A second call
// replaces the sink.
func (d *Driver) StartCapture(sink ports.FrameSink) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("radio closed")
	}
	if d.genStop != nil {
		close(d.genStop)
	}
	d.sink = sink
	d.genStop = make(chan struct{})
	go d.generate(d.genStop)
	d.logger.Debug("capture started",
		slog.Int("aps", len(d.aps)), slog.Int("stations", len(d.stations)))
	return nil
}

func (d *Driver) StopCapture() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.genStop != nil {
		close(d.genStop)
		d.genStop = nil
	}
	d.sink = nil
	return nil
}

func (d *Driver) generate(stop chan struct{}) {
	ticker := time.NewTicker(d.cfg.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.emitOne()
		}
	}
}

func (d *Driver) emitOne() {
	d.mu.Lock()
	if d.sink == nil || d.scanning || len(d.aps) == 0 {
		d.mu.Unlock()
		return
	}

	var frame []byte
	var rssi, channel int

	switch r := d.rnd.Float32(); {
	case r < 0.50:
		ap := d.aps[d.rnd.Intn(len(d.aps))]
		frame = d.beaconFrame(ap)
		rssi, channel = d.jitter(ap.rssi), ap.channel
	case r < 0.75:
		st, ok := d.pickAttached()
		if !ok {
			d.mu.Unlock()
			return
		}
		ap := d.aps[st.ap]
		frame = d.dataFrame(ap, st, d.rnd.Intn(2) == 0, []byte{0xDE, 0xCA, 0xFB, 0xAD})
		rssi, channel = d.jitter(st.rssi), ap.channel
	case r < 0.90:
		st := d.stations[d.rnd.Intn(len(d.stations))]
		target := d.aps[d.rnd.Intn(len(d.aps))]
		if target.hidden {
			d.mu.Unlock()
			return
		}
		frame = d.probeFrame(target.ssid, st.mac)
		rssi, channel = d.jitter(st.rssi), d.channel
	default:
		st, ok := d.pickAttached()
		if !ok {
			d.mu.Unlock()
			return
		}
		frames, r, ch := d.handshakeFrames(st)
		sink := d.sink
		d.mu.Unlock()
		deliver(sink, frames, r, ch)
		return
	}

	sink := d.sink
	d.mu.Unlock()
	if frame != nil && sink != nil {
		sink.HandleFrame(ports.Frame{Data: frame, RSSI: rssi, Channel: channel})
	}
}

func deliver(sink ports.FrameSink, frames [][]byte, rssi, channel int) {
	if sink == nil {
		return
	}
	for _, fr := range frames {
		if fr != nil {
			sink.HandleFrame(ports.Frame{Data: fr, RSSI: rssi, Channel: channel})
		}
	}
}

func (d *Driver) pickAttached() (simStation, bool) {
	for i := 0; i < 8; i++ {
		st := d.stations[d.rnd.Intn(len(d.stations))]
		if st.ap >= 0 {
			return st, true
		}
	}
	return simStation{}, false
}

// handshakeFrames builds an M1/M2 EAPOL exchange for st. Caller holds
// the mutex; delivery is the caller's job, after unlocking.
func (d *Driver) handshakeFrames(st simStation) (frames [][]byte, rssi, channel int) {
	ap := d.aps[st.ap]

	replay := uint64(d.rnd.Intn(1000) + 1)
	withPMKID := d.rnd.Intn(2) == 0

	var m1Data []byte
	if withPMKID {
		m1Data = make([]byte, 22)
		m1Data[0] = 0xDD
		m1Data[1] = 0x14
		copy(m1Data[2:6], []byte{0x00, 0x0F, 0xAC, 0x04})
		d.rnd.Read(m1Data[6:])
	}

	m1 := d.eapolFrame(ap, st, false, keyFrame(0x008A, replay, byte(d.rnd.Intn(255)+1), 0x00, m1Data))
	m2 := d.eapolFrame(ap, st, true, keyFrame(0x010A, replay, byte(d.rnd.Intn(255)+1), 0x22, rsnIE()))

	return [][]byte{m1, m2}, d.jitter(st.rssi), ap.channel
}

// Transmit counts the frame and, when it is a deauthentication against
// a simulated AP, schedules the reconnecting station's fresh handshake.
func (d *Driver) Transmit(frame []byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("radio closed")
	}
	if d.scanning {
		d.mu.Unlock()
		return fmt.Errorf("radio busy scanning")
	}
	d.txCount++
	react := d.sink != nil && len(frame) >= 22 && frame[0] == 0xC0
	var bssid net.HardwareAddr
	if react {
		bssid = net.HardwareAddr(append([]byte(nil), frame[16:22]...))
	}
	d.mu.Unlock()

	if react {
		d.reactToDeauth(bssid)
	}
	return nil
}

func (d *Driver) reactToDeauth(bssid net.HardwareAddr) {
	d.mu.Lock()
	apIdx := -1
	for i, ap := range d.aps {
		if bytes.Equal(ap.bssid, bssid) {
			apIdx = i
			break
		}
	}
	var victim simStation
	found := false
	if apIdx >= 0 {
		for _, st := range d.stations {
			if st.ap == apIdx {
				victim = st
				found = true
				break
			}
		}
	}
	d.mu.Unlock()
	if !found {
		return
	}

	time.AfterFunc(100*time.Millisecond, func() {
		d.mu.Lock()
		if d.sink == nil || d.scanning || d.closed {
			d.mu.Unlock()
			return
		}
		frames, rssi, channel := d.handshakeFrames(victim)
		sink := d.sink
		d.mu.Unlock()
		deliver(sink, frames, rssi, channel)
	})
}

// TransmitCount reports how many frames were injected.
func (d *Driver) TransmitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.txCount
}

func (d *Driver) StartAP(cfg ports.APConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.APStartFails {
		return fmt.Errorf("soft AP start failed")
	}
	d.apOn = true
	d.apCfg = cfg
	d.logger.Info("soft AP up", slog.String("ssid", cfg.SSID), slog.Int("channel", cfg.Channel))
	return nil
}

func (d *Driver) StopAP() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.apOn = false
	return nil
}

// APActive reports the soft-AP state, for tests.
func (d *Driver) APActive() (bool, ports.APConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.apOn, d.apCfg
}

func (d *Driver) ScanBLE(ctx context.Context, duration time.Duration, collect func(domain.BLEDevice)) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("radio closed")
	}
	d.mu.Unlock()

	delay := duration
	if d.cfg.ScanDelayCap > 0 && delay > d.cfg.ScanDelayCap {
		delay = d.cfg.ScanDelayCap
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}

	d.mu.Lock()
	devices := make([]domain.BLEDevice, 0, d.cfg.BLECount)
	for i := 0; i < d.cfg.BLECount; i++ {
		devices = append(devices, domain.BLEDevice{
			Address:  domain.FormatMAC(d.randomMAC()),
			Name:     bleNames[d.rnd.Intn(len(bleNames))],
			RSSI:     -40 - d.rnd.Intn(50),
			LastSeen: time.Now(),
		})
	}
	d.mu.Unlock()

	for _, dev := range devices {
		collect(dev)
	}
	return nil
}

func (d *Driver) StartBLESpam(kind domain.BLESpamKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("radio closed")
	}
	d.bleSpam = true
	d.spamKind = kind
	return nil
}

func (d *Driver) StopBLE() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bleSpam = false
	return nil
}

// BLESpamActive reports the advertising state, for tests.
func (d *Driver) BLESpamActive() (bool, domain.BLESpamKind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bleSpam, d.spamKind
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.genStop != nil {
		close(d.genStop)
		d.genStop = nil
	}
	d.sink = nil
	d.closed = true
	return nil
}

func (d *Driver) jitter(rssi int) int {
	v := rssi + d.rnd.Intn(9) - 4
	if v > -20 {
		v = -20
	}
	if v < -95 {
		v = -95
	}
	return v
}

func (d *Driver) nextSeq() uint16 {
	d.seq = (d.seq + 1) & 0x0FFF
	return d.seq
}

func (d *Driver) beaconFrame(ap simAP) []byte {
	ssid := ap.ssid
	if ap.hidden {
		ssid = ""
	}
	frame, err := inject.Beacon(ssid, ap.bssid, ap.channel, ap.security != 0, d.nextSeq())
	if err != nil {
		return nil
	}
	return withFCS(frame)
}

func (d *Driver) probeFrame(ssid string, src net.HardwareAddr) []byte {
	frame, err := inject.ProbeRequest(ssid, src, d.nextSeq())
	if err != nil {
		return nil
	}
	return withFCS(frame)
}

func (d *Driver) dataFrame(ap simAP, st simStation, toDS bool, payload []byte) []byte {
	dot11 := &layers.Dot11{
		Type:           layers.Dot11TypeData,
		Address3:       ap.bssid,
		SequenceNumber: d.nextSeq(),
	}
	if toDS {
		dot11.Flags = layers.Dot11Flags(0x01)
		dot11.Address1 = ap.bssid
		dot11.Address2 = st.mac
	} else {
		dot11.Flags = layers.Dot11Flags(0x02)
		dot11.Address1 = st.mac
		dot11.Address2 = ap.bssid
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, dot11, gopacket.Payload(payload)); err != nil {
		return nil
	}
	return withFCS(buf.Bytes())
}

func (d *Driver) eapolFrame(ap simAP, st simStation, toDS bool, eapol []byte) []byte {
	payload := append(append([]byte(nil), llcSNAP...), eapol...)
	return d.dataFrame(ap, st, toDS, payload)
}

// keyFrame builds an EAPOL-Key frame: 4-byte EAPOL header plus the
// 95-byte key descriptor. nonce and mic fill their whole fields.
func keyFrame(keyInfo uint16, replay uint64, nonce, mic byte, keyData []byte) []byte {
	body := make([]byte, 95+len(keyData))
	body[0] = 2
	binary.BigEndian.PutUint16(body[1:3], keyInfo)
	binary.BigEndian.PutUint16(body[3:5], 16)
	binary.BigEndian.PutUint64(body[5:13], replay)
	for i := 13; i < 45; i++ {
		body[i] = nonce
	}
	for i := 77; i < 93; i++ {
		body[i] = mic
	}
	binary.BigEndian.PutUint16(body[93:95], uint16(len(keyData)))
	copy(body[95:], keyData)

	frame := make([]byte, 0, 4+len(body))
	frame = append(frame, 0x01, 0x03, byte(len(body)>>8), byte(len(body)))
	return append(frame, body...)
}

func rsnIE() []byte {
	return []byte{0x30, 0x14, 0x01, 0x00, 0x00, 0x0F, 0xAC, 0x04,
		0x01, 0x00, 0x00, 0x0F, 0xAC, 0x04, 0x01, 0x00, 0x00, 0x0F, 0xAC, 0x02, 0x00, 0x00}
}

// withFCS appends the dummy frame checksum every captured frame carries.
func withFCS(frame []byte) []byte {
	return append(frame, 0xDE, 0xAD, 0xBE, 0xEF)
}
