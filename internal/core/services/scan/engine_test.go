package scan

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
	"github.com/gattrose/gattrose-ng/internal/core/services/registry"
)

type stubRadio struct {
	mu           sync.Mutex
	scanFn       func(ctx context.Context, duration time.Duration, collect func(*domain.RawScanResult)) error
	lastDuration time.Duration
}

func (s *stubRadio) Scan(ctx context.Context, duration time.Duration, collect func(*domain.RawScanResult)) error {
	s.mu.Lock()
	s.lastDuration = duration
	fn := s.scanFn
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, duration, collect)
	}
	return nil
}

func (s *stubRadio) scannedDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDuration
}

func (s *stubRadio) SetChannel(ch int) error                   { return nil }
func (s *stubRadio) Channel() int                              { return 1 }
func (s *stubRadio) StartCapture(sink ports.FrameSink) error   { return nil }
func (s *stubRadio) StopCapture() error                        { return nil }
func (s *stubRadio) Transmit(frame []byte) error               { return nil }
func (s *stubRadio) StartAP(cfg ports.APConfig) error          { return nil }
func (s *stubRadio) StopAP() error                             { return nil }
func (s *stubRadio) ScanBLE(ctx context.Context, duration time.Duration, collect func(domain.BLEDevice)) error {
	return nil
}
func (s *stubRadio) StartBLESpam(kind domain.BLESpamKind) error { return nil }
func (s *stubRadio) StopBLE() error                             { return nil }
func (s *stubRadio) Close() error                               { return nil }

type scanRecorder struct {
	mu   sync.Mutex
	done []int
}

func (r *scanRecorder) Ready(version string)                   {}
func (r *scanRecorder) NewClient(apIndex int, c domain.Client) {}
func (r *scanRecorder) Alert(a domain.Alert)                   {}
func (r *scanRecorder) Credential(c domain.Credential)         {}
func (r *scanRecorder) PMKIDCaptured(apMAC string)             {}
func (r *scanRecorder) HandshakeCaptured(apMAC string)         {}
func (r *scanRecorder) BLEScanDone(count int)                  {}

func (r *scanRecorder) ScanDone(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = append(r.done, count)
}

func (r *scanRecorder) doneCounts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.done...)
}

func rawNet(ssid string, last byte, ch, rssi int, sec domain.SecurityMask, mfp bool) domain.RawScanResult {
	var r domain.RawScanResult
	copy(r.SSID[:], ssid)
	r.SSIDLen = len(ssid)
	r.BSSID = [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, last}
	r.Channel = ch
	r.RSSI = rssi
	r.Security = sec
	r.MFP = mfp
	return r
}

func newTestEngine(radio *stubRadio) (*Engine, *registry.Registry, *scanRecorder) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(logger)
	rec := &scanRecorder{}
	return New(logger, radio, reg, rec), reg, rec
}

func TestEngine_ScanCollectsAndOrders(t *testing.T) {
	radio := &stubRadio{}
	radio.scanFn = func(ctx context.Context, d time.Duration, collect func(*domain.RawScanResult)) error {
		weak := rawNet("HomeNet", 0x01, 6, -70, domain.SecWPA2|domain.SecAES, false)
		strong := rawNet("HomeNet", 0x01, 6, -40, domain.SecWPA2|domain.SecAES, false)
		hidden := rawNet("", 0x02, 11, -30, domain.SecWPA2|domain.SecAES, false)
		open := rawNet("CafeWifi", 0x03, 1, -55, 0, false)
		collect(&weak)
		collect(&strong)
		collect(&hidden)
		collect(&open)
		return nil
	}
	engine, reg, rec := newTestEngine(radio)

	require.NoError(t, engine.Start(context.Background(), 2000))

	assert.Eventually(t, func() bool { return len(rec.doneCounts()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{3}, rec.doneCounts())

	nets := reg.Networks()
	require.Len(t, nets, 3)
	// Duplicate BSSID kept the strongest sighting.
	assert.Equal(t, "HomeNet", nets[0].SSID)
	assert.Equal(t, -40, nets[0].RSSI)
	assert.Equal(t, "CafeWifi", nets[1].SSID)
	// Hidden sorts last despite the best RSSI.
	assert.True(t, nets[2].Hidden)
	for i, n := range nets {
		assert.Equal(t, i, n.Index)
	}
	assert.Equal(t, 2*time.Second, radio.scannedDuration())
}

func TestEngine_DurationClamping(t *testing.T) {
	radio := &stubRadio{}
	engine, _, rec := newTestEngine(radio)

	require.NoError(t, engine.Start(context.Background(), 50))
	assert.Eventually(t, func() bool { return len(rec.doneCounts()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, time.Duration(MinDurationMs)*time.Millisecond, radio.scannedDuration())

	require.NoError(t, engine.Start(context.Background(), 90000))
	assert.Eventually(t, func() bool { return len(rec.doneCounts()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, time.Duration(MaxDurationMs)*time.Millisecond, radio.scannedDuration())

	require.NoError(t, engine.Start(context.Background(), 0))
	assert.Eventually(t, func() bool { return len(rec.doneCounts()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, time.Duration(DefaultDurationMs)*time.Millisecond, radio.scannedDuration())
}

func TestEngine_ConcurrentScanRejected(t *testing.T) {
	release := make(chan struct{})
	radio := &stubRadio{}
	radio.scanFn = func(ctx context.Context, d time.Duration, collect func(*domain.RawScanResult)) error {
		<-release
		return nil
	}
	engine, _, rec := newTestEngine(radio)

	require.NoError(t, engine.Start(context.Background(), 2000))
	assert.True(t, engine.Scanning())

	err := engine.Start(context.Background(), 2000)
	assert.ErrorIs(t, err, domain.ErrScanInProgress)

	close(release)
	assert.Eventually(t, func() bool { return !engine.Scanning() }, time.Second, 5*time.Millisecond)
	assert.Len(t, rec.doneCounts(), 1)

	// Idle again: a new cycle is accepted.
	require.NoError(t, engine.Start(context.Background(), 2000))
}

func TestEngine_StartClearsPreviousGeneration(t *testing.T) {
	release := make(chan struct{})
	radio := &stubRadio{}
	radio.scanFn = func(ctx context.Context, d time.Duration, collect func(*domain.RawScanResult)) error {
		r := rawNet("HomeNet", 0x01, 6, -40, domain.SecWPA2|domain.SecAES, false)
		collect(&r)
		<-release
		return nil
	}
	engine, reg, rec := newTestEngine(radio)

	require.NoError(t, engine.Start(context.Background(), 2000))
	close(release)
	assert.Eventually(t, func() bool { return len(rec.doneCounts()) == 1 }, time.Second, 5*time.Millisecond)
	networks, _ := reg.Counts()
	require.Equal(t, 1, networks)

	// Second cycle: old generation gone the moment the scan starts.
	hold := make(chan struct{})
	radio.mu.Lock()
	radio.scanFn = func(ctx context.Context, d time.Duration, collect func(*domain.RawScanResult)) error {
		<-hold
		return nil
	}
	radio.mu.Unlock()

	require.NoError(t, engine.Start(context.Background(), 2000))
	networks, _ = reg.Counts()
	assert.Equal(t, 0, networks)
	close(hold)
	assert.Eventually(t, func() bool { return !engine.Scanning() }, time.Second, 5*time.Millisecond)
}

func TestEngine_CollectionBound(t *testing.T) {
	radio := &stubRadio{}
	radio.scanFn = func(ctx context.Context, d time.Duration, collect func(*domain.RawScanResult)) error {
		for i := 0; i < domain.MaxNetworks+40; i++ {
			r := rawNet("net", byte(i), 1+(i%11), -50, domain.SecWPA2|domain.SecAES, false)
			r.BSSID[4] = byte(i / 256)
			collect(&r)
		}
		return nil
	}
	engine, reg, rec := newTestEngine(radio)

	require.NoError(t, engine.Start(context.Background(), 2000))
	assert.Eventually(t, func() bool { return len(rec.doneCounts()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{domain.MaxNetworks}, rec.doneCounts())
	networks, _ := reg.Counts()
	assert.Equal(t, domain.MaxNetworks, networks)
}

func TestEngine_CancelAbortsScan(t *testing.T) {
	radio := &stubRadio{}
	radio.scanFn = func(ctx context.Context, d time.Duration, collect func(*domain.RawScanResult)) error {
		<-ctx.Done()
		return ctx.Err()
	}
	engine, _, rec := newTestEngine(radio)

	require.NoError(t, engine.Start(context.Background(), 30000))
	engine.Cancel()

	assert.Eventually(t, func() bool { return !engine.Scanning() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{0}, rec.doneCounts())

	// Idempotent when idle.
	engine.Cancel()
}

func TestOrder_Priority(t *testing.T) {
	withClients := func(n domain.Network, count int) domain.Network {
		for i := 0; i < count; i++ {
			n.AddClient(domain.FormatMAC([]byte{0xAA, 0, 0, 0, 0, byte(i)}), -50)
		}
		return n
	}

	nets := []domain.Network{
		{SSID: "", Hidden: true, RSSI: -20},
		{SSID: "pmf", PMF: true, RSSI: -40},
		{SSID: "quiet", RSSI: -70},
		withClients(domain.Network{SSID: "busy-far", RSSI: -80}, 2),
		{SSID: "loud", RSSI: -30},
		withClients(domain.Network{SSID: "busy-near", RSSI: -45}, 2),
		withClients(domain.Network{SSID: "one-client", RSSI: -50}, 1),
	}
	Order(nets)

	order := make([]string, len(nets))
	for i, n := range nets {
		order[i] = n.SSID
	}
	assert.Equal(t, []string{"busy-near", "busy-far", "one-client", "loud", "quiet", "pmf", ""}, order)
}

func TestOrder_Stable(t *testing.T) {
	nets := []domain.Network{
		{SSID: "first", BSSID: "00:00:00:00:00:01", RSSI: -50},
		{SSID: "second", BSSID: "00:00:00:00:00:02", RSSI: -50},
		{SSID: "third", BSSID: "00:00:00:00:00:03", RSSI: -50},
	}
	Order(nets)

	assert.Equal(t, "first", nets[0].SSID)
	assert.Equal(t, "second", nets[1].SSID)
	assert.Equal(t, "third", nets[2].SSID)
}
