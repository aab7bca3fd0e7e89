package ports

import (
	"context"
	"time"

	"github.com/gattrose/gattrose-ng/internal/core/domain"
)

// Frame is one promiscuously captured 802.11 frame with the metadata the
// driver attaches to it.
type Frame struct {
	// Data is the raw frame, starting at the 802.11 header (radiotap
	// already stripped by the driver when present).
	Data []byte

	RSSI    int
	Channel int
}

// FrameSink receives captured frames. Implementations run in the
// driver's capture context and must only do bounded work per frame.
type FrameSink interface {
	HandleFrame(f Frame)
}

// APConfig are the soft-AP parameters for evil-twin operation.
// An empty password starts an open network.
type APConfig struct {
	SSID     string
	Password string
	Channel  int
}

// Radio is the driver boundary to the transceiver hardware. The radio is
// a single exclusive resource: scan, promiscuous capture, transmission,
// soft-AP and BLE modes are mutually exclusive, and callers are expected
// to stop the prior mode before starting the next. Only the radio
// actuator may call Transmit.
type Radio interface {
	// Scan performs a network scan for roughly the given duration,
	// invoking collect once per discovered network. The callback runs in
	// the driver's scan context and must not allocate; it fills bounded
	// storage owned by the caller. An active promiscuous capture is
	// suspended for the scan and resumes automatically afterward.
	Scan(ctx context.Context, duration time.Duration, collect func(*domain.RawScanResult)) error

	// SetChannel tunes the radio. Valid while capturing or transmitting.
	SetChannel(ch int) error

	// Channel returns the currently tuned channel.
	Channel() int

	// StartCapture enables promiscuous capture, delivering every frame
	// to sink until StopCapture.
	StartCapture(sink FrameSink) error

	// StopCapture disables promiscuous capture. Idempotent.
	StopCapture() error

	// Transmit injects one raw 802.11 frame on the current channel.
	Transmit(frame []byte) error

	// StartAP brings up the soft AP used by the evil twin.
	StartAP(cfg APConfig) error

	// StopAP tears the soft AP down. Idempotent.
	StopAP() error

	// ScanBLE scans for BLE advertisements, invoking collect per device.
	ScanBLE(ctx context.Context, duration time.Duration, collect func(domain.BLEDevice)) error

	// StartBLESpam begins advertising the selected spam payloads.
	StartBLESpam(kind domain.BLESpamKind) error

	// StopBLE stops any BLE scan or spam. Idempotent.
	StopBLE() error

	// Close releases the hardware handle.
	Close() error
}

// StatusLED drives the module's RGB status LED.
type StatusLED interface {
	Off() error
	// Effect selects a built-in animation (1 wifi-scan, 2 ble, 3 attack).
	Effect(n int) error
	Color(r, g, b uint8) error
}
