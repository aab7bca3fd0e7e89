// Package ble tracks Bluetooth scan results and advertising spam. All
// radio work happens driver-side; the engine owns mode state, bounds
// the device list and reports completion to the controller.
package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
)

// DefaultScanDuration bounds a scan when the controller gives none.
const DefaultScanDuration = 5 * time.Second

// Engine coordinates the radio's BLE surface.
type Engine struct {
	logger *slog.Logger
	radio  ports.Radio
	notify ports.Notifier

	mu         sync.Mutex
	scanning   bool
	cancelScan context.CancelFunc
	spamming   bool
	spamKind   domain.BLESpamKind
	devices    []domain.BLEDevice
}

// New creates an idle BLE engine.
func New(logger *slog.Logger, radio ports.Radio, notify ports.Notifier) *Engine {
	return &Engine{
		logger: logger.With(slog.String("component", "ble")),
		radio:  radio,
		notify: notify,
	}
}

// Scan launches an asynchronous device scan. The previous result list
// is replaced when the scan finishes. A BLEScanDone push reports the
// count unless the scan was cancelled.
func (e *Engine) Scan(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		duration = DefaultScanDuration
	}

	e.mu.Lock()
	if e.scanning || e.spamming {
		e.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	scanCtx, cancel := context.WithCancel(ctx)
	e.scanning = true
	e.cancelScan = cancel
	e.mu.Unlock()

	go e.runScan(scanCtx, duration)
	return nil
}

func (e *Engine) runScan(ctx context.Context, duration time.Duration) {
	devices := make([]domain.BLEDevice, 0, domain.MaxBLEDevices)
	err := e.radio.ScanBLE(ctx, duration, func(d domain.BLEDevice) {
		if len(devices) < domain.MaxBLEDevices {
			devices = append(devices, d)
		}
	})

	e.mu.Lock()
	e.scanning = false
	e.cancelScan = nil
	e.devices = devices
	e.mu.Unlock()

	if errors.Is(err, context.Canceled) {
		return
	}
	if err != nil {
		e.logger.Warn("BLE scan ended early", slog.String("error", err.Error()))
	}

	e.logger.Info("BLE scan done", slog.Int("devices", len(devices)))
	if e.notify != nil {
		e.notify.BLEScanDone(len(devices))
	}
}

// Devices returns the last completed scan's results.
func (e *Engine) Devices() []domain.BLEDevice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.BLEDevice(nil), e.devices...)
}

// DeviceCount reports the stored device total for the info report.
func (e *Engine) DeviceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.devices)
}

// Scanning reports whether a scan is in flight.
func (e *Engine) Scanning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scanning
}

// StartSpam begins advertising spam of the given kind, switching kinds
// live when spam already runs.
func (e *Engine) StartSpam(kind domain.BLESpamKind) error {
	if kind > domain.BLESpamAll {
		return domain.ErrInvalidArgs
	}

	e.mu.Lock()
	if e.scanning {
		e.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	e.mu.Unlock()

	if err := e.radio.StartBLESpam(kind); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrBLEFailed, err)
	}

	e.mu.Lock()
	e.spamming = true
	e.spamKind = kind
	e.mu.Unlock()

	e.logger.Info("BLE spam started", slog.String("kind", kind.String()))
	return nil
}

// SpamActive reports the spam switch and its kind.
func (e *Engine) SpamActive() (bool, domain.BLESpamKind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spamming, e.spamKind
}

// Stop cancels an in-flight scan and stops advertising spam. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancelScan
	wasOn := e.scanning || e.spamming
	e.spamming = false
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := e.radio.StopBLE(); err != nil {
		e.logger.Warn("BLE stop", slog.String("error", err.Error()))
	}
	if wasOn {
		e.logger.Info("BLE stopped")
	}
}
