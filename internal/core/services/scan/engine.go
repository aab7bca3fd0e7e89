package scan

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
)

// Scan duration bounds in milliseconds, clamped on every request.
const (
	DefaultDurationMs = 5000
	MinDurationMs     = 1000
	MaxDurationMs     = 30000
)

// Engine drives one scan cycle at a time. The radio suspends frame
// delivery for the scan's duration, so the engine only coordinates
// collection, materialization and ordering.
type Engine struct {
	logger   *slog.Logger
	radio    ports.Radio
	registry ports.NetworkRegistry
	notifier ports.Notifier

	pauseHopper func(time.Duration)

	mu       sync.Mutex
	scanning bool
	cancel   context.CancelFunc
}

// New creates an idle scan engine.
func New(logger *slog.Logger, radio ports.Radio, registry ports.NetworkRegistry, notifier ports.Notifier) *Engine {
	return &Engine{
		logger:   logger,
		radio:    radio,
		registry: registry,
		notifier: notifier,
	}
}

// SetHopperPause installs the channel-scheduler pause hook. The
// scheduler must not retune while the radio is scanning.
func (e *Engine) SetHopperPause(fn func(time.Duration)) {
	e.pauseHopper = fn
}

// Scanning reports whether a cycle is in flight.
func (e *Engine) Scanning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scanning
}

// Start begins an asynchronous scan cycle. durationMs <= 0 selects the
// default; out-of-range values are clamped. A concurrent cycle returns
// domain.ErrScanInProgress. Completion is pushed through the notifier.
func (e *Engine) Start(ctx context.Context, durationMs int) error {
	if durationMs <= 0 {
		durationMs = DefaultDurationMs
	}
	if durationMs < MinDurationMs {
		durationMs = MinDurationMs
	}
	if durationMs > MaxDurationMs {
		durationMs = MaxDurationMs
	}
	duration := time.Duration(durationMs) * time.Millisecond

	e.mu.Lock()
	if e.scanning {
		e.mu.Unlock()
		return domain.ErrScanInProgress
	}
	scanCtx, cancel := context.WithCancel(ctx)
	e.scanning = true
	e.cancel = cancel
	e.mu.Unlock()

	// New cycle: previous generation and its clients are gone now, not
	// when results land.
	e.registry.Clear()

	if e.pauseHopper != nil {
		e.pauseHopper(duration + time.Second)
	}

	go e.run(scanCtx, duration)
	return nil
}

// Cancel aborts an in-flight cycle. Safe to call when idle.
func (e *Engine) Cancel() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Engine) run(ctx context.Context, duration time.Duration) {
	defer func() {
		e.mu.Lock()
		e.scanning = false
		e.cancel = nil
		e.mu.Unlock()
	}()

	// Fixed collection buffer: the driver callback appends only, no
	// allocation on that path.
	var raw [domain.MaxNetworks]domain.RawScanResult
	count := 0
	collect := func(res *domain.RawScanResult) {
		if count >= len(raw) {
			return
		}
		raw[count] = *res
		count++
	}

	start := time.Now()
	if err := e.radio.Scan(ctx, duration, collect); err != nil {
		if ctx.Err() != nil {
			e.logger.Info("scan cancelled", "collected", count)
			e.notifier.ScanDone(0)
			return
		}
		e.logger.Error("scan failed", "error", err, "collected", count)
	}

	nets := materialize(raw[:count])
	Order(nets)
	e.registry.ReplaceNetworks(nets)

	networks, _ := e.registry.Counts()
	e.logger.Info("scan complete",
		"networks", networks, "raw", count, "elapsed", time.Since(start))
	e.notifier.ScanDone(networks)
}

// materialize converts raw results into Network records, keeping the
// strongest sighting per BSSID.
func materialize(raw []domain.RawScanResult) []domain.Network {
	byBSSID := make(map[[6]byte]int, len(raw))
	nets := make([]domain.Network, 0, len(raw))
	for i := range raw {
		key := raw[i].BSSID
		if j, seen := byBSSID[key]; seen {
			if raw[i].RSSI > nets[j].RSSI {
				nets[j] = raw[i].Materialize()
			}
			continue
		}
		byBSSID[key] = len(nets)
		nets = append(nets, raw[i].Materialize())
	}
	return nets
}

// Order applies the attack-priority sort: named before hidden; more
// clients first; non-PMF before PMF; stronger signal first. Stable, so
// scan order breaks remaining ties.
func Order(nets []domain.Network) {
	sort.SliceStable(nets, func(i, j int) bool {
		a, b := &nets[i], &nets[j]
		if a.Hidden != b.Hidden {
			return !a.Hidden
		}
		ac, bc := a.ClientCount(), b.ClientCount()
		if ac != bc {
			return ac > bc
		}
		if a.PMF != b.PMF {
			return !a.PMF
		}
		return a.RSSI > b.RSSI
	})
}
