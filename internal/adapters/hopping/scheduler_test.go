package hopping

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
)

type fakeRadio struct {
	mu      sync.Mutex
	calls   []int
	fail    bool
	channel int
}

func (r *fakeRadio) SetChannel(ch int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ch)
	if r.fail {
		return fmt.Errorf("retune failure")
	}
	r.channel = ch
	return nil
}

func (r *fakeRadio) Channel() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channel
}

func (r *fakeRadio) hops() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.calls...)
}

func (r *fakeRadio) setFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

func (r *fakeRadio) Scan(context.Context, time.Duration, func(*domain.RawScanResult)) error {
	return nil
}
func (r *fakeRadio) StartCapture(ports.FrameSink) error { return nil }
func (r *fakeRadio) StopCapture() error                 { return nil }
func (r *fakeRadio) Transmit([]byte) error              { return nil }
func (r *fakeRadio) StartAP(ports.APConfig) error       { return nil }
func (r *fakeRadio) StopAP() error                      { return nil }
func (r *fakeRadio) ScanBLE(context.Context, time.Duration, func(domain.BLEDevice)) error {
	return nil
}
func (r *fakeRadio) StartBLESpam(domain.BLESpamKind) error { return nil }
func (r *fakeRadio) StopBLE() error                        { return nil }
func (r *fakeRadio) Close() error                          { return nil }

func newTestScheduler(t *testing.T, radio *fakeRadio, channels []int, dwell time.Duration) *Scheduler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(logger, radio, channels, dwell)
	t.Cleanup(s.Stop)
	return s
}

func TestScheduler_RoundRobin(t *testing.T) {
	radio := &fakeRadio{}
	s := newTestScheduler(t, radio, []int{1, 6, 11}, 5*time.Millisecond)

	s.Start()
	require.Eventually(t, func() bool { return len(radio.hops()) >= 7 },
		time.Second, 5*time.Millisecond)
	s.Stop()

	want := []int{1, 6, 11}
	for i, ch := range radio.hops() {
		assert.Equal(t, want[i%len(want)], ch, "hop %d", i)
	}
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	radio := &fakeRadio{}
	s := newTestScheduler(t, radio, nil, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())

	s.Start()
	s.Start()
	assert.True(t, s.Running())

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
}

func TestScheduler_DefaultsWhenUnconfigured(t *testing.T) {
	radio := &fakeRadio{}
	s := newTestScheduler(t, radio, nil, 0)

	assert.Equal(t, DefaultRotation, s.Channels())
	assert.Equal(t, DefaultDwell, s.dwell)
}

func TestScheduler_PauseSuspendsHopping(t *testing.T) {
	radio := &fakeRadio{}
	s := newTestScheduler(t, radio, []int{1, 6}, 5*time.Millisecond)

	s.Start()
	require.Eventually(t, func() bool { return len(radio.hops()) >= 2 },
		time.Second, 5*time.Millisecond)

	s.Pause(80 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	paused := len(radio.hops())
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, paused, len(radio.hops()), "no hops while paused")

	require.Eventually(t, func() bool { return len(radio.hops()) > paused },
		time.Second, 5*time.Millisecond)
}

func TestScheduler_GenerationNarrowsRotation(t *testing.T) {
	radio := &fakeRadio{}
	s := newTestScheduler(t, radio, nil, time.Hour)

	s.OnGenerationReplaced([]domain.Network{
		{BSSID: "00:11:22:33:44:01", Channel: 11},
		{BSSID: "00:11:22:33:44:02", Channel: 1},
		{BSSID: "00:11:22:33:44:03", Channel: 11},
		{BSSID: "00:11:22:33:44:04", Channel: 6},
	})
	assert.Equal(t, []int{1, 6, 11}, s.Channels())

	// An empty generation keeps the radio moving on the defaults.
	s.OnGenerationReplaced(nil)
	assert.Equal(t, DefaultRotation, s.Channels())
}

func TestScheduler_RetuneErrorsDoNotStop(t *testing.T) {
	radio := &fakeRadio{fail: true}
	s := newTestScheduler(t, radio, []int{1}, 5*time.Millisecond)

	s.Start()
	require.Eventually(t, func() bool { return len(radio.hops()) >= 5 },
		time.Second, 5*time.Millisecond)

	radio.setFail(false)
	before := len(radio.hops())
	require.Eventually(t, func() bool { return len(radio.hops()) > before },
		time.Second, 5*time.Millisecond)
	assert.True(t, s.Running())
}
