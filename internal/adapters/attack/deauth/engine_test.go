package deauth

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gattrose/gattrose-ng/internal/adapters/radio/actuator"
	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/services/registry"
)

type fakeTransmitter struct {
	mu      sync.Mutex
	intents map[string]actuator.DeauthIntent
	jamming bool
}

func newFakeTransmitter() *fakeTransmitter {
	return &fakeTransmitter{intents: make(map[string]actuator.DeauthIntent)}
}

func (f *fakeTransmitter) AddDeauth(id string, intent actuator.DeauthIntent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id] = intent
}

func (f *fakeTransmitter) RemoveDeauth(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.intents, id)
}

func (f *fakeTransmitter) SetJammer(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jamming = on
}

func (f *fakeTransmitter) Jamming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jamming
}

func (f *fakeTransmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.intents)
}

func (f *fakeTransmitter) only() actuator.DeauthIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.intents {
		return it
	}
	return actuator.DeauthIntent{}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededRegistry(t *testing.T, count int) *registry.Registry {
	t.Helper()
	reg := registry.New(discardLogger())
	nets := make([]domain.Network, count)
	for i := range nets {
		nets[i] = domain.Network{
			SSID:    "TestNet",
			BSSID:   domain.FormatMAC([]byte{0xAA, 0xBB, 0xCC, 0x00, 0x00, byte(i + 1)}),
			Channel: 1 + i,
			RSSI:    -50,
		}
	}
	reg.ReplaceNetworks(nets)
	return reg
}

func TestStartByIndex(t *testing.T) {
	reg := seededRegistry(t, 2)
	tx := newFakeTransmitter()
	m := New(discardLogger(), reg, tx, 0)

	task, err := m.StartByIndex(0, 0, "")
	require.NoError(t, err)

	assert.Equal(t, domain.AttackRunning, task.Status)
	assert.Equal(t, "AA:BB:CC:00:00:01", task.Config.BSSID)
	assert.Equal(t, domain.DefaultDeauthReason, task.Config.Reason)
	assert.True(t, task.Config.IsBroadcast())
	assert.Equal(t, 1, m.ActiveCount())

	require.Equal(t, 1, tx.count())
	intent := tx.only()
	assert.Equal(t, "AA:BB:CC:00:00:01", intent.BSSID)
	assert.Equal(t, 1, intent.Channel)
	assert.Empty(t, intent.ClientMAC)
	assert.NotNil(t, intent.OnBurst)
}

func TestStartRequiresScan(t *testing.T) {
	reg := registry.New(discardLogger())
	m := New(discardLogger(), reg, newFakeTransmitter(), 0)

	_, err := m.StartByIndex(0, 0, "")
	assert.ErrorIs(t, err, domain.ErrScanFirst)
}

func TestStartInvalidIndex(t *testing.T) {
	reg := seededRegistry(t, 2)
	m := New(discardLogger(), reg, newFakeTransmitter(), 0)

	_, err := m.StartByIndex(9, 0, "")
	assert.ErrorIs(t, err, domain.ErrInvalidIndex)

	_, err = m.StartByIndex(-1, 0, "")
	assert.ErrorIs(t, err, domain.ErrInvalidIndex)
}

func TestRetargetingActiveNetworkRejected(t *testing.T) {
	reg := seededRegistry(t, 1)
	tx := newFakeTransmitter()
	m := New(discardLogger(), reg, tx, 0)

	_, err := m.StartByIndex(0, 0, "")
	require.NoError(t, err)

	// A unicast variant against the same AP is still the same target.
	_, err = m.StartByIndex(0, 7, "DE:AD:BE:EF:00:01")
	assert.ErrorIs(t, err, domain.ErrAlreadyDeauth)
	assert.Equal(t, 1, m.ActiveCount())
	assert.Equal(t, 1, tx.count())
}

func TestConcurrencyCap(t *testing.T) {
	reg := seededRegistry(t, 3)
	tx := newFakeTransmitter()
	m := New(discardLogger(), reg, tx, 2)

	first, err := m.StartByIndex(0, 0, "")
	require.NoError(t, err)
	_, err = m.StartByIndex(1, 0, "")
	require.NoError(t, err)

	_, err = m.StartByIndex(2, 0, "")
	assert.ErrorIs(t, err, domain.ErrMaxDeauths)
	assert.Equal(t, 2, m.ActiveCount())

	// Releasing a slot admits the waiting target.
	m.Stop(first.ID)
	_, err = m.StartByIndex(2, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 2, m.ActiveCount())
}

func TestStartByClient(t *testing.T) {
	reg := seededRegistry(t, 2)
	_, _, err := reg.ObserveClient("DE:AD:BE:EF:00:01", "AA:BB:CC:00:00:02", -60, time.Now())
	require.NoError(t, err)

	tx := newFakeTransmitter()
	m := New(discardLogger(), reg, tx, 0)

	// Lower-case input resolves through normalization.
	task, err := m.StartByClient("de:ad:be:ef:00:01", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, task.Config.NetworkIndex)
	assert.Equal(t, "AA:BB:CC:00:00:02", task.Config.BSSID)
	assert.Equal(t, "DE:AD:BE:EF:00:01", task.Config.ClientMAC)
	assert.False(t, task.Config.IsBroadcast())

	intent := tx.only()
	assert.Equal(t, "DE:AD:BE:EF:00:01", intent.ClientMAC)
}

func TestStartByClientUnknown(t *testing.T) {
	reg := seededRegistry(t, 1)
	m := New(discardLogger(), reg, newFakeTransmitter(), 0)

	_, err := m.StartByClient("DE:AD:BE:EF:99:99", 0)
	assert.ErrorIs(t, err, domain.ErrClientNotFound)

	_, err = m.StartByClient("not-a-mac", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidMAC)
}

func TestBurstCounting(t *testing.T) {
	reg := seededRegistry(t, 1)
	tx := newFakeTransmitter()
	m := New(discardLogger(), reg, tx, 0)

	task, err := m.StartByIndex(0, 0, "")
	require.NoError(t, err)

	intent := tx.only()
	for i := 0; i < 3; i++ {
		intent.OnBurst()
	}

	got, ok := m.TaskByID(task.ID)
	require.True(t, ok)
	assert.Equal(t, 3, got.BurstsSent)
}

func TestStopReleasesIntent(t *testing.T) {
	reg := seededRegistry(t, 1)
	tx := newFakeTransmitter()
	m := New(discardLogger(), reg, tx, 0)

	task, err := m.StartByIndex(0, 0, "")
	require.NoError(t, err)

	m.Stop(task.ID)
	assert.Equal(t, 0, m.ActiveCount())
	assert.Equal(t, 0, tx.count())

	got, ok := m.TaskByID(task.ID)
	require.True(t, ok)
	assert.Equal(t, domain.AttackStopped, got.Status)
	require.NotNil(t, got.EndTime)

	// Stopping again or stopping garbage must not blow up.
	m.Stop(task.ID)
	m.Stop("no-such-id")
}

func TestStopAll(t *testing.T) {
	reg := seededRegistry(t, 3)
	tx := newFakeTransmitter()
	m := New(discardLogger(), reg, tx, 0)

	_, err := m.StartByIndex(0, 0, "")
	require.NoError(t, err)
	_, err = m.StartByIndex(1, 0, "")
	require.NoError(t, err)

	assert.Equal(t, 2, m.StopAll())
	assert.Equal(t, 0, m.ActiveCount())
	assert.Equal(t, 0, tx.count())
	assert.Empty(t, m.Active())

	assert.Equal(t, 0, m.StopAll())
}

func TestFinishedTasksFreeSlots(t *testing.T) {
	reg := seededRegistry(t, 2)
	tx := newFakeTransmitter()
	m := New(discardLogger(), reg, tx, 1)

	task, err := m.StartByIndex(0, 0, "")
	require.NoError(t, err)

	_, err = m.StartByIndex(1, 0, "")
	assert.ErrorIs(t, err, domain.ErrMaxDeauths)

	m.Stop(task.ID)
	_, err = m.StartByIndex(1, 0, "")
	require.NoError(t, err)

	// The stopped task was evicted during the new start.
	_, ok := m.TaskByID(task.ID)
	assert.False(t, ok)
}

func TestJammer(t *testing.T) {
	empty := registry.New(discardLogger())
	tx := newFakeTransmitter()
	m := New(discardLogger(), empty, tx, 0)

	assert.ErrorIs(t, m.EnableJammer(), domain.ErrNoNetworks)

	reg := seededRegistry(t, 1)
	m = New(discardLogger(), reg, tx, 0)

	require.NoError(t, m.EnableJammer())
	assert.True(t, m.JammerActive())

	assert.ErrorIs(t, m.EnableJammer(), domain.ErrAlreadyRunning)

	m.DisableJammer()
	assert.False(t, m.JammerActive())
	m.DisableJammer()
}
