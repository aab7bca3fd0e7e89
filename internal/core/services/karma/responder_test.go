package karma

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type sendRecorder struct {
	mu    sync.Mutex
	ssids []string
}

func (s *sendRecorder) send(ssid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ssids = append(s.ssids, ssid)
}

func (s *sendRecorder) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ssids...)
}

func newTestResponder() (*Responder, *sendRecorder) {
	rec := &sendRecorder{}
	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)), rec.send)
	return r, rec
}

func TestResponder_AnswersWhenEnabled(t *testing.T) {
	r, rec := newTestResponder()

	r.HandleProbe("HomeNet", "AA:BB:CC:DD:EE:01", -50)
	assert.Empty(t, rec.all(), "disabled responder must stay silent")

	r.Enable(true)
	r.HandleProbe("HomeNet", "AA:BB:CC:DD:EE:01", -50)
	r.HandleProbe("CoffeeShop", "AA:BB:CC:DD:EE:02", -60)
	assert.Equal(t, []string{"HomeNet", "CoffeeShop"}, rec.all())
}

func TestResponder_WildcardIgnored(t *testing.T) {
	r, rec := newTestResponder()
	r.Enable(true)

	r.HandleProbe("", "AA:BB:CC:DD:EE:01", -50)
	assert.Empty(t, rec.all())
}

func TestResponder_Cooldown(t *testing.T) {
	r, rec := newTestResponder()
	r.Enable(true)

	r.HandleProbe("HomeNet", "AA:BB:CC:DD:EE:01", -50)
	r.HandleProbe("HomeNet", "AA:BB:CC:DD:EE:02", -55)
	assert.Len(t, rec.all(), 1, "same SSID within cooldown answered once")

	r.mu.Lock()
	r.lastSent["HomeNet"] = time.Now().Add(-time.Minute)
	r.mu.Unlock()

	r.HandleProbe("HomeNet", "AA:BB:CC:DD:EE:01", -50)
	assert.Len(t, rec.all(), 2)
}

func TestResponder_DisableClearsHistory(t *testing.T) {
	r, rec := newTestResponder()
	r.Enable(true)

	r.HandleProbe("HomeNet", "AA:BB:CC:DD:EE:01", -50)
	r.Enable(false)
	r.Enable(true)
	r.HandleProbe("HomeNet", "AA:BB:CC:DD:EE:01", -50)
	assert.Len(t, rec.all(), 2, "toggling off resets the cooldown window")
}

func TestResponder_TrackedSSIDBound(t *testing.T) {
	r, rec := newTestResponder()
	r.Enable(true)

	for i := 0; i < maxTracked; i++ {
		r.HandleProbe(fmt.Sprintf("net-%02d", i), "AA:BB:CC:DD:EE:01", -50)
	}
	assert.Len(t, rec.all(), maxTracked)

	r.HandleProbe("one-too-many", "AA:BB:CC:DD:EE:01", -50)
	assert.Len(t, rec.all(), maxTracked, "table full: new SSIDs dropped")

	// Known SSIDs are still honored once their cooldown lapses.
	r.mu.Lock()
	r.lastSent["net-00"] = time.Now().Add(-time.Minute)
	r.mu.Unlock()
	r.HandleProbe("net-00", "AA:BB:CC:DD:EE:01", -50)
	assert.Len(t, rec.all(), maxTracked+1)
}
