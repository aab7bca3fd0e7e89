package handshake

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gattrose/gattrose-ng/internal/adapters/capture/ie"
	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
	"github.com/gattrose/gattrose-ng/internal/telemetry"
)

const eventQueueSize = 256

// Event is one EAPOL observation handed off by the capture classifier.
// The classifier copies the frame bytes; the capture buffer is reused.
type Event struct {
	APMAC     string
	ClientMAC string
	EAPOL     []byte
}

type session struct {
	entry         domain.HandshakeEntry
	replayCounter uint64
	hasReplay     bool
	hasANonce     bool
	hasSNonce     bool
}

// Manager reconstructs 4-way handshakes and extracts PMKIDs from the
// EAPOL stream. All state is in memory and bounded; toggling a capture
// mode off discards its list. Heavy processing runs on the manager's own
// worker, never in the capture context.
type Manager struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	notifier ports.Notifier

	hsOn    bool
	pmkidOn bool

	sessions  map[string]*session
	pmkids    []domain.PMKIDEntry
	pmkidSeen map[[16]byte]bool
	essids    map[string]string

	notifiedHS    map[string]bool
	notifiedPMKID map[string]bool

	queue    chan Event
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewManager creates the state machine and starts its worker.
func NewManager(logger *slog.Logger, notifier ports.Notifier) *Manager {
	m := &Manager{
		logger:        logger,
		notifier:      notifier,
		sessions:      make(map[string]*session),
		pmkidSeen:     make(map[[16]byte]bool),
		essids:        make(map[string]string),
		notifiedHS:    make(map[string]bool),
		notifiedPMKID: make(map[string]bool),
		queue:         make(chan Event, eventQueueSize),
		stopChan:      make(chan struct{}),
	}
	go m.run()
	return m
}

// Close stops the worker.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// EnableHandshake toggles handshake capture. Turning it off discards the
// accumulated entries.
func (m *Manager) EnableHandshake(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hsOn = on
	if !on {
		m.sessions = make(map[string]*session)
		m.notifiedHS = make(map[string]bool)
	}
}

// EnablePMKID toggles PMKID capture. Turning it off discards the list.
func (m *Manager) EnablePMKID(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pmkidOn = on
	if !on {
		m.pmkids = nil
		m.pmkidSeen = make(map[[16]byte]bool)
		m.notifiedPMKID = make(map[string]bool)
	}
}

// HandshakeEnabled reports whether handshake capture is on.
func (m *Manager) HandshakeEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hsOn
}

// PMKIDEnabled reports whether PMKID capture is on.
func (m *Manager) PMKIDEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pmkidOn
}

// Active reports whether either capture mode wants EAPOL frames.
func (m *Manager) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hsOn || m.pmkidOn
}

// LearnSSID records the SSID advertised by a BSSID so entries can name
// the network. Fed by beacons and by scan results.
func (m *Manager) LearnSSID(bssid, ssid string) {
	if ssid == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.essids[bssid] = ssid
}

// Submit queues one EAPOL observation. Never blocks; the frame is
// dropped and counted when the queue is full.
func (m *Manager) Submit(apMAC, clientMAC string, eapol []byte) {
	buf := make([]byte, len(eapol))
	copy(buf, eapol)
	select {
	case m.queue <- Event{APMAC: apMAC, ClientMAC: clientMAC, EAPOL: buf}:
	default:
		telemetry.EAPOLDropped.Inc()
	}
}

func (m *Manager) run() {
	for {
		select {
		case ev := <-m.queue:
			m.process(ev)
		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) process(ev Event) {
	frame, err := ParseKey(ev.EAPOL)
	if err != nil {
		return
	}

	msg := frame.ResolveMessage()
	if msg == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if msg == 1 && m.pmkidOn {
		m.capturePMKID(frame, ev.APMAC, ev.ClientMAC)
	}
	if m.hsOn {
		m.captureHandshake(frame, msg, ev.APMAC, ev.ClientMAC)
	}
}

// capturePMKID runs under the manager lock.
func (m *Manager) capturePMKID(frame *KeyFrame, apMAC, clientMAC string) {
	pmkid, ok := ie.ExtractPMKID(frame.KeyData)
	if !ok {
		return
	}
	if m.pmkidSeen[pmkid] {
		return
	}
	if len(m.pmkids) >= domain.MaxPMKIDEntries {
		return
	}

	valid := false
	for _, b := range pmkid {
		if b != 0 {
			valid = true
			break
		}
	}

	entry := domain.PMKIDEntry{
		PMKID:     pmkid,
		APMAC:     apMAC,
		ClientMAC: clientMAC,
		SSID:      m.essids[apMAC],
		Valid:     valid,
		Timestamp: time.Now(),
	}
	m.pmkidSeen[pmkid] = true
	m.pmkids = append(m.pmkids, entry)
	telemetry.PMKIDsCaptured.Inc()
	m.logger.Info("pmkid captured", "ap", apMAC, "client", clientMAC, "ssid", entry.SSID)

	if !m.notifiedPMKID[apMAC] {
		m.notifiedPMKID[apMAC] = true
		if m.notifier != nil {
			m.notifier.PMKIDCaptured(apMAC)
		}
	}
}

// captureHandshake runs under the manager lock.
func (m *Manager) captureHandshake(frame *KeyFrame, msg uint8, apMAC, clientMAC string) {
	key := domain.PairKey(apMAC, clientMAC)
	s, exists := m.sessions[key]
	if !exists {
		if len(m.sessions) >= domain.MaxHandshakes {
			return
		}
		s = &session{entry: domain.HandshakeEntry{
			APMAC:     apMAC,
			ClientMAC: clientMAC,
			SSID:      m.essids[apMAC],
		}}
		m.sessions[key] = s
	}
	if s.entry.SSID == "" {
		s.entry.SSID = m.essids[apMAC]
	}

	// A MIC flag with an all-zero MIC is useless for recovery.
	if msg > 1 && frame.IsMICZero() {
		return
	}

	switch msg {
	case 1:
		if s.hasReplay && s.replayCounter == frame.ReplayCounter {
			// Retransmission of the current M1.
			break
		}
		// New exchange: reset accumulated state so messages from
		// different exchanges are never mixed.
		s.entry.MsgMask = 0
		s.entry.Complete = false
		s.entry.SNonce = [32]byte{}
		s.entry.MIC = [16]byte{}
		s.entry.EAPOL = nil
		s.hasSNonce = false
		s.replayCounter = frame.ReplayCounter
		s.hasReplay = true
		s.entry.ANonce = frame.Nonce
		s.hasANonce = true
	case 2:
		s.entry.SNonce = frame.Nonce
		s.entry.MIC = frame.MIC
		s.entry.EAPOL = frame.Raw
		s.hasSNonce = true
	case 3:
		if !s.hasANonce {
			// Missed M1; M3 carries the same ANonce.
			s.entry.ANonce = frame.Nonce
			s.hasANonce = true
			s.replayCounter = frame.ReplayCounter - 1
			s.hasReplay = true
		} else if s.entry.ANonce != frame.Nonce {
			// Different exchange. Restart from the M3 context.
			s.entry.MsgMask = 0
			s.entry.Complete = false
			s.entry.SNonce = [32]byte{}
			s.entry.MIC = [16]byte{}
			s.entry.EAPOL = nil
			s.hasSNonce = false
			s.entry.ANonce = frame.Nonce
			s.replayCounter = frame.ReplayCounter - 1
			s.hasReplay = true
		}
	}

	wasComplete := s.entry.Complete
	s.entry.MarkMessage(msg)
	s.entry.Timestamp = time.Now()

	if s.entry.Complete && !wasComplete {
		telemetry.HandshakesCaptured.Inc()
		m.logger.Info("handshake complete",
			"ap", apMAC, "client", clientMAC, "ssid", s.entry.SSID, "mask", s.entry.MsgMask)
		if !m.notifiedHS[apMAC] {
			m.notifiedHS[apMAC] = true
			if m.notifier != nil {
				m.notifier.HandshakeCaptured(apMAC)
			}
		}
	}
}

// Handshakes returns a snapshot of all entries, oldest first.
func (m *Manager) Handshakes() []domain.HandshakeEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.HandshakeEntry, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// PMKIDs returns a snapshot of the captured entries in capture order.
func (m *Manager) PMKIDs() []domain.PMKIDEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.PMKIDEntry, len(m.pmkids))
	copy(out, m.pmkids)
	return out
}

// ClearHandshakes discards all handshake entries.
func (m *Manager) ClearHandshakes() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*session)
	m.notifiedHS = make(map[string]bool)
}

// ClearPMKIDs discards all PMKID entries.
func (m *Manager) ClearPMKIDs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pmkids = nil
	m.pmkidSeen = make(map[[16]byte]bool)
	m.notifiedPMKID = make(map[string]bool)
}

// HasHandshake reports whether any complete handshake exists for the AP.
func (m *Manager) HasHandshake(bssid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.entry.APMAC == bssid && s.entry.Complete {
			return true
		}
	}
	return false
}
