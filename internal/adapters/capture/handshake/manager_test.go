package handshake

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gattrose/gattrose-ng/internal/core/domain"
)

type mockNotifier struct {
	mu         sync.Mutex
	pmkidAPs   []string
	hsAPs      []string
	ready      []string
	scanDone   []int
	bleDone    []int
	clients    []domain.Client
	alerts     []domain.Alert
	creds      []domain.Credential
}

func (m *mockNotifier) Ready(version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = append(m.ready, version)
}

func (m *mockNotifier) NewClient(apIndex int, c domain.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = append(m.clients, c)
}

func (m *mockNotifier) Alert(a domain.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
}

func (m *mockNotifier) Credential(c domain.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = append(m.creds, c)
}

func (m *mockNotifier) PMKIDCaptured(apMAC string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pmkidAPs = append(m.pmkidAPs, apMAC)
}

func (m *mockNotifier) HandshakeCaptured(apMAC string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hsAPs = append(m.hsAPs, apMAC)
}

func (m *mockNotifier) ScanDone(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanDone = append(m.scanDone, count)
}

func (m *mockNotifier) BLEScanDone(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bleDone = append(m.bleDone, count)
}

func (m *mockNotifier) pmkidCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pmkidAPs)
}

func (m *mockNotifier) hsCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hsAPs)
}

func newTestManager() (*Manager, *mockNotifier) {
	notifier := &mockNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(logger, notifier), notifier
}

func pmkidKeyData(pmkid []byte) []byte {
	// Vendor-specific KDE: tag 0xDD, OUI 00-0F-AC, data type 4.
	kde := []byte{0xDD, 0x14, 0x00, 0x0F, 0xAC, 0x04}
	return append(kde, pmkid...)
}

func TestManager_TwoMessagesComplete(t *testing.T) {
	m, notifier := newTestManager()
	defer m.Close()
	m.EnableHandshake(true)
	m.LearnSSID("00:11:22:33:44:55", "TestNet")

	ap := "00:11:22:33:44:55"
	client := "AA:BB:CC:DD:EE:FF"

	anonce := make([]byte, 32)
	anonce[0] = 0xAA
	snonce := make([]byte, 32)
	snonce[0] = 0xBB
	mic := make([]byte, 16)
	mic[0] = 0xCC

	m1 := buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyAck|2), 1, anonce, nil, nil)
	m.process(Event{APMAC: ap, ClientMAC: client, EAPOL: m1})

	entries := m.Handshakes()
	assert.Len(t, entries, 1)
	assert.False(t, entries[0].Complete)
	assert.Equal(t, uint8(domain.HSMsg1), entries[0].MsgMask)

	m2 := buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyMIC|2), 1, snonce, mic, []byte{0x30, 0x02, 0x01, 0x00})
	m.process(Event{APMAC: ap, ClientMAC: client, EAPOL: m2})

	entries = m.Handshakes()
	assert.Len(t, entries, 1)
	assert.True(t, entries[0].Complete)
	assert.Equal(t, "TestNet", entries[0].SSID)
	assert.Equal(t, anonce, entries[0].ANonce[:])
	assert.Equal(t, snonce, entries[0].SNonce[:])
	assert.Equal(t, mic, entries[0].MIC[:])
	assert.Equal(t, m2, entries[0].EAPOL)
	assert.Equal(t, 1, notifier.hsCount())
	assert.True(t, m.HasHandshake(ap))
}

func TestManager_M3RecoversMissedM1(t *testing.T) {
	m, notifier := newTestManager()
	defer m.Close()
	m.EnableHandshake(true)

	ap := "00:11:22:33:44:55"
	client := "AA:BB:CC:DD:EE:FF"

	anonce := make([]byte, 32)
	anonce[7] = 0x42
	mic := make([]byte, 16)
	mic[0] = 0x01

	// M3 arrives first; it repeats the ANonce from the missed M1.
	m3 := buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyMIC|KeyInfoKeyAck|KeyInfoInstall|2), 2, anonce, mic, nil)
	m.process(Event{APMAC: ap, ClientMAC: client, EAPOL: m3})

	snonce := make([]byte, 32)
	snonce[3] = 0x99
	m2 := buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyMIC|2), 1, snonce, mic, []byte{0x30, 0x02, 0x01, 0x00})
	m.process(Event{APMAC: ap, ClientMAC: client, EAPOL: m2})

	entries := m.Handshakes()
	assert.Len(t, entries, 1)
	assert.True(t, entries[0].Complete)
	assert.Equal(t, anonce, entries[0].ANonce[:])
	assert.Equal(t, 1, notifier.hsCount())
}

func TestManager_M1AndM3AloneNotComplete(t *testing.T) {
	m, _ := newTestManager()
	defer m.Close()
	m.EnableHandshake(true)

	ap := "00:11:22:33:44:55"
	client := "AA:BB:CC:DD:EE:FF"

	anonce := make([]byte, 32)
	anonce[0] = 0x10
	mic := make([]byte, 16)
	mic[2] = 0x33

	m1 := buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyAck|2), 1, anonce, nil, nil)
	m.process(Event{APMAC: ap, ClientMAC: client, EAPOL: m1})
	m3 := buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyMIC|KeyInfoKeyAck|KeyInfoInstall|2), 2, anonce, mic, nil)
	m.process(Event{APMAC: ap, ClientMAC: client, EAPOL: m3})

	entries := m.Handshakes()
	assert.Len(t, entries, 1)
	// Without the supplicant's message 2 there is nothing to crack.
	assert.False(t, entries[0].Complete)
}

func TestManager_NewExchangeResetsSession(t *testing.T) {
	m, _ := newTestManager()
	defer m.Close()
	m.EnableHandshake(true)

	ap := "00:11:22:33:44:55"
	client := "AA:BB:CC:DD:EE:FF"

	anonce := make([]byte, 32)
	anonce[0] = 0xAA
	snonce := make([]byte, 32)
	snonce[0] = 0xBB
	mic := make([]byte, 16)
	mic[0] = 0xCC

	m.process(Event{APMAC: ap, ClientMAC: client,
		EAPOL: buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyAck|2), 1, anonce, nil, nil)})
	m.process(Event{APMAC: ap, ClientMAC: client,
		EAPOL: buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyMIC|2), 1, snonce, mic, []byte{0x30, 0x02, 0x01, 0x00})})

	assert.True(t, m.Handshakes()[0].Complete)

	// Fresh M1 with a new replay counter and nonce starts a new exchange.
	anonce2 := make([]byte, 32)
	anonce2[0] = 0xEE
	m.process(Event{APMAC: ap, ClientMAC: client,
		EAPOL: buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyAck|2), 7, anonce2, nil, nil)})

	entries := m.Handshakes()
	assert.Len(t, entries, 1)
	assert.False(t, entries[0].Complete)
	assert.Equal(t, uint8(domain.HSMsg1), entries[0].MsgMask)
	assert.Equal(t, anonce2, entries[0].ANonce[:])
}

func TestManager_RetransmittedM1Kept(t *testing.T) {
	m, _ := newTestManager()
	defer m.Close()
	m.EnableHandshake(true)

	ap := "00:11:22:33:44:55"
	client := "AA:BB:CC:DD:EE:FF"

	anonce := make([]byte, 32)
	anonce[0] = 0xAA
	snonce := make([]byte, 32)
	snonce[0] = 0xBB
	mic := make([]byte, 16)
	mic[0] = 0xCC

	m.process(Event{APMAC: ap, ClientMAC: client,
		EAPOL: buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyAck|2), 1, anonce, nil, nil)})
	m.process(Event{APMAC: ap, ClientMAC: client,
		EAPOL: buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyMIC|2), 1, snonce, mic, []byte{0x30, 0x02, 0x01, 0x00})})

	// Same replay counter: retransmission, progress must survive.
	m.process(Event{APMAC: ap, ClientMAC: client,
		EAPOL: buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyAck|2), 1, anonce, nil, nil)})

	assert.True(t, m.Handshakes()[0].Complete)
}

func TestManager_ZeroMICDropped(t *testing.T) {
	m, _ := newTestManager()
	defer m.Close()
	m.EnableHandshake(true)

	ap := "00:11:22:33:44:55"
	client := "AA:BB:CC:DD:EE:FF"

	snonce := make([]byte, 32)
	snonce[0] = 0xBB
	m2 := buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyMIC|2), 1, snonce, make([]byte, 16), []byte{0x30, 0x02, 0x01, 0x00})
	m.process(Event{APMAC: ap, ClientMAC: client, EAPOL: m2})

	assert.Empty(t, m.Handshakes())
}

func TestManager_PMKIDDedup(t *testing.T) {
	m, notifier := newTestManager()
	defer m.Close()
	m.EnablePMKID(true)
	m.LearnSSID("00:11:22:33:44:55", "HomeNet")

	ap := "00:11:22:33:44:55"
	client := "AA:BB:CC:DD:EE:FF"

	pmkid := make([]byte, 16)
	for i := range pmkid {
		pmkid[i] = byte(i + 1)
	}
	anonce := make([]byte, 32)
	anonce[0] = 0xAA
	m1 := buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyAck|2), 1, anonce, nil, pmkidKeyData(pmkid))

	m.process(Event{APMAC: ap, ClientMAC: client, EAPOL: m1})
	m.process(Event{APMAC: ap, ClientMAC: client, EAPOL: m1})

	entries := m.PMKIDs()
	assert.Len(t, entries, 1)
	assert.Equal(t, "HomeNet", entries[0].SSID)
	assert.True(t, entries[0].Valid)
	assert.Equal(t, 1, notifier.pmkidCount())

	// A different PMKID from the same AP is a new entry, no second push.
	pmkid2 := make([]byte, 16)
	pmkid2[0] = 0xFF
	m1b := buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyAck|2), 2, anonce, nil, pmkidKeyData(pmkid2))
	m.process(Event{APMAC: ap, ClientMAC: client, EAPOL: m1b})

	assert.Len(t, m.PMKIDs(), 2)
	assert.Equal(t, 1, notifier.pmkidCount())
}

func TestManager_ToggleOffClears(t *testing.T) {
	m, _ := newTestManager()
	defer m.Close()
	m.EnableHandshake(true)
	m.EnablePMKID(true)

	ap := "00:11:22:33:44:55"
	client := "AA:BB:CC:DD:EE:FF"

	pmkid := make([]byte, 16)
	pmkid[0] = 0x01
	anonce := make([]byte, 32)
	anonce[0] = 0xAA
	m1 := buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyAck|2), 1, anonce, nil, pmkidKeyData(pmkid))
	m.process(Event{APMAC: ap, ClientMAC: client, EAPOL: m1})

	assert.NotEmpty(t, m.Handshakes())
	assert.NotEmpty(t, m.PMKIDs())

	m.EnableHandshake(false)
	m.EnablePMKID(false)

	assert.Empty(t, m.Handshakes())
	assert.Empty(t, m.PMKIDs())
	assert.False(t, m.Active())
}

func TestManager_SessionCapacity(t *testing.T) {
	m, _ := newTestManager()
	defer m.Close()
	m.EnableHandshake(true)

	anonce := make([]byte, 32)
	anonce[0] = 0xAA
	m1 := buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyAck|2), 1, anonce, nil, nil)

	for i := 0; i < domain.MaxHandshakes; i++ {
		client := fmt.Sprintf("AA:BB:CC:DD:EE:%02X", i)
		m.process(Event{APMAC: "00:11:22:33:44:55", ClientMAC: client, EAPOL: m1})
	}
	assert.Len(t, m.Handshakes(), domain.MaxHandshakes)

	m.process(Event{APMAC: "00:11:22:33:44:55", ClientMAC: "11:22:33:44:55:66", EAPOL: m1})
	assert.Len(t, m.Handshakes(), domain.MaxHandshakes)
}

func TestManager_SubmitProcessesAsync(t *testing.T) {
	m, _ := newTestManager()
	defer m.Close()
	m.EnableHandshake(true)

	anonce := make([]byte, 32)
	anonce[0] = 0xAA
	m1 := buildKeyFrame(uint16(KeyInfoKeyType|KeyInfoKeyAck|2), 1, anonce, nil, nil)
	m.Submit("00:11:22:33:44:55", "AA:BB:CC:DD:EE:FF", m1)

	assert.Eventually(t, func() bool {
		return len(m.Handshakes()) == 1
	}, time.Second, 5*time.Millisecond)
}
