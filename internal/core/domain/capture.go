package domain

import (
	"encoding/hex"
	"fmt"
	"time"
)

// ProbeLogEntry records one probed SSID observed from a station.
// Entries are deduplicated by (SSID, MAC).
type ProbeLogEntry struct {
	SSID      string    `json:"ssid"`
	MAC       string    `json:"mac"`
	RSSI      int       `json:"rssi"`
	Timestamp time.Time `json:"timestamp"`
}

// PMKIDEntry holds one PMKID extracted from the first EAPOL-Key message,
// deduplicated by the 16-byte value.
type PMKIDEntry struct {
	PMKID     [16]byte  `json:"-"`
	APMAC     string    `json:"ap_mac"`
	ClientMAC string    `json:"client_mac"`
	SSID      string    `json:"ssid"`
	Valid     bool      `json:"valid"`
	Timestamp time.Time `json:"timestamp"`
}

// HashcatLine renders the entry in the hashcat 16800 format:
// pmkid*ap_mac*client_mac*ssid_hex (MACs without separators, all hex).
func (e *PMKIDEntry) HashcatLine() string {
	return fmt.Sprintf("%s*%s*%s*%s",
		hex.EncodeToString(e.PMKID[:]),
		CompactMAC(e.APMAC),
		CompactMAC(e.ClientMAC),
		hex.EncodeToString([]byte(e.SSID)))
}

// Handshake message bitmask values, ORed into HandshakeEntry.MsgMask as
// EAPOL-Key messages are observed.
const (
	HSMsg1 uint8 = 1 << 0
	HSMsg2 uint8 = 1 << 1
	HSMsg3 uint8 = 1 << 2
	HSMsg4 uint8 = 1 << 3
)

// HandshakeEntry accumulates 4-way handshake state for one (AP, client)
// pair. Completion uses the relaxed 2-of-4 policy: message 2 plus either
// message 1 or message 3 is enough for offline recovery.
type HandshakeEntry struct {
	APMAC     string    `json:"ap_mac"`
	ClientMAC string    `json:"client_mac"`
	SSID      string    `json:"ssid,omitempty"`
	MsgMask   uint8     `json:"msg_mask"`
	ANonce    [32]byte  `json:"-"`
	SNonce    [32]byte  `json:"-"`
	MIC       [16]byte  `json:"-"`
	EAPOL     []byte    `json:"-"` // raw message-2 EAPOL frame
	Complete  bool      `json:"complete"`
	Timestamp time.Time `json:"timestamp"`
}

// HasMessage reports whether message n (1-4) has been observed.
func (e *HandshakeEntry) HasMessage(n uint8) bool {
	if n < 1 || n > 4 {
		return false
	}
	return e.MsgMask&(1<<(n-1)) != 0
}

// MarkMessage records message n (1-4) and re-evaluates completion.
func (e *HandshakeEntry) MarkMessage(n uint8) {
	if n < 1 || n > 4 {
		return
	}
	e.MsgMask |= 1 << (n - 1)
	e.Complete = e.HasMessage(2) && (e.HasMessage(1) || e.HasMessage(3))
}

// PairKey builds the map key for a handshake session.
func PairKey(apMAC, clientMAC string) string {
	return apMAC + "_" + clientMAC
}

// BLEDevice is one device seen during a BLE scan.
type BLEDevice struct {
	Address  string    `json:"address"`
	Name     string    `json:"name"`
	RSSI     int       `json:"rssi"`
	LastSeen time.Time `json:"last_seen"`
}

// BLESpamKind selects the advertising spam payload family.
type BLESpamKind uint8

const (
	BLESpamRandom BLESpamKind = iota
	BLESpamFastPair
	BLESpamSwiftPair
	BLESpamAirTag
	BLESpamAll
)

// String names the spam kind for logs.
func (k BLESpamKind) String() string {
	switch k {
	case BLESpamRandom:
		return "random"
	case BLESpamFastPair:
		return "fastpair"
	case BLESpamSwiftPair:
		return "swiftpair"
	case BLESpamAirTag:
		return "airtag"
	case BLESpamAll:
		return "all"
	default:
		return "unknown"
	}
}

// Credential is a captive-portal submission pushed to the controller.
type Credential struct {
	SSID      string    `json:"ssid"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Timestamp time.Time `json:"timestamp"`
}
