package ie

import (
	"bytes"
	"errors"
	"strings"

	"github.com/gattrose/gattrose-ng/internal/core/domain"
)

// Common IE Tags
const (
	TagSSID           = 0
	TagDSParameterSet = 3
	TagRSN            = 48
	TagVendorSpecific = 221 // 0xDD
)

// Errors
var (
	ErrMalformedIE = errors.New("malformed information element")
	ErrIENotFound  = errors.New("information element not found")
)

// SSID represents a Service Set Identifier
type SSID struct {
	Value  string
	Hidden bool
}

// String returns the string representation of the SSID
func (s SSID) String() string {
	if s.Hidden {
		return "<HIDDEN>"
	}
	return s.Value
}

// Iterate calls the provided callback for each valid IE found in data.
// It stops at the first malformed element (length exceeding the buffer).
func Iterate(data []byte, callback func(id int, data []byte)) {
	offset := 0
	limit := len(data)

	for offset < limit {
		// Needs at least 2 bytes (ID and Length)
		if offset+2 > limit {
			break
		}

		id := int(data[offset])
		length := int(data[offset+1])
		offset += 2

		if offset+length > limit {
			break
		}

		callback(id, data[offset:offset+length])
		offset += length
	}
}

// Find returns the data of the first IE with the given ID, nil if absent.
func Find(data []byte, targetID int) []byte {
	var result []byte
	Iterate(data, func(id int, val []byte) {
		if result == nil && id == targetID {
			result = val
		}
	})
	return result
}

// ParseSSID extracts the SSID element, flagging hidden networks (absent,
// zero-length, or all-zero bytes; some devices broadcast the latter).
func ParseSSID(data []byte) SSID {
	val := Find(data, TagSSID)
	if val == nil {
		return SSID{Hidden: true}
	}
	allZero := true
	for _, b := range val {
		if b != 0x00 {
			allZero = false
			break
		}
	}
	if len(val) == 0 || allZero {
		return SSID{Hidden: true}
	}
	return SSID{Value: safeString(val)}
}

// ParseChannel extracts the channel from the DS Parameter Set (Tag 3).
func ParseChannel(data []byte) (int, error) {
	val := Find(data, TagDSParameterSet)
	if len(val) >= 1 {
		return int(val[0]), nil
	}
	return 0, ErrIENotFound
}

// pmkidKDEPrefix is the key-data KDE header for a PMKID: vendor tag with
// OUI 00-0F-AC, type 4, followed by the 16-byte value.
var pmkidKDEPrefix = []byte{0x00, 0x0F, 0xAC, 0x04}

// ExtractPMKID scans an EAPOL key-data field for a PMKID KDE and returns
// the 16-byte value. Only meaningful on handshake message 1.
func ExtractPMKID(keyData []byte) ([16]byte, bool) {
	var pmkid [16]byte
	found := false
	Iterate(keyData, func(id int, val []byte) {
		if found || id != TagVendorSpecific {
			return
		}
		if len(val) >= 4+16 && bytes.Equal(val[0:4], pmkidKDEPrefix) {
			copy(pmkid[:], val[4:20])
			found = true
		}
	})
	return pmkid, found
}

// ParseRSN parses IE 48 (RSN Information Element).
func ParseRSN(data []byte) (*domain.RSNInfo, error) {
	if len(data) < 2 {
		return nil, ErrMalformedIE
	}

	rsn := &domain.RSNInfo{}
	offset := 0

	// Version (2 bytes, little endian)
	rsn.Version = uint16(data[offset]) | uint16(data[offset+1])<<8
	offset += 2

	// Group Cipher Suite (4 bytes: OUI + Type)
	if offset+4 <= len(data) {
		rsn.GroupCipher = cipherSuiteName(data[offset : offset+4])
		offset += 4
	}

	// Pairwise Cipher Suite Count + List
	if offset+2 <= len(data) {
		count := int(data[offset]) | int(data[offset+1])<<8
		offset += 2
		for i := 0; i < count && offset+4 <= len(data); i++ {
			rsn.PairwiseCiphers = append(rsn.PairwiseCiphers, cipherSuiteName(data[offset:offset+4]))
			offset += 4
		}
	}

	// AKM Suite Count + List
	if offset+2 <= len(data) {
		count := int(data[offset]) | int(data[offset+1])<<8
		offset += 2
		for i := 0; i < count && offset+4 <= len(data); i++ {
			rsn.AKMSuites = append(rsn.AKMSuites, akmSuiteName(data[offset:offset+4]))
			offset += 4
		}
	}

	// RSN Capabilities (2 bytes)
	if offset+2 <= len(data) {
		caps := uint16(data[offset]) | uint16(data[offset+1])<<8
		rsn.Capabilities = domain.RSNCapabilities{
			PreAuth:          (caps & 0x0001) != 0,
			NoPairwise:       (caps & 0x0002) != 0,
			PTKSAReplayCount: uint8((caps >> 2) & 0x03),
			GTKSAReplayCount: uint8((caps >> 4) & 0x03),
			MFPRequired:      (caps & 0x0040) != 0,
			MFPCapable:       (caps & 0x0080) != 0,
			PeerKeyEnabled:   (caps & 0x0200) != 0,
		}
	}

	return rsn, nil
}

func cipherSuiteName(data []byte) string {
	if len(data) < 4 {
		return "UNKNOWN"
	}
	switch data[3] {
	case 1:
		return "WEP-40"
	case 2:
		return "TKIP"
	case 4:
		return "CCMP-128"
	case 5:
		return "WEP-104"
	case 8:
		return "GCMP-128"
	case 9:
		return "GCMP-256"
	case 10:
		return "CCMP-256"
	default:
		return "UNKNOWN"
	}
}

func akmSuiteName(data []byte) string {
	if len(data) < 4 {
		return "UNKNOWN"
	}
	switch data[3] {
	case 1:
		return "802.1X"
	case 2:
		return "PSK"
	case 3:
		return "FT-802.1X"
	case 4:
		return "FT-PSK"
	case 5:
		return "802.1X-SHA256"
	case 6:
		return "PSK-SHA256"
	case 8:
		return "SAE" // WPA3-Personal
	case 9:
		return "FT-SAE"
	case 18:
		return "OWE"
	default:
		return "UNKNOWN"
	}
}

// safeString strips non-printable bytes so a hostile SSID cannot smuggle
// control characters onto the wire or into logs.
func safeString(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c >= 0x20 && c < 0x7F {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
