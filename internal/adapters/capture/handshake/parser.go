package handshake

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// KeyInformation masks (IEEE 802.11i)
const (
	KeyInfoVersionMask      = 0x0007 // Bits 0-2
	KeyInfoKeyType          = 1 << 3 // Bit 3 (1=Pairwise, 0=Group)
	KeyInfoInstall          = 1 << 6
	KeyInfoKeyAck           = 1 << 7
	KeyInfoKeyMIC           = 1 << 8
	KeyInfoSecure           = 1 << 9
	KeyInfoError            = 1 << 10
	KeyInfoRequest          = 1 << 11
	KeyInfoEncryptedKeyData = 1 << 12
)

const (
	eapolHeaderLen = 4  // version, type, length
	keyPayloadMin  = 95 // DescType..KeyDataLength
	eapolTypeKey   = 3
)

var (
	ErrNotKeyFrame = errors.New("not an EAPOL-Key frame")
	ErrTruncated   = errors.New("EAPOL-Key frame truncated")
)

// KeyFrame represents the parsed fields of one EAPOL-Key frame.
type KeyFrame struct {
	DescriptorType uint8
	KeyInfo        uint16
	KeyLength      uint16
	ReplayCounter  uint64
	Nonce          [32]byte
	KeyIV          [16]byte
	KeyRSC         uint64
	KeyID          uint64
	MIC            [16]byte
	KeyDataLength  uint16
	KeyData        []byte

	// Raw keeps the complete EAPOL frame for the message-2 snapshot.
	Raw []byte

	HasMIC     bool
	HasAck     bool
	HasSecure  bool
	HasInstall bool
	IsPairwise bool
	Version    uint8
}

// ParseKey parses a raw EAPOL frame (starting at the EAPOL header, after
// the LLC/SNAP encapsulation) into a KeyFrame.
func ParseKey(eapol []byte) (*KeyFrame, error) {
	if len(eapol) < eapolHeaderLen {
		return nil, ErrTruncated
	}
	if eapol[1] != eapolTypeKey {
		return nil, fmt.Errorf("%w: type %d", ErrNotKeyFrame, eapol[1])
	}

	payload := eapol[eapolHeaderLen:]
	// DescType(1) + KeyInfo(2) + KeyLen(2) + Replay(8) + Nonce(32) +
	// IV(16) + RSC(8) + ID(8) + MIC(16) + DataLen(2) = 95 bytes minimum.
	if len(payload) < keyPayloadMin {
		return nil, fmt.Errorf("%w: %d byte payload", ErrTruncated, len(payload))
	}

	f := &KeyFrame{Raw: eapol}
	f.DescriptorType = payload[0]
	f.KeyInfo = binary.BigEndian.Uint16(payload[1:3])
	f.KeyLength = binary.BigEndian.Uint16(payload[3:5])
	f.ReplayCounter = binary.BigEndian.Uint64(payload[5:13])
	copy(f.Nonce[:], payload[13:45])
	copy(f.KeyIV[:], payload[45:61])
	f.KeyRSC = binary.BigEndian.Uint64(payload[61:69])
	f.KeyID = binary.BigEndian.Uint64(payload[69:77])
	copy(f.MIC[:], payload[77:93])
	f.KeyDataLength = binary.BigEndian.Uint16(payload[93:95])

	if len(payload) >= keyPayloadMin+int(f.KeyDataLength) {
		f.KeyData = payload[keyPayloadMin : keyPayloadMin+int(f.KeyDataLength)]
	} else {
		// Truncated key data, keep what arrived.
		f.KeyData = payload[keyPayloadMin:]
	}

	f.HasMIC = f.KeyInfo&KeyInfoKeyMIC != 0
	f.HasAck = f.KeyInfo&KeyInfoKeyAck != 0
	f.HasSecure = f.KeyInfo&KeyInfoSecure != 0
	f.HasInstall = f.KeyInfo&KeyInfoInstall != 0
	f.IsPairwise = f.KeyInfo&KeyInfoKeyType != 0
	f.Version = uint8(f.KeyInfo & KeyInfoVersionMask)

	return f, nil
}

// MessageNumber classifies the frame by the documented ACK/MIC/Install
// truth table alone: ACK without MIC is message 1; MIC with ACK and
// Install is message 3; MIC without ACK is message 2, which shares its
// exact bit pattern with message 4. The table cannot separate the two;
// callers needing the distinction use ResolveMessage. Returns 0 for
// group-key or unclassifiable frames.
func (f *KeyFrame) MessageNumber() uint8 {
	if !f.IsPairwise {
		return 0
	}
	if !f.HasMIC {
		if f.HasAck {
			return 1
		}
		return 0
	}
	if f.HasAck {
		if f.HasInstall {
			return 3
		}
		// ACK+MIC without Install: nonstandard, treat as 3.
		return 3
	}
	return 2
}

// ResolveMessage narrows the 2/4 overlap left by MessageNumber. A real
// message 2 carries the supplicant's RSN IE in key data and a fresh
// SNonce; message 4 sets the Secure bit, carries no key data, and many
// stations zero the nonce field. Still a heuristic: a station that
// echoes its SNonce in message 4 with a vendor IE appended would pass
// for message 2.
func (f *KeyFrame) ResolveMessage() uint8 {
	n := f.MessageNumber()
	if n != 2 {
		return n
	}
	if f.HasSecure && f.KeyDataLength == 0 {
		return 4
	}
	if f.IsNonceZero() && f.KeyDataLength == 0 {
		return 4
	}
	return 2
}

// IsNonceZero reports whether the nonce field is all zeros.
func (f *KeyFrame) IsNonceZero() bool {
	for _, b := range f.Nonce {
		if b != 0 {
			return false
		}
	}
	return true
}

// IsMICZero reports whether the MIC field is all zeros despite the MIC
// flag, which marks the frame invalid for offline recovery.
func (f *KeyFrame) IsMICZero() bool {
	if !f.HasMIC {
		return true
	}
	for _, b := range f.MIC {
		if b != 0 {
			return false
		}
	}
	return true
}
