package domain

// SecurityMask is the raw security bitmask reported by the radio driver
// for a scanned network. The bit values match the transceiver SDK and are
// kept verbatim so drivers can pass them through untranslated.
type SecurityMask uint32

const (
	SecWEP    SecurityMask = 0x00000001
	SecTKIP   SecurityMask = 0x00000002
	SecAES    SecurityMask = 0x00000004
	SecShared SecurityMask = 0x00008000
	SecWPA    SecurityMask = 0x00200000
	SecWPA2   SecurityMask = 0x00400000
	SecWPA3   SecurityMask = 0x00800000
)

// Has reports whether all bits of flag are set.
func (m SecurityMask) Has(flag SecurityMask) bool {
	return m&flag == flag
}

// HasPMF derives protected-management-frames support: WPA3 always
// implies PMF; WPA2 implies it only when the RSN element advertises
// management-frame protection.
func (m SecurityMask) HasPMF(mfpCapable bool) bool {
	if m.Has(SecWPA3) {
		return true
	}
	return m.Has(SecWPA2) && mfpCapable
}

// Label renders the mask as the short security tag used on the wire and
// by the controller UI.
func (m SecurityMask) Label() string {
	switch {
	case m.Has(SecWPA3):
		return "WPA3"
	case m.Has(SecWPA2):
		switch {
		case m.Has(SecTKIP) && m.Has(SecAES):
			return "WPA2-MIX"
		case m.Has(SecTKIP):
			return "WPA2-TKIP"
		case m.Has(SecAES):
			return "WPA2-AES"
		default:
			return "WPA2"
		}
	case m.Has(SecWPA):
		switch {
		case m.Has(SecAES):
			return "WPA-AES"
		case m.Has(SecTKIP):
			return "WPA-TKIP"
		default:
			return "WPA"
		}
	case m.Has(SecWEP):
		if m.Has(SecShared) {
			return "WEP-S"
		}
		return "WEP"
	default:
		return "OPEN"
	}
}

// RSNInfo contains parsed RSN IE details.
type RSNInfo struct {
	Version         uint16          `json:"version"`
	GroupCipher     string          `json:"group_cipher"`
	PairwiseCiphers []string        `json:"pairwise_ciphers"`
	AKMSuites       []string        `json:"akm_suites"`
	Capabilities    RSNCapabilities `json:"capabilities"`
}

// RSNCapabilities represents RSN capability bits.
type RSNCapabilities struct {
	PreAuth          bool  `json:"pre_auth"`
	NoPairwise       bool  `json:"no_pairwise"`
	PTKSAReplayCount uint8 `json:"ptksa_replay_count"`
	GTKSAReplayCount uint8 `json:"gtksa_replay_count"`
	MFPRequired      bool  `json:"mfp_required"`
	MFPCapable       bool  `json:"mfp_capable"`
	PeerKeyEnabled   bool  `json:"peer_key_enabled"`
}

// SecurityFromRSN maps parsed RSN details onto the driver bitmask so
// capture-derived networks use the same representation as scan results.
func SecurityFromRSN(rsn *RSNInfo) SecurityMask {
	if rsn == nil {
		return 0
	}
	var m SecurityMask
	for _, akm := range rsn.AKMSuites {
		switch akm {
		case "SAE", "FT-SAE":
			m |= SecWPA3
		case "PSK", "FT-PSK", "PSK-SHA256", "802.1X", "FT-802.1X":
			m |= SecWPA2
		}
	}
	for _, c := range rsn.PairwiseCiphers {
		switch c {
		case "CCMP-128", "CCMP-256", "GCMP-128", "GCMP-256":
			m |= SecAES
		case "TKIP":
			m |= SecTKIP
		}
	}
	if m == 0 {
		m = SecWPA2
	}
	return m
}
