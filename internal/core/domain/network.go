package domain

import "time"

// Capacity limits for the bounded collections. These mirror the radio
// module's fixed memory budget; exceeding them drops or rejects per
// subsystem, it never grows a collection.
const (
	MaxNetworks     = 64
	MaxClients      = 128
	MaxClientsPerAP = 16
	MaxSSIDLen      = 32
	MaxProbeEntries = 64
	MaxPMKIDEntries = 32
	MaxHandshakes   = 32
	MaxBLEDevices   = 64
	MaxDeauthTasks  = 8
)

// Band identifies the frequency band a network operates on.
type Band string

const (
	Band24GHz Band = "2.4GHz"
	Band5GHz  Band = "5GHz"
)

// BandForChannel derives the band from a channel number. Channels 1-14
// are 2.4GHz; everything above (36+) is treated as 5GHz.
func BandForChannel(ch int) Band {
	if ch <= 14 {
		return Band24GHz
	}
	return Band5GHz
}

// ClientRef is a lightweight reference to a station seen on a network.
type ClientRef struct {
	MAC  string `json:"mac"`
	RSSI int    `json:"rssi"`
}

// Network represents one access point discovered by a scan cycle.
// Networks are identified positionally: Index is assigned after the
// priority sort and is only valid until the next scan invalidates it.
type Network struct {
	Index    int          `json:"index"`
	SSID     string       `json:"ssid"`
	BSSID    string       `json:"bssid"`
	Channel  int          `json:"channel"`
	RSSI     int          `json:"rssi"`
	Security SecurityMask `json:"security"`
	Band     Band         `json:"band"`
	PMF      bool         `json:"pmf"`
	Hidden   bool         `json:"hidden"`

	// Clients holds up to MaxClientsPerAP stations attributed to this
	// network during promiscuous capture.
	Clients []ClientRef `json:"clients,omitempty"`
}

// ClientCount returns the number of stations attributed to the network.
func (n *Network) ClientCount() int {
	return len(n.Clients)
}

// AddClient records a station on the network, updating RSSI if the MAC is
// already present. Returns false when the per-AP bound is reached.
func (n *Network) AddClient(mac string, rssi int) bool {
	for i := range n.Clients {
		if n.Clients[i].MAC == mac {
			n.Clients[i].RSSI = rssi
			return true
		}
	}
	if len(n.Clients) >= MaxClientsPerAP {
		return false
	}
	n.Clients = append(n.Clients, ClientRef{MAC: mac, RSSI: rssi})
	return true
}

// RawScanResult is the allocation-free record filled in by the radio
// driver's scan callback. SSID is a fixed buffer; SSIDLen bytes are valid.
type RawScanResult struct {
	SSID    [MaxSSIDLen + 1]byte
	SSIDLen int
	BSSID   [6]byte
	Channel int
	RSSI    int

	Security SecurityMask
	// MFP reports management-frame-protection capability from the RSN
	// element, used together with Security to derive PMF.
	MFP bool
}

// SSIDString returns the SSID portion of the raw record as a string.
// Allocates, so it belongs to the cooperative materialization step,
// never to the scan callback itself.
func (r *RawScanResult) SSIDString() string {
	return string(r.SSID[:r.SSIDLen])
}

// Materialize converts a raw scan record into a Network. Index is left
// for the caller to assign after sorting.
func (r *RawScanResult) Materialize() Network {
	ssid := r.SSIDString()
	return Network{
		SSID:     ssid,
		BSSID:    FormatMAC(r.BSSID[:]),
		Channel:  r.Channel,
		RSSI:     r.RSSI,
		Security: r.Security,
		Band:     BandForChannel(r.Channel),
		PMF:      r.Security.HasPMF(r.MFP),
		Hidden:   IsHiddenSSID(ssid),
	}
}

// IsHiddenSSID reports whether an SSID marks a hidden network: empty, or
// transmitted as all zero bytes in the beacon.
func IsHiddenSSID(ssid string) bool {
	if len(ssid) == 0 {
		return true
	}
	for i := 0; i < len(ssid); i++ {
		if ssid[i] != 0 {
			return false
		}
	}
	return true
}

// Client represents a station observed during promiscuous capture,
// keyed by MAC with at most one network association.
type Client struct {
	MAC          string    `json:"mac"`
	RSSI         int       `json:"rssi"`
	NetworkIndex int       `json:"network_index"` // Unassociated when no AP matched
	LastSeen     time.Time `json:"last_seen"`
}

// Unassociated marks a client whose BSSID did not resolve to a known network.
const Unassociated = -1
