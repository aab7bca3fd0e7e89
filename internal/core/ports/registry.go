package ports

import (
	"time"

	"github.com/gattrose/gattrose-ng/internal/core/domain"
)

// NetworkRegistry manages the in-memory state of scanned networks and
// observed clients. A single owner guards all mutation; the capture
// classifier never touches registry internals directly.
type NetworkRegistry interface {
	// ReplaceNetworks installs a new scan generation, invalidating all
	// previous indices and clearing clients.
	ReplaceNetworks(nets []domain.Network)

	// Clear wipes all in-memory state.
	Clear()

	// Networks returns the current generation in index order.
	Networks() []domain.Network

	// NetworkByIndex resolves a scan-generation index.
	NetworkByIndex(idx int) (domain.Network, bool)

	// NetworkByBSSID resolves an AP by MAC, returning its index.
	NetworkByBSSID(bssid string) (domain.Network, int, bool)

	// ObserveClient records a station seen talking to bssid. Returns the
	// stored client and whether it was newly discovered. Unresolvable
	// BSSIDs return domain.ErrClientNotFound and store nothing; a full
	// client table returns domain.ErrCapacity.
	ObserveClient(mac, bssid string, rssi int, seen time.Time) (domain.Client, bool, error)

	// Clients returns all known clients.
	Clients() []domain.Client

	// ClientByMAC resolves a station by MAC.
	ClientByMAC(mac string) (domain.Client, bool)

	// Channels returns the distinct channels of the current generation,
	// ascending, for the channel scheduler.
	Channels() []int

	// Counts returns the current network and client totals.
	Counts() (networks int, clients int)

	// UnmatchedBSSIDs reports how many client observations were dropped
	// because their BSSID matched no known network.
	UnmatchedBSSIDs() uint64
}
