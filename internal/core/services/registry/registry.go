package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gattrose/gattrose-ng/internal/core/domain"
)

// Registry is the single owner of scanned networks and observed
// clients. Every mutation happens under one mutex; callers get copies.
// Network indices are positional within the current scan generation and
// die with it.
type Registry struct {
	mu     sync.RWMutex
	logger *slog.Logger

	networks    []domain.Network
	byBSSID     map[string]int
	clients     map[string]domain.Client
	clientOrder []string
	unmatched   uint64

	subject *Subject
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger,
		byBSSID: make(map[string]int),
		clients: make(map[string]domain.Client),
		subject: NewSubject(),
	}
}

// AddObserver registers for generation-replacement events.
func (r *Registry) AddObserver(obs GenerationObserver) {
	r.subject.AddObserver(obs)
}

// ReplaceNetworks installs a new scan generation. All previous indices
// and clients are invalidated.
func (r *Registry) ReplaceNetworks(nets []domain.Network) {
	if len(nets) > domain.MaxNetworks {
		nets = nets[:domain.MaxNetworks]
	}

	r.mu.Lock()
	r.networks = make([]domain.Network, len(nets))
	r.byBSSID = make(map[string]int, len(nets))
	for i, n := range nets {
		n.Index = i
		n.Clients = append([]domain.ClientRef(nil), n.Clients...)
		r.networks[i] = n
		r.byBSSID[n.BSSID] = i
	}
	r.clients = make(map[string]domain.Client)
	r.clientOrder = nil
	snapshot := r.copyNetworks()
	r.mu.Unlock()

	r.logger.Info("scan generation replaced", "networks", len(snapshot))
	r.subject.NotifyReplaced(snapshot)
}

// Clear wipes all in-memory state.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.networks = nil
	r.byBSSID = make(map[string]int)
	r.clients = make(map[string]domain.Client)
	r.clientOrder = nil
	r.mu.Unlock()

	r.subject.NotifyReplaced(nil)
}

// Networks returns the current generation in index order.
func (r *Registry) Networks() []domain.Network {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyNetworks()
}

// copyNetworks runs under the registry lock.
func (r *Registry) copyNetworks() []domain.Network {
	out := make([]domain.Network, len(r.networks))
	for i, n := range r.networks {
		n.Clients = append([]domain.ClientRef(nil), n.Clients...)
		out[i] = n
	}
	return out
}

// NetworkByIndex resolves a scan-generation index.
func (r *Registry) NetworkByIndex(idx int) (domain.Network, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || idx >= len(r.networks) {
		return domain.Network{}, false
	}
	n := r.networks[idx]
	n.Clients = append([]domain.ClientRef(nil), n.Clients...)
	return n, true
}

// NetworkByBSSID resolves an AP by MAC, returning its index.
func (r *Registry) NetworkByBSSID(bssid string) (domain.Network, int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byBSSID[bssid]
	if !ok {
		return domain.Network{}, 0, false
	}
	n := r.networks[idx]
	n.Clients = append([]domain.ClientRef(nil), n.Clients...)
	return n, idx, true
}

// ObserveClient records a station seen talking to bssid.
func (r *Registry) ObserveClient(mac, bssid string, rssi int, seen time.Time) (domain.Client, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byBSSID[bssid]
	if !ok {
		r.unmatched++
		return domain.Client{}, false, domain.ErrClientNotFound
	}

	if existing, known := r.clients[mac]; known {
		existing.RSSI = rssi
		existing.LastSeen = seen
		if existing.NetworkIndex != idx {
			// Roamed to another AP in this generation.
			r.detachClient(existing.NetworkIndex, mac)
			if !r.networks[idx].AddClient(mac, rssi) {
				existing.NetworkIndex = domain.Unassociated
			} else {
				existing.NetworkIndex = idx
			}
		} else {
			r.networks[idx].AddClient(mac, rssi)
		}
		r.clients[mac] = existing
		return existing, false, nil
	}

	if len(r.clients) >= domain.MaxClients {
		return domain.Client{}, false, domain.ErrCapacity
	}
	if !r.networks[idx].AddClient(mac, rssi) {
		return domain.Client{}, false, domain.ErrCapacity
	}

	client := domain.Client{
		MAC:          mac,
		RSSI:         rssi,
		NetworkIndex: idx,
		LastSeen:     seen,
	}
	r.clients[mac] = client
	r.clientOrder = append(r.clientOrder, mac)
	r.logger.Debug("client discovered", "mac", mac, "ap", bssid, "index", idx)
	return client, true, nil
}

// detachClient runs under the registry lock.
func (r *Registry) detachClient(idx int, mac string) {
	if idx < 0 || idx >= len(r.networks) {
		return
	}
	refs := r.networks[idx].Clients
	for i, ref := range refs {
		if ref.MAC == mac {
			r.networks[idx].Clients = append(refs[:i], refs[i+1:]...)
			return
		}
	}
}

// Clients returns all known clients in discovery order.
func (r *Registry) Clients() []domain.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Client, 0, len(r.clientOrder))
	for _, mac := range r.clientOrder {
		if c, ok := r.clients[mac]; ok {
			out = append(out, c)
		}
	}
	return out
}

// ClientByMAC resolves a station by MAC.
func (r *Registry) ClientByMAC(mac string) (domain.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[mac]
	return c, ok
}

// Channels returns the distinct channels of the current generation,
// ascending.
func (r *Registry) Channels() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[int]bool)
	var out []int
	for _, n := range r.networks {
		if n.Channel > 0 && !seen[n.Channel] {
			seen[n.Channel] = true
			out = append(out, n.Channel)
		}
	}
	sort.Ints(out)
	return out
}

// Counts returns the current network and client totals.
func (r *Registry) Counts() (int, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.networks), len(r.clients)
}

// UnmatchedBSSIDs reports dropped client observations.
func (r *Registry) UnmatchedBSSIDs() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unmatched
}
