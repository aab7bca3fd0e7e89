// Package deauth manages the lifecycle of concurrent deauthentication
// tasks. A task never transmits on its own: starting one registers a
// standing intent with the radio actuator, which owns the TX path, and
// stopping it withdraws the intent. The manager enforces the task
// ceiling and the one-task-per-AP rule and resolves controller
// arguments, a scan index or a client MAC, into concrete targets.
package deauth

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/gattrose/gattrose-ng/internal/adapters/radio/actuator"
	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
	"github.com/gattrose/gattrose-ng/internal/telemetry"
)

// Transmitter is the slice of the actuator the manager drives.
type Transmitter interface {
	AddDeauth(id string, intent actuator.DeauthIntent)
	RemoveDeauth(id string)
	SetJammer(on bool)
	Jamming() bool
}

// Manager tracks every deauthentication task and the jammer switch.
type Manager struct {
	logger   *slog.Logger
	registry ports.NetworkRegistry
	tx       Transmitter

	maxTasks int

	mu    sync.RWMutex
	tasks map[string]*domain.DeauthTask
}

// New creates a task manager. maxTasks <= 0 selects the default ceiling.
func New(logger *slog.Logger, registry ports.NetworkRegistry, tx Transmitter, maxTasks int) *Manager {
	if maxTasks <= 0 {
		maxTasks = domain.MaxDeauthTasks
	}
	return &Manager{
		logger:   logger.With(slog.String("component", "deauth")),
		registry: registry,
		tx:       tx,
		maxTasks: maxTasks,
		tasks:    make(map[string]*domain.DeauthTask),
	}
}

// StartByIndex launches a task against the network at a scan-generation
// index. reason 0 selects the default reason code; a non-empty clientMAC
// narrows the attack to unicast frames against that station.
func (m *Manager) StartByIndex(idx int, reason uint16, clientMAC string) (domain.DeauthTask, error) {
	if nets, _ := m.registry.Counts(); nets == 0 {
		return domain.DeauthTask{}, domain.ErrScanFirst
	}

	network, ok := m.registry.NetworkByIndex(idx)
	if !ok {
		return domain.DeauthTask{}, domain.ErrInvalidIndex
	}

	if clientMAC != "" {
		normalized, err := domain.NormalizeMAC(clientMAC)
		if err != nil {
			return domain.DeauthTask{}, domain.ErrInvalidMAC
		}
		clientMAC = normalized
	}
	if reason == 0 {
		reason = domain.DefaultDeauthReason
	}

	config := domain.DeauthConfig{
		NetworkIndex: idx,
		BSSID:        network.BSSID,
		SSID:         network.SSID,
		Channel:      network.Channel,
		Reason:       reason,
		ClientMAC:    clientMAC,
		PMF:          network.PMF,
	}

	id := uuid.New().String()
	task, err := domain.NewDeauthTask(id, config)
	if err != nil {
		return domain.DeauthTask{}, fmt.Errorf("deauth config rejected: %w", err)
	}

	m.mu.Lock()
	m.cleanupFinishedLocked()

	for _, t := range m.tasks {
		if t.IsActive() && t.Config.BSSID == network.BSSID {
			m.mu.Unlock()
			return domain.DeauthTask{}, domain.ErrAlreadyDeauth
		}
	}
	if m.activeCountLocked() >= m.maxTasks {
		m.mu.Unlock()
		return domain.DeauthTask{}, domain.ErrMaxDeauths
	}

	task.Start()
	m.tasks[id] = task
	m.syncGaugeLocked()
	m.mu.Unlock()

	m.tx.AddDeauth(id, actuator.DeauthIntent{
		BSSID:     config.BSSID,
		Channel:   config.Channel,
		Reason:    config.Reason,
		ClientMAC: config.ClientMAC,
		OnBurst:   func() { m.recordBurst(id) },
	})

	if network.PMF {
		m.logger.Warn("target advertises PMF, deauth frames will likely be discarded",
			slog.String("bssid", config.BSSID))
	}
	m.logger.Info("deauth task started",
		slog.String("id", id),
		slog.Int("index", idx),
		slog.String("bssid", config.BSSID),
		slog.String("ssid", config.SSID),
		slog.Int("channel", config.Channel),
		slog.Int("reason", int(config.Reason)),
		slog.Bool("unicast", !config.IsBroadcast()))

	return *task, nil
}

// StartByClient resolves a station MAC to its last-known AP and launches
// a unicast task against it.
func (m *Manager) StartByClient(mac string, reason uint16) (domain.DeauthTask, error) {
	normalized, err := domain.NormalizeMAC(mac)
	if err != nil {
		return domain.DeauthTask{}, domain.ErrInvalidMAC
	}

	client, ok := m.registry.ClientByMAC(normalized)
	if !ok || client.NetworkIndex == domain.Unassociated {
		return domain.DeauthTask{}, domain.ErrClientNotFound
	}

	return m.StartByIndex(client.NetworkIndex, reason, client.MAC)
}

// Stop terminates one task and withdraws its intent. Unknown ids and
// already-finished tasks are not an error.
func (m *Manager) Stop(id string) {
	m.tx.RemoveDeauth(id)

	m.mu.Lock()
	if task, ok := m.tasks[id]; ok {
		task.Stop()
	}
	m.syncGaugeLocked()
	m.mu.Unlock()
}

// StopAll terminates every active task. Idempotent; returns how many
// tasks were still running.
func (m *Manager) StopAll() int {
	m.mu.Lock()
	ids := make([]string, 0, len(m.tasks))
	for id, t := range m.tasks {
		if t.IsActive() {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(id)
	}
	if len(ids) > 0 {
		m.logger.Info("all deauth tasks stopped", slog.Int("count", len(ids)))
	}
	return len(ids)
}

// Active returns a snapshot of the tasks still holding a slot.
func (m *Manager) Active() []domain.DeauthTask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.DeauthTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.IsActive() {
			out = append(out, *t)
		}
	}
	return out
}

// ActiveCount reports how many tasks hold a slot, for the info report.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeCountLocked()
}

// TaskByID returns a snapshot of one task.
func (m *Manager) TaskByID(id string) (domain.DeauthTask, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tasks[id]; ok {
		return *t, true
	}
	return domain.DeauthTask{}, false
}

// EnableJammer starts round-robin bursts across the scanned networks.
func (m *Manager) EnableJammer() error {
	if nets, _ := m.registry.Counts(); nets == 0 {
		return domain.ErrNoNetworks
	}
	if m.tx.Jamming() {
		return domain.ErrAlreadyRunning
	}
	m.tx.SetJammer(true)
	m.logger.Info("jammer enabled")
	return nil
}

// DisableJammer stops the jammer. Idempotent.
func (m *Manager) DisableJammer() {
	m.tx.SetJammer(false)
}

// JammerActive reports the jammer switch state.
func (m *Manager) JammerActive() bool {
	return m.tx.Jamming()
}

func (m *Manager) recordBurst(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		t.RecordBurst()
	}
}

func (m *Manager) activeCountLocked() int {
	n := 0
	for _, t := range m.tasks {
		if t.IsActive() {
			n++
		}
	}
	return n
}

// cleanupFinishedLocked drops finished tasks so stale entries cannot
// pin the concurrency ceiling.
func (m *Manager) cleanupFinishedLocked() {
	for id, t := range m.tasks {
		if !t.IsActive() {
			delete(m.tasks, id)
		}
	}
}

func (m *Manager) syncGaugeLocked() {
	telemetry.DeauthTasksActive.Set(float64(m.activeCountLocked()))
}
