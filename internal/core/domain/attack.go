package domain

import (
	"fmt"
	"time"
)

// DefaultDeauthReason is 802.11 reason code 2, "previous authentication
// no longer valid", used when the controller omits the reason argument.
const DefaultDeauthReason uint16 = 2

// AttackStatus represents the lifecycle state of an attack task.
type AttackStatus string

const (
	AttackPending AttackStatus = "pending"
	AttackRunning AttackStatus = "running"
	AttackStopped AttackStatus = "stopped"
	AttackFailed  AttackStatus = "failed"
)

// DeauthConfig defines a deauthentication target. An empty ClientMAC
// means broadcast deauth against every station on the network.
type DeauthConfig struct {
	// NetworkIndex is the scan-generation index the controller named.
	NetworkIndex int `json:"network_index"`

	// BSSID and Channel are resolved from the registry at start time so
	// the task survives the index being invalidated by a later scan.
	BSSID   string `json:"bssid"`
	SSID    string `json:"ssid,omitempty"`
	Channel int    `json:"channel"`

	// Reason is the 802.11 Reason Code carried in the frame.
	Reason uint16 `json:"reason"`

	// ClientMAC selects unicast deauth against one station.
	ClientMAC string `json:"client_mac,omitempty"`

	// PMF marks the target as management-frame protected. The attack
	// still transmits; it is recorded so operators know it is expected
	// to be ineffective.
	PMF bool `json:"pmf"`
}

// Validate evaluates the configuration against protocol and domain rules.
func (c *DeauthConfig) Validate() error {
	if c.NetworkIndex < 0 {
		return fmt.Errorf("invalid network index: %d", c.NetworkIndex)
	}
	if !IsValidMAC(c.BSSID) {
		return fmt.Errorf("invalid BSSID: %s", c.BSSID)
	}
	if c.ClientMAC != "" && !IsValidMAC(c.ClientMAC) {
		return fmt.Errorf("invalid client MAC: %s", c.ClientMAC)
	}
	if c.Channel < 1 || c.Channel > 177 {
		return fmt.Errorf("invalid channel: %d", c.Channel)
	}
	return nil
}

// IsBroadcast reports whether the task targets every station on the AP.
func (c *DeauthConfig) IsBroadcast() bool {
	return c.ClientMAC == ""
}

// DeauthTask encapsulates the runtime state of one deauthentication
// target. The task itself never transmits; it only records intent that
// the radio actuator polls.
type DeauthTask struct {
	ID          string       `json:"id"`
	Config      DeauthConfig `json:"config"`
	Status      AttackStatus `json:"status"`
	BurstsSent  int          `json:"bursts_sent"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     *time.Time   `json:"end_time,omitempty"`
	ErrorDetail string       `json:"error_detail,omitempty"`
}

// NewDeauthTask initializes a pending task with a valid configuration.
func NewDeauthTask(id string, config DeauthConfig) (*DeauthTask, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &DeauthTask{
		ID:     id,
		Config: config,
		Status: AttackPending,
	}, nil
}

// Start transitions the task to running.
func (t *DeauthTask) Start() {
	t.Status = AttackRunning
	t.StartTime = time.Now()
}

// Stop transitions the task to stopped. Idempotent.
func (t *DeauthTask) Stop() {
	if t.Status == AttackStopped || t.Status == AttackFailed {
		return
	}
	now := time.Now()
	t.Status = AttackStopped
	t.EndTime = &now
}

// Fail marks the task failed with a diagnostic detail.
func (t *DeauthTask) Fail(detail string) {
	now := time.Now()
	t.Status = AttackFailed
	t.ErrorDetail = detail
	t.EndTime = &now
}

// RecordBurst counts one transmitted burst.
func (t *DeauthTask) RecordBurst() {
	t.BurstsSent++
}

// IsActive reports whether the task still occupies a concurrency slot.
func (t *DeauthTask) IsActive() bool {
	return t.Status == AttackPending || t.Status == AttackRunning
}

// Duration returns how long the task has been (or was) running.
func (t *DeauthTask) Duration() time.Duration {
	if t.StartTime.IsZero() {
		return 0
	}
	if t.EndTime != nil {
		return t.EndTime.Sub(t.StartTime)
	}
	return time.Since(t.StartTime)
}

// BeaconMode selects the beacon flood variant.
type BeaconMode string

const (
	BeaconOff      BeaconMode = ""
	BeaconRandom   BeaconMode = "random"
	BeaconRickroll BeaconMode = "rickroll"
	BeaconCustom   BeaconMode = "custom"
)
