package link

import (
	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
)

var _ ports.Notifier = (*Push)(nil)

// Push turns engine events into unsolicited wire pushes. It implements
// ports.Notifier over the hub, so every attached controller sees new
// clients, alerts and capture results as they happen.
type Push struct {
	hub *Hub
}

// NewPush creates the notifier for a hub.
func NewPush(hub *Hub) *Push {
	return &Push{hub: hub}
}

// Ready announces the boot banner. Controllers key firmware detection off
// this line.
func (p *Push) Ready(version string) {
	p.hub.Sendf('r', "GATTROSE-NG:%s", version)
}

// NewClient pushes a station discovered during promiscuous capture.
func (p *Push) NewClient(apIndex int, c domain.Client) {
	p.hub.Sendf('c', "%d|%s|%d", apIndex, c.MAC, c.RSSI)
}

// Alert pushes a rogue-detector finding.
func (p *Push) Alert(a domain.Alert) {
	p.hub.Sendf('R', "ALERT:%s|%s|%s|%s", a.Kind, a.SSID, a.BSSID, a.Detail)
}

// Credential pushes a captive-portal submission.
func (p *Push) Credential(c domain.Credential) {
	p.hub.Sendf('C', "%s|%s|%s", c.SSID, c.Username, c.Password)
}

// PMKIDCaptured fires on the first PMKID captured for an AP.
func (p *Push) PMKIDCaptured(apMAC string) {
	p.hub.Sendf('h', "PMKID_FOUND:%s", apMAC)
}

// HandshakeCaptured fires on the first complete handshake for an AP.
func (p *Push) HandshakeCaptured(apMAC string) {
	p.hub.Sendf('H', "HANDSHAKE:%s", apMAC)
}

// ScanDone reports a finished scan cycle.
func (p *Push) ScanDone(count int) {
	p.hub.Sendf('s', "DONE:%d", count)
}

// BLEScanDone reports a finished BLE scan.
func (p *Push) BLEScanDone(count int) {
	p.hub.Sendf('l', "SCAN_DONE:%d", count)
}
