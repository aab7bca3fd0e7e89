package ports

import "github.com/gattrose/gattrose-ng/internal/core/domain"

// Notifier delivers unsolicited pushes to the controller. The link layer
// implements it by framing each push and mirroring it to every
// connected transport; implementations must never block the caller.
type Notifier interface {
	// Ready announces the engine banner after boot.
	Ready(version string)

	// NewClient pushes a freshly discovered station.
	NewClient(apIndex int, c domain.Client)

	// Alert pushes a rogue-detector finding.
	Alert(a domain.Alert)

	// Credential pushes a captive-portal submission.
	Credential(c domain.Credential)

	// PMKIDCaptured fires on the first PMKID seen for an AP.
	PMKIDCaptured(apMAC string)

	// HandshakeCaptured fires on the first complete handshake for an AP.
	HandshakeCaptured(apMAC string)

	// ScanDone reports a finished scan cycle with its network count.
	ScanDone(count int)

	// BLEScanDone reports a finished BLE scan with its device count.
	BLEScanDone(count int)
}
