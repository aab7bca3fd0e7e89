package link

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/gattrose/gattrose-ng/internal/adapters/attack/beacon"
	"github.com/gattrose/gattrose-ng/internal/adapters/attack/ble"
	"github.com/gattrose/gattrose-ng/internal/adapters/attack/deauth"
	"github.com/gattrose/gattrose-ng/internal/adapters/attack/eviltwin"
	"github.com/gattrose/gattrose-ng/internal/adapters/capture"
	"github.com/gattrose/gattrose-ng/internal/adapters/capture/handshake"
	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
	"github.com/gattrose/gattrose-ng/internal/core/services/karma"
	"github.com/gattrose/gattrose-ng/internal/core/services/rogue"
	"github.com/gattrose/gattrose-ng/internal/telemetry"
)

// Modes sequences exclusive use of the one radio. Scan, promiscuous
// capture, the evil twin and BLE cannot overlap; the app layer owns what
// gets suspended and resumed around each transition.
type Modes interface {
	StartScan(durationMs int) error
	SetMonitor(on bool) error
	Monitoring() bool
	CurrentChannel() int
	StartEvilTwin(portalID int) (name string, err error)
	StopEvilTwin() error
	StartBLEScan() error
	StartBLESpam(kind domain.BLESpamKind) error
	StopBLE() error
	StopAll()
}

// Deps bundles the subsystems the dispatcher drives.
type Deps struct {
	Modes    Modes
	Registry ports.NetworkRegistry
	Deauth   *deauth.Manager
	Beacons  *beacon.Flood
	Twin     *eviltwin.Twin
	BLE      *ble.Engine
	Karma    *karma.Responder
	Rogue    *rogue.Detector
	Probes   *capture.ProbeLog
	Shakes   *handshake.Manager
	LED      ports.StatusLED
}

// Dispatcher executes framed controller commands and writes the typed
// responses back through the hub. One command runs at a time no matter
// how many links feed it, so multi-record responses stay contiguous.
type Dispatcher struct {
	logger *slog.Logger
	hub    *Hub
	deps   Deps

	mu sync.Mutex
}

// NewDispatcher wires the command path.
func NewDispatcher(logger *slog.Logger, hub *Hub, deps Deps) *Dispatcher {
	return &Dispatcher{
		logger: logger.With(slog.String("component", "dispatch")),
		hub:    hub,
		deps:   deps,
	}
}

// Dispatch executes one framed command. Every outcome, error tokens
// included, goes out through the hub; unknown selectors are dropped
// without a response so line noise cannot start an error storm.
func (d *Dispatcher) Dispatch(cmd []byte) {
	if len(cmd) == 0 {
		return
	}
	op := cmd[0]
	if op < ' ' || op > '~' {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	telemetry.CommandsTotal.WithLabelValues(string(op)).Inc()
	args := string(cmd[1:])

	switch op {
	case 's':
		d.handleScan(args)
	case 'g':
		d.handleGetNetworks()
	case 'c':
		d.handleGetClients()
	case 'd':
		d.handleDeauth(args)
	case 'k':
		d.handleClientDeauth(args)
	case 'w':
		d.handleEvilTwin(args)
	case 'p':
		d.handlePortalSelect(args)
	case 'a':
		d.handleAPConfig(args)
	case 'b':
		d.handleBeacon(args)
	case 'l':
		d.handleBLE(args)
	case 'm':
		d.handleMonitor(args)
	case 'P':
		d.handleProbeLog(args)
	case 'h':
		d.handlePMKID(args)
	case 'H':
		d.handleHandshake(args)
	case 'K':
		d.handleKarma(args)
	case 'J':
		d.handleJammer(args)
	case 'R':
		d.handleRogue(args)
	case 'r':
		d.handleLED(args)
	case 'i':
		d.handleInfo()
	case 'x':
		d.handleStopAll()
	default:
		d.logger.Debug("unknown command selector", slog.String("cmd", string(op)))
	}
}

// fail maps an engine error onto its wire token and reports it.
func (d *Dispatcher) fail(op byte, err error) {
	token := errorToken(err)
	telemetry.CommandErrors.WithLabelValues(token).Inc()
	d.logger.Warn("command rejected",
		slog.String("cmd", string(op)),
		slog.String("token", token),
		slog.String("error", err.Error()))
	d.hub.Send('e', token)
}

// errorToken renders a sentinel error as its terse wire token. Unmapped
// errors read as malformed input on the wire; the log keeps the detail.
func errorToken(err error) string {
	switch {
	case errors.Is(err, domain.ErrScanInProgress):
		return "SCAN_IN_PROGRESS"
	case errors.Is(err, domain.ErrAlreadyDeauth):
		return "ALREADY_DEAUTHING"
	case errors.Is(err, domain.ErrAlreadyRunning):
		return "ALREADY_RUNNING"
	case errors.Is(err, domain.ErrMaxDeauths):
		return "MAX_DEAUTHS"
	case errors.Is(err, domain.ErrInvalidIndex):
		return "INVALID_INDEX"
	case errors.Is(err, domain.ErrNoNetworks):
		return "NO_NETWORKS"
	case errors.Is(err, domain.ErrScanFirst):
		return "SCAN_FIRST"
	case errors.Is(err, domain.ErrNoBaseline):
		return "NO_BASELINE"
	case errors.Is(err, domain.ErrInvalidMAC):
		return "INVALID_MAC"
	case errors.Is(err, domain.ErrMissingArgs):
		return "MISSING_ARGS"
	case errors.Is(err, domain.ErrAPStartFailed):
		return "AP_START_FAILED"
	case errors.Is(err, domain.ErrBLEFailed):
		return "BLE_FAILED"
	default:
		return "INVALID_ARGS"
	}
}

func onOff(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (d *Dispatcher) handleScan(args string) {
	durationMs := 0
	if args != "" {
		ms, err := strconv.Atoi(args)
		if err != nil {
			d.fail('s', domain.ErrInvalidArgs)
			return
		}
		durationMs = ms
	}
	if err := d.deps.Modes.StartScan(durationMs); err != nil {
		d.fail('s', err)
		return
	}
	d.hub.Send('s', "SCANNING")
}

func (d *Dispatcher) handleGetNetworks() {
	nets := d.deps.Registry.Networks()
	d.hub.Sendf('i', "%d", len(nets))
	for i := range nets {
		n := &nets[i]
		d.hub.Sendf('n', "%d|%s|%s|%d|%d|%s|%d|%s|%d|%d",
			n.Index, n.SSID, n.BSSID, n.Channel, n.RSSI, n.Band,
			n.ClientCount(), n.Security.Label(), onOff(n.PMF), onOff(n.Hidden))
	}
}

func (d *Dispatcher) handleGetClients() {
	clients := d.deps.Registry.Clients()
	d.hub.Sendf('i', "%d", len(clients))
	for _, c := range clients {
		d.hub.Sendf('c', "%d|%s|%d", c.NetworkIndex, c.MAC, c.RSSI)
	}
}

func (d *Dispatcher) handleDeauth(args string) {
	if args == "s" {
		n := d.deps.Deauth.StopAll()
		d.logger.Info("deauth stop-all", slog.Int("stopped", n))
		d.hub.Send('d', "STOPPED")
		return
	}
	if args == "" {
		d.fail('d', domain.ErrMissingArgs)
		return
	}

	parts := strings.SplitN(args, "-", 3)
	idx, err := strconv.Atoi(parts[0])
	if err != nil {
		d.fail('d', domain.ErrInvalidArgs)
		return
	}
	reason := 0
	if len(parts) > 1 {
		reason, err = strconv.Atoi(parts[1])
		if err != nil || reason < 0 || reason > 65535 {
			d.fail('d', domain.ErrInvalidArgs)
			return
		}
	}
	clientMAC := ""
	if len(parts) > 2 {
		clientMAC = parts[2]
	}

	if _, err := d.deps.Deauth.StartByIndex(idx, uint16(reason), clientMAC); err != nil {
		d.fail('d', err)
		return
	}
	d.hub.Sendf('d', "DEAUTH:%d", idx)
}

func (d *Dispatcher) handleClientDeauth(args string) {
	if args == "" {
		d.fail('k', domain.ErrMissingArgs)
		return
	}
	mac := args
	reason := 0
	if i := strings.LastIndex(args, "-"); i >= 0 {
		r, err := strconv.Atoi(args[i+1:])
		if err != nil || r < 0 || r > 65535 {
			d.fail('k', domain.ErrInvalidArgs)
			return
		}
		mac, reason = args[:i], r
	}

	task, err := d.deps.Deauth.StartByClient(mac, uint16(reason))
	if err != nil {
		// Unknown station stays a typed response: the stock controller
		// dispatches on 'k', not on the error channel.
		if errors.Is(err, domain.ErrClientNotFound) {
			telemetry.CommandErrors.WithLabelValues("CLIENT_NOT_FOUND").Inc()
			d.hub.Send('k', "CLIENT_NOT_FOUND")
			return
		}
		d.fail('k', err)
		return
	}
	d.hub.Sendf('k', "CLIENT_DEAUTH:%s", task.Config.ClientMAC)
}

func (d *Dispatcher) handleEvilTwin(args string) {
	id, err := strconv.Atoi(args)
	if err != nil {
		d.fail('w', domain.ErrInvalidArgs)
		return
	}
	if id == 0 {
		if err := d.deps.Modes.StopEvilTwin(); err != nil {
			d.fail('w', err)
			return
		}
		d.hub.Send('w', "AP_OFF")
		return
	}
	name, err := d.deps.Modes.StartEvilTwin(id)
	if err != nil {
		d.fail('w', err)
		return
	}
	d.hub.Sendf('w', "AP_ON:%s", name)
}

func (d *Dispatcher) handlePortalSelect(args string) {
	id, err := strconv.Atoi(args)
	if err != nil {
		d.fail('p', domain.ErrInvalidArgs)
		return
	}
	name, err := d.deps.Twin.SelectPortal(id)
	if err != nil {
		d.fail('p', err)
		return
	}
	d.hub.Sendf('p', "PORTAL:%s", name)
}

func (d *Dispatcher) handleAPConfig(args string) {
	parts := strings.Split(args, "|")
	if len(parts) != 3 {
		d.fail('a', domain.ErrMissingArgs)
		return
	}
	channel, err := strconv.Atoi(parts[2])
	if err != nil {
		d.fail('a', domain.ErrInvalidArgs)
		return
	}
	if err := d.deps.Twin.SetAPConfig(parts[0], parts[1], channel); err != nil {
		d.fail('a', err)
		return
	}
	d.hub.Sendf('a', "CONFIG:%s", parts[0])
}

func (d *Dispatcher) handleBeacon(args string) {
	if args == "" {
		d.fail('b', domain.ErrMissingArgs)
		return
	}
	switch args[0] {
	case 'r':
		d.deps.Beacons.StartRandom()
		d.hub.Send('b', "BEACON_RANDOM")
	case 'k':
		d.deps.Beacons.StartRickroll()
		d.hub.Send('b', "BEACON_RICKROLL")
	case 'c':
		if err := d.deps.Beacons.StartCustom(args[1:]); err != nil {
			d.fail('b', err)
			return
		}
		d.hub.Send('b', "BEACON_CUSTOM")
	case 's':
		d.deps.Beacons.Stop()
		d.hub.Send('b', "BEACON_STOP")
	default:
		d.fail('b', domain.ErrInvalidArgs)
	}
}

func (d *Dispatcher) handleBLE(args string) {
	if args == "" {
		d.fail('l', domain.ErrMissingArgs)
		return
	}
	switch args[0] {
	case 's':
		if err := d.deps.Modes.StartBLEScan(); err != nil {
			d.fail('l', err)
			return
		}
		d.hub.Send('l', "BLE_SCANNING")
	case 'g':
		devices := d.deps.BLE.Devices()
		d.hub.Sendf('i', "%d", len(devices))
		for _, dev := range devices {
			d.hub.Sendf('l', "%s|%s|%d", dev.Address, dev.Name, dev.RSSI)
		}
	case 'p':
		kind, err := strconv.Atoi(args[1:])
		if err != nil || kind < 0 || kind > int(domain.BLESpamAll) {
			d.fail('l', domain.ErrInvalidArgs)
			return
		}
		if err := d.deps.Modes.StartBLESpam(domain.BLESpamKind(kind)); err != nil {
			d.fail('l', err)
			return
		}
		d.hub.Send('l', "BLE_SPAM_ON")
	case 'x':
		if err := d.deps.Modes.StopBLE(); err != nil {
			d.fail('l', err)
			return
		}
		d.hub.Send('l', "BLE_STOP")
	default:
		d.fail('l', domain.ErrInvalidArgs)
	}
}

func (d *Dispatcher) handleMonitor(args string) {
	on, ok := parseBoolArg(args)
	if !ok {
		d.fail('m', domain.ErrInvalidArgs)
		return
	}
	if err := d.deps.Modes.SetMonitor(on); err != nil {
		d.fail('m', err)
		return
	}
	if on {
		d.hub.Send('m', "MONITOR_ON")
	} else {
		d.hub.Send('m', "MONITOR_OFF")
	}
}

func (d *Dispatcher) handleProbeLog(args string) {
	switch args {
	case "1":
		d.deps.Probes.Enable(true)
		d.hub.Send('P', "PROBE_ON")
	case "0":
		d.deps.Probes.Enable(false)
		d.hub.Send('P', "PROBE_OFF")
	case "g":
		entries := d.deps.Probes.Entries()
		d.hub.Sendf('i', "%d", len(entries))
		for _, e := range entries {
			d.hub.Sendf('P', "%s|%s|%d", e.SSID, e.MAC, e.RSSI)
		}
	case "c":
		d.deps.Probes.Clear()
		d.hub.Send('P', "PROBE_CLEARED")
	default:
		d.fail('P', domain.ErrInvalidArgs)
	}
}

func (d *Dispatcher) handlePMKID(args string) {
	switch args {
	case "1":
		d.deps.Shakes.EnablePMKID(true)
		d.hub.Send('h', "PMKID_ON")
	case "0":
		d.deps.Shakes.EnablePMKID(false)
		d.hub.Send('h', "PMKID_OFF")
	case "g":
		entries := d.deps.Shakes.PMKIDs()
		d.hub.Sendf('i', "%d", len(entries))
		for i := range entries {
			d.hub.Send('h', entries[i].HashcatLine())
		}
	case "c":
		d.deps.Shakes.ClearPMKIDs()
		d.hub.Send('h', "PMKID_CLEARED")
	default:
		d.fail('h', domain.ErrInvalidArgs)
	}
}

func (d *Dispatcher) handleHandshake(args string) {
	switch args {
	case "1":
		d.deps.Shakes.EnableHandshake(true)
		d.hub.Send('H', "HS_ON")
	case "0":
		d.deps.Shakes.EnableHandshake(false)
		d.hub.Send('H', "HS_OFF")
	case "g":
		entries := d.deps.Shakes.Handshakes()
		d.hub.Sendf('i', "%d", len(entries))
		for _, e := range entries {
			d.hub.Sendf('H', "%s|%s|%d|%d",
				e.APMAC, e.ClientMAC, e.MsgMask, onOff(e.Complete))
		}
	case "c":
		d.deps.Shakes.ClearHandshakes()
		d.hub.Send('H', "HS_CLEARED")
	default:
		d.fail('H', domain.ErrInvalidArgs)
	}
}

func (d *Dispatcher) handleKarma(args string) {
	on, ok := parseBoolArg(args)
	if !ok {
		d.fail('K', domain.ErrInvalidArgs)
		return
	}
	d.deps.Karma.Enable(on)
	if on {
		d.hub.Send('K', "KARMA_ON")
	} else {
		d.hub.Send('K', "KARMA_OFF")
	}
}

func (d *Dispatcher) handleJammer(args string) {
	on, ok := parseBoolArg(args)
	if !ok {
		d.fail('J', domain.ErrInvalidArgs)
		return
	}
	if on {
		if err := d.deps.Deauth.EnableJammer(); err != nil {
			d.fail('J', err)
			return
		}
		d.hub.Send('J', "JAMMER_ON")
		return
	}
	d.deps.Deauth.DisableJammer()
	d.hub.Send('J', "JAMMER_OFF")
}

func (d *Dispatcher) handleRogue(args string) {
	switch args {
	case "1":
		n, err := d.deps.Rogue.Snapshot(d.deps.Registry.Networks())
		if err != nil {
			d.fail('R', err)
			return
		}
		d.hub.Sendf('R', "BASELINE:%d", n)
	case "2":
		if err := d.deps.Rogue.StartMonitor(); err != nil {
			d.fail('R', err)
			return
		}
		d.hub.Send('R', "ROGUE_ON")
	case "0":
		d.deps.Rogue.StopMonitor()
		d.hub.Send('R', "ROGUE_OFF")
	default:
		d.fail('R', domain.ErrInvalidArgs)
	}
}

// handleLED drives the status LED. Hardware failures stay in the log and
// the controller still gets its ack.
func (d *Dispatcher) handleLED(args string) {
	switch {
	case args == "":
		d.fail('r', domain.ErrMissingArgs)
	case args == "0":
		d.ledDo(d.deps.LED.Off)
		d.hub.Send('r', "LED_OFF")
	case args == "1" || args == "2" || args == "3":
		n := int(args[0] - '0')
		d.ledDo(func() error { return d.deps.LED.Effect(n) })
		d.hub.Sendf('r', "LED_EFFECT:%d", n)
	case strings.Contains(args, ","):
		parts := strings.Split(args, ",")
		if len(parts) != 3 {
			d.fail('r', domain.ErrInvalidArgs)
			return
		}
		rgb := make([]uint8, 3)
		for i, p := range parts {
			v, err := strconv.Atoi(p)
			if err != nil || v < 0 || v > 255 {
				d.fail('r', domain.ErrInvalidArgs)
				return
			}
			rgb[i] = uint8(v)
		}
		d.ledDo(func() error { return d.deps.LED.Color(rgb[0], rgb[1], rgb[2]) })
		d.hub.Sendf('r', "LED:%d,%d,%d", rgb[0], rgb[1], rgb[2])
	default:
		d.fail('r', domain.ErrInvalidArgs)
	}
}

func (d *Dispatcher) ledDo(fn func() error) {
	if err := fn(); err != nil {
		d.logger.Warn("LED update failed", slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) handleInfo() {
	nets, clients := d.deps.Registry.Counts()
	d.hub.Sendf('i', "V:%s|N:%d|C:%d|CH:%d|D:%d|B:%d|W:%d|BLE:%d",
		domain.EngineVersion,
		nets,
		clients,
		d.deps.Modes.CurrentChannel(),
		d.deps.Deauth.ActiveCount(),
		onOff(d.deps.Beacons.Active()),
		onOff(d.deps.Twin.Active()),
		d.deps.BLE.DeviceCount())
}

func (d *Dispatcher) handleStopAll() {
	d.deps.Modes.StopAll()
	d.hub.Send('x', "STOPPED_ALL")
}

func parseBoolArg(args string) (on, ok bool) {
	switch args {
	case "1":
		return true, true
	case "0":
		return false, true
	default:
		return false, false
	}
}
