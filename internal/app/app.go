// Package app assembles the engine: radio driver, registry, capture
// pipeline, attack subsystems and control links, wired per the
// configuration. It owns the exclusive-radio mode transitions the
// dispatcher requests and the lifecycle of every long-running loop.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gattrose/gattrose-ng/internal/adapters/attack/beacon"
	"github.com/gattrose/gattrose-ng/internal/adapters/attack/ble"
	"github.com/gattrose/gattrose-ng/internal/adapters/attack/deauth"
	"github.com/gattrose/gattrose-ng/internal/adapters/attack/eviltwin"
	"github.com/gattrose/gattrose-ng/internal/adapters/capture"
	"github.com/gattrose/gattrose-ng/internal/adapters/capture/handshake"
	"github.com/gattrose/gattrose-ng/internal/adapters/hopping"
	"github.com/gattrose/gattrose-ng/internal/adapters/link"
	"github.com/gattrose/gattrose-ng/internal/adapters/radio/actuator"
	"github.com/gattrose/gattrose-ng/internal/adapters/radio/pcapdrv"
	"github.com/gattrose/gattrose-ng/internal/adapters/radio/sim"
	"github.com/gattrose/gattrose-ng/internal/adapters/web"
	"github.com/gattrose/gattrose-ng/internal/config"
	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
	"github.com/gattrose/gattrose-ng/internal/core/services/karma"
	"github.com/gattrose/gattrose-ng/internal/core/services/registry"
	"github.com/gattrose/gattrose-ng/internal/core/services/rogue"
	"github.com/gattrose/gattrose-ng/internal/core/services/scan"
	"github.com/gattrose/gattrose-ng/internal/telemetry"
)

// twinListenAddr is where the captive portal binds. On hardware this
// would sit on the soft-AP network; the engine serves it on all
// interfaces and leaves routing to the platform.
const twinListenAddr = ":8081"

// Application owns every subsystem and the wiring between them.
type Application struct {
	Config *config.Config
	logger *slog.Logger

	radio ports.Radio
	led   ports.StatusLED

	registry *registry.Registry
	scanner  *scan.Engine
	hopper   *hopping.Scheduler
	act      *actuator.Actuator

	deauths *deauth.Manager
	beacons *beacon.Flood
	twin    *eviltwin.Twin
	bleEng  *ble.Engine
	karma   *karma.Responder
	rogue   *rogue.Detector

	probes *capture.ProbeLog
	shakes *handshake.Manager
	class  *capture.Classifier

	hub        *link.Hub
	push       *link.Push
	dispatcher *link.Dispatcher
	tcp        *link.TCPServer
	serial     *link.SerialLink
	debug      *web.DebugServer

	// runCtx parents the scan and BLE goroutines so shutdown cancels
	// them with everything else.
	runCtx context.Context

	mu        sync.Mutex
	monitorOn bool
}

// New creates the application and bootstraps every subsystem.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	app := &Application{
		Config: cfg,
		logger: logger,
		runCtx: context.Background(),
	}

	if err := app.bootstrap(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return app, nil
}

func (app *Application) bootstrap() error {
	telemetry.InitMetrics()

	if err := app.initRadio(); err != nil {
		return err
	}

	app.initCore()
	app.initAttacks()
	app.initCapture()
	app.initLinks()

	return nil
}

func (app *Application) initRadio() error {
	if app.Config.Simulated() {
		drv := sim.New(app.logger, sim.Config{})
		app.radio = drv
		app.led = sim.NewLED()
		app.logger.Info("radio driver ready", slog.String("driver", "sim"))
		return nil
	}

	drv, err := pcapdrv.New(app.logger, pcapdrv.Config{
		Interface:     app.Config.Interface,
		SetupMonitor:  true,
		KillConflicts: true,
	})
	if err != nil {
		return fmt.Errorf("open radio %s: %w", app.Config.Interface, err)
	}
	app.radio = drv
	app.led = sim.NewLED()
	app.logger.Info("radio driver ready",
		slog.String("driver", "pcap"), slog.String("interface", app.Config.Interface))
	return nil
}

func (app *Application) initCore() {
	app.registry = registry.New(app.logger)

	dwell := time.Duration(app.Config.DwellMs) * time.Millisecond
	app.hopper = hopping.New(app.logger, app.radio, nil, dwell)
	app.registry.AddObserver(app.hopper)

	app.act = actuator.New(app.logger, app.radio, app.registry, actuator.Config{})
}

func (app *Application) initAttacks() {
	app.deauths = deauth.New(app.logger, app.registry, app.act, 0)
	app.beacons = beacon.New(app.logger, app.act)
	app.karma = karma.New(app.logger, app.act.QueueBeacon)
}

func (app *Application) initCapture() {
	app.probes = capture.NewProbeLog()
}

func (app *Application) initLinks() {
	app.hub = link.NewHub(app.logger)
	app.push = link.NewPush(app.hub)

	// Notifier-dependent subsystems come up once the push path exists.
	app.scanner = scan.New(app.logger, app.radio, app.registry, app.push)
	app.scanner.SetHopperPause(func(d time.Duration) {
		app.hopper.Pause(d)
		app.act.Pause(d)
	})

	app.twin = eviltwin.New(app.logger, app.radio, app.push, twinListenAddr)
	app.bleEng = ble.New(app.logger, app.radio, app.push)
	app.rogue = rogue.New(app.logger, app.push)
	app.registry.AddObserver(app.rogue)

	app.shakes = handshake.NewManager(app.logger, app.push)
	app.class = capture.NewClassifier(app.logger, app.registry, app.push, app.shakes, app.probes)
	app.class.OnBeacon(app.rogue.ObserveBeacon)
	app.class.OnProbe(func(ssid, mac string, rssi int) {
		app.karma.HandleProbe(ssid, mac, rssi)
	})
	app.class.SetPauseHook(app.hopper.Pause)

	app.dispatcher = link.NewDispatcher(app.logger, app.hub, link.Deps{
		Modes:    app,
		Registry: app.registry,
		Deauth:   app.deauths,
		Beacons:  app.beacons,
		Twin:     app.twin,
		BLE:      app.bleEng,
		Karma:    app.karma,
		Rogue:    app.rogue,
		Probes:   app.probes,
		Shakes:   app.shakes,
		LED:      app.led,
	})

	deliver := func(cmd []byte) { app.dispatcher.Dispatch(cmd) }
	app.tcp = link.NewTCPServer(app.logger, app.hub, deliver)

	bridge := link.NewWSBridge(app.logger, app.hub, deliver)
	app.debug = web.New(app.logger, app.Config.HTTPAddr, bridge)
}

// Run starts the transports and serves until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	app.runCtx = ctx

	errChan := make(chan error, 2)

	if err := app.tcp.Listen(app.Config.TCPAddr); err != nil {
		return fmt.Errorf("control listener: %w", err)
	}

	go func() {
		if err := app.debug.Run(ctx); err != nil {
			errChan <- fmt.Errorf("debug server: %w", err)
		}
	}()

	if app.Config.SerialDevice != "" {
		ser, err := link.OpenSerial(app.logger, app.Config.SerialDevice, app.Config.SerialBaud)
		if err != nil {
			return err
		}
		app.serial = ser
		app.hub.Attach(ser)
		go ser.ReadLoop(func(cmd []byte) { app.dispatcher.Dispatch(cmd) })
	}

	app.push.Ready(domain.EngineVersion)
	app.logger.Info("engine ready",
		slog.String("version", domain.EngineVersion),
		slog.Int("links", app.hub.Links()))

	select {
	case <-ctx.Done():
		app.logger.Info("shutdown signal received")
	case err := <-errChan:
		app.cleanup()
		return err
	}

	app.cleanup()
	return nil
}

func (app *Application) cleanup() {
	app.StopAll()
	app.tcp.Close()
	app.hub.Close()
	app.class.Close()
	app.shakes.Close()
	app.act.Close()
	if err := app.radio.Close(); err != nil {
		app.logger.Warn("radio close", slog.Any("error", err))
	}
	app.logger.Info("engine stopped")
}

// StartScan launches a scan cycle. Capture suspension is driver-side;
// the hopper and actuator pause through the scanner's hook.
func (app *Application) StartScan(durationMs int) error {
	if err := app.scanner.Start(app.runCtx, durationMs); err != nil {
		return err
	}
	if err := app.led.Effect(1); err != nil {
		app.logger.Warn("led effect", slog.Any("error", err))
	}
	return nil
}

// SetMonitor switches promiscuous capture and the channel scheduler
// together. Idempotent in both directions.
func (app *Application) SetMonitor(on bool) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if on {
		if app.monitorOn {
			return nil
		}
		if err := app.radio.StartCapture(app.class); err != nil {
			return err
		}
		app.hopper.Start()
		app.monitorOn = true
		return nil
	}

	if !app.monitorOn {
		return nil
	}
	app.hopper.Stop()
	if err := app.radio.StopCapture(); err != nil {
		return err
	}
	app.monitorOn = false
	return nil
}

// ControlAddr reports the bound control listener address; nil until Run
// has started the listener.
func (app *Application) ControlAddr() net.Addr {
	return app.tcp.Addr()
}

// Monitoring reports whether promiscuous capture is on.
func (app *Application) Monitoring() bool {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.monitorOn
}

// CurrentChannel reports the channel the radio is tuned to.
func (app *Application) CurrentChannel() int {
	return app.radio.Channel()
}

// suspendCapture stops capture and the hopper without forgetting the
// monitor switch, so resumeCapture can restore the prior state.
func (app *Application) suspendCapture() {
	app.mu.Lock()
	defer app.mu.Unlock()
	if !app.monitorOn {
		return
	}
	app.hopper.Stop()
	if err := app.radio.StopCapture(); err != nil {
		app.logger.Warn("capture suspend", slog.Any("error", err))
	}
}

func (app *Application) resumeCapture() {
	app.mu.Lock()
	defer app.mu.Unlock()
	if !app.monitorOn {
		return
	}
	if err := app.radio.StartCapture(app.class); err != nil {
		app.logger.Warn("capture resume", slog.Any("error", err))
		app.monitorOn = false
		return
	}
	app.hopper.Start()
}

// StartEvilTwin brings up the soft AP and portal. The radio cannot
// capture while hosting an AP, so monitor mode is suspended until the
// twin stops.
func (app *Application) StartEvilTwin(portalID int) (string, error) {
	app.suspendCapture()
	name, err := app.startTwin(portalID)
	if err != nil {
		app.resumeCapture()
		return "", err
	}
	if lerr := app.led.Effect(3); lerr != nil {
		app.logger.Warn("led effect", slog.Any("error", lerr))
	}
	return name, nil
}

func (app *Application) startTwin(portalID int) (string, error) {
	if err := app.twin.Start(portalID); err != nil {
		return "", err
	}
	_, name := app.twin.Portal()
	return name, nil
}

// StopEvilTwin tears the twin down and resumes capture if monitor mode
// was on.
func (app *Application) StopEvilTwin() error {
	err := app.twin.Stop()
	app.resumeCapture()
	return err
}

// StartBLEScan switches the radio to BLE until StopBLE. WiFi capture
// stays suspended across the scan so the mode is stable for follow-up
// spam or listing commands.
func (app *Application) StartBLEScan() error {
	app.suspendCapture()
	if err := app.bleEng.Scan(app.runCtx, 0); err != nil {
		app.resumeCapture()
		return err
	}
	if lerr := app.led.Effect(2); lerr != nil {
		app.logger.Warn("led effect", slog.Any("error", lerr))
	}
	return nil
}

// StartBLESpam begins advertising spam, suspending WiFi capture.
func (app *Application) StartBLESpam(kind domain.BLESpamKind) error {
	app.suspendCapture()
	if err := app.bleEng.StartSpam(kind); err != nil {
		app.resumeCapture()
		return err
	}
	if lerr := app.led.Effect(2); lerr != nil {
		app.logger.Warn("led effect", slog.Any("error", lerr))
	}
	return nil
}

// StopBLE exits BLE mode and hands the radio back to WiFi capture.
func (app *Application) StopBLE() error {
	app.bleEng.Stop()
	app.resumeCapture()
	return nil
}

// StopAll halts every activity: scan wait, deauth tasks, jammer,
// beacon flood, karma, evil twin, BLE and monitor mode. Idempotent.
func (app *Application) StopAll() {
	app.scanner.Cancel()
	app.deauths.StopAll()
	app.deauths.DisableJammer()
	app.beacons.Stop()
	app.karma.Enable(false)
	app.rogue.StopMonitor()
	if err := app.twin.Stop(); err != nil {
		app.logger.Warn("twin stop", slog.Any("error", err))
	}
	app.bleEng.Stop()
	app.act.StopAttacks()
	if err := app.SetMonitor(false); err != nil {
		app.logger.Warn("monitor stop", slog.Any("error", err))
	}
	if err := app.led.Off(); err != nil {
		app.logger.Warn("led off", slog.Any("error", err))
	}
}
