// Package web serves the engine's debug surface: Prometheus metrics and
// the WebSocket control bridge. This is not a controller surface of its
// own; the bridge speaks the same framed protocol as the UART.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// DebugServer exposes /metrics, /healthz and /ws on the debug address.
type DebugServer struct {
	logger *slog.Logger
	addr   string
	bridge http.Handler
	srv    *http.Server
}

// New creates the server. bridge may be nil to serve metrics only.
func New(logger *slog.Logger, addr string, bridge http.Handler) *DebugServer {
	return &DebugServer{
		logger: logger.With(slog.String("component", "web")),
		addr:   addr,
		bridge: bridge,
	}
}

// Router assembles the route table.
func (s *DebugServer) Router() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if s.bridge != nil {
		r.Handle("/ws", s.bridge)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *DebugServer) Run(ctx context.Context) error {
	handler := otelhttp.NewHandler(s.Router(), "gattrose-debug")

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("debug server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("debug server shutdown", slog.String("error", err.Error()))
		}
	}()

	s.logger.Info("debug server listening", slog.String("addr", s.addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
