package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// FramesProcessed counts 802.11 frames handled by the capture classifier
	FramesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gattrose",
			Name:      "frames_processed_total",
			Help:      "Total number of 802.11 frames processed by the classifier",
		},
		[]string{"type"},
	)

	// FramesDropped counts frames discarded before processing
	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gattrose",
			Name:      "frames_dropped_total",
			Help:      "Total number of frames dropped",
		},
		[]string{"reason"},
	)

	// InjectionsTotal counts total frame injection attempts
	InjectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gattrose",
			Name:      "injection_total",
			Help:      "Total number of frame injection attempts",
		},
		[]string{"type"},
	)

	// InjectionErrors counts failed injection attempts
	InjectionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gattrose",
			Name:      "injection_errors_total",
			Help:      "Total number of failed frame injection attempts",
		},
		[]string{"type"},
	)

	// CommandsTotal counts protocol commands received on the control link
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gattrose",
			Name:      "commands_total",
			Help:      "Total number of control commands received",
		},
		[]string{"cmd"},
	)

	// CommandErrors counts commands rejected with an error token
	CommandErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gattrose",
			Name:      "command_errors_total",
			Help:      "Total number of commands rejected with an error",
		},
		[]string{"token"},
	)

	// AlertsTotal counts rogue AP detector alerts by kind
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gattrose",
			Name:      "alerts_total",
			Help:      "Total number of rogue AP alerts raised",
		},
		[]string{"kind"},
	)

	// HandshakesCaptured counts completed 4-way handshake reconstructions
	HandshakesCaptured = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gattrose",
			Name:      "handshakes_captured_total",
			Help:      "Total number of complete 4-way handshakes captured",
		},
	)

	// PMKIDsCaptured counts distinct PMKIDs extracted from first messages
	PMKIDsCaptured = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gattrose",
			Name:      "pmkids_captured_total",
			Help:      "Total number of distinct PMKIDs captured",
		},
	)

	// EAPOLDropped counts EAPOL frames dropped because the queue was full
	EAPOLDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gattrose",
			Name:      "eapol_dropped_total",
			Help:      "Total number of EAPOL frames dropped on queue overflow",
		},
	)

	// CredentialsCaptured counts credentials submitted to captive portals
	CredentialsCaptured = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gattrose",
			Name:      "credentials_captured_total",
			Help:      "Total number of captive portal credential submissions",
		},
	)

	// ChannelHops counts hopper retunes while capture is active
	ChannelHops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gattrose",
			Name:      "channel_hops_total",
			Help:      "Total number of channel hops performed during capture",
		},
	)

	DeauthTasksActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gattrose",
			Name:      "deauth_tasks_active",
			Help:      "Number of deauthentication tasks currently holding a slot",
		},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry
// This function is idempotent and can be called multiple times safely
func InitMetrics() {
	once.Do(func() {
		// Register metrics, ignoring errors if already registered
		// This prevents panics when metrics are already in the registry
		prometheus.DefaultRegisterer.Register(FramesProcessed)
		prometheus.DefaultRegisterer.Register(FramesDropped)
		prometheus.DefaultRegisterer.Register(InjectionsTotal)
		prometheus.DefaultRegisterer.Register(InjectionErrors)
		prometheus.DefaultRegisterer.Register(CommandsTotal)
		prometheus.DefaultRegisterer.Register(CommandErrors)
		prometheus.DefaultRegisterer.Register(AlertsTotal)
		prometheus.DefaultRegisterer.Register(HandshakesCaptured)
		prometheus.DefaultRegisterer.Register(PMKIDsCaptured)
		prometheus.DefaultRegisterer.Register(EAPOLDropped)
		prometheus.DefaultRegisterer.Register(CredentialsCaptured)
		prometheus.DefaultRegisterer.Register(ChannelHops)
		prometheus.DefaultRegisterer.Register(DeauthTasksActive)
	})
}
