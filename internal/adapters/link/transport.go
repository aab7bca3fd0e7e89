package link

import (
	"fmt"
	"log/slog"
	"sync"
)

// Transport is one attached controller link. Send must be safe for
// concurrent use; a failed Send means the controller is gone and the hub
// drops the transport.
type Transport interface {
	Name() string
	Send(frame []byte) error
	Close() error
}

// Hub mirrors every response frame to all attached transports, so the
// UART controller and any debug links see the same conversation.
// Controllers come and go without the engine noticing.
type Hub struct {
	logger *slog.Logger

	mu    sync.Mutex
	links map[Transport]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With(slog.String("component", "link")),
		links:  make(map[Transport]struct{}),
	}
}

// Attach registers a transport for response mirroring.
func (h *Hub) Attach(t Transport) {
	h.mu.Lock()
	h.links[t] = struct{}{}
	n := len(h.links)
	h.mu.Unlock()

	h.logger.Info("transport attached",
		slog.String("transport", t.Name()),
		slog.Int("links", n))
}

// Detach removes a transport without closing it. Unknown transports are
// ignored.
func (h *Hub) Detach(t Transport) {
	h.mu.Lock()
	_, known := h.links[t]
	delete(h.links, t)
	n := len(h.links)
	h.mu.Unlock()

	if known {
		h.logger.Info("transport detached",
			slog.String("transport", t.Name()),
			slog.Int("links", n))
	}
}

// Links reports the number of attached transports.
func (h *Hub) Links() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.links)
}

// Broadcast mirrors one raw frame to every attached transport. A
// transport whose write fails is dropped and closed.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.Lock()
	var dead []Transport
	for t := range h.links {
		if err := t.Send(frame); err != nil {
			dead = append(dead, t)
		}
	}
	for _, t := range dead {
		delete(h.links, t)
	}
	h.mu.Unlock()

	for _, t := range dead {
		h.logger.Warn("transport dropped after failed write",
			slog.String("transport", t.Name()))
		t.Close()
	}
}

// Send frames a typed response and broadcasts it.
func (h *Hub) Send(typ byte, payload string) {
	h.Broadcast(Frame(typ, payload))
}

// Sendf formats a typed response and broadcasts it.
func (h *Hub) Sendf(typ byte, format string, args ...any) {
	h.Send(typ, fmt.Sprintf(format, args...))
}

// Close detaches and closes every transport.
func (h *Hub) Close() {
	h.mu.Lock()
	links := make([]Transport, 0, len(h.links))
	for t := range h.links {
		links = append(links, t)
	}
	h.links = make(map[Transport]struct{})
	h.mu.Unlock()

	for _, t := range links {
		t.Close()
	}
}
