package link

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The bridge binds to the debug address; any origin may attach.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSBridge exposes the control protocol over WebSocket for browser-based
// controllers. Frames cross as binary messages, STX/ETX included, so the
// same client-side framer works on every transport.
type WSBridge struct {
	logger  *slog.Logger
	hub     *Hub
	deliver func(cmd []byte)
}

// NewWSBridge creates the bridge feeding commands into deliver. Mount it
// on the debug HTTP server.
func NewWSBridge(logger *slog.Logger, hub *Hub, deliver func(cmd []byte)) *WSBridge {
	return &WSBridge{
		logger:  logger.With(slog.String("component", "wslink")),
		hub:     hub,
		deliver: deliver,
	}
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (b *WSBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	link := &wsConn{
		name: "ws:" + conn.RemoteAddr().String(),
		conn: conn,
	}
	b.hub.Attach(link)
	go b.serve(link)
}

func (b *WSBridge) serve(link *wsConn) {
	defer func() {
		b.hub.Detach(link)
		link.Close()
	}()

	var fr Framer
	for {
		_, data, err := link.conn.ReadMessage()
		if err != nil {
			return
		}
		for _, cmd := range fr.Push(data) {
			b.deliver(cmd)
		}
	}
}

var _ Transport = (*wsConn)(nil)

type wsConn struct {
	name string

	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Name() string { return c.name }

func (c *wsConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(tcpWriteTimeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
