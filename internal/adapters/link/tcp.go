package link

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// tcpWriteTimeout bounds one frame write so a stalled controller cannot
// block the broadcast path.
const tcpWriteTimeout = 5 * time.Second

// TCPServer accepts debug controller connections. Each connection speaks
// the same framed protocol as the UART and is mirrored through the hub
// for as long as it stays healthy.
type TCPServer struct {
	logger  *slog.Logger
	hub     *Hub
	deliver func(cmd []byte)

	mu     sync.Mutex
	lis    net.Listener
	closed bool
}

// NewTCPServer creates a server feeding commands into deliver.
func NewTCPServer(logger *slog.Logger, hub *Hub, deliver func(cmd []byte)) *TCPServer {
	return &TCPServer{
		logger:  logger.With(slog.String("component", "tcplink")),
		hub:     hub,
		deliver: deliver,
	}
}

// Listen binds addr and starts accepting connections.
func (t *TCPServer) Listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	t.mu.Lock()
	t.lis = lis
	t.mu.Unlock()

	t.logger.Info("debug link listening", slog.String("addr", lis.Addr().String()))
	go t.acceptLoop(lis)
	return nil
}

// Addr returns the bound address, nil before Listen.
func (t *TCPServer) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lis == nil {
		return nil
	}
	return t.lis.Addr()
}

// Close stops accepting and detaches nothing: live connections are owned
// by the hub and die with it or with their own reads.
func (t *TCPServer) Close() error {
	t.mu.Lock()
	t.closed = true
	lis := t.lis
	t.mu.Unlock()

	if lis == nil {
		return nil
	}
	return lis.Close()
}

func (t *TCPServer) acceptLoop(lis net.Listener) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				t.logger.Warn("accept failed", slog.String("error", err.Error()))
			}
			return
		}
		link := &tcpConn{
			name: "tcp:" + conn.RemoteAddr().String(),
			conn: conn,
		}
		t.hub.Attach(link)
		go t.serve(link)
	}
}

// serve reads framed commands from one connection until it drops, then
// detaches it from the hub.
func (t *TCPServer) serve(link *tcpConn) {
	defer func() {
		t.hub.Detach(link)
		link.Close()
	}()

	var fr Framer
	buf := make([]byte, 256)
	for {
		n, err := link.conn.Read(buf)
		if err != nil {
			return
		}
		for _, cmd := range fr.Push(buf[:n]) {
			t.deliver(cmd)
		}
	}
}

var _ Transport = (*tcpConn)(nil)

type tcpConn struct {
	name string

	mu   sync.Mutex
	conn net.Conn
}

func (c *tcpConn) Name() string { return c.name }

func (c *tcpConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(tcpWriteTimeout))
	_, err := c.conn.Write(frame)
	return err
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}
