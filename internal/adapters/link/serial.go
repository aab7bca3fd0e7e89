package link

import (
	"fmt"
	"log/slog"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaud is the UART rate the stock controller firmware expects.
const DefaultBaud = 115200

var _ Transport = (*SerialLink)(nil)

// SerialLink is the primary control link: the UART wired to the handheld
// controller. One goroutine reads commands; writes are serialized so
// mirrored responses never interleave mid-frame.
type SerialLink struct {
	logger *slog.Logger
	name   string
	port   serial.Port

	wmu sync.Mutex
}

// OpenSerial opens the control UART at 8N1.
func OpenSerial(logger *slog.Logger, device string, baud int) (*SerialLink, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	return &SerialLink{
		logger: logger.With(
			slog.String("component", "serial"),
			slog.String("device", device)),
		name: "serial:" + device,
		port: port,
	}, nil
}

func (s *SerialLink) Name() string { return s.name }

// Send writes one frame to the UART.
func (s *SerialLink) Send(frame []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := s.port.Write(frame)
	return err
}

// Close closes the port, which also ends ReadLoop.
func (s *SerialLink) Close() error {
	return s.port.Close()
}

// ReadLoop pumps received bytes through the framer into deliver until the
// port errors or is closed. It blocks; run it on its own goroutine.
func (s *SerialLink) ReadLoop(deliver func(cmd []byte)) {
	var fr Framer
	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		if err != nil {
			s.logger.Warn("serial read ended", slog.String("error", err.Error()))
			return
		}
		for _, cmd := range fr.Push(buf[:n]) {
			deliver(cmd)
		}
	}
}
