// Package link carries the control protocol between the engine and its
// controllers: STX/ETX framed commands in, typed responses out, every
// response mirrored to all attached transports.
package link

// Control bytes of the wire protocol.
const (
	// STX opens a frame, ETX closes it.
	STX = 0x02
	ETX = 0x03

	// SEP is the field separator some controllers send instead of '|'.
	// The framer accepts either; the engine always emits '|'.
	SEP = 0x1D
)

// maxCommandLen bounds one inbound command between STX and ETX. The
// longest legal command is the AP config (ssid, passphrase and channel),
// which stays well under this.
const maxCommandLen = 128

// Framer reassembles framed commands from an arbitrary byte stream.
// STX always restarts the frame, bytes outside a frame are discarded, and
// an overlong frame is truncated rather than rejected so a noisy line
// cannot wedge the parser. Partial frames persist across Push calls.
type Framer struct {
	buf  []byte
	open bool
}

// Push consumes a chunk of received bytes and returns the commands it
// completed, in arrival order.
func (f *Framer) Push(data []byte) [][]byte {
	var out [][]byte
	for _, b := range data {
		switch b {
		case STX:
			f.open = true
			f.buf = f.buf[:0]
		case ETX:
			if !f.open {
				continue
			}
			cmd := make([]byte, len(f.buf))
			copy(cmd, f.buf)
			out = append(out, cmd)
			f.open = false
			f.buf = f.buf[:0]
		case SEP:
			f.append('|')
		default:
			f.append(b)
		}
	}
	return out
}

func (f *Framer) append(b byte) {
	if !f.open || len(f.buf) >= maxCommandLen {
		return
	}
	f.buf = append(f.buf, b)
}

// Frame encodes one response of the given type byte and payload.
func Frame(typ byte, payload string) []byte {
	out := make([]byte, 0, len(payload)+4)
	out = append(out, STX, typ)
	if payload != "" {
		out = append(out, ' ')
		out = append(out, payload...)
	}
	out = append(out, ETX)
	return out
}
