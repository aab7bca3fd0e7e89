package link

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(cmd string) []byte {
	return append(append([]byte{STX}, cmd...), ETX)
}

func TestFramerSingleFrame(t *testing.T) {
	var f Framer

	cmds := f.Push(frame("s5000"))
	require.Len(t, cmds, 1)
	assert.Equal(t, "s5000", string(cmds[0]))
}

func TestFramerSplitAcrossReads(t *testing.T) {
	var f Framer

	// One byte per read, the worst a slow UART can do.
	raw := frame("d0-7-AA:BB:CC:DD:EE:FF")
	var got [][]byte
	for _, b := range raw {
		got = append(got, f.Push([]byte{b})...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "d0-7-AA:BB:CC:DD:EE:FF", string(got[0]))
}

func TestFramerMultipleFramesOneChunk(t *testing.T) {
	var f Framer

	chunk := append(frame("g"), frame("c")...)
	chunk = append(chunk, frame("i")...)
	cmds := f.Push(chunk)
	require.Len(t, cmds, 3)
	assert.Equal(t, "g", string(cmds[0]))
	assert.Equal(t, "c", string(cmds[1]))
	assert.Equal(t, "i", string(cmds[2]))
}

func TestFramerIgnoresBytesOutsideFrames(t *testing.T) {
	var f Framer

	noisy := append([]byte("garbage\r\n"), frame("x")...)
	noisy = append(noisy, []byte("trailing junk")...)
	cmds := f.Push(noisy)
	require.Len(t, cmds, 1)
	assert.Equal(t, "x", string(cmds[0]))

	// A lone ETX with no frame open yields nothing.
	assert.Empty(t, f.Push([]byte{ETX, ETX}))
}

func TestFramerSTXRestartsFrame(t *testing.T) {
	var f Framer

	// The first frame is abandoned when a new STX arrives before ETX.
	raw := []byte{STX}
	raw = append(raw, "dropp"...)
	raw = append(raw, frame("m1")...)
	cmds := f.Push(raw)
	require.Len(t, cmds, 1)
	assert.Equal(t, "m1", string(cmds[0]))
}

func TestFramerTruncatesOversizeFrame(t *testing.T) {
	var f Framer

	long := strings.Repeat("A", maxCommandLen+40)
	cmds := f.Push(frame(long))
	require.Len(t, cmds, 1)
	assert.Len(t, cmds[0], maxCommandLen)
	assert.Equal(t, strings.Repeat("A", maxCommandLen), string(cmds[0]))

	// The parser is not wedged: the next frame comes through intact.
	cmds = f.Push(frame("i"))
	require.Len(t, cmds, 1)
	assert.Equal(t, "i", string(cmds[0]))
}

func TestFramerNormalizesSeparator(t *testing.T) {
	var f Framer

	raw := []byte{STX, 'a', 'C', 'a', 'f', 'e', SEP, 'p', 'w', SEP, '6', ETX}
	cmds := f.Push(raw)
	require.Len(t, cmds, 1)
	assert.Equal(t, "aCafe|pw|6", string(cmds[0]))
}

func TestFramerEmptyCommand(t *testing.T) {
	var f Framer

	cmds := f.Push([]byte{STX, ETX})
	require.Len(t, cmds, 1)
	assert.Empty(t, cmds[0])
}

func TestFrameEncoding(t *testing.T) {
	assert.Equal(t, []byte{STX, 's', ' ', 'S', 'C', 'A', 'N', 'N', 'I', 'N', 'G', ETX}, Frame('s', "SCANNING"))
	assert.Equal(t, []byte{STX, 'i', ETX}, Frame('i', ""))

	// A framed response survives its own framer round trip.
	var f Framer
	cmds := f.Push(Frame('e', "INVALID_ARGS"))
	require.Len(t, cmds, 1)
	assert.True(t, bytes.Equal([]byte("e INVALID_ARGS"), cmds[0]))
}
