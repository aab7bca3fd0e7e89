package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandshakeCompletion(t *testing.T) {
	e := &HandshakeEntry{APMAC: "AA:BB:CC:DD:EE:FF", ClientMAC: "11:22:33:44:55:66"}

	e.MarkMessage(1)
	assert.False(t, e.Complete, "message 1 alone is not enough")

	e.MarkMessage(2)
	assert.True(t, e.Complete, "messages 1+2 complete the pair")

	e2 := &HandshakeEntry{}
	e2.MarkMessage(2)
	assert.False(t, e2.Complete)
	e2.MarkMessage(3)
	assert.True(t, e2.Complete, "messages 2+3 complete the pair")

	e3 := &HandshakeEntry{}
	e3.MarkMessage(1)
	e3.MarkMessage(3)
	assert.False(t, e3.Complete, "1+3 lacks the station's message 2")
}

func TestHandshakeMessageMask(t *testing.T) {
	e := &HandshakeEntry{}
	e.MarkMessage(1)
	e.MarkMessage(4)
	assert.True(t, e.HasMessage(1))
	assert.False(t, e.HasMessage(2))
	assert.True(t, e.HasMessage(4))
	assert.Equal(t, HSMsg1|HSMsg4, e.MsgMask)

	// Out-of-range messages are ignored.
	e.MarkMessage(0)
	e.MarkMessage(5)
	assert.Equal(t, HSMsg1|HSMsg4, e.MsgMask)
}

func TestPMKIDHashcatLine(t *testing.T) {
	e := &PMKIDEntry{
		APMAC:     "AA:BB:CC:DD:EE:FF",
		ClientMAC: "11:22:33:44:55:66",
		SSID:      "HomeNet",
	}
	copy(e.PMKID[:], []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10})

	line := e.HashcatLine()
	assert.Equal(t,
		"0102030405060708090a0b0c0d0e0f10*aabbccddeeff*112233445566*486f6d654e6574",
		line)
}

func TestIsHiddenSSID(t *testing.T) {
	assert.True(t, IsHiddenSSID(""))
	assert.True(t, IsHiddenSSID(string([]byte{0, 0, 0})))
	assert.False(t, IsHiddenSSID("Visible"))
}

func TestNetworkAddClient(t *testing.T) {
	n := &Network{SSID: "Net"}
	for i := 0; i < MaxClientsPerAP; i++ {
		mac := FormatMAC([]byte{0x02, 0, 0, 0, 0, byte(i)})
		assert.True(t, n.AddClient(mac, -40-i))
	}
	assert.Equal(t, MaxClientsPerAP, n.ClientCount())

	// Past the bound: rejected.
	assert.False(t, n.AddClient("02:00:00:00:01:00", -70))

	// Existing MAC updates in place without growing.
	first := FormatMAC([]byte{0x02, 0, 0, 0, 0, 0})
	assert.True(t, n.AddClient(first, -30))
	assert.Equal(t, MaxClientsPerAP, n.ClientCount())
	assert.Equal(t, -30, n.Clients[0].RSSI)
}
