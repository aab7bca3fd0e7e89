package domain

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

// Validation Helpers

var (
	macRegex       = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)
	interfaceRegex = regexp.MustCompile(`^[a-zA-Z0-9\-_]+$`)
)

// IsValidMAC checks if the string is a valid MAC address
func IsValidMAC(mac string) bool {
	return macRegex.MatchString(mac)
}

// IsValidInterface checks if the string is a safe interface name (alphanumeric + - _)
func IsValidInterface(iface string) bool {
	// Length check (Linux interfaces are usually short, IFNAMSIZ is 16)
	if len(iface) == 0 || len(iface) > 16 {
		return false
	}
	return interfaceRegex.MatchString(iface)
}

// NormalizeMAC canonicalizes a MAC address to upper-case colon-separated
// form, the representation used for registry keys and wire records.
func NormalizeMAC(mac string) (string, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	return strings.ToUpper(hw.String()), nil
}

// FormatMAC renders 6 raw bytes as an upper-case colon-separated MAC.
func FormatMAC(b []byte) string {
	if len(b) != 6 {
		return ""
	}
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}

// ParseMAC converts a textual MAC into its 6 raw bytes.
func ParseMAC(mac string) ([6]byte, error) {
	var out [6]byte
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) != 6 {
		return out, fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	copy(out[:], hw)
	return out, nil
}

// CompactMAC strips separators and lower-cases, the form hashcat expects.
func CompactMAC(mac string) string {
	mac = strings.ReplaceAll(mac, ":", "")
	mac = strings.ReplaceAll(mac, "-", "")
	return strings.ToLower(mac)
}

// BroadcastMAC is the all-stations destination.
const BroadcastMAC = "FF:FF:FF:FF:FF:FF"
