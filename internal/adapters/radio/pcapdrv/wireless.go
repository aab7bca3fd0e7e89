package pcapdrv

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// SetInterfaceChannel retunes a monitor-mode interface with iw.
func SetInterfaceChannel(iface string, channel int) error {
	if channel <= 0 {
		return fmt.Errorf("invalid channel %d", channel)
	}
	cmd := exec.Command("iw", iface, "set", "channel", strconv.Itoa(channel))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("set channel %d on %s: %w (%s)", channel, iface, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// EnableMonitorMode cycles the interface down, switches it to monitor
// type and brings it back up. The channel is parked on 6 so the card is
// listening somewhere sane before the first retune.
func EnableMonitorMode(iface string) error {
	if err := runCmd("ip", "link", "set", iface, "down"); err != nil {
		return err
	}
	if err := runCmd("iw", iface, "set", "type", "monitor"); err != nil {
		return fmt.Errorf("monitor mode on %s: %w (conflicting processes? try stopping NetworkManager)", iface, err)
	}
	_ = runCmd("iw", iface, "set", "channel", "6")
	return runCmd("ip", "link", "set", iface, "up")
}

// DisableMonitorMode restores managed mode, best effort.
func DisableMonitorMode(iface string) {
	_ = runCmd("ip", "link", "set", iface, "down")
	_ = runCmd("iw", iface, "set", "type", "managed")
	_ = runCmd("ip", "link", "set", iface, "up")
}

// KillConflictingProcesses stops the network daemons that fight over
// the interface while it is in monitor mode.
func KillConflictingProcesses() error {
	for _, args := range [][]string{
		{"systemctl", "stop", "NetworkManager"},
		{"systemctl", "stop", "wpa_supplicant"},
	} {
		if err := runCmd(args[0], args[1:]...); err != nil {
			return err
		}
	}
	return nil
}

// RestoreNetworkServices restarts what KillConflictingProcesses stopped.
// All commands run even when one fails; the last error wins.
func RestoreNetworkServices() error {
	var lastErr error
	for _, args := range [][]string{
		{"systemctl", "start", "wpa_supplicant"},
		{"systemctl", "start", "NetworkManager"},
	} {
		if err := runCmd(args[0], args[1:]...); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// InterfaceChannels asks iw which channels the card behind iface
// supports, skipping disabled frequencies.
func InterfaceChannels(iface string) ([]int, error) {
	out, err := exec.Command("iw", "dev").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("iw dev: %w", err)
	}
	phy, err := parsePhyName(out, iface)
	if err != nil {
		return nil, err
	}

	info, err := exec.Command("iw", "phy", phy, "info").Output()
	if err != nil {
		return nil, fmt.Errorf("iw phy %s info: %w", phy, err)
	}
	channels := parsePhyChannels(info)
	if len(channels) == 0 {
		return nil, fmt.Errorf("no usable channels reported for %s", phy)
	}
	return channels, nil
}

// parsePhyName maps an interface name to its phy in `iw dev` output,
// where interfaces are listed under "phy#N" headers.
func parsePhyName(out []byte, iface string) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	currentPhy := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "phy#") {
			currentPhy = strings.Replace(line, "#", "", 1)
		} else if strings.HasPrefix(line, "Interface ") && strings.TrimPrefix(line, "Interface ") == iface {
			if currentPhy == "" {
				break
			}
			return currentPhy, nil
		}
	}
	return "", fmt.Errorf("interface %s not found in iw dev output", iface)
}

// channelRe captures the channel number from a frequency line, e.g.
// "* 2412 MHz [1] (20.0 dBm)".
var channelRe = regexp.MustCompile(`\[([0-9]+)\]`)

// parsePhyChannels extracts enabled channels from `iw phy X info`. Only
// lines inside a Frequencies block count; Bitrates blocks also use the
// leading asterisk.
func parsePhyChannels(out []byte) []int {
	var channels []int
	seen := map[int]bool{}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	inFrequencies := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "Frequencies:" {
			inFrequencies = true
			continue
		}
		if !inFrequencies {
			continue
		}
		if !strings.HasPrefix(line, "*") {
			inFrequencies = false
			continue
		}
		if strings.Contains(line, "(disabled)") {
			continue
		}
		m := channelRe.FindStringSubmatch(line)
		if len(m) < 2 {
			continue
		}
		ch, err := strconv.Atoi(m[1])
		if err != nil || seen[ch] {
			continue
		}
		seen[ch] = true
		channels = append(channels, ch)
	}
	return channels
}

func runCmd(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
