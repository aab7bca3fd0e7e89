// Package config assembles the engine configuration from environment
// variables and command line flags. Flags override the environment.
package config

import (
	"flag"
	"os"
	"strconv"
)

// Config holds all engine configuration.
type Config struct {
	// Interface is the monitor-mode radio interface. Empty runs the
	// simulated transceiver.
	Interface string
	Sim       bool

	// SerialDevice is the control UART wired to the handheld
	// controller; empty disables the serial link.
	SerialDevice string
	SerialBaud   int

	// TCPAddr is the debug control link listener; empty disables it.
	TCPAddr string

	// HTTPAddr serves /metrics and the WebSocket control bridge; empty
	// disables it.
	HTTPAddr string

	// DwellMs is the channel hopper dwell time in milliseconds.
	DwellMs int

	Debug bool
}

// Load parses environment variables and command line flags.
func Load() *Config {
	cfg := &Config{}

	// Defaults and environment variables.
	cfg.Interface = getEnv("GATTROSE_IFACE", "")
	cfg.Sim = getEnvBool("GATTROSE_SIM", false)
	cfg.SerialDevice = getEnv("GATTROSE_SERIAL", "")
	cfg.SerialBaud = getEnvInt("GATTROSE_BAUD", 115200)
	cfg.TCPAddr = getEnv("GATTROSE_TCP", ":3333")
	cfg.HTTPAddr = getEnv("GATTROSE_HTTP", ":8080")
	cfg.DwellMs = getEnvInt("GATTROSE_DWELL", 250)
	cfg.Debug = getEnvBool("GATTROSE_DEBUG", false)

	// Command line flags (override env).
	flag.StringVar(&cfg.Interface, "i", cfg.Interface, "Monitor-mode interface (empty runs the simulator)")
	flag.BoolVar(&cfg.Sim, "sim", cfg.Sim, "Force the simulated transceiver")
	flag.StringVar(&cfg.SerialDevice, "serial", cfg.SerialDevice, "Control UART device (empty disables)")
	flag.IntVar(&cfg.SerialBaud, "baud", cfg.SerialBaud, "Control UART baud rate")
	flag.StringVar(&cfg.TCPAddr, "tcp", cfg.TCPAddr, "Debug control link listen address (empty disables)")
	flag.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "Metrics and WebSocket bridge address (empty disables)")
	flag.IntVar(&cfg.DwellMs, "dwell", cfg.DwellMs, "Channel hopper dwell time in milliseconds")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")

	flag.Parse()

	return cfg
}

// Simulated reports whether the engine should run the simulated
// transceiver instead of real hardware.
func (c *Config) Simulated() bool {
	return c.Sim || c.Interface == ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
