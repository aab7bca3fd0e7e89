package domain

import "errors"

// Sentinel errors forming the engine's error taxonomy. The protocol
// dispatcher maps each to its terse wire token; verbose diagnostics stay
// in the log. None of these are fatal to the engine.
var (
	// Conflict / busy.
	ErrScanInProgress  = errors.New("scan in progress")
	ErrAlreadyDeauth   = errors.New("already deauthing this target")
	ErrAlreadyRunning  = errors.New("already running")

	// Resource exhaustion.
	ErrMaxDeauths = errors.New("deauth concurrency cap reached")
	ErrCapacity   = errors.New("capacity exceeded")

	// Not found.
	ErrInvalidIndex   = errors.New("invalid network index")
	ErrClientNotFound = errors.New("client not found")
	ErrNoNetworks     = errors.New("no networks known")

	// Malformed input.
	ErrInvalidMAC  = errors.New("invalid MAC address")
	ErrInvalidArgs = errors.New("invalid arguments")
	ErrMissingArgs = errors.New("missing arguments")

	// Precondition unmet.
	ErrScanFirst  = errors.New("scan required first")
	ErrNoBaseline = errors.New("baseline required first")

	// Hardware failure.
	ErrAPStartFailed = errors.New("AP start failed")
	ErrBLEFailed     = errors.New("BLE operation failed")
)
