// Package transport normalizes five wire-transport families (UART, CAN,
// Ethernet UDP/TCP, SPI, I2C) behind one adapter/handle contract (spec.md
// §4.3), and provides a deterministic simulator for each (spec.md §4.4).
package transport

import (
	"errors"

	"github.com/librescoot/commwatch/pkg/model"
)

// ErrClosed is returned by Write and SetOptions once Close has completed.
var ErrClosed = errors.New("closed")

// ErrDevicePathMissing is returned by Open when a device path/locator is
// required but absent.
var ErrDevicePathMissing = errors.New("device-path-missing")

// ErrUnsupportedOption is returned by Open/SetOptions when a requested
// option has no meaning for the transport, or conflicts with another.
var ErrUnsupportedOption = errors.New("unsupported-option")

// Subscription is the cancellation token returned by Handle.Read.
type Subscription interface {
	Unsubscribe()
}

// Handle is the live, open connection to one wire endpoint.
type Handle interface {
	// Write transmits data as a single logical frame.
	Write(data []byte) error
	// Read registers a subscriber invoked once per received chunk, in
	// registration order. The returned Subscription cancels delivery to
	// this subscriber only.
	Read(callback func(data []byte, meta model.RxMeta)) Subscription
	// SetOptions applies a subset of the original options.
	SetOptions(partial model.AdapterOpenOptions) error
	// Close releases resources, cancels internal timers, and clears
	// subscribers. Idempotent.
	Close() error
	// GetStats returns a snapshot of the handle's counters.
	GetStats() model.AdapterStats
}

// Adapter is the contract every transport family implements.
type Adapter interface {
	// ListDevices enumerates currently visible endpoints. Where
	// enumeration is unsupported, returns a single simulator entry.
	ListDevices() ([]model.DeviceInfo, error)
	// Open acquires the wire for device with the given options.
	Open(device model.DeviceInfo, options model.AdapterOpenOptions) (Handle, error)
	// SupportsSimulation reports whether CreateSimulator is available.
	SupportsSimulation() bool
	// CreateSimulator returns a handle indistinguishable from a real one
	// for read/write semantics, synthesizing or looping back traffic per
	// config.
	CreateSimulator(config model.SimulatorConfig) (Handle, error)
}
