// Package config validates device, protocol, and session configuration
// structs before they reach the transport and codec layers, using struct
// tags rather than hand-rolled field checks.
package config

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/librescoot/commwatch/pkg/model"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
	})
	return validate
}

// ValidateOpenOptions applies the struct tags on model.AdapterOpenOptions
// (baud rate, data bits, parity, CAN filters, ethernet protocol, ...) and
// returns every violation joined into one error.
func ValidateOpenOptions(o model.AdapterOpenOptions) error {
	if err := instance().Struct(o); err != nil {
		return fmt.Errorf("config: invalid open options: %w", err)
	}
	return nil
}

// ValidateSimulatorConfig applies the struct tags on
// model.SimulatorConfig (mode, error rate range, burst sizing).
func ValidateSimulatorConfig(c model.SimulatorConfig) error {
	if err := instance().Struct(c); err != nil {
		return fmt.Errorf("config: invalid simulator config: %w", err)
	}
	if c.Mode == model.SimModeScripted && c.Script == nil {
		return fmt.Errorf("config: scripted mode requires a script")
	}
	return nil
}

// SessionConfig is the top-level configuration accepted by the CLI and by
// embedders: which device to open, with what options, and which protocol
// decodes its traffic.
type SessionConfig struct {
	Device   model.DeviceInfo          `json:"device" validate:"required"`
	Options  model.AdapterOpenOptions  `json:"options"`
	Protocol string                    `json:"protocol" validate:"required,oneof=efuse cobs slip hex ascii"`
	Simulate *model.SimulatorConfig    `json:"simulate,omitempty"`
}

// ValidateSessionConfig validates c as a whole, including nested options
// and simulator config when present.
func ValidateSessionConfig(c SessionConfig) error {
	if err := instance().Struct(c); err != nil {
		return fmt.Errorf("config: invalid session config: %w", err)
	}
	if err := ValidateOpenOptions(c.Options); err != nil {
		return err
	}
	if c.Simulate != nil {
		if err := ValidateSimulatorConfig(*c.Simulate); err != nil {
			return err
		}
	}
	return nil
}
