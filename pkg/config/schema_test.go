package config

import (
	"testing"

	"github.com/librescoot/commwatch/pkg/model"
)

func TestValidateOpenOptionsRejectsBadParity(t *testing.T) {
	err := ValidateOpenOptions(model.AdapterOpenOptions{Parity: "bogus"})
	if err == nil {
		t.Fatal("expected error for invalid parity")
	}
}

func TestValidateOpenOptionsAcceptsDefaults(t *testing.T) {
	opts := model.AdapterOpenOptions{}.WithDefaults()
	if err := ValidateOpenOptions(opts); err != nil {
		t.Fatalf("expected defaulted options to validate, got %v", err)
	}
}

func TestValidateSimulatorConfigRequiresScriptForScriptedMode(t *testing.T) {
	err := ValidateSimulatorConfig(model.SimulatorConfig{Mode: model.SimModeScripted})
	if err == nil {
		t.Fatal("expected error when scripted mode has no script")
	}
}

func TestValidateSimulatorConfigRejectsErrorRateOutOfRange(t *testing.T) {
	err := ValidateSimulatorConfig(model.SimulatorConfig{Mode: model.SimModeLoopback, ErrorRate: 1.5})
	if err == nil {
		t.Fatal("expected error for errorRate > 1")
	}
}

func TestValidateSessionConfigRequiresKnownProtocol(t *testing.T) {
	cfg := SessionConfig{
		Device:   model.DeviceInfo{Type: model.DeviceUART},
		Protocol: "unknown-protocol",
	}
	if err := ValidateSessionConfig(cfg); err == nil {
		t.Fatal("expected error for unrecognized protocol")
	}
}
