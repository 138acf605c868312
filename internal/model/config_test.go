package model

import (
	"strings"
	"testing"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestConfig_Validate_WeightSum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Validation.ContainmentWeight = 0.5 // sum now 1.15

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for weights not summing to 1")
	}
	if !strings.Contains(err.Error(), "sum to 1.0") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfig_Validate_ThresholdOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Validation.RejectThreshold = 0.70
	cfg.Validation.AcceptThreshold = 0.50

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for reject >= accept")
	}
}

func TestConfig_Validate_StreakSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Foraging.FailuresToDemote = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero failures_to_demote")
	}
}

func TestConfig_Validate_StoreURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.URL = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty store url")
	}
}
