package config

import (
	"testing"
)

// TestGetDefaults tests the default configuration values
func TestGetDefaults(t *testing.T) {
	cfg := GetDefaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if !cfg.Masking.Enabled {
		t.Error("masking disabled by default")
	}
	if cfg.Masking.Pattern != "***MASKED***" {
		t.Errorf("default pattern = %q", cfg.Masking.Pattern)
	}
	if cfg.Cache.Enabled {
		t.Error("cache enabled by default")
	}
	if cfg.Audit.Enabled {
		t.Error("audit enabled by default")
	}
	if cfg.Server.MaxBodyBytes != 10<<20 {
		t.Errorf("default max body bytes = %d, want %d", cfg.Server.MaxBodyBytes, 10<<20)
	}

	if err := validateConfig(cfg); err != nil {
		t.Errorf("default configuration is invalid: %v", err)
	}
}

// TestValidateConfig tests configuration validation rules
func TestValidateConfig(t *testing.T) {
	t.Run("RejectsInvalidPort", func(t *testing.T) {
		cfg := GetDefaults()
		cfg.Server.Port = 0
		if err := validateConfig(cfg); err == nil {
			t.Error("port 0 accepted")
		}
		cfg.Server.Port = 70000
		if err := validateConfig(cfg); err == nil {
			t.Error("port 70000 accepted")
		}
	})

	t.Run("RejectsEmptyPatternWhenEnabled", func(t *testing.T) {
		cfg := GetDefaults()
		cfg.Masking.Pattern = ""
		if err := validateConfig(cfg); err == nil {
			t.Error("empty pattern accepted with masking enabled")
		}

		cfg.Masking.Enabled = false
		if err := validateConfig(cfg); err != nil {
			t.Errorf("empty pattern rejected with masking disabled: %v", err)
		}
	})

	t.Run("RejectsInvalidRateLimit", func(t *testing.T) {
		cfg := GetDefaults()
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.RequestsPerSecond = 0
		if err := validateConfig(cfg); err == nil {
			t.Error("zero requests per second accepted")
		}
	})

	t.Run("RejectsInvalidLogging", func(t *testing.T) {
		cfg := GetDefaults()
		cfg.Logging.Level = "verbose"
		if err := validateConfig(cfg); err == nil {
			t.Error("invalid log level accepted")
		}

		cfg = GetDefaults()
		cfg.Logging.Format = "xml"
		if err := validateConfig(cfg); err == nil {
			t.Error("invalid log format accepted")
		}
	})
}
