package config

import (
	"os"
	"testing"
)

func TestLoad_RequiresTrackerBaseURL(t *testing.T) {
	os.Unsetenv("TRACKER_BASE_URL")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when TRACKER_BASE_URL is missing")
	}
}

func TestLoad_WithTrackerBaseURL(t *testing.T) {
	os.Setenv("TRACKER_BASE_URL", "https://tracker.example.org")
	defer os.Unsetenv("TRACKER_BASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.TrackerBaseURL != "https://tracker.example.org" {
		t.Errorf("expected TRACKER_BASE_URL to be set, got %s", cfg.TrackerBaseURL)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}

	if cfg.HTTPTimeoutSeconds != 30 {
		t.Errorf("expected default timeout 30, got %d", cfg.HTTPTimeoutSeconds)
	}

	if cfg.AuditLogEnabled() {
		t.Error("expected audit log to be disabled without DATABASE_URL")
	}
}

func validConfig() *Config {
	return &Config{
		Env:                "production",
		TrackerBaseURL:     "https://tracker.example.org",
		TrackerUsername:    "importer",
		TrackerPassword:    "secret",
		OrgUnit:            "OU7gqVbYp2c",
		Program:            "PrHIVrisk01",
		ProgramStage:       "PsScreening",
		TrackedEntityType:  "TePerson001",
		HTTPTimeoutSeconds: 30,
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestConfig_Validate_RejectsBadScheme(t *testing.T) {
	cfg := validConfig()
	cfg.TrackerBaseURL = "ftp://tracker.example.org"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http scheme")
	}
}

func TestConfig_Validate_RequiresCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.TrackerPassword = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when credentials are missing")
	}
}

func TestConfig_Validate_RequiresProgramIdentifiers(t *testing.T) {
	for _, clear := range []func(*Config){
		func(c *Config) { c.OrgUnit = "" },
		func(c *Config) { c.Program = "" },
		func(c *Config) { c.ProgramStage = "" },
		func(c *Config) { c.TrackedEntityType = "" },
	} {
		cfg := validConfig()
		clear(cfg)
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing program identifier")
		}
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}
