package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string `mapstructure:"PORT"`
	Env                string `mapstructure:"ENV"`
	TrackerBaseURL     string `mapstructure:"TRACKER_BASE_URL"`
	TrackerUsername    string `mapstructure:"TRACKER_USERNAME"`
	TrackerPassword    string `mapstructure:"TRACKER_PASSWORD"`
	OrgUnit            string `mapstructure:"ORG_UNIT"`
	Program            string `mapstructure:"PROGRAM"`
	ProgramStage       string `mapstructure:"PROGRAM_STAGE"`
	TrackedEntityType  string `mapstructure:"TRACKED_ENTITY_TYPE"`
	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32  `mapstructure:"DB_MIN_CONNS"`
	APISecret          string `mapstructure:"API_SECRET"`
	HTTPTimeoutSeconds int    `mapstructure:"HTTP_TIMEOUT_SECONDS"`
	MappingFile        string `mapstructure:"MAPPING_FILE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("TRACKER_BASE_URL")
	v.BindEnv("TRACKER_USERNAME")
	v.BindEnv("TRACKER_PASSWORD")
	v.BindEnv("ORG_UNIT")
	v.BindEnv("PROGRAM")
	v.BindEnv("PROGRAM_STAGE")
	v.BindEnv("TRACKED_ENTITY_TYPE")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("API_SECRET")
	v.BindEnv("HTTP_TIMEOUT_SECONDS")
	v.BindEnv("MAPPING_FILE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.TrackerBaseURL == "" {
		return nil, fmt.Errorf("TRACKER_BASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// AuditLogEnabled reports whether per-run outcomes should be persisted to
// Postgres. The import pipeline itself never requires a database; the audit
// log is an optional sink enabled by configuring DATABASE_URL.
func (c *Config) AuditLogEnabled() bool {
	return c.DatabaseURL != ""
}

// Validate checks that the configuration is safe to run an import with.
// The tracker base URL must be a well-formed http(s) URL and the target
// program identifiers must be present, since every upserted record is
// attached to the fixed program and program stage.
func (c *Config) Validate() error {
	u, err := url.Parse(c.TrackerBaseURL)
	if err != nil {
		return fmt.Errorf("TRACKER_BASE_URL is not a valid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("TRACKER_BASE_URL scheme must be http or https, got %q", u.Scheme)
	}
	if c.TrackerUsername == "" || c.TrackerPassword == "" {
		return fmt.Errorf("TRACKER_USERNAME and TRACKER_PASSWORD are required to authenticate against the tracker store")
	}
	if c.OrgUnit == "" {
		return fmt.Errorf("ORG_UNIT is required")
	}
	if c.Program == "" {
		return fmt.Errorf("PROGRAM is required")
	}
	if c.ProgramStage == "" {
		return fmt.Errorf("PROGRAM_STAGE is required")
	}
	if c.TrackedEntityType == "" {
		return fmt.Errorf("TRACKED_ENTITY_TYPE is required")
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive, got %d", c.HTTPTimeoutSeconds)
	}
	return nil
}
