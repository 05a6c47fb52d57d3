package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// VendorEndpoint is the connection configuration for one EHR vendor.
// A vendor with an empty BaseURL is not wired.
type VendorEndpoint struct {
	BaseURL     string
	AccessToken string
}

func (v VendorEndpoint) Configured() bool {
	return v.BaseURL != ""
}

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	DefaultEHRSystem string        `mapstructure:"DEFAULT_EHR_SYSTEM"`
	EHRHTTPTimeout   time.Duration `mapstructure:"EHR_HTTP_TIMEOUT"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`

	Epic     VendorEndpoint
	Cerner   VendorEndpoint
	Veradigm VendorEndpoint
}

// FallbackEHRSystem is the vendor used when DEFAULT_EHR_SYSTEM is missing
// or unrecognized. The fallback is deliberate: existing AR-glasses builds
// expect the gateway to come up even with a bad default, so invalid
// configuration is reported loudly at startup but does not abort it.
const FallbackEHRSystem = "epic"

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8090")
	v.SetDefault("ENV", "development")
	v.SetDefault("DEFAULT_EHR_SYSTEM", FallbackEHRSystem)
	v.SetDefault("EHR_HTTP_TIMEOUT", "30s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DEFAULT_EHR_SYSTEM")
	v.BindEnv("EHR_HTTP_TIMEOUT")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("EPIC_FHIR_BASE_URL")
	v.BindEnv("EPIC_ACCESS_TOKEN")
	v.BindEnv("CERNER_FHIR_BASE_URL")
	v.BindEnv("CERNER_ACCESS_TOKEN")
	v.BindEnv("VERADIGM_FHIR_BASE_URL")
	v.BindEnv("VERADIGM_ACCESS_TOKEN")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Epic = VendorEndpoint{
		BaseURL:     v.GetString("EPIC_FHIR_BASE_URL"),
		AccessToken: v.GetString("EPIC_ACCESS_TOKEN"),
	}
	cfg.Cerner = VendorEndpoint{
		BaseURL:     v.GetString("CERNER_FHIR_BASE_URL"),
		AccessToken: v.GetString("CERNER_ACCESS_TOKEN"),
	}
	cfg.Veradigm = VendorEndpoint{
		BaseURL:     v.GetString("VERADIGM_FHIR_BASE_URL"),
		AccessToken: v.GetString("VERADIGM_ACCESS_TOKEN"),
	}

	if !cfg.Epic.Configured() && !cfg.Cerner.Configured() && !cfg.Veradigm.Configured() {
		log.Println("WARNING: no EHR vendor endpoints configured; every lookup will return empty results")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks settings that must be coherent before serving. An
// unrecognized DEFAULT_EHR_SYSTEM is not an error here; the caller
// resolves it with a warning and falls back.
func (c *Config) Validate() error {
	if c.EHRHTTPTimeout < 0 {
		return fmt.Errorf("EHR_HTTP_TIMEOUT must not be negative, got %s", c.EHRHTTPTimeout)
	}
	if c.Epic.Configured() && c.Epic.AccessToken == "" {
		return fmt.Errorf("EPIC_ACCESS_TOKEN is required when EPIC_FHIR_BASE_URL is set")
	}
	if c.Cerner.Configured() && c.Cerner.AccessToken == "" {
		return fmt.Errorf("CERNER_ACCESS_TOKEN is required when CERNER_FHIR_BASE_URL is set")
	}
	if c.Veradigm.Configured() && c.Veradigm.AccessToken == "" {
		return fmt.Errorf("VERADIGM_ACCESS_TOKEN is required when VERADIGM_FHIR_BASE_URL is set")
	}
	return nil
}
