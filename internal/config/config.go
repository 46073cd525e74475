// Package config loads the service configuration: a YAML file for the tunables and a
// handful of environment variables for deployment-specific settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProximityConfig controls who counts as nearby.
type ProximityConfig struct {
	NearbyRadiusMeters float64 `yaml:"nearby_radius_m"` // candidate list radius
	ViewRadiusMeters   float64 `yaml:"view_radius_m"`   // radius shown on the map view
}

// PresenceConfig controls the active/inactive lifecycle.
type PresenceConfig struct {
	GracePeriod   time.Duration `yaml:"grace_period"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LocationConfig mirrors the device sampling policy.
type LocationConfig struct {
	MinInterval           time.Duration `yaml:"min_interval"`
	MinDisplacementMeters float64       `yaml:"min_displacement_m"`
	MaxSilence            time.Duration `yaml:"max_silence"`
}

type Config struct {
	HTTPAddr    string          `yaml:"http_addr"`
	LogLevel    string          `yaml:"log_level"`
	LogFormat   string          `yaml:"log_format"` // json or console
	DatabaseURL string          `yaml:"database_url"`
	Proximity   ProximityConfig `yaml:"proximity"`
	Presence    PresenceConfig  `yaml:"presence"`
	Location    LocationConfig  `yaml:"location"`
}

func Default() *Config {
	return &Config{
		HTTPAddr:  ":8081",
		LogLevel:  "info",
		LogFormat: "json",
		Proximity: ProximityConfig{
			NearbyRadiusMeters: 1000,
			ViewRadiusMeters:   100,
		},
		Presence: PresenceConfig{
			GracePeriod:   3 * time.Second,
			StaleAfter:    5 * time.Minute,
			SweepInterval: 30 * time.Second,
		},
		Location: LocationConfig{
			MinInterval:           time.Second,
			MinDisplacementMeters: 1,
			MaxSilence:            30 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path or a missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. getenv is os.Getenv outside tests.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := getenv("NEARBY_NEARBY_RADIUS_M"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("NEARBY_NEARBY_RADIUS_M: %w", err)
		}
		c.Proximity.NearbyRadiusMeters = f
	}
	if v := getenv("NEARBY_VIEW_RADIUS_M"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("NEARBY_VIEW_RADIUS_M: %w", err)
		}
		c.Proximity.ViewRadiusMeters = f
	}
	if v := getenv("NEARBY_GRACE_PERIOD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NEARBY_GRACE_PERIOD: %w", err)
		}
		c.Presence.GracePeriod = d
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http_addr must be set"))
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be json or console", c.LogFormat))
	}
	if c.Proximity.NearbyRadiusMeters <= 0 {
		errs = append(errs, errors.New("proximity.nearby_radius_m must be positive"))
	}
	if c.Proximity.ViewRadiusMeters <= 0 {
		errs = append(errs, errors.New("proximity.view_radius_m must be positive"))
	}
	if c.Presence.GracePeriod < 0 {
		errs = append(errs, errors.New("presence.grace_period must not be negative"))
	}
	if c.Presence.StaleAfter <= c.Presence.GracePeriod {
		errs = append(errs, errors.New("presence.stale_after must exceed presence.grace_period"))
	}
	if c.Presence.SweepInterval <= 0 {
		errs = append(errs, errors.New("presence.sweep_interval must be positive"))
	}
	if c.Location.MinInterval < 0 || c.Location.MinDisplacementMeters < 0 {
		errs = append(errs, errors.New("location thresholds must not be negative"))
	}
	if c.Location.MaxSilence < c.Location.MinInterval {
		errs = append(errs, errors.New("location.max_silence must be at least location.min_interval"))
	}
	return errors.Join(errs...)
}
