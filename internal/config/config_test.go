package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"nearby/core-go/internal/config"
)

func TestDefault(t *testing.T) {
	c := qt.New(t)
	cfg := config.Default()
	c.Assert(cfg.HTTPAddr, qt.Equals, ":8081")
	c.Assert(cfg.LogLevel, qt.Equals, "info")
	c.Assert(cfg.LogFormat, qt.Equals, "json")
	c.Assert(cfg.DatabaseURL, qt.Equals, "")
	c.Assert(cfg.Proximity.NearbyRadiusMeters, qt.Equals, 1000.0)
	c.Assert(cfg.Proximity.ViewRadiusMeters, qt.Equals, 100.0)
	c.Assert(cfg.Presence.GracePeriod, qt.Equals, 3*time.Second)
	c.Assert(cfg.Location.MinInterval, qt.Equals, time.Second)
	c.Assert(cfg.Location.MinDisplacementMeters, qt.Equals, 1.0)
	c.Assert(cfg.Validate(), qt.IsNil)
}

func TestLoad(t *testing.T) {
	c := qt.New(t)

	c.Run("missing file returns defaults", func(c *qt.C) {
		cfg, err := config.Load("/nonexistent/nearby.yaml")
		c.Assert(err, qt.IsNil)
		c.Assert(cfg.Presence.GracePeriod, qt.Equals, 3*time.Second)
	})

	c.Run("empty path returns defaults", func(c *qt.C) {
		cfg, err := config.Load("")
		c.Assert(err, qt.IsNil)
		c.Assert(cfg.HTTPAddr, qt.Equals, ":8081")
	})

	tests := []struct {
		name  string
		yaml  string
		check func(c *qt.C, cfg *config.Config)
	}{
		{
			name: "partial proximity keeps other defaults",
			yaml: "proximity:\n  view_radius_m: 250\n",
			check: func(c *qt.C, cfg *config.Config) {
				c.Assert(cfg.Proximity.ViewRadiusMeters, qt.Equals, 250.0)
				c.Assert(cfg.Proximity.NearbyRadiusMeters, qt.Equals, 1000.0)
			},
		},
		{
			name: "durations parse",
			yaml: "presence:\n  grace_period: 5s\n  stale_after: 10m\nlocation:\n  max_silence: 1m\n",
			check: func(c *qt.C, cfg *config.Config) {
				c.Assert(cfg.Presence.GracePeriod, qt.Equals, 5*time.Second)
				c.Assert(cfg.Presence.StaleAfter, qt.Equals, 10*time.Minute)
				c.Assert(cfg.Presence.SweepInterval, qt.Equals, 30*time.Second)
				c.Assert(cfg.Location.MaxSilence, qt.Equals, time.Minute)
			},
		},
		{
			name: "top level settings",
			yaml: "http_addr: \":9000\"\nlog_level: debug\ndatabase_url: postgres://localhost/nearby\n",
			check: func(c *qt.C, cfg *config.Config) {
				c.Assert(cfg.HTTPAddr, qt.Equals, ":9000")
				c.Assert(cfg.LogLevel, qt.Equals, "debug")
				c.Assert(cfg.DatabaseURL, qt.Equals, "postgres://localhost/nearby")
			},
		},
	}

	for _, tc := range tests {
		c.Run(tc.name, func(c *qt.C) {
			path := filepath.Join(c.TempDir(), "nearby.yaml")
			c.Assert(os.WriteFile(path, []byte(tc.yaml), 0o600), qt.IsNil)
			cfg, err := config.Load(path)
			c.Assert(err, qt.IsNil)
			tc.check(c, cfg)
		})
	}

	c.Run("invalid yaml", func(c *qt.C) {
		path := filepath.Join(c.TempDir(), "nearby.yaml")
		c.Assert(os.WriteFile(path, []byte("proximity: [unclosed"), 0o600), qt.IsNil)
		_, err := config.Load(path)
		c.Assert(err, qt.IsNotNil)
	})
}

func TestApplyEnv(t *testing.T) {
	c := qt.New(t)
	env := map[string]string{
		"HTTP_ADDR":              ":7000",
		"LOG_FORMAT":             "console",
		"DATABASE_URL":           "postgres://db/nearby",
		"NEARBY_NEARBY_RADIUS_M": "1500",
		"NEARBY_GRACE_PERIOD":    "2s",
	}
	cfg := config.Default()
	c.Assert(cfg.ApplyEnv(func(k string) string { return env[k] }), qt.IsNil)
	c.Assert(cfg.HTTPAddr, qt.Equals, ":7000")
	c.Assert(cfg.LogLevel, qt.Equals, "info")
	c.Assert(cfg.LogFormat, qt.Equals, "console")
	c.Assert(cfg.DatabaseURL, qt.Equals, "postgres://db/nearby")
	c.Assert(cfg.Proximity.NearbyRadiusMeters, qt.Equals, 1500.0)
	c.Assert(cfg.Presence.GracePeriod, qt.Equals, 2*time.Second)

	bad := config.Default()
	err := bad.ApplyEnv(func(k string) string {
		if k == "NEARBY_VIEW_RADIUS_M" {
			return "wide"
		}
		return ""
	})
	c.Assert(err, qt.ErrorMatches, "NEARBY_VIEW_RADIUS_M: .*")
}

func TestValidate(t *testing.T) {
	c := qt.New(t)
	cfg := config.Default()
	cfg.Proximity.NearbyRadiusMeters = 0
	cfg.Presence.StaleAfter = time.Second
	err := cfg.Validate()
	c.Assert(err, qt.ErrorMatches, "(?s).*nearby_radius_m.*stale_after.*")

	cfg = config.Default()
	cfg.LogFormat = "xml"
	c.Assert(cfg.Validate(), qt.ErrorMatches, `log_format "xml" must be json or console`)
}
