package config

import (
	"flag"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/agbru/policycalc/internal/errors"
)

// ReportConfig lists the simulations of one report.
type ReportConfig struct {
	Simulations []string `yaml:"simulations"`
	Year        string   `yaml:"year"`
}

// FileConfig is the YAML configuration file. Every field is optional; unset
// fields leave the flag defaults in place.
type FileConfig struct {
	APIURL          string                  `yaml:"api_url"`
	Country         string                  `yaml:"country"`
	Mode            string                  `yaml:"mode"`
	PollInterval    string                  `yaml:"poll_interval"`
	Timeout         string                  `yaml:"timeout"`
	MaxPollAttempts int                     `yaml:"max_poll_attempts"`
	Concurrency     int                     `yaml:"concurrency"`
	RateLimit       float64                 `yaml:"rate_limit"`
	Persist         string                  `yaml:"persist"`
	SQLitePath      string                  `yaml:"sqlite_path"`
	RedisAddr       string                  `yaml:"redis_addr"`
	Listen          string                  `yaml:"listen"`
	LogLevel        string                  `yaml:"log_level"`
	Units           []string                `yaml:"units"`
	Reports         map[string]ReportConfig `yaml:"reports"`

	pollInterval time.Duration
	timeout      time.Duration
}

// LoadFile reads and decodes a YAML configuration file.
func LoadFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, apperrors.NewConfigError("failed to read the config file %s: %v", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return FileConfig{}, apperrors.NewConfigError("failed to parse the config file %s: %v", path, err)
	}
	if fc.PollInterval != "" {
		if fc.pollInterval, err = time.ParseDuration(fc.PollInterval); err != nil {
			return FileConfig{}, apperrors.NewConfigError("poll_interval: %v", err)
		}
	}
	if fc.Timeout != "" {
		if fc.timeout, err = time.ParseDuration(fc.Timeout); err != nil {
			return FileConfig{}, apperrors.NewConfigError("timeout: %v", err)
		}
	}
	for id, r := range fc.Reports {
		if len(r.Simulations) == 0 {
			return FileConfig{}, apperrors.NewConfigError("report %q lists no simulations", id)
		}
	}
	return fc, nil
}

// apply copies the file values into c for every flag not set on the command
// line.
func (fc FileConfig) apply(c *AppConfig, fs *flag.FlagSet) {
	setString := func(dst *string, v string, flags ...string) {
		if v != "" && !isFlagSetAny(fs, flags...) {
			*dst = v
		}
	}
	setString(&c.APIURL, fc.APIURL, "api-url")
	setString(&c.Country, fc.Country, "country")
	setString(&c.Mode, fc.Mode, "mode")
	setString(&c.Persist, fc.Persist, "persist")
	setString(&c.SQLitePath, fc.SQLitePath, "sqlite-path")
	setString(&c.RedisAddr, fc.RedisAddr, "redis-addr")
	setString(&c.Listen, fc.Listen, "listen")
	setString(&c.LogLevel, fc.LogLevel, "log-level")

	if fc.pollInterval > 0 && !isFlagSet(fs, "poll-interval") {
		c.PollInterval = fc.pollInterval
	}
	if fc.timeout > 0 && !isFlagSet(fs, "timeout") {
		c.Timeout = fc.timeout
	}
	if fc.MaxPollAttempts > 0 && !isFlagSet(fs, "max-poll-attempts") {
		c.MaxPollAttempts = fc.MaxPollAttempts
	}
	if fc.Concurrency > 0 && !isFlagSet(fs, "concurrency") {
		c.Concurrency = fc.Concurrency
	}
	if fc.RateLimit > 0 && !isFlagSet(fs, "rate-limit") {
		c.RateLimit = fc.RateLimit
	}
	if len(fc.Units) > 0 {
		c.Units = append([]string(nil), fc.Units...)
	}
	if len(fc.Reports) > 0 {
		c.Reports = make(map[string]ReportConfig, len(fc.Reports))
		for id, r := range fc.Reports {
			c.Reports[id] = r
		}
	}
}
