// This file contains environment variable utilities for configuration override.

package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Flag Utilities
// ─────────────────────────────────────────────────────────────────────────────

// isFlagSet checks if a flag was explicitly set on the command line.
// This is used to determine whether to apply file and environment overrides.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// isFlagSetAny checks if any of the specified flags were explicitly set.
// This is useful for aliased flags where either the short or long form may be used.
func isFlagSetAny(fs *flag.FlagSet, names ...string) bool {
	for _, name := range names {
		if isFlagSet(fs, name) {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Environment Overrides
// ─────────────────────────────────────────────────────────────────────────────

// envOverride declares a single environment variable override.
// Each entry maps an env key (without the POLICYCALC_ prefix) to the CLI flag
// name(s) it corresponds to and a function that applies the env value.
type envOverride struct {
	envKey string
	flags  []string
	apply  func(*AppConfig, string)
}

// envOverrides is the declarative table of all environment variable overrides,
// grouped as numeric, duration, string and bool.
var envOverrides = []envOverride{
	// Numeric overrides
	{"MAX_POLL_ATTEMPTS", []string{"max-poll-attempts"}, func(c *AppConfig, v string) {
		if parsed, err := strconv.Atoi(v); err == nil {
			c.MaxPollAttempts = parsed
		}
	}},
	{"CONCURRENCY", []string{"concurrency"}, func(c *AppConfig, v string) {
		if parsed, err := strconv.Atoi(v); err == nil {
			c.Concurrency = parsed
		}
	}},
	{"RATE_LIMIT", []string{"rate-limit"}, func(c *AppConfig, v string) {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimit = parsed
		}
	}},

	// Duration overrides
	{"POLL_INTERVAL", []string{"poll-interval"}, func(c *AppConfig, v string) {
		if parsed, err := time.ParseDuration(v); err == nil {
			c.PollInterval = parsed
		}
	}},
	{"TIMEOUT", []string{"timeout"}, func(c *AppConfig, v string) {
		if parsed, err := time.ParseDuration(v); err == nil {
			c.Timeout = parsed
		}
	}},

	// String overrides
	{"API_URL", []string{"api-url"}, func(c *AppConfig, v string) { c.APIURL = v }},
	{"COUNTRY", []string{"country"}, func(c *AppConfig, v string) { c.Country = v }},
	{"MODE", []string{"mode"}, func(c *AppConfig, v string) { c.Mode = v }},
	{"YEAR", []string{"year"}, func(c *AppConfig, v string) { c.Year = v }},
	{"PERSIST", []string{"persist"}, func(c *AppConfig, v string) { c.Persist = v }},
	{"SQLITE_PATH", []string{"sqlite-path"}, func(c *AppConfig, v string) { c.SQLitePath = v }},
	{"REDIS_ADDR", []string{"redis-addr"}, func(c *AppConfig, v string) { c.RedisAddr = v }},
	{"LISTEN", []string{"listen"}, func(c *AppConfig, v string) { c.Listen = v }},
	{"LOG_LEVEL", []string{"log-level"}, func(c *AppConfig, v string) { c.LogLevel = v }},
	{"OUTPUT", []string{"output", "o"}, func(c *AppConfig, v string) { c.Output = v }},

	// Boolean overrides
	{"VERBOSE", []string{"v", "verbose"}, func(c *AppConfig, v string) {
		c.Verbose = parseBoolEnv(v, c.Verbose)
	}},
	{"QUIET", []string{"quiet", "q"}, func(c *AppConfig, v string) {
		c.Quiet = parseBoolEnv(v, c.Quiet)
	}},
	{"TUI", []string{"tui"}, func(c *AppConfig, v string) {
		c.TUI = parseBoolEnv(v, c.TUI)
	}},
	{"SERVE", []string{"serve"}, func(c *AppConfig, v string) {
		c.Serve = parseBoolEnv(v, c.Serve)
	}},
	{"NO_COLOR", []string{"no-color"}, func(c *AppConfig, v string) {
		c.NoColor = parseBoolEnv(v, c.NoColor)
	}},
}

// parseBoolEnv parses a boolean environment variable value.
// Accepts "true", "1", "yes" as true; "false", "0", "no" as false (case-insensitive).
// Returns defaultVal if the value is not recognized.
func parseBoolEnv(val string, defaultVal bool) bool {
	switch strings.ToLower(val) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultVal
}

// applyEnvOverrides applies environment variable values to the configuration
// for any flags that were not explicitly set on the command line.
// This implements the priority: CLI flags > Environment variables > Config file > Defaults.
//
// Supported environment variables (all prefixed with POLICYCALC_):
//   - MAX_POLL_ATTEMPTS, CONCURRENCY, RATE_LIMIT, POLL_INTERVAL, TIMEOUT,
//     API_URL, COUNTRY, MODE, YEAR, PERSIST, SQLITE_PATH, REDIS_ADDR, LISTEN,
//     LOG_LEVEL, OUTPUT, VERBOSE, QUIET, TUI, SERVE, NO_COLOR
//   - CONFIG is read separately, before the config file is loaded.
func applyEnvOverrides(config *AppConfig, fs *flag.FlagSet) {
	for _, o := range envOverrides {
		if isFlagSetAny(fs, o.flags...) {
			continue
		}
		if val := os.Getenv(EnvPrefix + o.envKey); val != "" {
			o.apply(config, val)
		}
	}
}
