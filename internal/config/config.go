// Package config defines the application configuration and how it is parsed
// from command-line flags, POLICYCALC_* environment variables and an
// optional YAML file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/agbru/policycalc/internal/errors"
)

// EnvPrefix is the prefix of every environment variable read by ParseConfig.
const EnvPrefix = "POLICYCALC_"

// Run modes.
const (
	ModeHousehold   = "household"
	ModeSocietyWide = "societyWide"
	ModeDistricts   = "districts"
)

// Persistence backends.
const (
	PersistNone   = "none"
	PersistAPI    = "api"
	PersistSQLite = "sqlite"
)

// Defaults.
const (
	DefaultAPIURL          = "https://api.policyengine.org"
	DefaultCountry         = "us"
	DefaultPollInterval    = time.Second
	DefaultTimeout         = 15 * time.Minute
	DefaultListen          = ":8080"
	DefaultSQLitePath      = "policycalc.db"
	DefaultMaxPollAttempts = 300
	DefaultLogLevel        = "info"
)

// AppConfig aggregates the application's configuration parameters.
type AppConfig struct {
	// ConfigFile is the optional YAML file supplying defaults.
	ConfigFile string

	// APIURL is the base URL of the policy simulation API.
	APIURL string
	// Country is the country id sent to the API, e.g. "us" or "uk".
	Country string
	// Mode selects household, societyWide or districts (per-state fan-out).
	Mode string
	// CalcID identifies the calculation. A random id is generated when empty.
	CalcID string
	// Target is "simulation" or "report".
	Target string
	// Population is the household id or geography of the calculation.
	Population string
	// Baseline and Reform are the policy ids.
	Baseline string
	Reform   string
	// Region restricts a society-wide calculation.
	Region string
	// Year is the time period of the calculation.
	Year string
	// ReportID is the parent report of a simulation.
	ReportID string

	// PollInterval is the fixed interval between two status polls.
	PollInterval time.Duration
	// Timeout bounds the whole run.
	Timeout time.Duration
	// MaxPollAttempts bounds the polls of each fan-out unit.
	MaxPollAttempts int
	// Concurrency bounds the fan-out units in flight. Zero picks an estimate.
	Concurrency int
	// RateLimit caps backend requests per second. Zero disables the limit.
	RateLimit float64

	// Persist selects where completed results are written.
	Persist string
	// SQLitePath is the ledger used when Persist is "sqlite".
	SQLitePath string
	// RedisAddr enables the Redis status mirror when set.
	RedisAddr string

	// Serve starts the HTTP read side instead of running one calculation.
	Serve bool
	// Listen is the address of the HTTP read side.
	Listen string
	// TUI enables the interactive dashboard.
	TUI bool
	// Quiet reduces output to the bare result.
	Quiet bool
	// Verbose prints result payloads.
	Verbose bool
	// NoColor disables colored output.
	NoColor bool
	// Output is the file the results are saved to as JSON.
	Output string
	// Interactive starts a session reading commands from standard input.
	Interactive bool
	// Completion prints the completion script of the named shell and exits.
	Completion string
	// LogLevel is the zerolog level name.
	LogLevel string

	// Units overrides the fan-out units (defaults to the US states).
	Units []string
	// Reports lists the simulations of each report, for parent report
	// completion.
	Reports map[string]ReportConfig
}

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// Validate checks the semantic validity of the configuration.
func (c AppConfig) Validate() error {
	switch c.Mode {
	case ModeHousehold, ModeSocietyWide, ModeDistricts:
	default:
		return apperrors.NewConfigError("unknown mode %q (want %s, %s or %s)", c.Mode, ModeHousehold, ModeSocietyWide, ModeDistricts)
	}
	switch c.Target {
	case "simulation", "report":
	default:
		return apperrors.NewConfigError("unknown target %q (want simulation or report)", c.Target)
	}
	switch c.Persist {
	case PersistNone, PersistAPI:
	case PersistSQLite:
		if c.SQLitePath == "" {
			return apperrors.NewConfigError("-sqlite-path is required with -persist sqlite")
		}
	default:
		return apperrors.NewConfigError("unknown persistence backend %q (want none, api or sqlite)", c.Persist)
	}
	if c.APIURL == "" {
		return apperrors.NewConfigError("-api-url must not be empty")
	}
	if c.PollInterval <= 0 {
		return apperrors.NewConfigError("-poll-interval must be positive, got %s", c.PollInterval)
	}
	if c.Timeout <= 0 {
		return apperrors.NewConfigError("-timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxPollAttempts <= 0 {
		return apperrors.NewConfigError("-max-poll-attempts must be positive, got %d", c.MaxPollAttempts)
	}
	if c.Concurrency < 0 {
		return apperrors.NewConfigError("-concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.RateLimit < 0 {
		return apperrors.NewConfigError("-rate-limit must not be negative, got %v", c.RateLimit)
	}
	if c.Year != "" && !yearPattern.MatchString(c.Year) {
		return apperrors.NewConfigError("-year must be a four-digit year, got %q", c.Year)
	}
	if c.Serve && c.TUI {
		return apperrors.NewConfigError("-serve and -tui cannot be combined")
	}
	if c.Interactive && (c.Serve || c.TUI) {
		return apperrors.NewConfigError("-interactive cannot be combined with -serve or -tui")
	}
	if c.Serve || c.Interactive || c.Completion != "" {
		return nil
	}
	if c.Baseline == "" {
		return apperrors.NewConfigError("-baseline is required")
	}
	if c.Mode == ModeHousehold && c.Population == "" {
		return apperrors.NewConfigError("-population is required in household mode")
	}
	if c.Mode == ModeDistricts && c.Country != DefaultCountry && len(c.Units) == 0 {
		return apperrors.NewConfigError("districts mode needs units in the config file for country %q", c.Country)
	}
	return nil
}

// ParseConfig parses the command-line arguments, applies the config file and
// the environment overrides, and validates the result.
//
// Priority: CLI flags > environment variables > config file > defaults.
func ParseConfig(programName string, args []string, errorWriter io.Writer) (AppConfig, error) {
	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.SetOutput(errorWriter)
	config := AppConfig{}

	fs.StringVar(&config.ConfigFile, "config", "", "YAML file with defaults, fan-out units and report layout.")
	fs.StringVar(&config.APIURL, "api-url", DefaultAPIURL, "Base URL of the policy simulation API.")
	fs.StringVar(&config.Country, "country", DefaultCountry, "Country id (us, uk, ...).")
	fs.StringVar(&config.Mode, "mode", ModeHousehold, "Calculation mode: household, societyWide or districts.")
	fs.StringVar(&config.CalcID, "calc-id", "", "Calculation id (random when empty).")
	fs.StringVar(&config.Target, "target", "simulation", "Target of the calculation: simulation or report.")
	fs.StringVar(&config.Population, "population", "", "Household id or geography.")
	fs.StringVar(&config.Baseline, "baseline", "", "Baseline policy id.")
	fs.StringVar(&config.Reform, "reform", "", "Reform policy id (defaults to the baseline).")
	fs.StringVar(&config.Region, "region", "", "Region of a society-wide calculation (defaults to the country).")
	fs.StringVar(&config.Year, "year", "", "Time period, e.g. 2025.")
	fs.StringVar(&config.ReportID, "report-id", "", "Report the result belongs to.")
	fs.DurationVar(&config.PollInterval, "poll-interval", DefaultPollInterval, "Interval between two status polls.")
	fs.DurationVar(&config.Timeout, "timeout", DefaultTimeout, "Maximum duration of the run.")
	fs.IntVar(&config.MaxPollAttempts, "max-poll-attempts", DefaultMaxPollAttempts, "Maximum polls per fan-out unit.")
	fs.IntVar(&config.Concurrency, "concurrency", 0, "Maximum fan-out units in flight (0 = automatic).")
	fs.Float64Var(&config.RateLimit, "rate-limit", 0, "Maximum backend requests per second (0 = unlimited).")
	fs.StringVar(&config.Persist, "persist", PersistNone, "Where to persist completed results: none, api or sqlite.")
	fs.StringVar(&config.SQLitePath, "sqlite-path", DefaultSQLitePath, "SQLite ledger path for -persist sqlite.")
	fs.StringVar(&config.RedisAddr, "redis-addr", "", "Redis address of the shared status cache (disabled when empty).")
	fs.BoolVar(&config.Serve, "serve", false, "Serve the HTTP status API instead of running one calculation.")
	fs.StringVar(&config.Listen, "listen", DefaultListen, "Listen address of the HTTP status API.")
	fs.BoolVar(&config.TUI, "tui", false, "Show the interactive dashboard.")
	fs.BoolVar(&config.Quiet, "quiet", false, "Quiet mode: print only the result.")
	fs.BoolVar(&config.Quiet, "q", false, "Shorthand for -quiet.")
	fs.BoolVar(&config.Verbose, "verbose", false, "Print the result payload.")
	fs.BoolVar(&config.Verbose, "v", false, "Shorthand for -verbose.")
	fs.StringVar(&config.LogLevel, "log-level", DefaultLogLevel, "Log level: debug, info, warn or error.")
	fs.BoolVar(&config.NoColor, "no-color", false, "Disable colored output (NO_COLOR is honored too).")
	fs.StringVar(&config.Output, "output", "", "Save the results as JSON to this file.")
	fs.StringVar(&config.Output, "o", "", "Shorthand for -output.")
	fs.BoolVar(&config.Interactive, "interactive", false, "Start an interactive session.")
	fs.BoolVar(&config.Interactive, "i", false, "Shorthand for -interactive.")
	fs.StringVar(&config.Completion, "completion", "", "Print the completion script for bash, zsh, fish or powershell.")

	if err := fs.Parse(args); err != nil {
		return AppConfig{}, err
	}
	if fs.NArg() > 0 {
		return AppConfig{}, apperrors.NewConfigError("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if config.ConfigFile == "" {
		config.ConfigFile = os.Getenv(EnvPrefix + "CONFIG")
	}
	if config.ConfigFile != "" {
		file, err := LoadFile(config.ConfigFile)
		if err != nil {
			return AppConfig{}, err
		}
		file.apply(&config, fs)
	}

	applyEnvOverrides(&config, fs)
	config.Mode = normalizeMode(config.Mode)
	config.Country = strings.ToLower(strings.TrimSpace(config.Country))

	if err := config.Validate(); err != nil {
		fmt.Fprintln(errorWriter, "Error:", err)
		return AppConfig{}, err
	}
	return config, nil
}

// normalizeMode accepts the common spellings of the society-wide mode.
func normalizeMode(mode string) string {
	switch strings.ToLower(strings.ReplaceAll(mode, "-", "")) {
	case "societywide", "economy":
		return ModeSocietyWide
	case "household":
		return ModeHousehold
	case "districts":
		return ModeDistricts
	}
	return mode
}

// IsHelp reports whether err comes from -h or -help.
func IsHelp(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}
