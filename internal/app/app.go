// Package app wires the configuration, backend, status store, persistence
// and orchestrator together and runs the selected mode.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/agbru/policycalc/internal/backend"
	"github.com/agbru/policycalc/internal/cli"
	"github.com/agbru/policycalc/internal/config"
	apperrors "github.com/agbru/policycalc/internal/errors"
	"github.com/agbru/policycalc/internal/logging"
	"github.com/agbru/policycalc/internal/server"
	"github.com/agbru/policycalc/internal/tui"
	"github.com/agbru/policycalc/internal/ui"
)

// Application represents the policycalc application instance.
type Application struct {
	Config    config.AppConfig
	ErrWriter io.Writer

	programName string
	household   backend.HouseholdFetcher
	societyWide backend.SocietyWideFetcher
}

// AppOption configures an Application during construction.
type AppOption func(*Application)

// WithBackends replaces the API client used for calculations. Persistence
// through the API still uses the real client.
func WithBackends(household backend.HouseholdFetcher, societyWide backend.SocietyWideFetcher) AppOption {
	return func(a *Application) {
		a.household = household
		a.societyWide = societyWide
	}
}

// New creates a new Application instance by parsing command-line arguments.
func New(args []string, errWriter io.Writer, opts ...AppOption) (*Application, error) {
	app := &Application{ErrWriter: errWriter, programName: "policycalc"}
	for _, opt := range opts {
		opt(app)
	}

	var cmdArgs []string
	if len(args) > 0 {
		app.programName = filepath.Base(args[0])
		cmdArgs = args[1:]
	}

	cfg, err := config.ParseConfig(app.programName, cmdArgs, errWriter)
	if err != nil {
		return nil, err
	}
	app.Config = config.ApplyAdaptiveDefaults(cfg)
	return app, nil
}

// Run executes the application based on the configured mode.
func (a *Application) Run(ctx context.Context, out io.Writer) int {
	if a.Config.Completion != "" {
		return a.runCompletion(out)
	}

	zerolog.SetGlobalLevel(logging.ParseLevel(a.Config.LogLevel))
	ui.InitTheme(a.Config.NoColor)

	ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	rt, err := a.buildServices(ctx)
	if err != nil {
		fmt.Fprintf(a.ErrWriter, "Error: %v\n", err)
		return apperrors.ExitErrorConfig
	}
	defer rt.Close()

	switch {
	case a.Config.Serve:
		return a.runServer(ctx, rt)
	case a.Config.Interactive:
		return a.runInteractive(ctx, rt, out)
	case a.Config.TUI:
		return a.runTUI(ctx, rt)
	}
	return a.runCalculate(ctx, rt, out)
}

// runCompletion generates shell completion scripts.
func (a *Application) runCompletion(out io.Writer) int {
	if err := cli.GenerateCompletion(out, a.Config.Completion, a.programName); err != nil {
		fmt.Fprintf(a.ErrWriter, "Error generating completion: %v\n", err)
		return apperrors.ExitErrorConfig
	}
	return apperrors.ExitSuccess
}

// runServer serves the HTTP read side until ctx is done.
func (a *Application) runServer(ctx context.Context, rt *services) int {
	srv := server.New(rt.orch,
		server.WithLogger(logging.Component(rt.logger, "server")),
		server.WithMetrics(rt.metrics),
		server.WithFanOutUnits(a.units(), a.fanOutOptions(rt)...),
	)
	rt.logger.Info("serving status API", logging.String("addr", a.Config.Listen))
	if err := srv.ListenAndServe(ctx, a.Config.Listen); err != nil {
		rt.logger.Error("status API stopped", err)
		return apperrors.ExitErrorGeneric
	}
	return apperrors.ExitSuccess
}

// runInteractive starts a REPL session on the shared orchestrator.
func (a *Application) runInteractive(ctx context.Context, rt *services, out io.Writer) int {
	template := a.request()
	template.CalcID = ""
	repl := cli.NewREPL(rt.orch, cli.REPLConfig{
		Template: template,
		Timeout:  a.Config.Timeout,
		Units:    a.units(),
		FanOut:   a.fanOutOptions(rt),
		Verbose:  a.Config.Verbose,
	})
	repl.SetOutput(out)
	repl.Start(ctx)
	return apperrors.ExitSuccess
}

// runTUI launches the interactive dashboard.
func (a *Application) runTUI(ctx context.Context, rt *services) int {
	ctx, cancelTimeout := context.WithTimeout(ctx, a.Config.Timeout)
	defer cancelTimeout()

	session := tui.Session{
		Orchestrator: rt.orch,
		Requests:     a.requests(),
		Version:      Version,
	}
	if a.Config.Mode == config.ModeDistricts {
		session.Units = a.units()
		session.FanOut = a.fanOutOptions(rt)
	}
	return tui.Run(ctx, session)
}

// IsHelpError checks if the error is a help flag error (--help was used).
func IsHelpError(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}
