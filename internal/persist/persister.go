// Package persist writes completed calculation results to durable storage,
// exactly once per run.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/agbru/policycalc/internal/calc"
	apperrors "github.com/agbru/policycalc/internal/errors"
	"github.com/agbru/policycalc/internal/logging"
	"github.com/agbru/policycalc/internal/metrics"
	"github.com/agbru/policycalc/internal/status"
)

// Retry policy for writer calls: a constant delay between a fixed number of
// attempts.
const (
	DefaultRetryDelay  = time.Second
	DefaultMaxAttempts = 2
)

var (
	// ErrMissingResult is returned when asked to persist a status without a
	// result.
	ErrMissingResult = errors.New("status has no result to persist")
	// ErrUnknownTarget is returned for an unsupported target type.
	ErrUnknownTarget = errors.New("unknown target type")
)

// Writer stores results in the system of record. Both calls are upserts, so
// repeating one is harmless.
type Writer interface {
	MarkReportCompleted(ctx context.Context, countryID, reportID, year string, output json.RawMessage) error
	UpdateSimulationOutput(ctx context.Context, countryID, simulationID string, output json.RawMessage) error
}

// ReportDirectory resolves the simulations that make up a report.
type ReportDirectory interface {
	ReportSimulations(ctx context.Context, reportID string) (simulationIDs []string, year string, err error)
}

// Persister writes completed results through a Writer.
type Persister struct {
	writer     Writer
	store      status.Store
	directory  ReportDirectory
	group      singleflight.Group
	retryDelay time.Duration
	attempts   uint
	logger     logging.Logger
	metrics    *metrics.Collector
}

// Option configures a Persister.
type Option func(*Persister)

// WithDirectory enables parent-report completion for simulation results.
// The store is consulted for the status of sibling simulations.
func WithDirectory(dir ReportDirectory, store status.Store) Option {
	return func(p *Persister) {
		p.directory = dir
		p.store = store
	}
}

// WithRetry overrides the retry policy.
func WithRetry(delay time.Duration, attempts uint) Option {
	return func(p *Persister) {
		p.retryDelay = delay
		if attempts > 0 {
			p.attempts = attempts
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Persister) { p.logger = l }
}

// WithMetrics records persistence outcomes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Persister) { p.metrics = c }
}

// New returns a Persister writing through w.
func New(w Writer, opts ...Option) *Persister {
	p := &Persister{
		writer:     w,
		retryDelay: DefaultRetryDelay,
		attempts:   DefaultMaxAttempts,
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Persist writes the result carried by st. Concurrent calls for the same run
// collapse into one write.
func (p *Persister) Persist(ctx context.Context, st calc.Status, countryID string) error {
	if st.Result == nil || !st.Result.Valid() {
		p.metrics.Persisted("skipped")
		return ErrMissingResult
	}
	meta := st.Metadata
	key := string(meta.TargetType) + ":" + meta.CalcID + ":" + meta.StartedAt.Format(time.RFC3339Nano)

	_, err, _ := p.group.Do(key, func() (any, error) {
		switch meta.TargetType {
		case calc.TargetReport:
			return nil, p.persistReport(ctx, countryID, meta.ReportID, meta.Year, st.Result.Payload())
		case calc.TargetSimulation:
			return nil, p.persistSimulation(ctx, st, countryID)
		default:
			return nil, apperrors.WrapError(ErrUnknownTarget, "persist %q", meta.TargetType)
		}
	})
	if err != nil {
		p.metrics.Persisted("failed")
		return err
	}
	p.metrics.Persisted("ok")
	return nil
}

func (p *Persister) persistReport(ctx context.Context, countryID, reportID, year string, output json.RawMessage) error {
	err := p.retry(ctx, func() error {
		return p.writer.MarkReportCompleted(ctx, countryID, reportID, year, output)
	})
	if err != nil {
		return apperrors.PersistError{Target: string(calc.TargetReport), ID: reportID, Cause: err}
	}
	p.logger.Info("report persisted", logging.String("report_id", reportID))
	return nil
}

func (p *Persister) persistSimulation(ctx context.Context, st calc.Status, countryID string) error {
	meta := st.Metadata
	err := p.retry(ctx, func() error {
		return p.writer.UpdateSimulationOutput(ctx, countryID, meta.CalcID, st.Result.Payload())
	})
	if err != nil {
		return apperrors.PersistError{Target: string(calc.TargetSimulation), ID: meta.CalcID, Cause: err}
	}
	p.logger.Info("simulation persisted", logging.String("simulation_id", meta.CalcID))

	if meta.ReportID == "" || p.directory == nil {
		return nil
	}
	return p.completeParentReport(ctx, st, countryID)
}

// completeParentReport marks the parent report complete once every one of its
// simulations has a complete status. The report output is the array of
// simulation outputs in directory order.
func (p *Persister) completeParentReport(ctx context.Context, st calc.Status, countryID string) error {
	meta := st.Metadata
	simIDs, year, err := p.directory.ReportSimulations(ctx, meta.ReportID)
	if err != nil {
		return apperrors.WrapError(err, "resolve simulations of report %q", meta.ReportID)
	}
	if len(simIDs) == 0 {
		return nil
	}
	if year == "" {
		year = meta.Year
	}

	outputs := make([]json.RawMessage, 0, len(simIDs))
	for _, id := range simIDs {
		if id == meta.CalcID {
			outputs = append(outputs, st.Result.Payload())
			continue
		}
		sibling, ok := p.store.Get(status.KeyOf(calc.TargetSimulation, id))
		if !ok || sibling.State != calc.StateComplete || sibling.Result == nil {
			p.logger.Debug("report not ready",
				logging.String("report_id", meta.ReportID),
				logging.String("waiting_on", id))
			return nil
		}
		outputs = append(outputs, sibling.Result.Payload())
	}

	combined, err := json.Marshal(outputs)
	if err != nil {
		return apperrors.WrapError(err, "encode outputs of report %q", meta.ReportID)
	}
	return p.persistReport(ctx, countryID, meta.ReportID, year, combined)
}

func (p *Persister) retry(ctx context.Context, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := op(); err != nil {
			if apperrors.IsContextError(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			p.logger.Warn("persist attempt failed", logging.Err(err))
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.retryDelay)),
		backoff.WithMaxTries(p.attempts),
	)
	return err
}

// StaticDirectory is a ReportDirectory backed by a fixed map.
type StaticDirectory map[string]ReportEntry

// ReportEntry lists the simulations and time period of one report.
type ReportEntry struct {
	Simulations []string `yaml:"simulations" json:"simulations"`
	Year        string   `yaml:"year" json:"year"`
}

// ReportSimulations implements ReportDirectory.
func (d StaticDirectory) ReportSimulations(_ context.Context, reportID string) ([]string, string, error) {
	e, ok := d[reportID]
	if !ok {
		return nil, "", nil
	}
	return e.Simulations, e.Year, nil
}
