package app

import (
	"context"
	"errors"
	"io"

	"github.com/agbru/policycalc/internal/backend"
	"github.com/agbru/policycalc/internal/config"
	"github.com/agbru/policycalc/internal/logging"
	"github.com/agbru/policycalc/internal/metrics"
	"github.com/agbru/policycalc/internal/orchestration"
	"github.com/agbru/policycalc/internal/persist"
	"github.com/agbru/policycalc/internal/status"
)

// services holds the long-lived collaborators of one process.
type services struct {
	logger  logging.Logger
	metrics *metrics.Collector
	client  *backend.Client
	store   status.Store
	orch    *orchestration.Orchestrator
	closers []io.Closer
}

// closerFunc adapts a function to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Close stops the orchestrator and releases every resource in reverse order.
func (r *services) Close() error {
	if r.orch != nil {
		r.orch.Close()
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i].Close())
	}
	return errors.Join(errs...)
}

// buildServices wires the backend client, the status store, the persister and
// the orchestrator from the configuration.
func (a *Application) buildServices(ctx context.Context) (*services, error) {
	cfg := a.Config
	rt := &services{
		logger:  logging.NewLogger(a.ErrWriter, "policycalc"),
		metrics: metrics.New(),
	}
	clientOpts := []backend.ClientOption{backend.WithMetrics(rt.metrics)}
	if cfg.RateLimit > 0 {
		clientOpts = append(clientOpts, backend.WithRateLimit(cfg.RateLimit, max(int(cfg.RateLimit), 1)))
	}
	rt.client = backend.NewClient(cfg.APIURL, clientOpts...)

	store, err := a.buildStore(ctx, rt)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.store = store

	persister, err := a.buildPersister(ctx, rt)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var household backend.HouseholdFetcher = rt.client
	var societyWide backend.SocietyWideFetcher = rt.client
	if a.household != nil {
		household = a.household
	}
	if a.societyWide != nil {
		societyWide = a.societyWide
	}
	rt.orch = orchestration.New(rt.store, household, societyWide, persister,
		orchestration.WithPollInterval(cfg.PollInterval),
		orchestration.WithLogger(logging.Component(rt.logger, "orchestration")),
		orchestration.WithMetrics(rt.metrics),
	)
	return rt, nil
}

// buildStore returns the in-memory store, mirrored to Redis when an address
// is configured.
func (a *Application) buildStore(ctx context.Context, rt *services) (status.Store, error) {
	local := status.NewMemoryStore()
	if a.Config.RedisAddr == "" {
		return local, nil
	}
	client := status.NewRedisClient(a.Config.RedisAddr)
	rt.closers = append(rt.closers, client)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	mirror := status.NewRedisMirror(local, client, status.WithMirrorLogger(logging.Component(rt.logger, "redis")))
	n, err := mirror.Hydrate(ctx)
	if err != nil {
		return nil, err
	}
	rt.logger.Debug("hydrated statuses from redis", logging.Int("count", n))

	watchCtx, stopWatch := context.WithCancel(ctx)
	rt.closers = append(rt.closers, closerFunc(func() error { stopWatch(); return nil }))
	go func() {
		if err := mirror.Watch(watchCtx); err != nil {
			rt.logger.Warn("redis watch stopped", logging.Err(err))
		}
	}()
	return mirror, nil
}

// buildPersister returns the persister of the configured backend, or nil when
// results are only cached.
func (a *Application) buildPersister(ctx context.Context, rt *services) (orchestration.ResultPersister, error) {
	var writer persist.Writer
	switch a.Config.Persist {
	case config.PersistAPI:
		writer = rt.client
	case config.PersistSQLite:
		w, err := persist.OpenSQLite(ctx, a.Config.SQLitePath)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, w)
		writer = w
	default:
		return nil, nil
	}

	opts := []persist.Option{
		persist.WithLogger(logging.Component(rt.logger, "persist")),
		persist.WithMetrics(rt.metrics),
	}
	if len(a.Config.Reports) > 0 {
		dir := make(persist.StaticDirectory, len(a.Config.Reports))
		for id, r := range a.Config.Reports {
			dir[id] = persist.ReportEntry{Simulations: r.Simulations, Year: r.Year}
		}
		opts = append(opts, persist.WithDirectory(dir, rt.store))
	}
	return persist.New(writer, opts...), nil
}
