package orchestration

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/agbru/policycalc/internal/backend"
	"github.com/agbru/policycalc/internal/calc"
)

// Strategy runs the backend side of one calculation type.
type Strategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string
	// Fetch performs the first backend call of a run and maps the answer to a
	// status. A non-terminal status means the run must keep polling.
	Fetch(ctx context.Context, r *run) calc.Status
	// Poll returns the poll function for a run, or nil when the strategy never
	// polls.
	Poll(r *run) func(ctx context.Context) (calc.Status, error)
}

// strategyFor selects the strategy for a calculation type.
func (o *Orchestrator) strategyFor(t calc.CalcType) (Strategy, error) {
	switch t {
	case calc.Household:
		return householdStrategy{fetcher: o.household}, nil
	case calc.SocietyWide:
		return societyWideStrategy{fetcher: o.societyWide, now: o.now}, nil
	}
	return nil, fmt.Errorf("no strategy for calculation type %q", t)
}

// householdStrategy answers in one round trip and never polls.
type householdStrategy struct {
	fetcher backend.HouseholdFetcher
}

func (householdStrategy) Name() string { return string(calc.Household) }

func (s householdStrategy) Fetch(ctx context.Context, r *run) calc.Status {
	req := r.req
	raw, err := s.fetcher.FetchHousehold(ctx, req.CountryID, req.PopulationID, req.PolicyIDs.Effective())
	if err != nil {
		return calc.Failed(r.meta, calc.CodeHouseholdFailed, err.Error(), true)
	}
	return calc.Completed(r.meta, calc.NewHouseholdResult(raw))
}

func (householdStrategy) Poll(*run) func(context.Context) (calc.Status, error) { return nil }

// societyWideStrategy enqueues an economy-wide job and polls it.
type societyWideStrategy struct {
	fetcher backend.SocietyWideFetcher
	now     func() time.Time
}

func (societyWideStrategy) Name() string { return string(calc.SocietyWide) }

func (s societyWideStrategy) params(r *run) backend.SocietyWideParams {
	return backend.SocietyWideParams{
		CountryID:  r.req.CountryID,
		ReformID:   r.req.PolicyIDs.Reform,
		BaselineID: r.req.PolicyIDs.Baseline,
		Region:     r.req.Region,
		TimePeriod: r.req.Year,
	}
}

func (s societyWideStrategy) Fetch(ctx context.Context, r *run) calc.Status {
	resp, err := s.fetcher.FetchSocietyWide(ctx, s.params(r))
	if err != nil {
		return calc.Failed(r.meta, calc.CodeSocietyWideFailed, err.Error(), true)
	}
	return mapSocietyWide(resp, r.meta, r.req.Region, s.now())
}

func (s societyWideStrategy) Poll(r *run) func(context.Context) (calc.Status, error) {
	return func(ctx context.Context) (calc.Status, error) {
		resp, err := s.fetcher.FetchSocietyWide(ctx, s.params(r))
		if err != nil {
			return calc.Status{}, err
		}
		return mapSocietyWide(resp, r.meta, r.req.Region, s.now()), nil
	}
}

// maxEstimatedProgress keeps time-based estimates below 100 until the backend
// actually reports a result.
const maxEstimatedProgress = 95

// mapSocietyWide translates one economy response into a status. Computing
// responses carry the queue position and, when the backend reports an average
// run time, a time-based progress estimate.
func mapSocietyWide(resp backend.SocietyWideResponse, meta calc.Metadata, region string, now time.Time) calc.Status {
	switch resp.Status {
	case backend.StatusOK:
		return calc.Completed(meta, calc.NewSocietyWideResult(region, resp.Result))
	case backend.StatusError:
		msg := resp.Error
		if msg == "" {
			msg = "society-wide calculation failed"
		}
		return calc.Failed(meta, calc.CodeSocietyWideFailed, msg, true)
	case backend.StatusComputing:
		st := calc.Status{State: calc.StateComputing, Metadata: meta, Message: "Computing..."}
		if resp.QueuePosition != nil {
			st.QueuePosition = calc.Int(*resp.QueuePosition)
			st.Message = fmt.Sprintf("Queue position %d", *resp.QueuePosition)
		}
		if resp.AverageTime != nil && *resp.AverageTime > 0 {
			avg := time.Duration(*resp.AverageTime * float64(time.Second))
			elapsed := now.Sub(meta.StartedAt)
			remaining := avg - elapsed
			if remaining < 0 {
				remaining = 0
			}
			st.EstimatedTimeRemaining = remaining
			pct := math.Min(float64(elapsed)/float64(avg)*100, maxEstimatedProgress)
			st.Progress = calc.Float(pct)
		}
		return st
	}
	return calc.Failed(meta, calc.CodeUnknownStatus, fmt.Sprintf("unexpected backend status %q", resp.Status), false)
}
