package orchestration

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agbru/policycalc/internal/backend"
	"github.com/agbru/policycalc/internal/calc"
	"github.com/agbru/policycalc/internal/logging"
)

// FanOutOutput is the result payload of a fan-out run.
type FanOutOutput struct {
	Regions   []calc.SocietyWideResult `json:"regions"`
	Districts []DistrictPoint          `json:"districts"`
	Errors    map[string]string        `json:"errors,omitempty"`
}

// StartFanOut runs a society-wide request once per unit, with each unit
// overriding the request region, and tracks the whole as one calculation
// under req.CalcID. The run completes once every unit has settled. Unit
// errors only shrink the merged dataset: a fan-out where every unit failed
// still completes, with no regions and every unit listed in Errors.
// Idempotency and retry follow StartCalculation.
func (o *Orchestrator) StartFanOut(ctx context.Context, req calc.Request, units []string, opts ...FanOutOption) (*Handle, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.CalcType != calc.SocietyWide {
		return nil, fmt.Errorf("fan-out needs a %s calculation, got %s", calc.SocietyWide, req.CalcType)
	}
	_, span := tracer.Start(ctx, "orchestration.StartFanOut", trace.WithAttributes(
		attribute.String("calc.id", req.CalcID),
		attribute.Int("fanout.units", len(units)),
	))
	defer span.End()

	r, restart, existing, err := o.register(req)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		o.metrics.DuplicateStart()
		return existing, nil
	}
	o.metrics.CalculationStarted(string(req.CalcType))
	o.logger.Info("fan-out started",
		logging.String("calc_id", req.CalcID),
		logging.Int("units", len(units)),
		logging.Bool("retry", restart))

	if res := o.commit(r, calc.Pending(r.meta, initialMessage), restart); !res.accepted {
		o.finish(r)
		return r.handle, nil
	}

	fetch := func(ctx context.Context, unit string) (backend.SocietyWideResponse, error) {
		return o.societyWide.FetchSocietyWide(ctx, backend.SocietyWideParams{
			CountryID:  req.CountryID,
			ReformID:   req.PolicyIDs.Reform,
			BaselineID: req.PolicyIDs.Baseline,
			Region:     unit,
			TimePeriod: req.Year,
		})
	}
	opts = append([]FanOutOption{WithFanOutLogger(o.logger), WithFanOutMetrics(o.metrics)}, opts...)
	f := NewFanOut(r.ctx, units, fetch, opts...)
	go o.driveFanOut(r, f)
	return r.handle, nil
}

func (o *Orchestrator) driveFanOut(r *run, f *FanOut) {
	defer o.finish(r)
	f.StartFetch()

	total := len(f.Units())
	for st := range f.Updates() {
		if st.IsComplete() {
			break
		}
		o.write(r, calc.Status{
			State:    calc.StateComputing,
			Progress: calc.Float(st.Progress()),
			Message:  fmt.Sprintf("%d of %d regions settled", st.Settled(), total),
		})
	}
	<-f.Done()
	if r.ctx.Err() != nil {
		return
	}
	o.write(r, o.fanOutResult(r, f))
}

// fanOutResult builds the terminal status of a settled fan-out.
func (o *Orchestrator) fanOutResult(r *run, f *FanOut) calc.Status {
	st := f.State()
	merged := f.Merged()
	if merged == nil {
		merged = []calc.SocietyWideResult{}
	}
	if st.TotalUnits > 0 && st.CompletedCount == 0 {
		o.logger.Warn("every region failed",
			logging.String("calc_id", r.req.CalcID), logging.Int("units", st.TotalUnits))
	}
	districts, err := MergeDistricts(merged)
	if err != nil {
		o.logger.Warn("merge districts", logging.String("calc_id", r.req.CalcID), logging.Err(err))
	}
	if districts == nil {
		districts = []DistrictPoint{}
	}
	out, err := json.Marshal(FanOutOutput{Regions: merged, Districts: districts, Errors: st.Errors})
	if err != nil {
		return calc.Failed(r.meta, calc.CodeSocietyWideFailed, err.Error(), false)
	}
	return calc.Completed(r.meta, calc.NewSocietyWideResult(r.req.Region, out))
}
