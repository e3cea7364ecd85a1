package orchestration

import (
	"context"
	"strings"

	"github.com/agbru/policycalc/internal/calc"
	"github.com/agbru/policycalc/internal/status"
)

// AggregateStatus is the combined view of several member calculations, e.g.
// the simulations of one report.
type AggregateStatus struct {
	State         calc.State    `json:"status"`
	Progress      float64       `json:"progress"`
	QueuePosition *int          `json:"queuePosition,omitempty"`
	Message       string        `json:"message,omitempty"`
	Error         *calc.Error   `json:"error,omitempty"`
	Members       int           `json:"members"`
	Complete      int           `json:"complete"`
	Statuses      []calc.Status `json:"-"`
}

// Aggregate folds member statuses into one. A member that errored makes the
// whole aggregate an error, any running member keeps it computing, and it is
// complete only when every member is. With no members, or with a member of
// unknown state and nothing running, the aggregate stays pending. Progress is the mean over all members; a member without progress
// counts as 0.
func Aggregate(statuses []calc.Status) AggregateStatus {
	agg := AggregateStatus{State: calc.StatePending, Members: len(statuses), Statuses: statuses}
	if len(statuses) == 0 {
		return agg
	}

	var (
		sum      float64
		running  bool
		unknown  bool
		messages []string
	)
	for _, st := range statuses {
		sum += st.ProgressValue()
		switch st.State {
		case calc.StateError:
			if agg.Error == nil {
				agg.Error = st.Error
				if agg.Error == nil {
					agg.Error = &calc.Error{Message: st.Message}
				}
			}
		case calc.StatePending, calc.StateComputing:
			running = true
		case calc.StateComplete:
			agg.Complete++
		default:
			unknown = true
		}
		if agg.QueuePosition == nil && st.QueuePosition != nil {
			agg.QueuePosition = calc.Int(*st.QueuePosition)
		}
		if st.Message != "" && st.State.Active() {
			messages = append(messages, st.Message)
		}
	}
	agg.Progress = sum / float64(len(statuses))
	agg.Message = strings.Join(messages, "; ")

	switch {
	case agg.Error != nil:
		agg.State = calc.StateError
		agg.Message = agg.Error.Message
	case running:
		agg.State = calc.StateComputing
	case !unknown && agg.Complete == len(statuses):
		agg.State = calc.StateComplete
		agg.Progress = 100
	}
	return agg
}

// Aggregator derives aggregate statuses from a store. It keeps no state of its
// own; every value is recomputed from a fresh snapshot.
type Aggregator struct {
	store status.Store
}

// NewAggregator returns an Aggregator reading from store.
func NewAggregator(store status.Store) *Aggregator {
	return &Aggregator{store: store}
}

// Snapshot aggregates the current statuses of keys. Keys without a stored
// status are unknown members: they never make the aggregate computing or
// complete, so a snapshot of unknown keys alone stays pending. In the
// returned Statuses they read as pending.
func (a *Aggregator) Snapshot(keys []status.Key) AggregateStatus {
	statuses := make([]calc.Status, len(keys))
	var missing []int
	for i, k := range keys {
		st, ok := a.store.Get(k)
		if !ok {
			missing = append(missing, i)
		}
		statuses[i] = st
	}
	agg := Aggregate(statuses)
	for _, i := range missing {
		agg.Statuses[i] = calc.Status{State: calc.StatePending}
	}
	return agg
}

// Watch emits a fresh aggregate every time one of keys changes, starting with
// the current one. The channel holds only the latest value and is closed when
// ctx is done.
func (a *Aggregator) Watch(ctx context.Context, keys []status.Key) <-chan AggregateStatus {
	out := make(chan AggregateStatus, 1)
	changed := make(chan struct{}, 1)

	subs := make([]*status.Subscription, len(keys))
	for i, k := range keys {
		subs[i] = a.store.Subscribe(k)
	}
	for _, sub := range subs {
		go func(sub *status.Subscription) {
			for range sub.C() {
				select {
				case changed <- struct{}{}:
				default:
				}
			}
		}(sub)
	}

	go func() {
		defer close(out)
		defer func() {
			for _, sub := range subs {
				sub.Close()
			}
		}()
		publish := func(v AggregateStatus) {
			select {
			case <-out:
			default:
			}
			out <- v
		}
		publish(a.Snapshot(keys))
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				publish(a.Snapshot(keys))
			}
		}
	}()
	return out
}
