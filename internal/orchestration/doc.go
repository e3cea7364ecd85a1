// Package orchestration drives calculation requests to completion. It picks
// the execution strategy for each request, guarantees at most one active run
// per calculation id, serialises every status write through a single writer
// goroutine and persists each completed run exactly once. It also provides
// the Aggregator, which folds member statuses into one report status, and the
// FanOut coordinator, which splits a report into per-region calculations.
package orchestration
