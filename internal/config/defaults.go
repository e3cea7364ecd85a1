package config

import (
	"math"
	"runtime"
)

// Concurrency resolution chain (highest priority first):
//   1. CLI flag (-concurrency)
//   2. Environment variable (POLICYCALC_CONCURRENCY)
//   3. Config file (concurrency)
//   4. Estimation from the host and the rate limit (this file)

// maxFanOutConcurrency is the number of US state units; more loops than
// units never help.
const maxFanOutConcurrency = 51

// ApplyAdaptiveDefaults fills the settings left at zero with estimates. Values
// set by the user are kept.
func ApplyAdaptiveDefaults(cfg AppConfig) AppConfig {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = EstimateFanOutConcurrency(cfg.RateLimit)
	}
	return cfg
}

// EstimateFanOutConcurrency estimates how many fan-out units may poll at
// once. Polling is I/O bound, so the estimate is a multiple of the CPU count.
// With a rate limit there is no point in running more loops than requests
// allowed per second.
func EstimateFanOutConcurrency(rateLimit float64) int {
	numCPU := runtime.NumCPU()

	var n int
	switch {
	case numCPU <= 2:
		n = 8
	case numCPU <= 8:
		n = 16
	default:
		n = 32
	}
	if rateLimit > 0 {
		n = min(n, int(math.Ceil(rateLimit)))
	}
	return max(1, min(n, maxFanOutConcurrency))
}
