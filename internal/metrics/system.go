package metrics

import (
	"context"
	"errors"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemSnapshot is a host-wide reading, both values in [0, 100].
type SystemSnapshot struct {
	CPUPercent float64
	MemPercent float64
}

// ReadSystem samples host CPU and memory usage. CPU is measured since the
// previous call, so the first reading of a process may be 0. Whatever could be
// read is returned alongside the joined errors.
func ReadSystem(ctx context.Context) (SystemSnapshot, error) {
	var s SystemSnapshot
	var errs []error

	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	switch {
	case err != nil:
		errs = append(errs, err)
	case len(pcts) > 0:
		s.CPUPercent = clampPercent(pcts[0])
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	switch {
	case err != nil:
		errs = append(errs, err)
	case vm != nil:
		s.MemPercent = clampPercent(vm.UsedPercent)
	}
	return s, errors.Join(errs...)
}

func clampPercent(v float64) float64 {
	return max(0, min(v, 100))
}
