package tui

import (
	"strings"
	"testing"

	"github.com/agbru/policycalc/internal/metrics"
)

func TestResourcesModel_UpdateRuntime(t *testing.T) {
	t.Parallel()
	m := NewResourcesModel()
	m.SetSize(60, 8)
	m.UpdateRuntime(metrics.RuntimeSnapshot{HeapAlloc: 50 << 20, Sys: 80 << 20, NumGC: 10, Goroutines: 8})

	view := m.View()
	for _, want := range []string{"Resources", "50.0 MB / 80.0 MB", "GC:", "Goroutines:", "8"} {
		if !strings.Contains(view, want) {
			t.Errorf("view should contain %q:\n%s", want, view)
		}
	}
}

func TestResourcesModel_UpdateSystem(t *testing.T) {
	t.Parallel()
	m := NewResourcesModel()
	m.SetSize(80, 8)
	m.UpdateSystem(metrics.SystemSnapshot{CPUPercent: 12.4, MemPercent: 61.6})

	view := m.View()
	for _, want := range []string{"CPU:", "12%", "Mem:", "62%"} {
		if !strings.Contains(view, want) {
			t.Errorf("view should contain %q:\n%s", want, view)
		}
	}
}

func TestResourcesModel_UpdateProgress(t *testing.T) {
	t.Parallel()
	m := NewResourcesModel()
	m.SetSize(60, 8)
	m.UpdateProgress(25)
	m.UpdateProgress(150)

	if m.progress != 100 {
		t.Errorf("progress = %f, want clamped 100", m.progress)
	}
	if m.history.Len() != 2 {
		t.Errorf("history has %d samples, want 2", m.history.Len())
	}
	if !strings.Contains(m.View(), "100.0%") {
		t.Error("view should show the clamped progress")
	}
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{2 << 10, "2.0 KB"},
		{3 << 20, "3.0 MB"},
		{5 << 30, "5.0 GB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
