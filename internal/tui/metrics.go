package tui

import (
	"fmt"
	"strings"

	"github.com/agbru/policycalc/internal/format"
	"github.com/agbru/policycalc/internal/metrics"
)

// ResourcesModel shows process resources and the history of the aggregate
// progress.
type ResourcesModel struct {
	runtime  metrics.RuntimeSnapshot
	system   metrics.SystemSnapshot
	history  *RingBuffer
	progress float64
	eta      *format.ProgressWithETA
	width    int
	height   int
}

// NewResourcesModel creates the resources panel.
func NewResourcesModel() ResourcesModel {
	return ResourcesModel{history: NewRingBuffer(64), eta: format.NewProgressWithETA()}
}

// SetSize updates dimensions.
func (m *ResourcesModel) SetSize(w, h int) {
	m.width, m.height = w, h
	m.history.Resize(max(w-6, 1))
}

// UpdateRuntime stores a runtime sample.
func (m *ResourcesModel) UpdateRuntime(s metrics.RuntimeSnapshot) {
	m.runtime = s
}

// UpdateSystem stores a host sample.
func (m *ResourcesModel) UpdateSystem(s metrics.SystemSnapshot) {
	m.system = s
}

// UpdateProgress records the aggregate progress of the session.
func (m *ResourcesModel) UpdateProgress(progress float64) {
	m.progress, _ = m.eta.Update(progress)
	m.history.Push(m.progress)
}

// View renders the panel.
func (m ResourcesModel) View() string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render(" Resources"))
	fmt.Fprintf(&b, "\n %s %s  %s %s",
		labelStyle.Render("Heap:"), valueStyle.Render(formatBytes(m.runtime.HeapAlloc)+" / "+formatBytes(m.runtime.Sys)),
		labelStyle.Render("GC:"), valueStyle.Render(fmt.Sprintf("%d", m.runtime.NumGC)))
	fmt.Fprintf(&b, "\n %s %s  %s %s  %s %s",
		labelStyle.Render("Goroutines:"), valueStyle.Render(fmt.Sprintf("%d", m.runtime.Goroutines)),
		labelStyle.Render("CPU:"), valueStyle.Render(fmt.Sprintf("%.0f%%", m.system.CPUPercent)),
		labelStyle.Render("Mem:"), valueStyle.Render(fmt.Sprintf("%.0f%%", m.system.MemPercent)))
	fmt.Fprintf(&b, "\n %s %s  %s %s",
		labelStyle.Render("Progress:"), valueStyle.Render(fmt.Sprintf("%.1f%%", m.progress)),
		labelStyle.Render("ETA:"), valueStyle.Render(format.FormatETA(m.eta.ETA())))
	if m.history.Len() > 0 {
		b.WriteString("\n " + sparklineStyle.Render(RenderSparkline(m.history.Slice())))
	}
	return panelStyle.Width(max(m.width-2, 0)).Height(max(m.height-2, 0)).Render(b.String())
}

func formatBytes(b uint64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
