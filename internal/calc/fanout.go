package calc

// FanOutState tracks a report that needs one society-wide calculation per
// sub-region. CompletedCount+ErrorCount never exceeds TotalUnits.
type FanOutState struct {
	TotalUnits     int                          `json:"totalUnits"`
	CompletedCount int                          `json:"completedCount"`
	ErrorCount     int                          `json:"errorCount"`
	Responses      map[string]SocietyWideResult `json:"responses"`
	Errors         map[string]string            `json:"errors,omitempty"`
}

// NewFanOutState returns an empty state for total units.
func NewFanOutState(total int) FanOutState {
	return FanOutState{
		TotalUnits: total,
		Responses:  make(map[string]SocietyWideResult, total),
		Errors:     make(map[string]string),
	}
}

// IsComplete reports whether every unit has reported success or failure.
func (s FanOutState) IsComplete() bool {
	return s.CompletedCount+s.ErrorCount == s.TotalUnits
}

// Settled returns how many units have finished either way.
func (s FanOutState) Settled() int {
	return s.CompletedCount + s.ErrorCount
}

// Progress is the settled share of units in percent.
func (s FanOutState) Progress() float64 {
	if s.TotalUnits == 0 {
		return 100
	}
	return float64(s.Settled()) * 100 / float64(s.TotalUnits)
}

// Clone returns a deep copy safe to hand to observers.
func (s FanOutState) Clone() FanOutState {
	out := FanOutState{
		TotalUnits:     s.TotalUnits,
		CompletedCount: s.CompletedCount,
		ErrorCount:     s.ErrorCount,
		Responses:      make(map[string]SocietyWideResult, len(s.Responses)),
		Errors:         make(map[string]string, len(s.Errors)),
	}
	for k, v := range s.Responses {
		out.Responses[k] = v
	}
	for k, v := range s.Errors {
		out.Errors[k] = v
	}
	return out
}
