package calc

import "encoding/json"

// HouseholdResult is the computed household returned by the household
// endpoint.
type HouseholdResult struct {
	Household json.RawMessage `json:"household"`
}

// SocietyWideResult is the economy-wide impact returned once a society-wide
// calculation reports "ok".
type SocietyWideResult struct {
	Region string          `json:"region,omitempty"`
	Output json.RawMessage `json:"output"`
}

// Result is a tagged union over the result variants. Kind names the variant;
// exactly the matching field is set.
type Result struct {
	Kind        CalcType           `json:"kind"`
	Household   *HouseholdResult   `json:"household,omitempty"`
	SocietyWide *SocietyWideResult `json:"societyWide,omitempty"`
}

// NewHouseholdResult wraps a household payload.
func NewHouseholdResult(raw json.RawMessage) *Result {
	return &Result{Kind: Household, Household: &HouseholdResult{Household: raw}}
}

// NewSocietyWideResult wraps a society-wide payload for region.
func NewSocietyWideResult(region string, raw json.RawMessage) *Result {
	return &Result{Kind: SocietyWide, SocietyWide: &SocietyWideResult{Region: region, Output: raw}}
}

// Payload returns the raw backend output of whichever variant is set, or nil.
func (r *Result) Payload() json.RawMessage {
	if r == nil {
		return nil
	}
	switch r.Kind {
	case Household:
		if r.Household != nil {
			return r.Household.Household
		}
	case SocietyWide:
		if r.SocietyWide != nil {
			return r.SocietyWide.Output
		}
	}
	return nil
}

// Valid reports whether the tag matches the populated variant.
func (r *Result) Valid() bool {
	if r == nil {
		return false
	}
	switch r.Kind {
	case Household:
		return r.Household != nil && r.SocietyWide == nil
	case SocietyWide:
		return r.SocietyWide != nil && r.Household == nil
	}
	return false
}
