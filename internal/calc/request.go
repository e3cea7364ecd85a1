package calc

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/agbru/policycalc/internal/errors"
)

// CalcType selects the execution strategy for a calculation.
type CalcType string

const (
	// Household is a single-household calculation answered in one round trip.
	Household CalcType = "household"
	// SocietyWide is a population-level calculation answered asynchronously.
	SocietyWide CalcType = "societyWide"
)

// TargetType names the backend resource that owns the calculation result.
type TargetType string

const (
	TargetSimulation TargetType = "simulation"
	TargetReport     TargetType = "report"
)

// PolicyIDs identifies the baseline and optional reform policy.
type PolicyIDs struct {
	Baseline string `json:"baseline" validate:"required"`
	Reform   string `json:"reform,omitempty"`
}

// Effective returns the policy the backend should evaluate: the reform when
// present, otherwise the baseline.
func (p PolicyIDs) Effective() string {
	if p.Reform != "" {
		return p.Reform
	}
	return p.Baseline
}

// Request is one logical calculation submitted by a caller. CalcID is its
// identity: two requests with the same CalcID are the same calculation.
type Request struct {
	CalcID       string     `json:"calcId" validate:"required"`
	CalcType     CalcType   `json:"calcType" validate:"required,oneof=household societyWide"`
	TargetType   TargetType `json:"targetType" validate:"required,oneof=simulation report"`
	CountryID    string     `json:"countryId" validate:"required"`
	PolicyIDs    PolicyIDs  `json:"policyIds"`
	PopulationID string     `json:"populationId" validate:"required"`
	Region       string     `json:"region,omitempty"`
	ReportID     string     `json:"reportId,omitempty"`
	Year         string     `json:"year,omitempty" validate:"omitempty,numeric,len=4"`
}

// requestValidate is shared by every Validate call; validator caches struct
// metadata so one instance per process is enough.
var requestValidate = validator.New()

// Normalize fills derived fields. A report-scoped request always carries its
// own id as ReportID, and a society-wide request without a region targets the
// whole country.
func (r Request) Normalize() Request {
	r.CountryID = strings.ToLower(strings.TrimSpace(r.CountryID))
	if r.TargetType == TargetReport && r.ReportID == "" {
		r.ReportID = r.CalcID
	}
	if r.CalcType == SocietyWide && r.Region == "" {
		r.Region = r.CountryID
	}
	return r
}

// Validate checks the request against its struct tags and returns an
// apperrors.ValidationError naming the first offending field.
func (r Request) Validate() error {
	err := requestValidate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperrors.ValidationError{
			Field:   fe.Namespace(),
			Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
		}
	}
	return apperrors.WrapError(err, "validate request %q", r.CalcID)
}

// Metadata travels with every status so observers can interpret it without
// access to the original request.
type Metadata struct {
	CalcID     string     `json:"calcId"`
	CalcType   CalcType   `json:"calcType"`
	TargetType TargetType `json:"targetType"`
	StartedAt  time.Time  `json:"startedAt"`
	ReportID   string     `json:"reportId,omitempty"`
	Year       string     `json:"year,omitempty"`
}

// MetadataFor builds the metadata of a run of r started at startedAt.
func MetadataFor(r Request, startedAt time.Time) Metadata {
	return Metadata{
		CalcID:     r.CalcID,
		CalcType:   r.CalcType,
		TargetType: r.TargetType,
		StartedAt:  startedAt,
		ReportID:   r.ReportID,
		Year:       r.Year,
	}
}
