// Package backend talks to the policy simulation API: it fetches household
// and society-wide calculations and writes completed results back to their
// report or simulation records.
package backend

import (
	"context"
	"encoding/json"
)

// Society-wide response statuses.
const (
	StatusOK        = "ok"
	StatusComputing = "computing"
	StatusError     = "error"
)

// HouseholdFetcher computes a single household under one policy.
type HouseholdFetcher interface {
	FetchHousehold(ctx context.Context, countryID, populationID, policyID string) (json.RawMessage, error)
}

// SocietyWideParams identifies one society-wide calculation.
type SocietyWideParams struct {
	CountryID  string
	ReformID   string
	BaselineID string
	Region     string
	TimePeriod string
}

// SocietyWideResponse is one answer of the economy endpoint. Status is ok,
// computing or error; the optional fields are only meaningful for the
// matching status.
type SocietyWideResponse struct {
	Status        string          `json:"status"`
	Result        json.RawMessage `json:"result,omitempty"`
	QueuePosition *int            `json:"queue_position,omitempty"`
	AverageTime   *float64        `json:"average_time,omitempty"`
	Error         string          `json:"error,omitempty"`
	Message       string          `json:"message,omitempty"`
}

// SocietyWideFetcher requests or re-polls a society-wide calculation. The
// same call both enqueues the job and reports its progress.
type SocietyWideFetcher interface {
	FetchSocietyWide(ctx context.Context, p SocietyWideParams) (SocietyWideResponse, error)
}

// HouseholdFunc adapts a function to HouseholdFetcher.
type HouseholdFunc func(ctx context.Context, countryID, populationID, policyID string) (json.RawMessage, error)

func (f HouseholdFunc) FetchHousehold(ctx context.Context, countryID, populationID, policyID string) (json.RawMessage, error) {
	return f(ctx, countryID, populationID, policyID)
}

// SocietyWideFunc adapts a function to SocietyWideFetcher.
type SocietyWideFunc func(ctx context.Context, p SocietyWideParams) (SocietyWideResponse, error)

func (f SocietyWideFunc) FetchSocietyWide(ctx context.Context, p SocietyWideParams) (SocietyWideResponse, error) {
	return f(ctx, p)
}
