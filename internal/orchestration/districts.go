package orchestration

import (
	"encoding/json"
	"fmt"

	"github.com/agbru/policycalc/internal/calc"
)

// DistrictPoint is the impact of a reform on one congressional district.
type DistrictPoint struct {
	Region                        string  `json:"region"`
	District                      string  `json:"district"`
	AverageHouseholdIncomeChange  float64 `json:"average_household_income_change"`
	RelativeHouseholdIncomeChange float64 `json:"relative_household_income_change"`
}

type districtImpact struct {
	CongressionalDistrictImpact *struct {
		Districts []DistrictPoint `json:"districts"`
	} `json:"congressional_district_impact"`
}

// MergeDistricts collects the district breakdown of every unit result, in
// the order given. Results without a district breakdown contribute nothing.
func MergeDistricts(results []calc.SocietyWideResult) ([]DistrictPoint, error) {
	var out []DistrictPoint
	for _, res := range results {
		if len(res.Output) == 0 {
			continue
		}
		var impact districtImpact
		if err := json.Unmarshal(res.Output, &impact); err != nil {
			return nil, fmt.Errorf("decode districts of %s: %w", res.Region, err)
		}
		if impact.CongressionalDistrictImpact == nil {
			continue
		}
		for _, d := range impact.CongressionalDistrictImpact.Districts {
			d.Region = res.Region
			out = append(out, d)
		}
	}
	return out, nil
}
