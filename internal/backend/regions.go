package backend

import "strings"

// usStates lists the 50 states plus DC in the backend's lower-case form.
var usStates = []string{
	"al", "ak", "az", "ar", "ca", "co", "ct", "de", "dc", "fl",
	"ga", "hi", "id", "il", "in", "ia", "ks", "ky", "la", "me",
	"md", "ma", "mi", "mn", "ms", "mo", "mt", "ne", "nv", "nh",
	"nj", "nm", "ny", "nc", "nd", "oh", "ok", "or", "pa", "ri",
	"sc", "sd", "tn", "tx", "ut", "vt", "va", "wa", "wv", "wi",
	"wy",
}

// USStateRegions returns the region codes ("state/xx") used to fan a US
// congressional-district report out per state.
func USStateRegions() []string {
	out := make([]string, len(usStates))
	for i, s := range usStates {
		out[i] = "state/" + s
	}
	return out
}

// StateFromRegion extracts the upper-case state code from a "state/xx"
// region, or returns "" for any other region.
func StateFromRegion(region string) string {
	code, ok := strings.CutPrefix(region, "state/")
	if !ok || code == "" {
		return ""
	}
	return strings.ToUpper(code)
}
