package lighting

import "strings"

// ParseTokens splits a comma/semicolon-delimited list into lowercased
// tokens: "vehicle, car;person" -> {vehicle, car, person}.
func ParseTokens(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, chunk := range strings.Split(s, ";") {
		for _, part := range strings.Split(chunk, ",") {
			tok := strings.ToLower(strings.TrimSpace(part))
			if tok != "" {
				out[tok] = struct{}{}
			}
		}
	}
	return out
}

// ExpandTokens widens umbrella tokens to the labels cameras actually
// report. "vehicle" covers car/truck/van/suv; any of person/people/human
// covers the other two.
func ExpandTokens(tokens map[string]struct{}) map[string]struct{} {
	out := map[string]struct{}{}
	for t := range tokens {
		switch t {
		case "vehicle":
			for _, x := range []string{"vehicle", "car", "truck", "van", "suv"} {
				out[x] = struct{}{}
			}
		case "person", "people", "human":
			for _, x := range []string{"person", "people", "human"} {
				out[x] = struct{}{}
			}
		default:
			out[t] = struct{}{}
		}
	}
	return out
}
