package model

// Company is a producer or upcycler in the marketplace graph.
type Company struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Industry     string   `json:"industry,omitempty"` // empty when the node has no industry
	Location     string   `json:"location,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	CarbonRating string   `json:"carbon_rating,omitempty"`
	Capacity     int64    `json:"capacity,omitempty"`
}

// HasIndustry reports whether the company can take part in cross-industry matching.
func (c Company) HasIndustry() bool {
	return c.Industry != ""
}

// CrossIndustry reports whether a and b declare different industries.
// A company without an industry never matches anything, including another
// company without one.
func CrossIndustry(a, b Company) bool {
	if !a.HasIndustry() || !b.HasIndustry() {
		return false
	}
	return a.Industry != b.Industry
}
