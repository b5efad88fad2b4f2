package scoring

// Predicate is a letter band over the total score. A band covers
// (Lower, Upper]; D also covers exactly 0.
type Predicate struct {
	Grade     string  `json:"grade"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
	Label     string  `json:"label"`
	Narrative string  `json:"narrative"`
}

// Ordered descending; PredicateFor relies on that.
var predicates = []Predicate{
	{
		Grade: "AA", Lower: 90, Upper: 100, Label: "Very Satisfactory",
		Narrative: "Performance accountability is excellent: results-oriented management is embedded, targets are met and the organisation drives continuous improvement.",
	},
	{
		Grade: "A", Lower: 80, Upper: 90, Label: "Satisfactory",
		Narrative: "Performance accountability is very good: planning, measurement and reporting are reliable and consistently used to steer decisions.",
	},
	{
		Grade: "BB", Lower: 70, Upper: 80, Label: "Very Good",
		Narrative: "Performance accountability is good and dependable; the performance management system works but needs refinement in places.",
	},
	{
		Grade: "B", Lower: 60, Upper: 70, Label: "Good",
		Narrative: "Performance accountability is fairly good; a management system exists and is partly used, with notable gaps in utilisation.",
	},
	{
		Grade: "CC", Lower: 50, Upper: 60, Label: "Adequate",
		Narrative: "Performance accountability is adequate; the system exists but is not yet reliable and needs substantial improvement.",
	},
	{
		Grade: "C", Lower: 30, Upper: 50, Label: "Poor",
		Narrative: "Performance accountability is weak; the management system is incomplete and rarely informs decisions.",
	},
	{
		Grade: "D", Lower: 0, Upper: 30, Label: "Very Poor",
		Narrative: "Performance accountability is very weak; a performance management system is largely absent.",
	},
}

// Predicates returns the band table, highest first.
func Predicates() []Predicate {
	out := make([]Predicate, len(predicates))
	copy(out, predicates)
	return out
}

// PredicateFor maps a total score to its band.
func PredicateFor(total float64) Predicate {
	last := predicates[len(predicates)-1]
	if total <= 0 {
		return last
	}
	if total > predicates[0].Upper {
		return predicates[0]
	}
	for _, p := range predicates {
		if total > p.Lower && total <= p.Upper {
			return p
		}
	}
	return last
}
