package domain

// intensityBand is one step of the ascending PGA→label table.
type intensityBand struct {
	UpperG float64 // exclusive upper bound in g
	Label  string
}

// intensityBands maps mean cluster PGA to a severity label. Thresholds
// follow the usual instrumental-intensity correlations for PGA.
var intensityBands = []intensityBand{
	{UpperG: 0.0005, Label: "imperceptible"},
	{UpperG: 0.003, Label: "weak"},
	{UpperG: 0.028, Label: "light"},
	{UpperG: 0.062, Label: "moderate"},
	{UpperG: 0.12, Label: "strong"},
	{UpperG: 0.22, Label: "very strong"},
	{UpperG: 0.40, Label: "destructive"},
	{UpperG: 0.75, Label: "very destructive"},
}

// intensityMax labels everything at or above the last band's bound.
const intensityMax = "extreme"

// Intensity maps a mean PGA in g to a discrete severity label. Total over
// non-negative inputs; negative or NaN values must be rejected upstream
// and never reach this function.
func Intensity(avgPGA float64) string {
	for _, b := range intensityBands {
		if avgPGA < b.UpperG {
			return b.Label
		}
	}
	return intensityMax
}

// IntensityLabels returns the full ordered label set, weakest first.
func IntensityLabels() []string {
	labels := make([]string, 0, len(intensityBands)+1)
	for _, b := range intensityBands {
		labels = append(labels, b.Label)
	}
	return append(labels, intensityMax)
}
