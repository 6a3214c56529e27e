package analysis

import "math"

// DefaultBand is the settling tolerance relative to |x0|.
const DefaultBand = 0.02

// Response summarizes how a run approached the origin.
type Response struct {
	// SettlingStep is the first step after which |x| stays inside the band,
	// or -1 if the run never settles.
	SettlingStep int     `json:"settling_step"`
	Overshoot    float64 `json:"overshoot"`
	FinalError   float64 `json:"final_error"`
	PeakInput    float64 `json:"peak_input"`
	// Saturated counts steps whose input sits on the largest magnitude seen.
	Saturated int     `json:"saturated"`
	DecayRate float64 `json:"decay_rate"`
}

// Analyze measures states against the DefaultBand.
func Analyze(states, applied []float64) Response {
	return AnalyzeBand(states, applied, DefaultBand)
}

// AnalyzeBand settles on a band of band*|x0| around zero; band <= 0 uses
// DefaultBand.
func AnalyzeBand(states, applied []float64, band float64) Response {
	r := Response{SettlingStep: -1}
	if len(states) == 0 {
		return r
	}
	if band <= 0 {
		band = DefaultBand
	}
	x0 := states[0]
	tol := band * math.Abs(x0)

	r.SettlingStep = 0
	for t, x := range states {
		if math.Abs(x) > tol {
			r.SettlingStep = t + 1
		}
		// overshoot is travel past zero away from the starting side
		if x0 != 0 && x*x0 < 0 {
			r.Overshoot = math.Max(r.Overshoot, math.Abs(x))
		}
	}
	if r.SettlingStep >= len(states) {
		r.SettlingStep = -1
	}
	r.FinalError = math.Abs(states[len(states)-1])

	for _, u := range applied {
		r.PeakInput = math.Max(r.PeakInput, math.Abs(u))
	}
	if r.PeakInput > 0 {
		for _, u := range applied {
			if math.Abs(math.Abs(u)-r.PeakInput) < 1e-9 {
				r.Saturated++
			}
		}
	}
	r.DecayRate = DecayRate(states)
	return r
}

// DecayRate is the mean of log|x[t+1]/x[t]| over steps where both are
// nonzero. Negative values mean contraction.
func DecayRate(states []float64) float64 {
	var sum float64
	var n int
	for t := 0; t+1 < len(states); t++ {
		a, b := math.Abs(states[t]), math.Abs(states[t+1])
		if a < 1e-12 || b < 1e-12 {
			continue
		}
		sum += math.Log(b / a)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
