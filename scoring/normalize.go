package scoring

import "report-scoring-pipeline/models"

// Floors are the minimum confidence per risk tier. A completed analysis
// must never report a confidence downstream users would read as "no
// analysis happened".
type Floors struct {
	NonEnvironmental int
	Low              int
	High             int
	Critical         int
}

// DefaultFloors returns the tuned default floor table.
func DefaultFloors() Floors {
	return Floors{
		NonEnvironmental: 30,
		Low:              40,
		High:             50,
		Critical:         60,
	}
}

func (f Floors) floorFor(risk models.RiskLevel, isEnvironmental bool) int {
	if !isEnvironmental {
		return f.NonEnvironmental
	}
	switch risk {
	case models.RiskCritical:
		return f.Critical
	case models.RiskHigh:
		return f.High
	default:
		return f.Low
	}
}

// normalize enforces the confidence floor for the result's risk tier and
// clamps the final confidence to [0,100]. Every strategy's output passes
// through here before leaving the engine.
func normalize(r Result, floors Floors) Result {
	if floor := floors.floorFor(r.RiskLevel, r.IsEnvironmental); r.Confidence < floor {
		r.Confidence = floor
	}
	if r.Confidence > 100 {
		r.Confidence = 100
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	return r
}
