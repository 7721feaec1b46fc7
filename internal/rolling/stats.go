package rolling

import (
	"math"

	"github.com/Resinat/Dashgate/internal/model"
	"github.com/shopspring/decimal"
)

// PresentationDigits is the number of decimal digits kept in StatsSnapshot.
const PresentationDigits = 3

// ComputeStats derives count, mean, min, max and population standard
// deviation over points. An empty input yields the neutral snapshot with
// every numeric field nil.
func ComputeStats(points []model.MeasurementPoint) model.StatsSnapshot {
	if len(points) == 0 {
		return model.StatsSnapshot{Count: 0}
	}

	n := float64(len(points))
	sum := 0.0
	vmin := math.Inf(1)
	vmax := math.Inf(-1)
	for _, p := range points {
		sum += p.Value
		vmin = math.Min(vmin, p.Value)
		vmax = math.Max(vmax, p.Value)
	}
	mean := sum / n

	sq := 0.0
	for _, p := range points {
		d := p.Value - mean
		sq += d * d
	}
	stdDev := math.Sqrt(sq / n)

	return model.StatsSnapshot{
		Mean:   roundPtr(mean),
		Min:    roundPtr(vmin),
		Max:    roundPtr(vmax),
		StdDev: roundPtr(stdDev),
		Count:  len(points),
	}
}

// Round rounds v to PresentationDigits decimal digits. Rounding works on
// the shortest decimal that reads back as v, with ties going away from
// zero, so 0.3005 becomes 0.301 even though its binary value lies just
// below the tie.
func Round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	out, _ := decimal.NewFromFloat(v).Round(PresentationDigits).Float64()
	return out
}

func roundPtr(v float64) *float64 {
	r := Round(v)
	return &r
}
