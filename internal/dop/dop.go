// Package dop computes dilution-of-precision metrics from satellite geometry.
//
// The design matrix H has one row [e, n, u, 1] per satellite above the
// elevation mask. DOP scalars come from the diagonal of (HᵀH)⁻¹.
package dop

import (
	"math"

	"github.com/gonum/matrix/mat64"

	"github.com/star/gnssviz/internal/coords"
	"github.com/star/gnssviz/internal/ephemeris"
	"github.com/star/gnssviz/internal/metrics"
)

// sentinel value reported when DOP cannot be computed
const unavailableDOP = 99.9

// Result holds the five dilution scalars plus the number of satellites that
// survived the elevation mask. All scalars are 99.9 when the geometry does
// not support a solution; NumSats still reports the surviving count so
// callers can tell "too few" from "degenerate".
type Result struct {
	GDOP    float32 `json:"gdop"`
	PDOP    float32 `json:"pdop"`
	HDOP    float32 `json:"hdop"`
	VDOP    float32 `json:"vdop"`
	TDOP    float32 `json:"tdop"`
	NumSats int     `json:"num_sats"`
}

// Unavailable returns the sentinel result for n surviving satellites.
func Unavailable(n int) Result {
	return Result{
		GDOP:    unavailableDOP,
		PDOP:    unavailableDOP,
		HDOP:    unavailableDOP,
		VDOP:    unavailableDOP,
		TDOP:    unavailableDOP,
		NumSats: n,
	}
}

// Available reports whether r carries a real solution rather than the sentinel.
func (r Result) Available() bool {
	return r.GDOP != unavailableDOP
}

// Compute derives DOP metrics for satellites seen from an observer.
// Positions and the observer are earth-fixed kilometers; satellites below
// maskDeg elevation are excluded. Fewer than 4 surviving satellites, a
// singular normal matrix, or a non-positive covariance diagonal all yield
// the sentinel.
func Compute(samples []ephemeris.PositionSample, obsKm [3]float64, maskDeg float64) Result {
	// Rows are single precision to match the downstream display pipeline;
	// the normal-equations accumulation below is double precision to limit
	// conditioning loss.
	rows := make([][4]float32, 0, len(samples))
	for _, s := range samples {
		_, el := coords.AzEl(obsKm, s.PosKm)
		if el < maskDeg {
			continue
		}
		enu := coords.ENUUnit(obsKm, s.PosKm)
		rows = append(rows, [4]float32{float32(enu[0]), float32(enu[1]), float32(enu[2]), 1})
	}

	n := len(rows)
	if n < 4 {
		metrics.IncDOPUnavailable("too_few_satellites")
		return Unavailable(n)
	}

	var a [16]float64
	for _, row := range rows {
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				a[i*4+j] += float64(row[i] * row[j])
			}
		}
	}

	if singular(a) {
		metrics.IncDOPUnavailable("singular")
		return Unavailable(n)
	}

	normal := mat64.NewDense(4, 4, a[:])
	q := mat64.NewDense(4, 4, nil)
	if err := q.Inverse(normal); err != nil {
		metrics.IncDOPUnavailable("singular")
		return Unavailable(n)
	}

	q00 := q.At(0, 0)
	q11 := q.At(1, 1)
	q22 := q.At(2, 2)
	q33 := q.At(3, 3)
	if q00 <= 0 || q11 <= 0 || q22 <= 0 || q33 <= 0 {
		metrics.IncDOPUnavailable("degenerate")
		return Unavailable(n)
	}

	return Result{
		GDOP:    float32(math.Sqrt(q00 + q11 + q22 + q33)),
		PDOP:    float32(math.Sqrt(q00 + q11 + q22)),
		HDOP:    float32(math.Sqrt(q00 + q11)),
		VDOP:    float32(math.Sqrt(q22)),
		TDOP:    float32(math.Sqrt(q33)),
		NumSats: n,
	}
}

// singular runs partial-pivot elimination on a copy of the 4x4 row-major
// matrix and reports whether any pivot column's largest magnitude falls
// below 1e-14. mat64 applies its own condition check on inversion, but its
// threshold differs; this keeps the cutoff explicit.
func singular(src [16]float64) bool {
	m := src
	for col := 0; col < 4; col++ {
		maxVal := math.Abs(m[col*4+col])
		maxRow := col
		for row := col + 1; row < 4; row++ {
			if v := math.Abs(m[row*4+col]); v > maxVal {
				maxVal = v
				maxRow = row
			}
		}
		if maxVal < 1e-14 {
			return true
		}
		if maxRow != col {
			for j := 0; j < 4; j++ {
				m[col*4+j], m[maxRow*4+j] = m[maxRow*4+j], m[col*4+j]
			}
		}
		pivot := m[col*4+col]
		for row := col + 1; row < 4; row++ {
			factor := m[row*4+col] / pivot
			for j := 0; j < 4; j++ {
				m[row*4+j] -= factor * m[col*4+j]
			}
		}
	}
	return false
}
