// Package propagation implements the hybrid per-satellite propagator:
// SGP4 as the primary model, with a circular-Keplerian fallback whenever
// SGP4 fails for a given target time.
//
// SGP4 library choice: github.com/akhenakh/sgp4
//
// Selected because its TLE struct exposes the orbital elements as plain
// numeric fields, so element sets parsed from the OMM feed can be handed to
// the model without synthesizing 69-column TLE strings, and because both
// Initialize and FindPosition return errors instead of terminating the
// process on bad input. Degenerate element sets are rejected at load time;
// per-tick failures select the fallback path.
package propagation

import (
	"fmt"
	"math"

	sgp4 "github.com/akhenakh/sgp4"
)

const (
	earthRadiusKm = 6371.0
	muKm3S2       = 398600.4418 // gravitational parameter GM, km³/s²
)

// Elements are the inputs needed to build a propagator State. Angles in
// degrees, mean motion in rev/day, epoch as fractional Unix seconds.
type Elements struct {
	NoradID        int
	EpochUnix      float64
	EpochYear      int     // full calendar year
	EpochDOY       float64 // fractional day-of-year, 1-based
	MeanMotion     float64 // rev/day
	Eccentricity   float64
	InclinationDeg float64
	RAANDeg        float64
	ArgPerigeeDeg  float64
	MeanAnomalyDeg float64
	Bstar          float64
	MeanMotionDot  float64
	MeanMotionDDot float64
}

// State holds the expensive-to-build SGP4 constants for one satellite plus
// a precomputed circular-orbit fallback parameterization. Built once at load
// time and reused for every tick. Immutable; safe for concurrent reads.
type State struct {
	tle *sgp4.TLE

	// Circular fallback parameterization.
	AltKm          float64 // altitude above surface, from Kepler's third law
	IncRad         float64
	RAANRad        float64
	MeanMotionRadS float64
	EpochUnix      float64
}

// NewState validates the element set, initializes the SGP4 model, and derives
// the fallback parameters. An error means the elements are degenerate and the
// satellite should be skipped.
func NewState(el Elements) (*State, error) {
	// Pre-validate before handing to the SGP4 model: zero or negative mean
	// motion sends the initialization math to NaN without an error return.
	if el.MeanMotion <= 0 {
		return nil, fmt.Errorf("norad %d: mean motion %.6f rev/day out of range", el.NoradID, el.MeanMotion)
	}
	if el.Eccentricity < 0 || el.Eccentricity >= 1 {
		return nil, fmt.Errorf("norad %d: eccentricity %.6f out of [0,1)", el.NoradID, el.Eccentricity)
	}

	tle := &sgp4.TLE{
		SatelliteNumber: el.NoradID,
		Classification:  'U',
		EpochYear:       el.EpochYear,
		EpochDay:        el.EpochDOY,
		MeanMotionDot:   el.MeanMotionDot,
		MeanMotionDot2:  el.MeanMotionDDot,
		Bstar:           el.Bstar,
		Inclination:     el.InclinationDeg,
		RightAscension:  el.RAANDeg,
		Eccentricity:    el.Eccentricity,
		ArgOfPerigee:    el.ArgPerigeeDeg,
		MeanAnomaly:     el.MeanAnomalyDeg,
		MeanMotion:      el.MeanMotion,
	}
	if _, err := tle.Initialize(); err != nil {
		return nil, fmt.Errorf("sgp4 init for norad %d: %w", el.NoradID, err)
	}

	// Fallback orbit radius from Kepler's third law: a = (μ / n²)^(1/3).
	n := el.MeanMotion * 2 * math.Pi / 86400.0
	a := math.Cbrt(muKm3S2 / (n * n))

	return &State{
		tle:            tle,
		AltKm:          a - earthRadiusKm,
		IncRad:         el.InclinationDeg * math.Pi / 180.0,
		RAANRad:        el.RAANDeg * math.Pi / 180.0,
		MeanMotionRadS: n,
		EpochUnix:      el.EpochUnix,
	}, nil
}

// Position propagates the satellite to the given Unix timestamp and returns
// its TEME position in kilometers. The second return reports whether the
// circular fallback was used because SGP4 failed for this target time.
//
// Both paths are stateless per call: a satellite that needs the fallback on
// one tick may propagate normally on the next.
func (s *State) Position(unixS float64) ([3]float64, bool) {
	pos, err := s.primary(unixS)
	if err != nil {
		return s.fallback(unixS), true
	}
	return pos, false
}

// primary runs the SGP4 model with minutes elapsed since this satellite's own
// reference epoch. Output is sanity-checked for NaN/Inf and for position
// magnitudes outside the plausible Earth-orbit range, since numerical
// blow-ups can produce garbage without an error return.
func (s *State) primary(unixS float64) ([3]float64, error) {
	minutes := (unixS - s.EpochUnix) / 60.0
	eci, err := s.tle.FindPosition(minutes)
	if err != nil {
		return [3]float64{}, err
	}

	p := eci.Position
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) ||
		math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) || math.IsInf(p.Z, 0) {
		return [3]float64{}, fmt.Errorf("sgp4 output is NaN/Inf at tsince %.1f min", minutes)
	}

	mag := math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return [3]float64{}, fmt.Errorf("sgp4 position magnitude %.1f km implausible", mag)
	}

	return [3]float64{p.X, p.Y, p.Z}, nil
}

// fallback treats the orbit as circular: mean anomaly grows linearly from
// zero at the element-set epoch (the epoch mean anomaly is deliberately not
// used — satellites re-phase when entering fallback, which is acceptable for
// visualization), the orbital plane is tilted by inclination about the line
// of nodes, then rotated by RAAN about the polar axis. Same frame convention
// as the primary path.
func (s *State) fallback(unixS float64) [3]float64 {
	r := earthRadiusKm + s.AltKm
	ma := s.MeanMotionRadS * (unixS - s.EpochUnix)

	sinM, cosM := math.Sincos(ma)
	sinI, cosI := math.Sincos(s.IncRad)
	sinO, cosO := math.Sincos(s.RAANRad)

	// In-plane position (r·cosM along the line of nodes), tilted by
	// inclination, then the node rotated to its right ascension.
	return [3]float64{
		r * (cosM*cosO - sinM*cosI*sinO),
		r * (cosM*sinO + sinM*cosI*cosO),
		r * sinM * sinI,
	}
}
