package propagation

import (
	"math"
	"testing"
)

// Orbital elements in the style of a GPS Block III satellite: semi-synchronous
// MEO, ~20200 km altitude, 55° inclination.
func gpsElements() Elements {
	return Elements{
		NoradID:        43873,
		EpochUnix:      1704110400, // 2024-01-01 12:00:00 UTC
		EpochYear:      2024,
		EpochDOY:       1.5,
		MeanMotion:     2.00565,
		Eccentricity:   0.0012,
		InclinationDeg: 55.1,
		RAANDeg:        120.0,
		ArgPerigeeDeg:  30.0,
		MeanAnomalyDeg: 210.0,
		Bstar:          0.0001,
	}
}

func TestNewStateFallbackParameters(t *testing.T) {
	st, err := NewState(gpsElements())
	if err != nil {
		t.Fatalf("NewState failed: %v", err)
	}

	// Kepler's third law for n ≈ 2.00565 rev/day gives a ≈ 26560 km,
	// so altitude ≈ 20190 km.
	if st.AltKm < 20000 || st.AltKm > 20400 {
		t.Errorf("fallback altitude = %.1f km, want ~20190 km", st.AltKm)
	}

	wantN := 2.00565 * 2 * math.Pi / 86400.0
	if math.Abs(st.MeanMotionRadS-wantN) > 1e-12 {
		t.Errorf("mean motion = %v rad/s, want %v", st.MeanMotionRadS, wantN)
	}
	if math.Abs(st.IncRad-55.1*math.Pi/180) > 1e-12 {
		t.Errorf("inclination = %v rad, want 55.1°", st.IncRad)
	}
}

func TestNewStateRejectsDegenerateElements(t *testing.T) {
	bad := gpsElements()
	bad.MeanMotion = 0
	if _, err := NewState(bad); err == nil {
		t.Error("expected error for zero mean motion")
	}

	bad = gpsElements()
	bad.Eccentricity = 1.2
	if _, err := NewState(bad); err == nil {
		t.Error("expected error for hyperbolic eccentricity")
	}
}

func TestPrimaryNearEpoch(t *testing.T) {
	el := gpsElements()
	st, err := NewState(el)
	if err != nil {
		t.Fatalf("NewState failed: %v", err)
	}

	pos, usedFallback := st.Position(el.EpochUnix)
	if usedFallback {
		t.Fatal("SGP4 should succeed at the element-set epoch")
	}

	// Position magnitude should be near the semi-major axis for a
	// near-circular MEO orbit.
	mag := math.Sqrt(pos[0]*pos[0] + pos[1]*pos[1] + pos[2]*pos[2])
	if mag < 26000 || mag > 27200 {
		t.Errorf("position magnitude at epoch = %.1f km, want ~26560 km", mag)
	}
}

func TestPrimaryDeterministic(t *testing.T) {
	el := gpsElements()
	st, err := NewState(el)
	if err != nil {
		t.Fatalf("NewState failed: %v", err)
	}

	target := el.EpochUnix + 3600
	a, fbA := st.Position(target)
	b, fbB := st.Position(target)
	if fbA != fbB || a != b {
		t.Errorf("repeated propagation differs: %v (%v) vs %v (%v)", a, fbA, b, fbB)
	}
}

func TestFallbackAtEpoch(t *testing.T) {
	// dt=0 with inclination 0 and RAAN 0 puts the satellite on the +X axis
	// at orbit radius.
	st := &State{
		AltKm:          20200,
		MeanMotionRadS: 1.45e-4,
		EpochUnix:      0,
	}
	pos := st.fallback(0)
	r := earthRadiusKm + 20200.0
	if math.Abs(pos[0]-r) > 0.01 || math.Abs(pos[1]) > 0.01 || math.Abs(pos[2]) > 0.01 {
		t.Errorf("fallback at epoch = %v, want (%.1f, 0, 0)", pos, r)
	}
}

func TestFallbackPolarOrbit(t *testing.T) {
	// 90° inclination, quarter orbit after epoch: satellite should be at the
	// north celestial pole direction.
	st := &State{
		AltKm:          20200,
		IncRad:         math.Pi / 2,
		MeanMotionRadS: 1e-3,
		EpochUnix:      0,
	}
	quarterOrbit := (math.Pi / 2) / 1e-3
	pos := st.fallback(quarterOrbit)
	r := earthRadiusKm + 20200.0
	if math.Abs(pos[0]) > 1e-6 || math.Abs(pos[1]) > 1e-6 || math.Abs(pos[2]-r) > 1e-6 {
		t.Errorf("polar quarter-orbit = %v, want (0, 0, %.1f)", pos, r)
	}
}

func TestFallbackRadiusConstant(t *testing.T) {
	st := &State{
		AltKm:          19100,
		IncRad:         64.8 * math.Pi / 180,
		RAANRad:        1.2,
		MeanMotionRadS: 1.3e-4,
		EpochUnix:      100,
	}
	r := earthRadiusKm + 19100.0
	for _, dt := range []float64{0, 1000, 40000, 86400} {
		pos := st.fallback(100 + dt)
		mag := math.Sqrt(pos[0]*pos[0] + pos[1]*pos[1] + pos[2]*pos[2])
		if math.Abs(mag-r) > 1e-6 {
			t.Errorf("fallback radius at dt=%v is %.6f km, want %.6f", dt, mag, r)
		}
	}
}
