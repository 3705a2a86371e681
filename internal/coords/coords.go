// Package coords provides coordinate frame and time transformations for
// satellite positions.
//
// The propagator outputs positions in TEME (True Equator Mean Equinox), which
// is treated as equivalent to a true inertial frame at GNSS altitudes. The
// earth-fixed frame is obtained from TEME by a single rotation about the polar
// axis by GMST.
//
// Method: spherical Earth throughout, linear GMST model referenced to J2000.0.
// This ignores polar motion, the equation of equinoxes, ellipsoid flattening
// and leap seconds — acceptable for constellation visualization.
package coords

import "math"

// J2000Unix is the Unix timestamp of the J2000.0 epoch (2000-01-01 12:00:00 UTC).
const J2000Unix = 946728000.0

// EarthRadiusKm is the mean Earth radius. Scene space normalizes to this
// (Earth radius = 1 scene unit).
const EarthRadiusKm = 6371.0

// GMSTRad computes Greenwich Mean Sidereal Time in radians for a Unix
// timestamp (seconds since 1970-01-01 UTC).
//
// Uses the IAU 1982 linear model, accurate to ~0.1 s over ±50 years:
//
//	GMST_deg = 280.46061837 + 360.98564736629 × days_since_J2000
//
// Result is normalized into [0, 2π).
func GMSTRad(unixS float64) float64 {
	d := (unixS - J2000Unix) / 86400.0
	deg := math.Mod(280.46061837+360.98564736629*d, 360.0)
	if deg < 0 {
		deg += 360.0
	}
	return deg * math.Pi / 180.0
}

// TEMEToECEF rotates a TEME position vector into the earth-fixed frame by the
// negative of the GMST angle (radians):
//
//	x' =  cos(g)·x + sin(g)·y
//	y' = −sin(g)·x + cos(g)·y
//	z' =  z
//
// Input and output units are arbitrary but consistent (km or scene units).
func TEMEToECEF(pos [3]float64, gmst float64) [3]float64 {
	cg, sg := math.Cos(gmst), math.Sin(gmst)
	return [3]float64{
		cg*pos[0] + sg*pos[1],
		-sg*pos[0] + cg*pos[1],
		pos[2],
	}
}

// GeodeticToECEFUnit converts geodetic latitude/longitude (degrees) to an
// earth-fixed unit vector on a spherical Earth. Altitude and ellipsoid
// flattening are ignored.
func GeodeticToECEFUnit(latDeg, lonDeg float64) [3]float64 {
	lat := latDeg * math.Pi / 180.0
	lon := lonDeg * math.Pi / 180.0
	return [3]float64{
		math.Cos(lat) * math.Cos(lon),
		math.Cos(lat) * math.Sin(lon),
		math.Sin(lat),
	}
}

// AzEl computes the azimuth and elevation of a target as seen from an
// observer. Both positions must be in the same earth-fixed frame and units;
// only direction matters, so magnitudes need not be normalized.
//
// Azimuth is the compass bearing in degrees [0, 360): 0 = North, 90 = East.
// Elevation is in degrees [−90, +90], positive above the horizon.
func AzEl(obsECEF, satECEF [3]float64) (azDeg, elDeg float64) {
	// Observer geodetic latitude/longitude recovered from its own position.
	lon := math.Atan2(obsECEF[1], obsECEF[0])
	lat := math.Atan2(obsECEF[2], math.Hypot(obsECEF[0], obsECEF[1]))

	slat, clat := math.Sin(lat), math.Cos(lat)
	slon, clon := math.Sin(lon), math.Cos(lon)

	d := [3]float64{
		satECEF[0] - obsECEF[0],
		satECEF[1] - obsECEF[1],
		satECEF[2] - obsECEF[2],
	}

	// Look vector projected onto the observer's local East-North-Up basis.
	east := -slon*d[0] + clon*d[1]
	north := -slat*clon*d[0] - slat*slon*d[1] + clat*d[2]
	up := clat*clon*d[0] + clat*slon*d[1] + slat*d[2]

	elDeg = math.Atan2(up, math.Hypot(east, north)) * 180.0 / math.Pi

	azDeg = math.Atan2(east, north) * 180.0 / math.Pi
	azDeg = math.Mod(azDeg, 360.0)
	if azDeg < 0 {
		azDeg += 360.0
	}
	return azDeg, elDeg
}

// ENUUnit returns the unit line-of-sight vector from observer to target in
// the observer's local East-North-Up basis. Used by the DOP engine to form
// design-matrix rows.
func ENUUnit(obsECEF, satECEF [3]float64) [3]float64 {
	lon := math.Atan2(obsECEF[1], obsECEF[0])
	lat := math.Atan2(obsECEF[2], math.Hypot(obsECEF[0], obsECEF[1]))

	slat, clat := math.Sin(lat), math.Cos(lat)
	slon, clon := math.Sin(lon), math.Cos(lon)

	d := [3]float64{
		satECEF[0] - obsECEF[0],
		satECEF[1] - obsECEF[1],
		satECEF[2] - obsECEF[2],
	}
	mag := math.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])
	if mag == 0 {
		return [3]float64{}
	}

	east := (-slon*d[0] + clon*d[1]) / mag
	north := (-slat*clon*d[0] - slat*slon*d[1] + clat*d[2]) / mag
	up := (clat*clon*d[0] + clat*slon*d[1] + slat*d[2]) / mag

	return [3]float64{east, north, up}
}

// KmToScene normalizes an earth-fixed position from kilometers to scene units
// where Earth radius = 1. This is the single float64 → float32 boundary; all
// upstream math stays in double precision.
func KmToScene(posKm [3]float64) [3]float32 {
	return [3]float32{
		float32(posKm[0] / EarthRadiusKm),
		float32(posKm[1] / EarthRadiusKm),
		float32(posKm[2] / EarthRadiusKm),
	}
}
