package ephemeris

import "time"

// Constellation identifies which GNSS system a satellite belongs to.
type Constellation uint8

const (
	GPS Constellation = iota
	GLONASS
	Galileo
	BeiDou
	Other
)

// NumConstellations is the number of distinct constellation tags.
const NumConstellations = 5

func (c Constellation) String() string {
	switch c {
	case GPS:
		return "gps"
	case GLONASS:
		return "glonass"
	case Galileo:
		return "galileo"
	case BeiDou:
		return "beidou"
	default:
		return "other"
	}
}

// Record is one satellite's entry in the OMM JSON feed. Field names follow
// the CCSDS OMM convention used by Celestrak. BSTAR and the mean-motion
// derivatives are optional in the feed and default to zero.
type Record struct {
	ObjectName      string  `json:"OBJECT_NAME"`
	NoradCatID      int     `json:"NORAD_CAT_ID"`
	Epoch           string  `json:"EPOCH"`             // "YYYY-DDD.FFFFFFFF" or ISO 8601
	MeanMotion      float64 `json:"MEAN_MOTION"`       // rev/day
	Eccentricity    float64 `json:"ECCENTRICITY"`
	Inclination     float64 `json:"INCLINATION"`       // degrees
	RAOfAscNode     float64 `json:"RA_OF_ASC_NODE"`    // degrees
	ArgOfPericenter float64 `json:"ARG_OF_PERICENTER"` // degrees
	MeanAnomaly     float64 `json:"MEAN_ANOMALY"`      // degrees
	Bstar           float64 `json:"BSTAR"`             // 1/earth radii
	MeanMotionDot   float64 `json:"MEAN_MOTION_DOT"`   // rev/day²
	MeanMotionDDot  float64 `json:"MEAN_MOTION_DDOT"`  // rev/day³
}

// ElementSet holds one satellite's parsed orbital elements at its reference
// epoch. Immutable once built.
type ElementSet struct {
	NoradID       int
	Name          string
	Constellation Constellation
	EpochUnix     float64 // seconds since 1970-01-01 UTC, fractional
	EpochYear2    int     // 2-digit epoch year
	EpochDOY      float64 // fractional day-of-year, 1-based

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

// PositionSample is one satellite's propagated position at a target time:
// constellation tag plus a TEME-frame position in kilometers. Recomputed
// every tick, never persisted.
type PositionSample struct {
	Constellation Constellation
	PosKm         [3]float64
}

// Dataset is one complete loaded feed. Immutable after construction; a fresh
// load builds a new Dataset and swaps it in wholesale.
type Dataset struct {
	LoadedAt   time.Time
	Satellites []Satellite
}
