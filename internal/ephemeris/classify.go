package ephemeris

import "strings"

// Classify maps a satellite name to its constellation. Rules are
// case-insensitive and checked in a fixed priority order:
//
//	GPS     — name starts with "GPS" or "NAVSTAR"
//	GLONASS — name starts with "GLONASS" or "COSMOS"
//	Galileo — name starts with "GSAT" or "GALILEO"
//	BeiDou  — name starts with "BEIDOU" or "BDSM", or contains "BEIDOU"
//	Other   — everything else
//
// Classification is name-only; no NORAD ID ranges are consulted.
func Classify(name string) Constellation {
	up := strings.ToUpper(name)

	switch {
	case strings.HasPrefix(up, "GPS") || strings.HasPrefix(up, "NAVSTAR"):
		return GPS
	case strings.HasPrefix(up, "GLONASS") || strings.HasPrefix(up, "COSMOS"):
		return GLONASS
	case strings.HasPrefix(up, "GSAT") || strings.HasPrefix(up, "GALILEO"):
		return Galileo
	case strings.HasPrefix(up, "BEIDOU") || strings.HasPrefix(up, "BDSM") || strings.Contains(up, "BEIDOU"):
		return BeiDou
	default:
		return Other
	}
}
