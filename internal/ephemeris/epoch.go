package ephemeris

import (
	"fmt"
	"strconv"
	"strings"
)

// cumulative days before each month in a non-leap year
var monthDays = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// ParseEpoch parses a feed epoch string into a 2-digit year, a fractional
// 1-based day-of-year, and a Unix timestamp.
//
// Two formats are supported:
//
//	"YYYY-DDD.FFFFFFFF"        — fractional day-of-year
//	"YYYY-MM-DDTHH:MM:SS[.sss]" — ISO 8601, assumed UTC
//
// The Unix conversion uses a proleptic-Gregorian day count from 1970 with
// the standard leap rule; no leap-second correction is applied. Valid for
// epoch years 1970-2100.
func ParseEpoch(s string) (year2 int, doy float64, unixS float64, err error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "T") {
		return parseEpochISO(s)
	}
	return parseEpochDOY(s)
}

func parseEpochDOY(s string) (int, float64, float64, error) {
	yearStr, doyStr, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("epoch %q: expected YYYY-DDD.FFF", s)
	}

	year, err := strconv.Atoi(strings.TrimSpace(yearStr))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("epoch %q: invalid year: %w", s, err)
	}
	doy, err := strconv.ParseFloat(strings.TrimSpace(doyStr), 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("epoch %q: invalid day-of-year: %w", s, err)
	}

	unixS, err := yearDOYToUnix(year, doy)
	if err != nil {
		return 0, 0, 0, err
	}
	return year % 100, doy, unixS, nil
}

func parseEpochISO(s string) (int, float64, float64, error) {
	datePart, timePart, _ := strings.Cut(s, "T")
	if timePart == "" {
		timePart = "00:00:00"
	}

	dateFields := strings.SplitN(datePart, "-", 3)
	if len(dateFields) != 3 {
		return 0, 0, 0, fmt.Errorf("epoch %q: expected YYYY-MM-DD date", s)
	}
	year, err := strconv.Atoi(dateFields[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("epoch %q: invalid year: %w", s, err)
	}
	month, err := strconv.Atoi(dateFields[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("epoch %q: invalid month: %w", s, err)
	}
	day, err := strconv.Atoi(dateFields[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("epoch %q: invalid day: %w", s, err)
	}

	timeFields := strings.SplitN(timePart, ":", 3)
	if len(timeFields) != 3 {
		return 0, 0, 0, fmt.Errorf("epoch %q: expected HH:MM:SS time", s)
	}
	hh, err := strconv.Atoi(timeFields[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("epoch %q: invalid hour: %w", s, err)
	}
	mm, err := strconv.Atoi(timeFields[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("epoch %q: invalid minute: %w", s, err)
	}
	ss, err := strconv.ParseFloat(strings.TrimSuffix(timeFields[2], "Z"), 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("epoch %q: invalid seconds: %w", s, err)
	}

	doyInt, err := dayOfYear(year, month, day)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("epoch %q: %w", s, err)
	}
	doy := float64(doyInt) + (float64(hh)*3600+float64(mm)*60+ss)/86400.0

	unixS, err := yearDOYToUnix(year, doy)
	if err != nil {
		return 0, 0, 0, err
	}
	return year % 100, doy, unixS, nil
}

// yearDOYToUnix converts (year, fractional 1-based day-of-year) to Unix
// seconds: elapsed days from 1970 to Jan 1 of year, plus (doy-1) days.
func yearDOYToUnix(year int, doy float64) (float64, error) {
	if year < 1970 || year > 2100 {
		return 0, fmt.Errorf("epoch year %d outside supported range 1970-2100", year)
	}
	var days int64
	for y := 1970; y < year; y++ {
		if isLeapYear(y) {
			days += 366
		} else {
			days += 365
		}
	}
	return float64(days*86400) + (doy-1)*86400.0, nil
}

func isLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

// dayOfYear returns the 1-based day-of-year for a calendar date.
func dayOfYear(year, month, day int) (int, error) {
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("month %d out of range", month)
	}
	if day < 1 || day > 31 {
		return 0, fmt.Errorf("day %d out of range", day)
	}
	doy := day
	for m := 0; m < month-1; m++ {
		doy += monthDays[m]
		if m == 1 && isLeapYear(year) {
			doy++
		}
	}
	return doy, nil
}
