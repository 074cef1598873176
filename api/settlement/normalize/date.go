package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// serialEpochOffset is the spreadsheet serial of 1970-01-01.
	serialEpochOffset = 25569
	minSerial         = 1
	maxSerial         = 2958465
	secondsPerDay     = 86400
)

var (
	serialPattern = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	dmyPattern    = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{2}|\d{4})(?:[ T].*)?$`)
	packedPattern = regexp.MustCompile(`^\d{8}$`)
)

// NormalizeDate turns a provider date cell into a UTC calendar date.
// Accepted inputs are spreadsheet serial numbers and D/M/Y or D-M-Y text
// with an optional trailing time. Anything else reports false.
func NormalizeDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if serialPattern.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, false
		}
		return NormalizeSerialDate(f)
	}
	m := dmyPattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		year += 2000
	}
	return calendarDate(year, month, day)
}

// NormalizeSerialDate converts a spreadsheet day serial. The fractional
// time-of-day part is dropped.
func NormalizeSerialDate(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || serial < minSerial || serial > maxSerial {
		return time.Time{}, false
	}
	days := int64(math.Floor(serial))
	return time.Unix((days-serialEpochOffset)*secondsPerDay, 0).UTC(), true
}

// NormalizePackedDate parses the YYYYMMDD form used by fixed-width exports.
func NormalizePackedDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if !packedPattern.MatchString(s) {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(s[0:4])
	month, _ := strconv.Atoi(s[4:6])
	day, _ := strconv.Atoi(s[6:8])
	return calendarDate(year, month, day)
}

// calendarDate rejects day/month combinations that time.Date would roll over.
func calendarDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
