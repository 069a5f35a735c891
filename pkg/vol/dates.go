package vol

import (
	"math"
	"time"
)

const (
	// examTimeEpochOffset is the number of seconds from 1601-01-01 to 1970-01-01
	examTimeEpochOffset = 11644473600

	// dayEpochOffset is the number of days from 1899-12-30 to 1970-01-01
	dayEpochOffset = 25569

	ticksPerSecond = 10000000
	secondsPerDay  = 24 * 60 * 60
)

// ExamTimeFromRaw converts 100ns ticks since 1601-01-01 to UTC time
func ExamTimeFromRaw(raw uint64) time.Time {
	sec := int64(raw/ticksPerSecond) - examTimeEpochOffset
	nsec := int64(raw%ticksPerSecond) * 100
	return time.Unix(sec, nsec).UTC()
}

// DateFromRaw converts fractional days since 1899-12-30 to UTC time.
// Non-finite input yields the zero time.
func DateFromRaw(raw float64) time.Time {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return time.Time{}
	}
	secs := (raw - dayEpochOffset) * secondsPerDay
	whole := math.Floor(secs)
	nsec := math.Round((secs - whole) * 1e9)
	return time.Unix(int64(whole), int64(nsec)).UTC()
}

// BirthDateFromRaw is DateFromRaw truncated to the calendar day
func BirthDateFromRaw(raw float64) time.Time {
	t := DateFromRaw(raw)
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
