// Package clock holds exchange-local time helpers for KRX.
package clock

import (
	"fmt"
	"time"
)

// KST is the exchange time zone (UTC+9, no daylight saving).
var KST = time.FixedZone("KST", 9*60*60)

// Now returns the current time in KST.
func Now() time.Time { return time.Now().In(KST) }

// Date formats t as the KST calendar date used for trade dates and log files.
func Date(t time.Time) string { return t.In(KST).Format("2006-01-02") }

// Today returns the current KST trade date.
func Today() string { return Date(time.Now()) }

// StartOfDay returns midnight KST of the day containing t.
func StartOfDay(t time.Time) time.Time {
	t = t.In(KST)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, KST)
}

// At returns hh:mm KST on the day containing t.
func At(t time.Time, hour, minute int) time.Time {
	t = t.In(KST)
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, KST)
}

// IsWeekday reports whether t falls Monday to Friday in KST.
func IsWeekday(t time.Time) bool {
	switch t.In(KST).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// ParseHHMM parses a 24-hour "HH:MM" wall clock time.
func ParseHHMM(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}
