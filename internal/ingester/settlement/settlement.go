// Package settlement converts (settlement date, settlement period) pairs into
// absolute instants. A settlement period is one of the 30-minute slots partitioning a
// civil day in the Europe/London timezone; most days have 48, clock-change days have
// 46 or 50.
package settlement

import (
	"time"

	"github.com/pkg/errors"
)

var london *time.Location

func init() {
	var err error
	london, err = time.LoadLocation("Europe/London")
	if err != nil {
		panic(err)
	}
}

// PeriodsInDay returns the number of settlement periods in the civil day containing
// the given date: 46, 48 or 50 depending on daylight-saving transitions.
func PeriodsInDay(year int, month time.Month, day int) int {
	midnight := time.Date(year, month, day, 0, 0, 0, 0, london)
	next := time.Date(year, month, day+1, 0, 0, 0, 0, london)
	return int(next.Sub(midnight) / (30 * time.Minute))
}

// Time returns the UTC instant at which the given settlement period starts. Period
// arithmetic is done in civil wall-clock time: midnight of the settlement date plus
// (period-1) * 30 minutes of local time, then converted to UTC. Out-of-range periods
// from upstream feeds are rejected rather than wrapped.
func Time(year int, month time.Month, day int, period int) (time.Time, error) {
	if period < 1 || period > PeriodsInDay(year, month, day) {
		return time.Time{}, errors.Errorf(
			"settlement period %d out of range for %04d-%02d-%02d", period, year, month, day)
	}
	minutes := (period - 1) * 30
	return time.Date(year, month, day, minutes/60, minutes%60, 0, 0, london).UTC(), nil
}

// TimeOfDate is a convenience wrapper for callers holding a date-valued time.Time.
func TimeOfDate(date time.Time, period int) (time.Time, error) {
	return Time(date.Year(), date.Month(), date.Day(), period)
}
