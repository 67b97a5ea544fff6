package utils

import (
	"fmt"
	"time"
)

// Rollup granularities.
const (
	GranularityHour = "hour"
	GranularityDay  = "day"
)

// Layouts of the time part of rollup keys.
const (
	DateLayout = "2006-01-02"
	hourLayout = "2006-01-02-15"
)

// HourKey returns the hourly rollup key for t, for example
// "prefix:CONN:HOUR:2024-03-22-15".  t is converted to UTC.
func HourKey(prefix string, t time.Time) (key string) {
	return fmt.Sprintf("%s:CONN:HOUR:%s", prefix, t.UTC().Format(hourLayout))
}

// DayKey returns the daily rollup key for t, for example
// "prefix:CONN:DAY:2024-03-22".  t is converted to UTC.
func DayKey(prefix string, t time.Time) (key string) {
	return fmt.Sprintf("%s:CONN:DAY:%s", prefix, t.UTC().Format(DateLayout))
}

// BucketKeys returns the rollup keys of granularity covering the days from
// fromDate to toDate inclusive, in time order.
func BucketKeys(prefix, granularity string, fromDate, toDate time.Time) (keys []string, err error) {
	start := truncateDay(fromDate)
	end := truncateDay(toDate).Add(24 * time.Hour)

	var (
		step   time.Duration
		keyFor func(prefix string, t time.Time) (key string)
	)

	switch granularity {
	case GranularityDay:
		step, keyFor = 24*time.Hour, DayKey
	case GranularityHour:
		step, keyFor = time.Hour, HourKey
	default:
		return nil, fmt.Errorf("granularity: unknown value %q", granularity)
	}

	for t := start; t.Before(end); t = t.Add(step) {
		keys = append(keys, keyFor(prefix, t))
	}

	return keys, nil
}

// truncateDay returns the UTC midnight of the day of t.
func truncateDay(t time.Time) (day time.Time) {
	y, m, d := t.UTC().Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
