package utils

import "time"

// Now returns the current time in UTC timezone
func Now() time.Time {
	return time.Now().UTC()
}

// FormatISO8601 formats a time.Time to ISO8601 format in UTC
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// DayBucket returns the UTC calendar-day key for t (YYYY-MM-DD).
func DayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MonthBucket returns the UTC calendar-month key for t (YYYY-MM).
func MonthBucket(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// TimeBucket truncates t to the given bucket size and returns the bucket
// start as a unix timestamp. Used for deriving coarse idempotency keys.
func TimeBucket(t time.Time, size time.Duration) int64 {
	return t.UTC().Truncate(size).Unix()
}
