package utils

import "time"

// NormalizeDate truncates to midnight UTC. Ledger and batch ordering compare
// dates at day granularity.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
