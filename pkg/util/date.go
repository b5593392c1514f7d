package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339Nano, a plain date, and unix seconds. The result is
// always UTC. Returns (t, true) if any format matched.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// FloorTime floors t onto the epoch-anchored grid of step d, in UTC.
func FloorTime(t time.Time, d time.Duration) time.Time {
	ns, step := t.UnixNano(), int64(d)
	q := ns / step
	if ns%step != 0 && ns < 0 {
		q--
	}
	return time.Unix(0, q*step).UTC()
}

// BucketCount returns the number of interval buckets in [from, to], both
// endpoints being bucket starts.
func BucketCount(from, to time.Time, interval time.Duration) int {
	if to.Before(from) || interval <= 0 {
		return 0
	}
	return int(to.Sub(from)/interval) + 1
}
