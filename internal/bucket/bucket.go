// Package bucket maps days of the week to the coarse record keys shared by
// the follow, aggregate and prune jobs. Friday and Saturday share a bucket.
package bucket

import "time"

type Code string

const (
	Sunday    Code = "SUN"
	Monday    Code = "MON"
	Tuesday   Code = "TUE"
	Wednesday Code = "WED"
	Thursday  Code = "THU"
	Weekend   Code = "FRI+SAT"
)

var byWeekday = [7]Code{
	time.Sunday:    Sunday,
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Weekend,
	time.Saturday:  Weekend,
}

// ForWeekday is total over time.Weekday values 0..6.
func ForWeekday(d time.Weekday) Code {
	return byWeekday[d%7]
}

// For returns the bucket of t in its own location.
func For(t time.Time) Code {
	return ForWeekday(t.Weekday())
}

// Yesterday returns the bucket of the calendar day before t.
func Yesterday(t time.Time) Code {
	return For(t.AddDate(0, 0, -1))
}

func (c Code) String() string { return string(c) }

// CacheKey is the keyed-store key holding the seen-post cache for this bucket.
func (c Code) CacheKey() string { return "CACHE#" + string(c) }

// StatsKey is the keyed-store key holding running deletion stats for this bucket.
func (c Code) StatsKey() string { return "DEL-STATS#" + string(c) }

// IsCaturday reports whether t falls on Saturday.
func IsCaturday(t time.Time) bool {
	return t.Weekday() == time.Saturday
}
