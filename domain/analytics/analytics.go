// Package analytics provides the pure algorithms behind dashboard metrics:
// time bucketing, trends, retention cohorts, funnels and session/screen stats.
// All functions are pure - no side effects, no I/O.
package analytics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Query errors.
var (
	ErrInvalidRange       = errors.New("invalid time range")
	ErrInvalidGranularity = errors.New("invalid granularity")
)

// Granularity is the width of a time-series bucket.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity parses a granularity, defaulting to day when empty.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case "":
		return GranularityDay, nil
	case GranularityHour, GranularityDay, GranularityWeek, GranularityMonth:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
	}
}

// Range is a half-open time interval [Start, End).
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks that the range is non-empty.
func (r Range) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() || !r.End.After(r.Start) {
		return fmt.Errorf("%w: start %s, end %s", ErrInvalidRange, r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	return nil
}

// Normalize converts the range to UTC truncated to the minute, so that
// requests issued a few seconds apart share cache entries.
func (r Range) Normalize() Range {
	return Range{
		Start: r.Start.UTC().Truncate(time.Minute),
		End:   r.End.UTC().Truncate(time.Minute),
	}
}

// Previous returns the equal-length range immediately before r.
func (r Range) Previous() Range {
	d := r.End.Sub(r.Start)
	return Range{Start: r.Start.Add(-d), End: r.Start}
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Days returns the number of calendar days touched by the range.
func (r Range) Days() int {
	return len(Buckets(r, GranularityDay))
}

// Bucket is one time-series slot [Start, End).
type Bucket struct {
	Start time.Time
	End   time.Time
}

// DayStart returns UTC midnight of t's day.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Align returns the start of the g-bucket containing t. Weeks start on Monday.
func Align(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	switch g {
	case GranularityHour:
		return t.Truncate(time.Hour)
	case GranularityWeek:
		d := DayStart(t)
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return DayStart(t)
	}
}

func next(t time.Time, g Granularity) time.Time {
	switch g {
	case GranularityHour:
		return t.Add(time.Hour)
	case GranularityWeek:
		return t.AddDate(0, 0, 7)
	case GranularityMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Buckets splits r into aligned buckets clipped to the range.
// This is a PURE function.
func Buckets(r Range, g Granularity) []Bucket {
	if !r.End.After(r.Start) {
		return nil
	}
	var out []Bucket
	for s := Align(r.Start, g); s.Before(r.End); s = next(s, g) {
		b := Bucket{Start: s, End: next(s, g)}
		if b.Start.Before(r.Start) {
			b.Start = r.Start.UTC()
		}
		if b.End.After(r.End) {
			b.End = r.End.UTC()
		}
		out = append(out, b)
	}
	return out
}

// Point is one value of a time series.
type Point struct {
	Time  time.Time `json:"time"`
	Value int       `json:"value"`
}

// NamedCount pairs a name with an occurrence count.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Top returns the n largest counts, ties broken by name.
// This is a PURE function.
func Top(counts map[string]int, n int) []NamedCount {
	out := make([]NamedCount, 0, len(counts))
	for name, c := range counts {
		out = append(out, NamedCount{Name: name, Count: c})
	}
	SortCounts(out)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// SortCounts orders counts descending, ties broken by name.
func SortCounts(c []NamedCount) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Count != c[j].Count {
			return c[i].Count > c[j].Count
		}
		return c[i].Name < c[j].Name
	})
}

// Trend is a metric value with its previous-period comparison.
type Trend struct {
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
	Change   float64 `json:"change"`
}

// NewTrend builds a trend with its percent change.
func NewTrend(current, previous float64) Trend {
	return Trend{Current: current, Previous: previous, Change: PercentChange(current, previous)}
}

// PercentChange returns the change from previous to current in percent,
// rounded to 2 decimals. A zero previous value counts as a 100% increase
// when current is positive and 0% otherwise.
// This is a PURE function.
func PercentChange(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return Round2((current - previous) / previous * 100)
}

// Round2 rounds to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Mean returns the arithmetic mean, 0 for no values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median returns the median, 0 for no values. The input is not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Ratio returns part/whole*100 rounded to 2 decimals, 0 when whole is 0.
func Ratio(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return Round2(float64(part) / float64(whole) * 100)
}
