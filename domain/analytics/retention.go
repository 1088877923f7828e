package analytics

import (
	"sort"
	"strconv"
	"time"
)

// DefaultRetentionOffsets are the day offsets reported when none are requested.
var DefaultRetentionOffsets = []int{1, 7, 14, 30}

// UserDay records that a user was seen on a UTC day.
type UserDay struct {
	UserID string
	Day    time.Time
}

// Cohort is the retention curve of the users first seen on one day.
// Size is fixed by the first-seen set and Retention["day0"] is always 100.
type Cohort struct {
	Date      time.Time          `json:"cohortDate"`
	Size      int                `json:"cohortSize"`
	Retention map[string]float64 `json:"retention"`
}

// Retention is a full cohort report.
type Retention struct {
	Offsets []int              `json:"offsets"`
	Cohorts []Cohort           `json:"cohorts"`
	Overall map[string]float64 `json:"overall"`
}

// OffsetKey returns the retention map key for a day offset ("day7").
func OffsetKey(offset int) string {
	return "day" + strconv.Itoa(offset)
}

// BuildRetention computes cohort retention.
// This is a PURE function.
//
// firstSeen holds one entry per user for the day the user was first observed;
// its days define the cohorts. active holds the (user, day) activity pairs
// needed to answer every cohort+offset day. Cohorts of size 0 never appear;
// Overall is the mean across included cohorts per offset.
func BuildRetention(firstSeen []UserDay, active []UserDay, offsets []int) Retention {
	offsets = normalizeOffsets(offsets)

	cohorts := make(map[time.Time]map[string]struct{})
	for _, fs := range firstSeen {
		if fs.UserID == "" {
			continue
		}
		d := DayStart(fs.Day)
		if cohorts[d] == nil {
			cohorts[d] = make(map[string]struct{})
		}
		cohorts[d][fs.UserID] = struct{}{}
	}

	activity := make(map[time.Time]map[string]struct{})
	for _, a := range active {
		d := DayStart(a.Day)
		if activity[d] == nil {
			activity[d] = make(map[string]struct{})
		}
		activity[d][a.UserID] = struct{}{}
	}

	days := make([]time.Time, 0, len(cohorts))
	for d := range cohorts {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	report := Retention{Offsets: offsets, Cohorts: []Cohort{}, Overall: map[string]float64{}}
	sums := make(map[int]float64, len(offsets))

	for _, day := range days {
		members := cohorts[day]
		if len(members) == 0 {
			continue
		}
		c := Cohort{Date: day, Size: len(members), Retention: map[string]float64{OffsetKey(0): 100}}
		for _, off := range offsets {
			if off == 0 {
				continue
			}
			seen := activity[day.AddDate(0, 0, off)]
			retained := 0
			for u := range members {
				if _, ok := seen[u]; ok {
					retained++
				}
			}
			c.Retention[OffsetKey(off)] = Ratio(retained, c.Size)
		}
		for _, off := range offsets {
			sums[off] += c.Retention[OffsetKey(off)]
		}
		report.Cohorts = append(report.Cohorts, c)
	}

	if n := len(report.Cohorts); n > 0 {
		for _, off := range offsets {
			report.Overall[OffsetKey(off)] = Round2(sums[off] / float64(n))
		}
	}
	return report
}

// RetentionDays returns the distinct days whose activity BuildRetention
// needs for the given cohort days and offsets.
// This is a PURE function.
func RetentionDays(cohortDays []time.Time, offsets []int) []time.Time {
	seen := make(map[time.Time]bool)
	var out []time.Time
	for _, d := range cohortDays {
		for _, off := range normalizeOffsets(offsets) {
			if off == 0 {
				continue
			}
			day := DayStart(d).AddDate(0, 0, off)
			if !seen[day] {
				seen[day] = true
				out = append(out, day)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// normalizeOffsets sorts, dedupes and always includes day 0.
func normalizeOffsets(offsets []int) []int {
	if len(offsets) == 0 {
		offsets = DefaultRetentionOffsets
	}
	set := map[int]bool{0: true}
	for _, o := range offsets {
		if o >= 0 {
			set[o] = true
		}
	}
	out := make([]int, 0, len(set))
	for o := range set {
		out = append(out, o)
	}
	sort.Ints(out)
	return out
}
