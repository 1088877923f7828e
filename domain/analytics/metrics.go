package analytics

import "time"

// Overview is the dashboard headline report.
//
// DAU is the number of distinct users active in the range, MAU the number of
// distinct users in the 30 days ending at the range end. Both are compared
// with the equal-length previous range.
type Overview struct {
	Range       Range        `json:"range"`
	DAU         Trend        `json:"dau"`
	MAU         Trend        `json:"mau"`
	Sessions    Trend        `json:"sessions"`
	ScreenViews Trend        `json:"screenViews"`
	TopScreens  []NamedCount `json:"topScreens"`
	TopEvents   []NamedCount `json:"topEvents"`
	Platforms   []NamedCount `json:"platforms"`
}

// MAUWindow is the trailing window used for monthly active users.
const MAUWindow = 30 * 24 * time.Hour

// TopN is the size of the top screens/events lists.
const TopN = 5

// UserSeries is a DAU (daily) or MAU (monthly) time series.
type UserSeries struct {
	Granularity Granularity `json:"granularity"`
	Points      []Point     `json:"points"`
	Total       int         `json:"totalUsers"`
	NewUsers    int         `json:"newUsers"`
}

// EventStats counts events by name over a range.
type EventStats struct {
	Granularity Granularity  `json:"granularity"`
	Total       int          `json:"total"`
	ByName      []NamedCount `json:"byName"`
	ByType      []NamedCount `json:"byType"`
	Series      []Point      `json:"series"`
}
