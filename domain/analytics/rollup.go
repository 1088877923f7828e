package analytics

import "time"

// RollupPeriod is the span a pre-computed rollup covers.
type RollupPeriod string

const (
	PeriodHour RollupPeriod = "hour"
	PeriodDay  RollupPeriod = "day"
	PeriodWeek RollupPeriod = "week"
)

// Rollup is a pre-computed dashboard total for one project and period.
// Rollups are always recomputable from raw events; saving one twice for the
// same (project, period, start) replaces it.
type Rollup struct {
	ProjectID   string       `json:"projectId"`
	Period      RollupPeriod `json:"period"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	ActiveUsers int          `json:"activeUsers"`
	NewUsers    int          `json:"newUsers"`
	Events      int          `json:"events"`
	Sessions    int          `json:"sessions"`
	ScreenViews int          `json:"screenViews"`
	TopScreens  []NamedCount `json:"topScreens,omitempty"`
	ComputedAt  time.Time    `json:"computedAt"`
}

// WeeklyReport compares a project's week with the week before.
type WeeklyReport struct {
	ProjectID   string       `json:"projectId"`
	Week        Range        `json:"week"`
	ActiveUsers Trend        `json:"activeUsers"`
	NewUsers    Trend        `json:"newUsers"`
	Sessions    Trend        `json:"sessions"`
	ScreenViews Trend        `json:"screenViews"`
	TopScreens  []NamedCount `json:"topScreens"`
}

// BuildWeeklyReport compares two weekly rollups.
// This is a PURE function.
func BuildWeeklyReport(current, previous Rollup) WeeklyReport {
	return WeeklyReport{
		ProjectID:   current.ProjectID,
		Week:        Range{Start: current.Start, End: current.End},
		ActiveUsers: NewTrend(float64(current.ActiveUsers), float64(previous.ActiveUsers)),
		NewUsers:    NewTrend(float64(current.NewUsers), float64(previous.NewUsers)),
		Sessions:    NewTrend(float64(current.Sessions), float64(previous.Sessions)),
		ScreenViews: NewTrend(float64(current.ScreenViews), float64(previous.ScreenViews)),
		TopScreens:  current.TopScreens,
	}
}
