package report

import (
	"strings"

	"github.com/artpar/pulse/domain/analytics"
)

func trendRow(name string, t analytics.Trend) []string {
	return []string{name, ftoa(t.Current), ftoa(t.Previous), ftoa(t.Change)}
}

func overviewTable(o analytics.Overview) Table {
	return Table{
		Headers: []string{"Metric", "Current", "Previous", "Change %"},
		Rows: [][]string{
			trendRow("dau", o.DAU),
			trendRow("mau", o.MAU),
			trendRow("sessions", o.Sessions),
			trendRow("screen_views", o.ScreenViews),
		},
	}
}

func overviewDocument(o analytics.Overview, meta Meta) Document {
	doc := header("Overview", meta)
	t := overviewTable(o)
	doc.Sections = []Section{
		{Heading: "Key metrics", Table: &t},
		{Heading: "Top screens", Table: countsTable("Screen", o.TopScreens)},
		{Heading: "Top events", Table: countsTable("Event", o.TopEvents)},
		{Heading: "Platforms", Table: countsTable("Platform", o.Platforms)},
	}
	return doc
}

func eventsTable(s analytics.EventStats) Table {
	return *countsTable("Event", s.ByName)
}

func eventsDocument(s analytics.EventStats, meta Meta) Document {
	doc := header("Events", meta)
	doc.Sections = []Section{
		{Heading: "Summary", Fields: [][2]string{{"Total events", itoa(s.Total)}}},
		{Heading: "By name", Table: countsTable("Event", s.ByName)},
		{Heading: "By type", Table: countsTable("Type", s.ByType)},
		{Heading: "Volume (" + string(s.Granularity) + ")", Table: seriesTable(s.Series, "Events")},
	}
	return doc
}

func usersTable(u analytics.UserSeries) Table {
	return *seriesTable(u.Points, "Active users")
}

func usersDocument(u analytics.UserSeries, meta Meta) Document {
	doc := header("Active users", meta)
	doc.Sections = []Section{
		{Heading: "Summary", Fields: [][2]string{
			{"Distinct users", itoa(u.Total)},
			{"New users", itoa(u.NewUsers)},
			{"Granularity", string(u.Granularity)},
		}},
		{Heading: "Series", Table: seriesTable(u.Points, "Active users")},
	}
	return doc
}

func retentionTable(r analytics.Retention) Table {
	t := Table{Headers: []string{"Cohort", "Size"}}
	for _, off := range r.Offsets {
		t.Headers = append(t.Headers, analytics.OffsetKey(off))
	}
	for _, c := range r.Cohorts {
		row := []string{day(c.Date), itoa(c.Size)}
		for _, off := range r.Offsets {
			row = append(row, ftoa(c.Retention[analytics.OffsetKey(off)]))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func retentionDocument(r analytics.Retention, meta Meta) Document {
	doc := header("Retention", meta)
	overall := Section{Heading: "Overall"}
	for _, off := range r.Offsets {
		k := analytics.OffsetKey(off)
		overall.Fields = append(overall.Fields, [2]string{k, ftoa(r.Overall[k]) + "%"})
	}
	t := retentionTable(r)
	doc.Sections = []Section{overall, {Heading: "Cohorts", Table: &t}}
	return doc
}

func funnelTable(f analytics.Funnel) Table {
	t := Table{Headers: []string{"Step", "Event", "Users", "Conversion %", "Dropoff %", "Avg seconds from previous"}}
	for _, s := range f.Steps {
		t.Rows = append(t.Rows, []string{
			itoa(s.Step + 1), s.EventName, itoa(s.Users),
			ftoa(s.ConversionRate), ftoa(s.DropoffRate), ftoa(s.AvgTimeFromPrevious),
		})
	}
	return t
}

func funnelDocument(f analytics.Funnel, meta Meta) Document {
	doc := header("Funnel", meta)
	names := make([]string, len(f.Steps))
	for i, s := range f.Steps {
		names[i] = s.EventName
	}
	t := funnelTable(f)
	doc.Sections = []Section{
		{Heading: "Definition", Fields: [][2]string{
			{"Steps", strings.Join(names, " > ")},
			{"Window (hours)", ftoa(f.WindowHours)},
			{"Overall conversion", ftoa(f.OverallConversion) + "%"},
		}},
		{Heading: "Steps", Table: &t},
	}
	return doc
}

func sessionsTable(s analytics.SessionStats) Table {
	return *seriesTable(s.Series, "Sessions")
}

func sessionsDocument(s analytics.SessionStats, meta Meta) Document {
	doc := header("Sessions", meta)
	doc.Sections = []Section{
		{Heading: "Summary", Fields: [][2]string{
			{"Sessions", itoa(s.Sessions)},
			{"Users", itoa(s.Users)},
			{"Average duration (s)", ftoa(s.AvgDuration)},
			{"Median duration (s)", ftoa(s.MedianDuration)},
			{"Sessions per user", ftoa(s.SessionsPerUser)},
		}},
		{Heading: "Sessions over time", Table: seriesTable(s.Series, "Sessions")},
	}
	return doc
}

func screensTable(screens []analytics.ScreenStats) Table {
	t := Table{Headers: []string{"Screen", "Views", "Unique users", "Avg duration (s)", "Entrances", "Exits", "Bounce rate %"}}
	for _, s := range screens {
		t.Rows = append(t.Rows, []string{
			s.Screen, itoa(s.Views), itoa(s.UniqueUsers), ftoa(s.AvgDuration),
			itoa(s.Entrances), itoa(s.Exits), ftoa(s.BounceRate),
		})
	}
	return t
}

func screensDocument(screens []analytics.ScreenStats, meta Meta) Document {
	doc := header("Screens", meta)
	t := screensTable(screens)
	doc.Sections = []Section{{Heading: "Screens", Table: &t}}
	return doc
}
