package analytics

import (
	"sort"

	"github.com/artpar/pulse/domain/event"
)

// SessionStats summarises sessions in a range. Durations come from the
// explicit "duration" property, never from timestamp arithmetic.
type SessionStats struct {
	Sessions        int     `json:"sessions"`
	Users           int     `json:"users"`
	WithDuration    int     `json:"withDuration"`
	AvgDuration     float64 `json:"avgDuration"`
	MedianDuration  float64 `json:"medianDuration"`
	SessionsPerUser float64 `json:"sessionsPerUser"`
	Series          []Point `json:"series"`
}

// BuildSessionStats derives session statistics from session_start and
// session_end events. A session is counted once per distinct session ID seen
// on a session_start event. Its duration is taken from session_end when
// present, otherwise from session_start.
// This is a PURE function.
func BuildSessionStats(events []event.Event, buckets []Bucket) SessionStats {
	type session struct {
		start     *event.Event
		duration  float64
		hasEnd    bool
		hasLength bool
	}
	sessions := make(map[string]*session)
	users := make(map[string]struct{})

	for i := range events {
		e := &events[i]
		if e.Type != event.TypeSessionStart && e.Type != event.TypeSessionEnd {
			continue
		}
		s := sessions[e.SessionID]
		if s == nil {
			s = &session{}
			sessions[e.SessionID] = s
		}
		d, ok := e.Duration()
		switch e.Type {
		case event.TypeSessionStart:
			if s.start == nil || e.Timestamp.Before(s.start.Timestamp) {
				s.start = e
			}
			if ok && !s.hasEnd {
				s.duration, s.hasLength = d, true
			}
		case event.TypeSessionEnd:
			if ok {
				s.duration, s.hasLength, s.hasEnd = d, true, true
			}
		}
	}

	stats := SessionStats{Series: make([]Point, len(buckets))}
	for i, b := range buckets {
		stats.Series[i] = Point{Time: b.Start}
	}

	var durations []float64
	for _, s := range sessions {
		if s.start == nil {
			continue
		}
		stats.Sessions++
		if s.start.UserID != "" {
			users[s.start.UserID] = struct{}{}
		}
		if s.hasLength {
			durations = append(durations, s.duration)
		}
		for i, b := range buckets {
			if !s.start.Timestamp.Before(b.Start) && s.start.Timestamp.Before(b.End) {
				stats.Series[i].Value++
				break
			}
		}
	}

	stats.Users = len(users)
	stats.WithDuration = len(durations)
	stats.AvgDuration = Round2(Mean(durations))
	stats.MedianDuration = Round2(Median(durations))
	if stats.Users > 0 {
		stats.SessionsPerUser = Round2(float64(stats.Sessions) / float64(stats.Users))
	}
	return stats
}

// ScreenStats holds per-screen metrics.
//
// Entrances counts sessions whose first screen view is this screen, Exits
// sessions whose last view is this screen, and BounceRate the share of
// entrances whose session viewed only this one screen.
type ScreenStats struct {
	Screen      string  `json:"screen"`
	Views       int     `json:"views"`
	UniqueUsers int     `json:"uniqueUsers"`
	AvgDuration float64 `json:"avgDuration"`
	Entrances   int     `json:"entrances"`
	Exits       int     `json:"exits"`
	BounceRate  float64 `json:"bounceRate"`
}

// BuildScreenStats derives per-screen metrics from screen_view events, most
// viewed first. The screen is the event name.
// This is a PURE function.
func BuildScreenStats(events []event.Event) []ScreenStats {
	type acc struct {
		views     int
		users     map[string]struct{}
		durations []float64
		entrances int
		exits     int
		bounces   int
	}
	screens := make(map[string]*acc)
	bySession := make(map[string][]event.Event)

	get := func(name string) *acc {
		a := screens[name]
		if a == nil {
			a = &acc{users: make(map[string]struct{})}
			screens[name] = a
		}
		return a
	}

	for _, e := range events {
		if e.Type != event.TypeScreenView || e.Name == "" {
			continue
		}
		a := get(e.Name)
		a.views++
		if e.UserID != "" {
			a.users[e.UserID] = struct{}{}
		}
		if d, ok := e.Duration(); ok {
			a.durations = append(a.durations, d)
		}
		if e.SessionID != "" {
			bySession[e.SessionID] = append(bySession[e.SessionID], e)
		}
	}

	for _, views := range bySession {
		sort.SliceStable(views, func(i, j int) bool { return views[i].Timestamp.Before(views[j].Timestamp) })
		first, last := views[0].Name, views[len(views)-1].Name
		get(first).entrances++
		get(last).exits++
		if len(views) == 1 {
			get(first).bounces++
		}
	}

	out := make([]ScreenStats, 0, len(screens))
	for name, a := range screens {
		out = append(out, ScreenStats{
			Screen:      name,
			Views:       a.views,
			UniqueUsers: len(a.users),
			AvgDuration: Round2(Mean(a.durations)),
			Entrances:   a.entrances,
			Exits:       a.exits,
			BounceRate:  Ratio(a.bounces, a.entrances),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		return out[i].Screen < out[j].Screen
	})
	return out
}
