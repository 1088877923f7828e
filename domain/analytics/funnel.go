package analytics

import (
	"sort"
	"time"
)

// StepEvent is the projection of an event needed for funnel analysis.
type StepEvent struct {
	UserID    string
	Name      string
	Timestamp time.Time
}

// FunnelStep is the result for one funnel step.
type FunnelStep struct {
	Step                int     `json:"step"`
	EventName           string  `json:"eventName"`
	Users               int     `json:"users"`
	ConversionRate      float64 `json:"conversionRate"`
	DropoffRate         float64 `json:"dropoffRate"`
	AvgTimeFromPrevious float64 `json:"avgTimeFromPrevious"`
}

// Funnel is an ordered funnel report.
type Funnel struct {
	Steps             []FunnelStep `json:"steps"`
	WindowHours       float64      `json:"windowHours"`
	OverallConversion float64      `json:"overallConversion"`
}

// BuildFunnel computes an ordered funnel.
// This is a PURE function.
//
// Every step-0 event is an entry. A step-i event qualifies when some
// qualifying step-(i-1) event occurred at or before it, no more than window
// earlier; qualifying events become the anchors for step i+1. A repeated step
// name needs a distinct, later-ordered event. A user counts at a step when
// any event qualifies, and the step latency is the gap from the earliest
// qualifying event to its latest preceding anchor. Conversion is relative to
// the previous step's users; step 0 is 100%. AvgTimeFromPrevious is the mean
// latency in seconds (0 for step 0).
func BuildFunnel(events []StepEvent, steps []string, window time.Duration) Funnel {
	f := Funnel{Steps: make([]FunnelStep, len(steps)), WindowHours: window.Hours()}
	if len(steps) == 0 {
		return f
	}

	order := make(map[string]int, len(steps)) // name -> first step position
	for i, s := range steps {
		if _, ok := order[s]; !ok {
			order[s] = i
		}
	}
	byUser := make(map[string][]StepEvent)
	for _, e := range events {
		if _, ok := order[e.Name]; e.UserID == "" || !ok {
			continue
		}
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}

	users := make([]int, len(steps))
	latency := make([]float64, len(steps))

	for _, evs := range byUser {
		sort.SliceStable(evs, func(i, j int) bool {
			if !evs[i].Timestamp.Equal(evs[j].Timestamp) {
				return evs[i].Timestamp.Before(evs[j].Timestamp)
			}
			return order[evs[i].Name] < order[evs[j].Name]
		})

		var anchors []int
		for i, name := range steps {
			var gap time.Duration
			anchors, gap = advance(evs, anchors, name, i == 0, window)
			if len(anchors) == 0 {
				break
			}
			users[i]++
			latency[i] += gap.Seconds()
		}
	}

	for i, name := range steps {
		st := FunnelStep{Step: i, EventName: name, Users: users[i]}
		if i == 0 {
			if users[0] > 0 {
				st.ConversionRate = 100
			}
		} else {
			st.ConversionRate = Ratio(users[i], users[i-1])
			if users[i-1] > 0 {
				st.DropoffRate = Round2(100 - st.ConversionRate)
			}
			if users[i] > 0 {
				st.AvgTimeFromPrevious = Round2(latency[i] / float64(users[i]))
			}
		}
		f.Steps[i] = st
	}
	f.OverallConversion = Ratio(users[len(steps)-1], users[0])
	return f
}

// advance returns the indices of events named name that qualify after the
// given anchors, and the gap of the earliest one. evs is sorted by time and
// anchors are ascending indices into it.
func advance(evs []StepEvent, anchors []int, name string, entry bool, window time.Duration) ([]int, time.Duration) {
	var next []int
	var first time.Duration
	a := -1 // latest anchor before j
	for j, e := range evs {
		if e.Name != name {
			continue
		}
		if entry {
			next = append(next, j)
			continue
		}
		for a+1 < len(anchors) && anchors[a+1] < j {
			a++
		}
		if a < 0 {
			continue
		}
		gap := e.Timestamp.Sub(evs[anchors[a]].Timestamp)
		if gap > window {
			continue
		}
		if len(next) == 0 {
			first = gap
		}
		next = append(next, j)
	}
	return next, first
}
