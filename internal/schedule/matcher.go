// Package schedule resolves meeting topics to registered courses.
package schedule

import (
	"errors"
	"time"

	"tutortrack/internal/registry"
)

// ErrNoMatch is returned when no course name equals the topic. Callers drop
// the event with a log line; the provider is still acknowledged.
var ErrNoMatch = errors.New("schedule: no course matches topic")

// Matcher finds the course a session belongs to. Matching is exact and
// case-sensitive on the course name; there is deliberately no fuzzy or
// partial matching.
type Matcher struct {
	reg *registry.Registry
	loc *time.Location
}

// NewMatcher creates a matcher over the given registry, interpreting session
// instants in loc.
func NewMatcher(reg *registry.Registry, loc *time.Location) *Matcher {
	return &Matcher{reg: reg, loc: loc}
}

// Match returns the course whose name equals topic. When several courses share
// the name, the occurrence instant narrows first by weekday, then by nearest
// scheduled wall-clock time; a zero `at` falls back to first-match-by-name.
func (m *Matcher) Match(topic string, at time.Time) (registry.Course, error) {
	var named []registry.Course
	for _, c := range m.reg.Snapshot() {
		if c.Name == topic {
			named = append(named, c)
		}
	}
	switch len(named) {
	case 0:
		return registry.Course{}, ErrNoMatch
	case 1:
		return named[0], nil
	}
	if at.IsZero() {
		return named[0], nil
	}

	local := at.In(m.loc)
	sameDay := named[:0:0]
	for _, c := range named {
		if c.Weekday() == local.Weekday() {
			sameDay = append(sameDay, c)
		}
	}
	if len(sameDay) == 1 {
		return sameDay[0], nil
	}
	if len(sameDay) == 0 {
		sameDay = named
	}

	// Several slots on the same day: pick the one scheduled closest to the
	// session's actual start.
	best := sameDay[0]
	bestDist := clockDistance(local, best)
	for _, c := range sameDay[1:] {
		if d := clockDistance(local, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, nil
}

func clockDistance(at time.Time, c registry.Course) time.Duration {
	h, min := c.ClockTime()
	slot := time.Date(at.Year(), at.Month(), at.Day(), h, min, 0, 0, at.Location())
	d := at.Sub(slot)
	if d < 0 {
		d = -d
	}
	return d
}
