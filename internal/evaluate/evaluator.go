// Package evaluate reconciles completed meeting sessions against their course
// slot and derives the attendance and payment record.
package evaluate

import (
	"math"
	"time"

	"go.uber.org/zap"

	"tutortrack/internal/record"
	"tutortrack/internal/registry"
	"tutortrack/internal/session"
)

// refSessionMinutes is the reference session length the hourly-equivalent
// rate is quoted against: a full session is 40 minutes.
const refSessionMinutes = 40

// Evaluator computes attendance verdicts and bounded payments for completed
// sessions. All wall-clock reasoning happens in a single configured location.
type Evaluator struct {
	log   *zap.Logger
	loc   *time.Location
	grace time.Duration
}

// New creates an evaluator anchored to loc. The grace duration is the
// early-join lead: the monitor fires its pre-start check at the grace
// deadline and escalation notices quote it. The punctuality verdict itself
// compares against the scheduled occurrence (see Evaluate).
func New(log *zap.Logger, loc *time.Location, grace time.Duration) *Evaluator {
	return &Evaluator{log: log, loc: loc, grace: grace}
}

// Occurrence returns the course's expected start instant for the calendar
// week containing start: the configured weekday inside the Monday-based week,
// at the course's wall-clock time in the configured zone. A candidate landing
// more than six days from start is shifted exactly one week toward it, which
// pins down sessions falling just across a week boundary.
func (e *Evaluator) Occurrence(c registry.Course, start time.Time) time.Time {
	local := start.In(e.loc)

	// Days since Monday of the week containing start.
	sinceMonday := (int(local.Weekday()) + 6) % 7
	// Offset of the course's weekday from Monday.
	targetFromMonday := (int(c.Weekday()) + 6) % 7

	h, min := c.ClockTime()
	day := local.AddDate(0, 0, targetFromMonday-sinceMonday)
	occ := time.Date(day.Year(), day.Month(), day.Day(), h, min, 0, 0, e.loc)

	const sixDays = 6 * 24 * time.Hour
	switch {
	case occ.Sub(start) > sixDays:
		occ = occ.AddDate(0, 0, -7)
	case start.Sub(occ) > sixDays:
		occ = occ.AddDate(0, 0, 7)
	}
	return occ
}

// GraceDeadline is the instant the teacher is asked to have joined by:
// the scheduled occurrence minus the configured lead.
func (e *Evaluator) GraceDeadline(c registry.Course, start time.Time) time.Time {
	return e.Occurrence(c, start).Add(-e.grace)
}

// Evaluate derives the full attendance record for a matched course and a
// completed session.
//
// Verdict convention: a session is Attended iff it starts at or before the
// scheduled occurrence instant (boundary inclusive). Starting inside the
// early-join window still counts as attended; starting any amount after the
// scheduled instant does not.
func (e *Evaluator) Evaluate(c registry.Course, s session.Session, end time.Time) record.Record {
	start := s.StartTime
	minutes := int(math.Round(end.Sub(start).Minutes()))
	if minutes <= 0 {
		// Data-quality anomaly: keep the visibly wrong value rather than
		// inventing a plausible one.
		e.log.Warn("non-positive session duration",
			zap.String("meeting_id", s.MeetingID),
			zap.String("course", c.Name),
			zap.Time("start", start),
			zap.Time("end", end))
	}

	occurrence := e.Occurrence(c, start)
	status := record.StatusNotAttended
	if !start.After(occurrence) {
		status = record.StatusAttended
	}

	ratePerMinute := c.RatePound / refSessionMinutes
	calculated := ratePerMinute * float64(minutes)
	// A negative duration flows through to a visibly negative payment; the
	// warning above is the only treatment it gets.
	approved := math.Min(calculated, c.RatePound)

	localStart := start.In(e.loc)
	localEnd := end.In(e.loc)

	email := s.Host
	if email == "" {
		email = c.Teacher
	}

	return record.Record{
		TeacherName:      c.Teacher,
		EmailOrTeacher:   email,
		CourseName:       c.Name,
		MeetingID:        s.MeetingID,
		ScheduledWeekDay: c.WeekDay,
		AttendedWeekDay:  localStart.Weekday().String(),
		Date:             localStart.Format("2006-01-02"),
		ScheduledTime:    c.ScheduledTime,
		EnteredTime:      localStart.Format("15:04"),
		FinishedTime:     localEnd.Format("15:04"),
		TotalTimeMinutes: minutes,
		RatePound:        c.RatePound,
		RatePerMinute:    round4(ratePerMinute),
		CalculatedPay:    round2(calculated),
		ApprovedPay:      round2(approved),
		Status:           status,
	}
}

// OpenRecord builds the row written when a meeting starts, before its end is
// known. The completed record replaces it once the ended event arrives.
func (e *Evaluator) OpenRecord(c registry.Course, s session.Session) record.Record {
	localStart := s.StartTime.In(e.loc)
	email := s.Host
	if email == "" {
		email = c.Teacher
	}
	return record.Record{
		TeacherName:      c.Teacher,
		EmailOrTeacher:   email,
		CourseName:       c.Name,
		MeetingID:        s.MeetingID,
		ScheduledWeekDay: c.WeekDay,
		AttendedWeekDay:  localStart.Weekday().String(),
		Date:             localStart.Format("2006-01-02"),
		ScheduledTime:    c.ScheduledTime,
		EnteredTime:      localStart.Format("15:04"),
		RatePound:        c.RatePound,
		Status:           record.StatusScheduled,
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
