package evaluate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tutortrack/internal/record"
	"tutortrack/internal/registry"
	"tutortrack/internal/session"
)

func london(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	return loc
}

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	return New(zap.NewNop(), london(t), 3*time.Minute)
}

var algebra = registry.Course{
	Name:          "Algebra 1",
	Teacher:       "Ada Byron",
	WeekDay:       "Monday",
	ScheduledTime: "09:00",
	RatePound:     40,
}

func sessionAt(start time.Time) session.Session {
	return session.Session{
		MeetingID: "mtg-1",
		Topic:     algebra.Name,
		StartTime: start,
		Host:      "ada@example.com",
	}
}

// 2025-06-09 is a Monday.
func monday(t *testing.T, hour, min int) time.Time {
	return time.Date(2025, 6, 9, hour, min, 0, 0, london(t))
}

func TestEvaluateOnTimeFullSession(t *testing.T) {
	e := newEvaluator(t)
	start := monday(t, 8, 58)
	end := monday(t, 9, 38)

	rec := e.Evaluate(algebra, sessionAt(start), end)

	assert.Equal(t, 40, rec.TotalTimeMinutes)
	assert.Equal(t, record.StatusAttended, rec.Status)
	assert.Equal(t, 40.0, rec.CalculatedPay)
	assert.Equal(t, 40.0, rec.ApprovedPay)
	assert.Equal(t, 1.0, rec.RatePerMinute)
	assert.Equal(t, "Algebra 1", rec.CourseName)
	assert.Equal(t, "Ada Byron", rec.TeacherName)
	assert.Equal(t, "ada@example.com", rec.EmailOrTeacher)
	assert.Equal(t, "Monday", rec.ScheduledWeekDay)
	assert.Equal(t, "Monday", rec.AttendedWeekDay)
	assert.Equal(t, "2025-06-09", rec.Date)
	assert.Equal(t, "09:00", rec.ScheduledTime)
	assert.Equal(t, "08:58", rec.EnteredTime)
	assert.Equal(t, "09:38", rec.FinishedTime)
}

func TestEvaluateLateStart(t *testing.T) {
	e := newEvaluator(t)
	rec := e.Evaluate(algebra, sessionAt(monday(t, 9, 1)), monday(t, 9, 41))
	assert.Equal(t, record.StatusNotAttended, rec.Status)
}

func TestEvaluatePunctualityBoundary(t *testing.T) {
	e := newEvaluator(t)

	// Exactly on the scheduled instant: attended (boundary inclusive).
	onTime := monday(t, 9, 0)
	rec := e.Evaluate(algebra, sessionAt(onTime), onTime.Add(40*time.Minute))
	assert.Equal(t, record.StatusAttended, rec.Status)

	// One second past: not attended.
	late := onTime.Add(time.Second)
	rec = e.Evaluate(algebra, sessionAt(late), late.Add(40*time.Minute))
	assert.Equal(t, record.StatusNotAttended, rec.Status)
}

func TestEvaluatePaymentNeverExceedsRate(t *testing.T) {
	e := newEvaluator(t)
	tests := []struct {
		name         string
		minutes      int
		wantCalc     float64
		wantApproved float64
	}{
		{"short session", 20, 20, 20},
		{"reference length", 40, 40, 40},
		{"overrun capped", 65, 65, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := monday(t, 8, 58)
			rec := e.Evaluate(algebra, sessionAt(start), start.Add(time.Duration(tt.minutes)*time.Minute))
			assert.Equal(t, tt.minutes, rec.TotalTimeMinutes)
			assert.Equal(t, tt.wantCalc, rec.CalculatedPay)
			assert.Equal(t, tt.wantApproved, rec.ApprovedPay)
			assert.LessOrEqual(t, rec.ApprovedPay, algebra.RatePound)
		})
	}
}

func TestEvaluateRoundsToNearestMinute(t *testing.T) {
	e := newEvaluator(t)
	start := monday(t, 8, 58)

	rec := e.Evaluate(algebra, sessionAt(start), start.Add(39*time.Minute+31*time.Second))
	assert.Equal(t, 40, rec.TotalTimeMinutes)

	rec = e.Evaluate(algebra, sessionAt(start), start.Add(39*time.Minute+29*time.Second))
	assert.Equal(t, 39, rec.TotalTimeMinutes)
}

func TestEvaluateDurationAcrossDSTChange(t *testing.T) {
	loc := london(t)
	e := New(zap.NewNop(), loc, 3*time.Minute)
	course := registry.Course{
		Name:          "Sunday Early",
		Teacher:       "Grace",
		WeekDay:       "Sunday",
		ScheduledTime: "00:45",
		RatePound:     40,
	}

	// Clocks go forward 2025-03-30 at 01:00 GMT. One elapsed hour spans
	// the change: 00:30 GMT through 02:30 BST.
	start := time.Date(2025, 3, 30, 0, 30, 0, 0, time.UTC)
	end := time.Date(2025, 3, 30, 1, 30, 0, 0, time.UTC)
	sess := session.Session{MeetingID: "mtg-dst", Topic: course.Name, StartTime: start}

	rec := e.Evaluate(course, sess, end)
	assert.Equal(t, 60, rec.TotalTimeMinutes)
	assert.Equal(t, "00:30", rec.EnteredTime)
	assert.Equal(t, "02:30", rec.FinishedTime)
	assert.Equal(t, record.StatusAttended, rec.Status)
}

func TestEvaluateNonPositiveDuration(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e := New(zap.New(core), london(t), 3*time.Minute)

	start := monday(t, 9, 0)
	rec := e.Evaluate(algebra, sessionAt(start), start.Add(-5*time.Minute))

	// The record is still produced, with the visibly wrong values intact.
	assert.Equal(t, -5, rec.TotalTimeMinutes)
	assert.Equal(t, -5.0, rec.CalculatedPay)
	assert.Equal(t, 1, logs.FilterMessage("non-positive session duration").Len())
}

func TestOccurrenceSameWeek(t *testing.T) {
	e := newEvaluator(t)
	course := registry.Course{Name: "Geometry", Teacher: "Emmy", WeekDay: "Wednesday", ScheduledTime: "10:00", RatePound: 30}

	// Tuesday afternoon; the occurrence is Wednesday morning of the same week.
	start := time.Date(2025, 6, 10, 15, 0, 0, 0, london(t))
	occ := e.Occurrence(course, start)
	assert.Equal(t, time.Date(2025, 6, 11, 10, 0, 0, 0, london(t)), occ)
}

func TestOccurrenceIdempotentUnderWeekShift(t *testing.T) {
	e := newEvaluator(t)
	course := registry.Course{Name: "Geometry", Teacher: "Emmy", WeekDay: "Wednesday", ScheduledTime: "10:00", RatePound: 30}

	start := time.Date(2025, 6, 10, 15, 0, 0, 0, london(t))
	occ := e.Occurrence(course, start)

	for _, weeks := range []int{-2, -1, 1, 2} {
		shifted := e.Occurrence(course, start.AddDate(0, 0, 7*weeks))
		assert.True(t, shifted.Equal(occ.AddDate(0, 0, 7*weeks)),
			"shift by %d weeks: got %v want %v", weeks, shifted, occ.AddDate(0, 0, 7*weeks))
	}
}

func TestOccurrenceWeekBoundaryShiftsTowardStart(t *testing.T) {
	e := newEvaluator(t)
	course := registry.Course{Name: "Night Owls", Teacher: "Alan", WeekDay: "Monday", ScheduledTime: "00:30", RatePound: 40}

	// Sunday 23:50: the Monday slot in the week containing the start is
	// almost seven days in the past, so the occurrence shifts forward to
	// the Monday forty minutes ahead.
	start := time.Date(2025, 6, 15, 23, 50, 0, 0, london(t))
	occ := e.Occurrence(course, start)
	assert.Equal(t, time.Date(2025, 6, 16, 0, 30, 0, 0, london(t)), occ)
}

func TestEvaluateCrossMidnightWeekdays(t *testing.T) {
	e := newEvaluator(t)
	course := registry.Course{Name: "Night Owls", Teacher: "Alan", WeekDay: "Monday", ScheduledTime: "23:55", RatePound: 40}

	// Session starts five minutes after midnight on Tuesday for a Monday
	// 23:55 slot: attended weekday legitimately differs from the
	// scheduled one, and the late start is a Not-attended verdict.
	start := time.Date(2025, 6, 10, 0, 5, 0, 0, london(t))
	sess := session.Session{MeetingID: "mtg-night", Topic: course.Name, StartTime: start}
	rec := e.Evaluate(course, sess, start.Add(40*time.Minute))

	assert.Equal(t, "Monday", rec.ScheduledWeekDay)
	assert.Equal(t, "Tuesday", rec.AttendedWeekDay)
	assert.Equal(t, record.StatusNotAttended, rec.Status)
}

func TestOpenRecord(t *testing.T) {
	e := newEvaluator(t)
	start := monday(t, 8, 59)
	rec := e.OpenRecord(algebra, sessionAt(start))

	assert.Equal(t, record.StatusScheduled, rec.Status)
	assert.Equal(t, "08:59", rec.EnteredTime)
	assert.Empty(t, rec.FinishedTime)
	assert.Zero(t, rec.TotalTimeMinutes)
	assert.Equal(t, algebra.RatePound, rec.RatePound)
}
