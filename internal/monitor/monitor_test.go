package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tutortrack/internal/evaluate"
	"tutortrack/internal/record"
	"tutortrack/internal/registry"
	"tutortrack/internal/session"
)

type countingNotifier struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
}

func (n *countingNotifier) Notify(_ context.Context, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subjects)
}

const mondayRoster = `courses:
  - course_name: Algebra 1
    teacher_name: Ada Byron
    week_day: Monday
    scheduled_time: "09:00"
    rate_pound: 40
`

func newTestMonitor(t *testing.T) (*Monitor, *registry.Registry, *session.Tracker, *countingNotifier, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "courses.yaml")
	require.NoError(t, os.WriteFile(path, []byte(mondayRoster), 0o644))
	reg, err := registry.New(path)
	require.NoError(t, err)

	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	tracker := session.NewTracker(zap.NewNop(), time.Hour)
	notifier := &countingNotifier{}
	eval := evaluate.New(zap.NewNop(), loc, 3*time.Minute)
	m := New(zap.NewNop(), reg, tracker, notifier, eval, loc, 6)
	// A Monday morning, just before the scheduled slot.
	m.now = func() time.Time { return time.Date(2025, 6, 9, 8, 50, 0, 0, loc) }
	return m, reg, tracker, notifier, path
}

func course(reg *registry.Registry) registry.Course {
	return reg.Snapshot()[0]
}

func TestCheckEscalatesOncePerCourseDay(t *testing.T) {
	m, reg, _, notifier, _ := newTestMonitor(t)
	c := course(reg)

	m.check(c, "2025-06-09")
	m.check(c, "2025-06-09")

	assert.Equal(t, 1, notifier.count())
	assert.Contains(t, notifier.subjects[0], "Algebra 1")
}

func TestEscalationQuotesGraceDeadline(t *testing.T) {
	m, reg, _, notifier, _ := newTestMonitor(t)

	m.check(course(reg), "2025-06-09")

	require.Equal(t, 1, notifier.count())
	// 09:00 slot with a 3 minute grace: the host was expected by 08:57.
	assert.Contains(t, notifier.bodies[0], "09:00")
	assert.Contains(t, notifier.bodies[0], "08:57")
}

func TestCheckConfirmsWhenSessionOpen(t *testing.T) {
	m, reg, tracker, notifier, _ := newTestMonitor(t)
	c := course(reg)

	tracker.Register("m1", "Algebra 1", time.Now(), "")
	m.check(c, "2025-06-09")

	assert.Equal(t, 0, notifier.count())
}

func TestConfirmStartedPreemptsEscalation(t *testing.T) {
	m, reg, _, notifier, _ := newTestMonitor(t)
	c := course(reg)

	// Webhook path saw the start before the timer fired; even if the
	// session already ended and left the tracker, the check stays quiet.
	m.ConfirmStarted(c, "2025-06-09")
	m.check(c, "2025-06-09")

	assert.Equal(t, 0, notifier.count())
}

func TestMarkEvaluatedAllowsOneLateNotice(t *testing.T) {
	m, reg, _, _, _ := newTestMonitor(t)
	c := course(reg)

	assert.True(t, m.MarkEvaluated(c, "2025-06-09", record.StatusNotAttended))
	assert.False(t, m.MarkEvaluated(c, "2025-06-09", record.StatusNotAttended))
}

func TestMarkEvaluatedAttendedNeverNotifies(t *testing.T) {
	m, reg, _, _, _ := newTestMonitor(t)
	assert.False(t, m.MarkEvaluated(course(reg), "2025-06-09", record.StatusAttended))
}

func TestEscalationThenEvaluationDoesNotDoubleNotify(t *testing.T) {
	m, reg, _, notifier, _ := newTestMonitor(t)
	c := course(reg)

	// Timer escalated first; the webhook-driven verdict must not raise a
	// second notice for the same course/day.
	m.check(c, "2025-06-09")
	assert.Equal(t, 1, notifier.count())
	assert.False(t, m.MarkEvaluated(c, "2025-06-09", record.StatusNotAttended))
}

func TestSweepSchedulesTodaysCourses(t *testing.T) {
	m, _, _, _, _ := newTestMonitor(t)

	m.Sweep()
	m.mu.Lock()
	timers := len(m.timers)
	m.mu.Unlock()
	assert.Equal(t, 1, timers)
	m.Stop()
}

func TestSweepSkipsOtherWeekdays(t *testing.T) {
	m, _, _, _, _ := newTestMonitor(t)
	loc, _ := time.LoadLocation("Europe/London")
	// A Tuesday: the Monday course is not due.
	m.now = func() time.Time { return time.Date(2025, 6, 10, 8, 50, 0, 0, loc) }

	m.Sweep()
	m.mu.Lock()
	timers := len(m.timers)
	m.mu.Unlock()
	assert.Equal(t, 0, timers)
}

func TestSweepSkipsSlotsAlreadyPassed(t *testing.T) {
	m, _, _, notifier, _ := newTestMonitor(t)
	loc, _ := time.LoadLocation("Europe/London")
	// A restart at 10:00 cannot tell whether the 09:00 slot ran; it must
	// not schedule a check that would escalate against an empty tracker.
	m.now = func() time.Time { return time.Date(2025, 6, 9, 10, 0, 0, 0, loc) }

	m.Sweep()
	m.mu.Lock()
	timers := len(m.timers)
	m.mu.Unlock()
	assert.Equal(t, 0, timers)
	assert.Equal(t, 0, notifier.count())
}

func TestSweepCancelsPriorTimers(t *testing.T) {
	m, _, _, _, _ := newTestMonitor(t)

	m.Sweep()
	m.Sweep()
	m.mu.Lock()
	timers := len(m.timers)
	m.mu.Unlock()
	// Re-sweeping replaces, not accumulates.
	assert.Equal(t, 1, timers)
	m.Stop()
}

func TestSweepKeepsRosterOnReloadFailure(t *testing.T) {
	m, reg, _, _, path := newTestMonitor(t)

	require.NoError(t, os.WriteFile(path, []byte("courses: [{week_day: Funday}]"), 0o644))
	m.Sweep()
	assert.Equal(t, 1, reg.Len())
	m.Stop()
}

func TestOnEscalationHook(t *testing.T) {
	m, reg, _, _, _ := newTestMonitor(t)
	fired := 0
	m.OnEscalation = func() { fired++ }

	m.check(course(reg), "2025-06-09")
	assert.Equal(t, 1, fired)
}
