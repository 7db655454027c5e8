// Package monitor raises escalations for courses whose meetings never start.
//
// It keeps one state machine per course per calendar day:
//
//	Pending -> Confirmed -> Evaluated
//	Pending -> Escalated
//
// Both the timer-driven check and the webhook-driven evaluator report into the
// same machine, so a course/day produces at most one escalation notice no
// matter which path observes the problem first.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"tutortrack/internal/evaluate"
	"tutortrack/internal/notify"
	"tutortrack/internal/record"
	"tutortrack/internal/registry"
	"tutortrack/internal/session"
)

type phase int

const (
	phasePending phase = iota
	phaseConfirmed
	phaseEscalated
	phaseEvaluated
)

type courseDay struct {
	phase    phase
	notified bool
}

// Monitor schedules a pre-start check for every course occurring today and
// escalates when the provider never reported a matching meeting.
type Monitor struct {
	log       *zap.Logger
	reg       *registry.Registry
	tracker   *session.Tracker
	notifier  notify.Notifier
	eval      *evaluate.Evaluator
	loc       *time.Location
	sweepCron string

	// OnEscalation, when set, is invoked once per escalation notice.
	OnEscalation func()

	mu     sync.Mutex
	states map[string]*courseDay
	timers []*time.Timer
	cron   *cron.Cron
	now    func() time.Time
}

// New creates a monitor that checks each course at its grace deadline, as
// computed by eval, and sweeps the day's schedule at sweepHour local time.
func New(log *zap.Logger, reg *registry.Registry, tracker *session.Tracker, notifier notify.Notifier, eval *evaluate.Evaluator, loc *time.Location, sweepHour int) *Monitor {
	return &Monitor{
		log:       log,
		reg:       reg,
		tracker:   tracker,
		notifier:  notifier,
		eval:      eval,
		loc:       loc,
		sweepCron: fmt.Sprintf("0 %d * * *", sweepHour),
		states:    make(map[string]*courseDay),
		now:       time.Now,
	}
}

// Start runs one immediate sweep and then sweeps daily at the configured hour.
func (m *Monitor) Start() error {
	m.Sweep()
	c := cron.New(cron.WithLocation(m.loc))
	if _, err := c.AddFunc(m.sweepCron, m.Sweep); err != nil {
		return fmt.Errorf("schedule daily sweep: %w", err)
	}
	c.Start()
	m.mu.Lock()
	m.cron = c
	m.mu.Unlock()
	return nil
}

// Stop cancels the daily sweep and any outstanding per-course timers.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		m.cron.Stop()
		m.cron = nil
	}
	m.cancelTimersLocked()
}

// Sweep reloads the registry and schedules today's checks. Prior pending
// timers are cancelled first so a reload never duplicates firings.
func (m *Monitor) Sweep() {
	if err := m.reg.Reload(); err != nil {
		// Keep serving the previous roster.
		m.log.Error("registry reload failed", zap.Error(err))
	}

	now := m.now().In(m.loc)
	today := now.Format("2006-01-02")

	m.mu.Lock()
	m.cancelTimersLocked()
	m.pruneLocked(today)
	m.mu.Unlock()

	scheduled := 0
	for _, c := range m.reg.Snapshot() {
		if c.Weekday() != now.Weekday() {
			continue
		}
		course := c
		occ := m.eval.Occurrence(course, now)
		if now.After(occ) {
			// A sweep after the slot cannot tell a finished session
			// from one that never happened; the webhook-driven
			// verdict covers the day instead.
			m.log.Info("slot already passed at sweep time",
				zap.String("course", course.Name),
				zap.String("scheduled_time", course.ScheduledTime),
				zap.String("date", today))
			continue
		}
		delay := m.eval.GraceDeadline(course, now).Sub(now)
		if delay < 0 {
			delay = 0
		}
		timer := time.AfterFunc(delay, func() {
			m.check(course, today)
		})
		m.mu.Lock()
		m.timers = append(m.timers, timer)
		m.mu.Unlock()
		scheduled++
	}
	m.log.Info("monitor sweep complete",
		zap.String("date", today),
		zap.Int("checks_scheduled", scheduled))
}

// check resolves a pending course/day: Confirmed when an open session carries
// the course's topic, Escalated otherwise.
func (m *Monitor) check(c registry.Course, date string) {
	started := m.tracker.HasTopic(c.Name)

	m.mu.Lock()
	st := m.stateLocked(c, date)
	if st.phase != phasePending {
		m.mu.Unlock()
		return
	}
	if started {
		st.phase = phaseConfirmed
		m.mu.Unlock()
		m.log.Info("course confirmed started", zap.String("course", c.Name), zap.String("date", date))
		return
	}
	st.phase = phaseEscalated
	st.notified = true
	m.mu.Unlock()

	m.escalate(c, date)
}

// ConfirmStarted records that a meeting for the course began today; a later
// check resolves to Confirmed without escalating.
func (m *Monitor) ConfirmStarted(c registry.Course, date string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateLocked(c, date)
	if st.phase == phasePending {
		st.phase = phaseConfirmed
	}
}

// MarkEvaluated moves the course/day to its terminal state and reports
// whether the caller should raise a late notice: true only when the verdict
// warrants one and no escalation has been sent yet for this course/day.
func (m *Monitor) MarkEvaluated(c registry.Course, date string, status record.Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateLocked(c, date)
	st.phase = phaseEvaluated
	if status != record.StatusNotAttended || st.notified {
		return false
	}
	st.notified = true
	return true
}

func (m *Monitor) escalate(c registry.Course, date string) {
	m.log.Warn("course never started, escalating",
		zap.String("course", c.Name),
		zap.String("teacher", c.Teacher),
		zap.String("date", date),
		zap.String("scheduled_time", c.ScheduledTime))
	if m.OnEscalation != nil {
		m.OnEscalation()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	joinBy := m.eval.GraceDeadline(c, m.now().In(m.loc)).Format("15:04")
	subject := notify.EscalationSubject(c.Name)
	body := notify.EscalationBody(c.Name, c.Teacher, c.ScheduledTime, joinBy)
	if err := m.notifier.Notify(ctx, subject, body); err != nil {
		m.log.Error("escalation notice failed", zap.String("course", c.Name), zap.Error(err))
	}
}

func (m *Monitor) stateLocked(c registry.Course, date string) *courseDay {
	k := stateKey(c, date)
	st, ok := m.states[k]
	if !ok {
		st = &courseDay{}
		m.states[k] = st
	}
	return st
}

func (m *Monitor) cancelTimersLocked() {
	for _, t := range m.timers {
		t.Stop()
	}
	m.timers = nil
}

// pruneLocked drops state entries from previous days.
func (m *Monitor) pruneLocked(today string) {
	for k := range m.states {
		if !strings.HasSuffix(k, today) {
			delete(m.states, k)
		}
	}
}

func stateKey(c registry.Course, date string) string {
	return c.Name + "|" + c.WeekDay + "|" + c.ScheduledTime + "|" + date
}
