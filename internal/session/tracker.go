// Package session tracks open meetings between their started and ended events.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when no open session exists for a meeting id.
// Duplicate, late, or out-of-order ended events land here; callers log and
// move on.
var ErrNotFound = errors.New("session: no open session for meeting id")

// Session is an open, in-progress meeting.
type Session struct {
	MeetingID  string
	Topic      string
	StartTime  time.Time
	Host       string
	registered time.Time
}

// Tracker maps provider meeting ids to open sessions. Webhook handlers and the
// proactive monitor touch it from separate goroutines, so every access holds
// the mutex.
type Tracker struct {
	log *zap.Logger
	ttl time.Duration

	mu   sync.Mutex
	open map[string]Session
	now  func() time.Time
}

// NewTracker creates a tracker whose sessions expire after ttl if no ended
// event ever arrives.
func NewTracker(log *zap.Logger, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Tracker{
		log:  log,
		ttl:  ttl,
		open: make(map[string]Session),
		now:  time.Now,
	}
}

// Register records an open session, unconditionally replacing any prior
// session for the same meeting id (last write wins, no merge).
func (t *Tracker) Register(meetingID, topic string, start time.Time, host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.open[meetingID]; ok {
		t.log.Warn("replacing open session",
			zap.String("meeting_id", meetingID),
			zap.String("prev_topic", prev.Topic),
			zap.String("topic", topic))
	}
	t.open[meetingID] = Session{
		MeetingID:  meetingID,
		Topic:      topic,
		StartTime:  start,
		Host:       host,
		registered: t.now(),
	}
}

// ResolveAndClear looks up and removes the session for meetingID atomically.
// The session is cleared even when the caller's downstream matching fails, so
// an unmatched ended event never leaves residue behind.
func (t *Tracker) ResolveAndClear(meetingID string) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.open[meetingID]
	if !ok {
		return Session{}, ErrNotFound
	}
	delete(t.open, meetingID)
	return s, nil
}

// HasTopic reports whether any open session carries exactly the given topic.
// Read-only probe used by the proactive monitor.
func (t *Tracker) HasTopic(topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.open {
		if s.Topic == topic {
			return true
		}
	}
	return false
}

// Len reports the number of open sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// Sweep drops sessions older than the TTL and returns how many were evicted.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-t.ttl)
	evicted := 0
	for id, s := range t.open {
		if s.registered.Before(cutoff) {
			t.log.Warn("evicting stale session with no ended event",
				zap.String("meeting_id", id),
				zap.String("topic", s.Topic),
				zap.Time("started", s.StartTime))
			delete(t.open, id)
			evicted++
		}
	}
	return evicted
}

// StartJanitor sweeps stale sessions on the given interval until ctx is done.
func (t *Tracker) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}
