// Package webhook receives provider meeting events and drives reconciliation.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tutortrack/internal/evaluate"
	"tutortrack/internal/hub"
	"tutortrack/internal/metrics"
	"tutortrack/internal/monitor"
	"tutortrack/internal/notify"
	"tutortrack/internal/queue"
	"tutortrack/internal/record"
	"tutortrack/internal/schedule"
	"tutortrack/internal/session"
)

// Provider header names for signature verification.
const (
	HeaderSignature = "x-zm-signature"
	HeaderTimestamp = "x-zm-request-timestamp"
)

// Recognized event types. Anything else is acknowledged and ignored.
const (
	EventURLValidation  = "endpoint.url_validation"
	EventMeetingStarted = "meeting.started"
	EventMeetingEnded   = "meeting.ended"
)

type envelope struct {
	Event   string `json:"event"`
	Payload struct {
		PlainToken string `json:"plainToken"`
		Object     struct {
			ID        string `json:"id"`
			Topic     string `json:"topic"`
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
			HostID    string `json:"host_id"`
			HostEmail string `json:"host_email"`
		} `json:"object"`
	} `json:"payload"`
}

// Handler wires the webhook route to the reconciliation core. Structurally
// valid events always get HTTP 200 so the provider never retries; internal
// misses are observability-only.
type Handler struct {
	log      *zap.Logger
	tracker  *session.Tracker
	matcher  *schedule.Matcher
	eval     *evaluate.Evaluator
	store    record.Store
	queue    queue.Queue
	hub      *hub.Hub
	mon      *monitor.Monitor
	notifier notify.Notifier
	metrics  *metrics.Metrics

	secret    string
	staleness time.Duration
	now       func() time.Time
}

// Config carries the handler's collaborators.
type Config struct {
	Log      *zap.Logger
	Tracker  *session.Tracker
	Matcher  *schedule.Matcher
	Eval     *evaluate.Evaluator
	Store    record.Store
	Queue    queue.Queue
	Hub      *hub.Hub
	Monitor  *monitor.Monitor
	Notifier notify.Notifier
	Metrics  *metrics.Metrics

	Secret string
	// Staleness rejects requests older than this; zero disables the check.
	Staleness time.Duration
}

// New creates a webhook handler.
func New(cfg Config) *Handler {
	return &Handler{
		log:       cfg.Log,
		tracker:   cfg.Tracker,
		matcher:   cfg.Matcher,
		eval:      cfg.Eval,
		store:     cfg.Store,
		queue:     cfg.Queue,
		hub:       cfg.Hub,
		mon:       cfg.Monitor,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		secret:    cfg.Secret,
		staleness: cfg.Staleness,
		now:       time.Now,
	}
}

// Handle is the POST endpoint for provider webhooks.
func (h *Handler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ts := c.GetHeader(HeaderTimestamp)
	sig := c.GetHeader(HeaderSignature)
	if err := Verify(h.secret, ts, sig, body, h.now(), h.staleness); err != nil {
		h.metrics.SignatureRejected.Inc()
		h.log.Warn("webhook rejected at signature gate", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
		return
	}

	var evt envelope
	if err := json.Unmarshal(body, &evt); err != nil {
		h.log.Warn("malformed webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	h.metrics.WebhooksReceived.WithLabelValues(evt.Event).Inc()

	switch evt.Event {
	case EventURLValidation:
		c.JSON(http.StatusOK, gin.H{
			"plainToken":     evt.Payload.PlainToken,
			"encryptedToken": EncryptToken(h.secret, evt.Payload.PlainToken),
		})
	case EventMeetingStarted:
		h.handleStarted(c.Request.Context(), evt)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case EventMeetingEnded:
		h.handleEnded(c.Request.Context(), evt)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

func (h *Handler) handleStarted(ctx context.Context, evt envelope) {
	obj := evt.Payload.Object
	start, err := time.Parse(time.RFC3339, obj.StartTime)
	if err != nil {
		h.log.Warn("unparseable start_time, event dropped",
			zap.String("meeting_id", obj.ID),
			zap.String("start_time", obj.StartTime),
			zap.Error(err))
		return
	}

	host := obj.HostEmail
	if host == "" {
		host = obj.HostID
	}
	h.tracker.Register(obj.ID, obj.Topic, start, host)
	h.log.Info("meeting started",
		zap.String("meeting_id", obj.ID),
		zap.String("topic", obj.Topic),
		zap.Time("start", start))

	course, err := h.matcher.Match(obj.Topic, start)
	if err != nil {
		// Unmatched starts still sit in the tracker; only the open row
		// and the monitor confirmation need a course.
		h.log.Warn("no course for started meeting", zap.String("topic", obj.Topic))
		return
	}

	// Keyed write: a duplicate started event replaces the open row instead
	// of leaving a second one behind, matching the tracker's
	// last-write-wins rule.
	sess := session.Session{MeetingID: obj.ID, Topic: obj.Topic, StartTime: start, Host: host}
	open := h.eval.OpenRecord(course, sess)
	if err := h.store.Upsert(ctx, open); err != nil {
		h.log.Error("open row write failed", zap.String("meeting_id", obj.ID), zap.Error(err))
	} else {
		h.metrics.RecordsWritten.WithLabelValues(string(open.Status)).Inc()
	}
	h.mon.ConfirmStarted(course, open.Date)
}

func (h *Handler) handleEnded(ctx context.Context, evt envelope) {
	obj := evt.Payload.Object
	end, err := time.Parse(time.RFC3339, obj.EndTime)
	if err != nil {
		h.log.Warn("unparseable end_time, event dropped",
			zap.String("meeting_id", obj.ID),
			zap.String("end_time", obj.EndTime),
			zap.Error(err))
		return
	}

	sess, err := h.tracker.ResolveAndClear(obj.ID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.metrics.ReconcileMisses.WithLabelValues("no_session").Inc()
			h.log.Warn("ended event with no open session", zap.String("meeting_id", obj.ID))
			return
		}
		h.log.Error("session resolve failed", zap.String("meeting_id", obj.ID), zap.Error(err))
		return
	}

	course, err := h.matcher.Match(sess.Topic, sess.StartTime)
	if err != nil {
		// The session is already cleared; the event is dropped with a log
		// line only.
		h.metrics.ReconcileMisses.WithLabelValues("no_course").Inc()
		h.log.Warn("no course for ended meeting",
			zap.String("meeting_id", obj.ID),
			zap.String("topic", sess.Topic))
		return
	}

	rec := h.eval.Evaluate(course, sess, end)
	if err := h.store.Upsert(ctx, rec); err != nil {
		// Deliberate: the tracker entry stays cleared even when the write
		// fails.
		h.log.Error("record write failed", zap.String("meeting_id", obj.ID), zap.Error(err))
	} else {
		h.metrics.RecordsWritten.WithLabelValues(string(rec.Status)).Inc()
	}

	h.publish(ctx, rec)
	h.hub.Broadcast(rec)

	if h.mon.MarkEvaluated(course, rec.Date, rec.Status) {
		h.metrics.Escalations.Inc()
		joinBy := h.eval.GraceDeadline(course, sess.StartTime).Format("15:04")
		subject := notify.EscalationSubject(course.Name)
		notice := notify.EscalationBody(course.Name, rec.EmailOrTeacher, course.ScheduledTime, joinBy)
		if err := h.notifier.Notify(ctx, subject, notice); err != nil {
			h.log.Error("late notice failed", zap.String("course", course.Name), zap.Error(err))
		}
	}

	h.log.Info("session evaluated",
		zap.String("meeting_id", obj.ID),
		zap.String("course", course.Name),
		zap.Int("minutes", rec.TotalTimeMinutes),
		zap.String("status", string(rec.Status)),
		zap.Float64("approved_payment", rec.ApprovedPay))
}

func (h *Handler) publish(ctx context.Context, rec record.Record) {
	raw, err := json.Marshal(rec)
	if err != nil {
		h.log.Error("record marshal failed", zap.Error(err))
		return
	}
	if err := h.queue.Publish(ctx, queue.Message{Type: queue.TypeRecord, Body: raw}); err != nil {
		h.log.Error("queue publish failed", zap.String("meeting_id", rec.MeetingID), zap.Error(err))
	}
}
