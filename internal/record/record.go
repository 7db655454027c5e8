// Package record defines attendance records and their persistence backends.
package record

import "context"

// Status is the attendance verdict carried by a record.
type Status string

const (
	// StatusScheduled marks an open row: the meeting started but has not
	// ended yet.
	StatusScheduled Status = "Scheduled"
	// StatusAttended marks a completed session that started on time.
	StatusAttended Status = "Attended"
	// StatusNotAttended marks a completed session that started late.
	StatusNotAttended Status = "Not-attended"
)

// Record is the externally visible attendance/payment artifact. One record is
// produced per completed, matched session; the open row written at meeting
// start is replaced in place by the completed row carrying the same key.
type Record struct {
	ID               string  `json:"id,omitempty"`
	TeacherName      string  `json:"teacher_name"`
	EmailOrTeacher   string  `json:"email_or_teacher_name"`
	CourseName       string  `json:"course_name"`
	MeetingID        string  `json:"meeting_id"`
	ScheduledWeekDay string  `json:"scheduled_week_day"`
	AttendedWeekDay  string  `json:"attended_week_day"`
	Date             string  `json:"date"`
	ScheduledTime    string  `json:"scheduled_time"`
	EnteredTime      string  `json:"entered_time"`
	FinishedTime     string  `json:"finished_time"`
	TotalTimeMinutes int     `json:"total_time_minutes"`
	RatePound        float64 `json:"rate_pound"`
	RatePerMinute    float64 `json:"rate_per_minute"`
	CalculatedPay    float64 `json:"calculated_payment"`
	ApprovedPay      float64 `json:"approved_payment"`
	Status           Status  `json:"status"`
}

// Key is the natural key of a record: meeting id plus calendar date.
func (r Record) Key() string {
	return r.MeetingID + "|" + r.Date
}

// Store persists attendance records.
type Store interface {
	// Upsert writes the record at its natural key, replacing any existing
	// row; when none exists the record is appended. Duplicate started
	// events therefore converge on one row per meeting and day, mirroring
	// the session tracker's last-write-wins rule.
	Upsert(ctx context.Context, rec Record) error
	// List returns every stored record.
	List(ctx context.Context) ([]Record, error)
}
