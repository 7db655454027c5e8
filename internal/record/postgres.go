package record

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore mirrors attendance records into Postgres for durable
// reporting. The worker binary feeds it from the record queue; the CSV file
// remains the authoritative copy.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open connection.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert writes on the natural key, backfilling the end-of-session fields
// when the row already exists.
func (s *PostgresStore) Upsert(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_records (
			id, teacher_name, email_or_teacher_name, course_name, meeting_id,
			scheduled_week_day, attended_week_day, date, scheduled_time,
			entered_time, finished_time, total_time_minutes, rate_pound,
			rate_per_minute, calculated_payment, approved_payment, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (meeting_id, date) DO UPDATE SET
			attended_week_day = EXCLUDED.attended_week_day,
			entered_time = EXCLUDED.entered_time,
			finished_time = EXCLUDED.finished_time,
			total_time_minutes = EXCLUDED.total_time_minutes,
			rate_per_minute = EXCLUDED.rate_per_minute,
			calculated_payment = EXCLUDED.calculated_payment,
			approved_payment = EXCLUDED.approved_payment,
			status = EXCLUDED.status
	`, rec.ID, rec.TeacherName, rec.EmailOrTeacher, rec.CourseName, rec.MeetingID,
		rec.ScheduledWeekDay, rec.AttendedWeekDay, rec.Date, rec.ScheduledTime,
		rec.EnteredTime, rec.FinishedTime, rec.TotalTimeMinutes, rec.RatePound,
		rec.RatePerMinute, rec.CalculatedPay, rec.ApprovedPay, rec.Status)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// List returns stored records ordered by date and course.
func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, teacher_name, email_or_teacher_name, course_name, meeting_id,
			scheduled_week_day, attended_week_day, date, scheduled_time,
			entered_time, finished_time, total_time_minutes, rate_pound,
			rate_per_minute, calculated_payment, approved_payment, status
		FROM attendance_records
		ORDER BY date, course_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.TeacherName, &rec.EmailOrTeacher,
			&rec.CourseName, &rec.MeetingID, &rec.ScheduledWeekDay,
			&rec.AttendedWeekDay, &rec.Date, &rec.ScheduledTime,
			&rec.EnteredTime, &rec.FinishedTime, &rec.TotalTimeMinutes,
			&rec.RatePound, &rec.RatePerMinute, &rec.CalculatedPay,
			&rec.ApprovedPay, &rec.Status); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
