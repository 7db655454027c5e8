package record

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"
)

var csvHeader = []string{
	"teacher_name", "email_or_teacher_name", "course_name", "meeting_id",
	"scheduled_week_day", "attended_week_day", "date", "scheduled_time",
	"entered_time", "finished_time", "total_time_minutes", "rate_pound",
	"rate_per_minute", "calculated_payment", "approved_payment", "status",
}

// CSVStore keeps records in a single CSV file. Every write rewrites the whole
// file under the lock, which keeps the read-modify-write sequence serialized
// against concurrent writers.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

// NewCSVStore creates the store and writes the header row if the file does not
// exist yet.
func NewCSVStore(path string) (*CSVStore, error) {
	s := &CSVStore{path: path}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("create records file: %w", err)
		}
		defer f.Close()
		w := csv.NewWriter(f)
		if err := w.Write(csvHeader); err != nil {
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Upsert replaces the row keyed by meeting id and date, appending the record
// when no such row exists.
func (s *CSVStore) Upsert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.readAll()
	if err != nil {
		return err
	}
	found := false
	for i, existing := range records {
		if existing.Key() == rec.Key() {
			records[i] = rec
			found = true
			break
		}
	}
	if !found {
		records = append(records, rec)
	}
	return s.writeAll(records)
}

// List returns every stored record in file order.
func (s *CSVStore) List(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

func (s *CSVStore) readAll() ([]Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read records file: %w", err)
	}
	var out []Record
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		rec, err := fromRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *CSVStore) writeAll(records []Record) error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return err
	}
	for _, rec := range records {
		if err := w.Write(toRow(rec)); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func toRow(r Record) []string {
	return []string{
		r.TeacherName, r.EmailOrTeacher, r.CourseName, r.MeetingID,
		r.ScheduledWeekDay, r.AttendedWeekDay, r.Date, r.ScheduledTime,
		r.EnteredTime, r.FinishedTime,
		strconv.Itoa(r.TotalTimeMinutes),
		formatPound(r.RatePound),
		strconv.FormatFloat(r.RatePerMinute, 'f', 4, 64),
		formatPound(r.CalculatedPay),
		formatPound(r.ApprovedPay),
		string(r.Status),
	}
}

func fromRow(row []string) (Record, error) {
	if len(row) != len(csvHeader) {
		return Record{}, fmt.Errorf("expected %d columns, got %d", len(csvHeader), len(row))
	}
	minutes, err := strconv.Atoi(row[10])
	if err != nil {
		return Record{}, fmt.Errorf("total_time_minutes: %w", err)
	}
	rate, err := strconv.ParseFloat(row[11], 64)
	if err != nil {
		return Record{}, fmt.Errorf("rate_pound: %w", err)
	}
	perMin, err := strconv.ParseFloat(row[12], 64)
	if err != nil {
		return Record{}, fmt.Errorf("rate_per_minute: %w", err)
	}
	calc, err := strconv.ParseFloat(row[13], 64)
	if err != nil {
		return Record{}, fmt.Errorf("calculated_payment: %w", err)
	}
	approved, err := strconv.ParseFloat(row[14], 64)
	if err != nil {
		return Record{}, fmt.Errorf("approved_payment: %w", err)
	}
	return Record{
		TeacherName:      row[0],
		EmailOrTeacher:   row[1],
		CourseName:       row[2],
		MeetingID:        row[3],
		ScheduledWeekDay: row[4],
		AttendedWeekDay:  row[5],
		Date:             row[6],
		ScheduledTime:    row[7],
		EnteredTime:      row[8],
		FinishedTime:     row[9],
		TotalTimeMinutes: minutes,
		RatePound:        rate,
		RatePerMinute:    perMin,
		CalculatedPay:    calc,
		ApprovedPay:      approved,
		Status:           Status(row[15]),
	}, nil
}

func formatPound(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
