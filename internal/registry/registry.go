// Package registry loads and holds the recurring course roster.
package registry

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var timeOfDayPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// TimeOfDayValidator accepts zero-padded 24h wall-clock times such as "09:00".
var TimeOfDayValidator = func(fl validator.FieldLevel) bool {
	return timeOfDayPattern.MatchString(fl.Field().String())
}

// Course is one recurring scheduled slot. Immutable once loaded; the whole
// roster is replaced on reload.
type Course struct {
	ID            string  `yaml:"course_id"`
	Name          string  `yaml:"course_name" validate:"required"`
	Teacher       string  `yaml:"teacher_name" validate:"required"`
	WeekDay       string  `yaml:"week_day" validate:"required,oneof=Monday Tuesday Wednesday Thursday Friday Saturday Sunday"`
	ScheduledTime string  `yaml:"scheduled_time" validate:"required,timeofday"`
	RatePound     float64 `yaml:"rate_pound" validate:"gte=0"`
}

// Weekday converts the configured day name to a time.Weekday.
func (c Course) Weekday() time.Weekday {
	switch c.WeekDay {
	case "Sunday":
		return time.Sunday
	case "Monday":
		return time.Monday
	case "Tuesday":
		return time.Tuesday
	case "Wednesday":
		return time.Wednesday
	case "Thursday":
		return time.Thursday
	case "Friday":
		return time.Friday
	default:
		return time.Saturday
	}
}

// ClockTime splits ScheduledTime into hour and minute components.
func (c Course) ClockTime() (hour, minute int) {
	parts := strings.SplitN(c.ScheduledTime, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	fmt.Sscanf(parts[0], "%d", &hour)
	fmt.Sscanf(parts[1], "%d", &minute)
	return hour, minute
}

type document struct {
	Courses []Course `yaml:"courses"`
}

// Load parses and validates the course document at path. Any invalid entry
// fails the whole load so a half-edited roster never goes live.
func Load(path string) ([]Course, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	validate := validator.New()
	if err := validate.RegisterValidation("timeofday", TimeOfDayValidator); err != nil {
		return nil, err
	}
	for i, c := range doc.Courses {
		if err := validate.Struct(c); err != nil {
			return nil, fmt.Errorf("course %d (%q): %w", i, c.Name, err)
		}
	}
	return doc.Courses, nil
}

// Registry holds the active roster behind a lock so reloads swap wholesale.
type Registry struct {
	path    string
	mu      sync.RWMutex
	courses []Course
}

// New creates a registry bound to the given document path and performs the
// initial load.
func New(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the document and replaces the roster. On failure the
// previous roster stays active.
func (r *Registry) Reload() error {
	courses, err := Load(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.courses = courses
	r.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the active roster.
func (r *Registry) Snapshot() []Course {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Course, len(r.courses))
	copy(out, r.courses)
	return out
}

// Len reports the number of active courses.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.courses)
}
