package record

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"
)

// JSONMirror keeps a JSON array copy of the record set for dashboards that
// consume the file directly. Every write rewrites the whole array.
type JSONMirror struct {
	path string
	mu   sync.Mutex
}

// NewJSONMirror creates a mirror writing to path.
func NewJSONMirror(path string) *JSONMirror {
	return &JSONMirror{path: path}
}

// Upsert replaces the row with the same meeting id and date, appending the
// record when none exists.
func (m *JSONMirror) Upsert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	records, err := m.readAll()
	if err != nil {
		return err
	}
	for i, existing := range records {
		if existing.Key() == rec.Key() {
			records[i] = rec
			return m.writeAll(records)
		}
	}
	return m.writeAll(append(records, rec))
}

// List returns the mirrored records.
func (m *JSONMirror) List(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readAll()
}

func (m *JSONMirror) readAll() ([]Record, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var out []Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *JSONMirror) writeAll(records []Record) error {
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}
