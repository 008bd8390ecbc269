package eventlog

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryWriter keeps events in process. It backs the memory repositories and tests.
type MemoryWriter struct {
	mu     sync.RWMutex
	events []Event
	// Fail, when set, is returned instead of storing the event.
	Fail func(Event) error
}

// NewMemoryWriter returns an empty writer.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

func (w *MemoryWriter) WriteEvent(_ context.Context, event Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Fail != nil {
		if err := w.Fail(event); err != nil {
			return err
		}
	}
	w.events = append(w.events, event)
	return nil
}

// Events returns a copy of the stored events, optionally filtered by family.
func (w *MemoryWriter) Events(families ...Family) []Event {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]Event, 0, len(w.events))
	for _, e := range w.events {
		if len(families) == 0 || containsFamily(families, e.Family) {
			out = append(out, e)
		}
	}
	return out
}

// ForCompany returns the stored events that reference the company.
func (w *MemoryWriter) ForCompany(companyID uuid.UUID) []Event {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []Event
	for _, e := range w.events {
		if e.CompanyID != nil && *e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	return out
}

func containsFamily(families []Family, f Family) bool {
	for _, candidate := range families {
		if candidate == f {
			return true
		}
	}
	return false
}
