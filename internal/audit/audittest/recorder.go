// Package audittest captures action log entries in memory.
package audittest

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type Record struct {
	Actor  *uuid.UUID
	Action string
	Fields map[string]any
}

type Recorder struct {
	mu      sync.Mutex
	records []Record
}

func (r *Recorder) Record(_ context.Context, actor *uuid.UUID, action string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, Record{Actor: actor, Action: action, Fields: fields})
}

func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// Actions returns the recorded action names in order.
func (r *Recorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.records))
	for _, record := range r.records {
		out = append(out, record.Action)
	}
	return out
}

func (r *Recorder) Last() (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		return Record{}, false
	}
	return r.records[len(r.records)-1], true
}
