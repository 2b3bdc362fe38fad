// Package audit records administrative and security-relevant actions.
//
// Recording is best effort. Record never returns an error and never blocks
// the caller on the caller's context: the entry is written on its own
// pooled connection, after the triggering change, and is not atomic with
// it. A failed write is logged, counted and reported, then dropped.
//
// Broker fan-out never runs on the caller's goroutine. Stored entries go
// into a bounded queue drained by one publishing goroutine, and entries
// that do not fit are dropped.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"coraza-store/internal/observability"
)

const (
	defaultWriteTimeout = 3 * time.Second
	publishQueueSize    = 256
)

type Store interface {
	Insert(ctx context.Context, actor *uuid.UUID, payload json.RawMessage) (Entry, error)
}

type Publisher interface {
	Publish(ctx context.Context, entry Entry) error
}

type Recorder struct {
	store    Store
	logger   *observability.Logger
	failures prometheus.Counter
	timeout  time.Duration

	publisher Publisher
	queueMu   sync.RWMutex
	queue     chan Entry
	closed    bool
	drained   chan struct{}
}

func NewRecorder(store Store, logger *observability.Logger) *Recorder {
	return &Recorder{store: store, logger: logger, timeout: defaultWriteTimeout}
}

// WithPublisher fans every stored entry out to a broker from a background
// goroutine. Call Close to stop it.
func (r *Recorder) WithPublisher(publisher Publisher) *Recorder {
	return r.withPublisher(publisher, publishQueueSize)
}

func (r *Recorder) withPublisher(publisher Publisher, queueSize int) *Recorder {
	r.publisher = publisher
	r.queue = make(chan Entry, queueSize)
	r.drained = make(chan struct{})
	go r.publishLoop()
	return r
}

func (r *Recorder) WithFailureCounter(counter prometheus.Counter) *Recorder {
	r.failures = counter
	return r
}

func (r *Recorder) Record(ctx context.Context, actor *uuid.UUID, action string, fields map[string]any) {
	payload := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		payload[key] = value
	}
	payload["action"] = action

	encoded, err := json.Marshal(payload)
	if err != nil {
		r.fail(action, err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	entry, err := r.store.Insert(writeCtx, actor, encoded)
	if err != nil {
		r.fail(action, err)
		return
	}

	r.enqueue(action, entry)
}

func (r *Recorder) enqueue(action string, entry Entry) {
	r.queueMu.RLock()
	defer r.queueMu.RUnlock()
	if r.queue == nil || r.closed {
		return
	}

	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("audit_publish_dropped", map[string]any{"action": action, "entry_id": entry.ID.String()})
	}
}

func (r *Recorder) publishLoop() {
	defer close(r.drained)
	for entry := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.publisher.Publish(ctx, entry); err != nil {
			r.logger.Warn("audit_publish_failed", map[string]any{"entry_id": entry.ID.String(), "error": err.Error()})
		}
		cancel()
	}
}

// Close stops accepting entries for the broker and waits until the queued
// ones are published or ctx ends.
func (r *Recorder) Close(ctx context.Context) error {
	r.queueMu.Lock()
	if r.queue == nil || r.closed {
		r.queueMu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.queueMu.Unlock()

	select {
	case <-r.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) fail(action string, err error) {
	if r.failures != nil {
		r.failures.Inc()
	}
	observability.CaptureError(r.logger, "audit_write_failed", err, map[string]any{"action": action})
}
