package trace

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/grocerybot/core/logger"
)

// Writer is a Recorder that queues records for a background goroutine
// appending them to a Store. Records are dropped when the queue is full.
type Writer struct {
	store   Store
	queue   chan Record
	log     logger.Logger
	timeout time.Duration
	dropped atomic.Uint64
	failed  atomic.Uint64

	started atomic.Bool
	once    sync.Once
	done    chan struct{}
}

// NewWriter creates a writer with a queue of size records.
func NewWriter(store Store, size int, log logger.Logger) *Writer {
	if size <= 0 {
		size = 256
	}
	return &Writer{
		store:   store,
		queue:   make(chan Record, size),
		log:     logger.OrNop(log),
		timeout: 2 * time.Second,
		done:    make(chan struct{}),
	}
}

// Record queues rec without blocking.
func (w *Writer) Record(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	select {
	case w.queue <- rec:
	default:
		if w.dropped.Add(1)%100 == 1 {
			w.log.Warnf("trace queue full, %d records dropped", w.dropped.Load())
		}
	}
}

// Run appends queued records until ctx is cancelled, then drains the queue.
// Only the first call does any work.
func (w *Writer) Run(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	defer close(w.done)
	for {
		select {
		case rec := <-w.queue:
			w.append(rec)
		case <-ctx.Done():
			w.flush()
			return
		}
	}
}

func (w *Writer) flush() {
	for {
		select {
		case rec := <-w.queue:
			w.append(rec)
		default:
			return
		}
	}
}

func (w *Writer) append(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.store.Append(ctx, rec); err != nil {
		w.failed.Add(1)
		w.log.Errorf("append trace record %s: %v", rec.ID, err)
	}
}

// Wait blocks until Run has returned.
func (w *Writer) Wait() { <-w.done }

// Close waits for Run to finish and closes the store. When Run was never
// started the queue is flushed synchronously; otherwise its context must be
// cancelled first.
func (w *Writer) Close() error {
	var err error
	w.once.Do(func() {
		if w.started.CompareAndSwap(false, true) {
			w.flush()
			close(w.done)
		}
		w.Wait()
		err = w.store.Close()
	})
	return err
}

// Dropped returns the number of records lost on a full queue.
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

// Failed returns the number of records the store rejected.
func (w *Writer) Failed() uint64 { return w.failed.Load() }
