package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tinoosan/walletledger/internal/metrics"
)

// Async runs a Handler on background goroutines, at most workers at a time.
// Handlers run detached from the dispatching request's cancellation, each
// under its own timeout.
type Async struct {
	h       Handler
	sem     *semaphore.Weighted
	timeout time.Duration
	log     *slog.Logger
	wg      sync.WaitGroup
}

// NewAsync builds an Async dispatcher. workers < 1 is treated as 1.
func NewAsync(h Handler, workers int64, timeout time.Duration, log *slog.Logger) *Async {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Async{h: h, sem: semaphore.NewWeighted(workers), timeout: timeout, log: log}
}

func (a *Async) Dispatch(ctx context.Context, e Event) {
	base := context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.sem.Acquire(base, 1); err != nil {
			return
		}
		defer a.sem.Release(1)
		hctx := base
		if a.timeout > 0 {
			var cancel context.CancelFunc
			hctx, cancel = context.WithTimeout(base, a.timeout)
			defer cancel()
		}
		if err := a.h.Handle(hctx, e); err != nil {
			metrics.EventsDispatched.WithLabelValues("inprocess", "error").Inc()
			a.log.Warn("index event failed", "op", e.Op, "transaction_id", e.TransactionID, "err", err)
			return
		}
		metrics.EventsDispatched.WithLabelValues("inprocess", "ok").Inc()
	}()
}

// Wait blocks until every dispatched event has been handled.
func (a *Async) Wait() { a.wg.Wait() }

// Inline handles events synchronously on the caller's goroutine.
type Inline struct {
	H   Handler
	Log *slog.Logger
}

func (d Inline) Dispatch(ctx context.Context, e Event) {
	if err := d.H.Handle(ctx, e); err != nil && d.Log != nil {
		d.Log.Warn("index event failed", "op", e.Op, "transaction_id", e.TransactionID, "err", err)
	}
}

// Recorder keeps every dispatched event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Dispatch(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of what was dispatched so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
