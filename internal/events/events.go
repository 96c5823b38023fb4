// Package events carries index synchronization events from the ledger to the
// vector index. Events are dispatched only after the unit of work that
// produced them has committed; delivery is best-effort.
package events

import (
	"context"
	"time"
)

// Op is what the index should do with a transaction.
type Op string

const (
	OpUpsert Op = "upsert"
	OpRemove Op = "remove"
)

// Event asks the index to reconcile one transaction.
type Event struct {
	Op            Op        `json:"op"`
	TransactionID int64     `json:"transaction_id"`
	At            time.Time `json:"at"`
}

func Upsert(transactionID int64) Event {
	return Event{Op: OpUpsert, TransactionID: transactionID, At: time.Now()}
}

func Remove(transactionID int64) Event {
	return Event{Op: OpRemove, TransactionID: transactionID, At: time.Now()}
}

// Dispatcher hands events to a consumer. Dispatch never fails the caller:
// delivery problems are logged and counted by the implementation.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Event)
}

// Handler consumes events.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e Event) error

func (f HandlerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }

// Nop drops every event. Used when indexing is disabled.
type Nop struct{}

func (Nop) Dispatch(context.Context, Event) {}

// DispatchAll sends events in order.
func DispatchAll(ctx context.Context, d Dispatcher, evs ...Event) {
	for _, e := range evs {
		d.Dispatch(ctx, e)
	}
}
