package amqp

import (
	"context"
	"log/slog"

	"github.com/tinoosan/walletledger/internal/events"
	"github.com/tinoosan/walletledger/internal/metrics"
)

// Publisher is the part of Client the dispatcher needs.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// Dispatcher publishes index events to RabbitMQ. A failed publish is logged
// and counted; the index can be rebuilt with a reindex.
type Dispatcher struct {
	pub Publisher
	log *slog.Logger
}

func NewDispatcher(pub Publisher, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{pub: pub, log: log}
}

func (d *Dispatcher) Dispatch(ctx context.Context, e events.Event) {
	if err := d.pub.Publish(context.WithoutCancel(ctx), e); err != nil {
		metrics.EventsDispatched.WithLabelValues("amqp", "error").Inc()
		d.log.Warn("publish index event failed", "op", e.Op, "transaction_id", e.TransactionID, "err", err)
		return
	}
	metrics.EventsDispatched.WithLabelValues("amqp", "ok").Inc()
}

var _ events.Dispatcher = (*Dispatcher)(nil)
