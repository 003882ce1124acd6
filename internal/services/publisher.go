package services

import (
	"context"
	"log/slog"

	"weeklytotals/internal/amqp"
	"weeklytotals/internal/core"
	"weeklytotals/internal/notify"
)

// ChangeSink publishes change messages to a broker.
type ChangeSink interface {
	PublishChange(ctx context.Context, msg *amqp.ChangeMessage) error
}

const defaultPublishBuffer = 64

// ChangePublisher forwards committed ledger changes to a ChangeSink.
// Notifications are queued and published from Run so a slow broker never
// holds up a writer; when the queue is full the change is dropped and logged.
type ChangePublisher struct {
	sink    ChangeSink
	pending chan notify.Change
}

func NewChangePublisher(sink ChangeSink, buffer int) *ChangePublisher {
	if buffer <= 0 {
		buffer = defaultPublishBuffer
	}
	return &ChangePublisher{
		sink:    sink,
		pending: make(chan notify.Change, buffer),
	}
}

// Attach subscribes to ledger tables on changes and returns the unsubscribe func.
func (p *ChangePublisher) Attach(changes ChangeSource) func() {
	return changes.Subscribe([]string{core.TableCategories, core.TableTransactions, core.TableBudget}, p.enqueue)
}

func (p *ChangePublisher) enqueue(c notify.Change) {
	select {
	case p.pending <- c:
	default:
		slog.Warn("Change publish queue full, dropping change", "tables", c.Tables)
	}
}

// Run publishes queued changes until ctx is cancelled, then drains what is
// already queued.
func (p *ChangePublisher) Run(ctx context.Context) error {
	for {
		select {
		case c := <-p.pending:
			p.publish(ctx, c)
		case <-ctx.Done():
			p.drain(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (p *ChangePublisher) drain(ctx context.Context) {
	for {
		select {
		case c := <-p.pending:
			p.publish(ctx, c)
		default:
			return
		}
	}
}

func (p *ChangePublisher) publish(ctx context.Context, c notify.Change) {
	if p.sink == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping change message")
		return
	}

	msg := amqp.NewChangeMessage(c.Tables, c.Timestamp)
	if err := p.sink.PublishChange(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish change message",
			"id", msg.ID,
			"tables", msg.Tables,
			"error", err)
	}
}
