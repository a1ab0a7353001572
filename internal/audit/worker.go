package audit

import (
	"context"
	"log/slog"
)

// Buffer is a non-blocking Store: Append enqueues and a Worker drains the queue into the
// real sink off the request path. A full queue drops the event and says so.
type Buffer struct {
	ch     chan Event
	logger *slog.Logger
}

func NewBuffer(size int, logger *slog.Logger) *Buffer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Buffer{ch: make(chan Event, size), logger: logger}
}

func (b *Buffer) Append(ctx context.Context, event Event) error {
	select {
	case b.ch <- event:
	default:
		b.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"type", string(event.Type), "event_id", event.ID)
	}
	return nil
}

// Inbox exposes the queue to a Worker.
func (b *Buffer) Inbox() <-chan Event { return b.ch }

// Worker consumes events from a channel and persists them until ctx ends.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run returns ctx.Err() on shutdown. Sink failures are logged and the event is dropped;
// a stuck sink must not back up settlement.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "failed to persist audit event",
					"type", string(event.Type), "event_id", event.ID, "error", err)
			}
		}
	}
}
