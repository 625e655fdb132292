package eventqueue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/searchsync/internal/event"
)

// Processor handles a decoded event synchronously.
type Processor interface {
	Process(ctx context.Context, ev event.ChangeEvent) (bool, error)
}

// DrainResult summarizes one drain run.
type DrainResult struct {
	RunID     string        `json:"run_id"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Cancelled bool          `json:"cancelled"`
}

// Worker drains the event queue into a Processor.
type Worker struct {
	store     *Store
	processor Processor
	logger    *slog.Logger
}

// NewWorker creates a drain worker.
func NewWorker(store *Store, processor Processor, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, processor: processor, logger: logger}
}

// Run processes up to limit non-errored events oldest first. Successful
// events are removed; failing ones are marked and kept, and the run continues.
// Only a failure to read the queue is returned.
func (w *Worker) Run(ctx context.Context, limit int) (*DrainResult, error) {
	start := time.Now()
	result := &DrainResult{RunID: uuid.NewString()}

	items, err := w.store.GetEventQueueItems(ctx, limit, false)
	if err != nil {
		return nil, fmt.Errorf("read event queue: %w", err)
	}

	for _, item := range items {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		if err := w.processItem(ctx, item); err != nil {
			result.Failed++
			w.logger.Warn("event_queue_item_failed",
				slog.String("run_id", result.RunID),
				slog.Int64("item_id", item.ID),
				slog.String("table", item.Table),
				slog.Int("uid", item.UID),
				slog.String("error", err.Error()))
			// A new context: the run context may be the reason for the failure.
			if markErr := w.store.MarkAsError(context.WithoutCancel(ctx), item, err.Error()); markErr != nil {
				w.logger.Error("event_queue_mark_failed",
					slog.Int64("item_id", item.ID),
					slog.String("error", markErr.Error()))
			}
			continue
		}

		if err := w.store.Remove(context.WithoutCancel(ctx), item); err != nil {
			w.logger.Error("event_queue_remove_failed",
				slog.Int64("item_id", item.ID),
				slog.String("error", err.Error()))
			continue
		}
		result.Processed++
	}

	result.Duration = time.Since(start)
	w.logger.Info("event_queue_drained",
		slog.String("run_id", result.RunID),
		slog.Int("processed", result.Processed),
		slog.Int("failed", result.Failed),
		slog.Bool("cancelled", result.Cancelled))
	return result, nil
}

// processItem decodes and handles one item, converting panics into errors.
func (w *Worker) processItem(ctx context.Context, item Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("event_queue_handler_panic",
				slog.Int64("item_id", item.ID),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	ev, err := w.store.Event(item)
	if err != nil {
		return err
	}
	handled, err := w.processor.Process(ctx, ev)
	if err != nil {
		return err
	}
	if !handled {
		return fmt.Errorf("no handler for %s event", event.TypeName(ev))
	}
	return nil
}
