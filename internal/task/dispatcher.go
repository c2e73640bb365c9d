package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tovell/argus-api/internal/domain"
	"github.com/tovell/argus-api/internal/filestore"
	"github.com/tovell/argus-api/internal/recognition"
	"github.com/tovell/argus-api/internal/store"
)

// DispatcherConfig holds configuration options for the dispatcher.
type DispatcherConfig struct {
	// WorkerCount bounds how many items are processed concurrently across
	// all tasks. If zero or negative, defaults to 1.
	WorkerCount int

	// ItemTimeout bounds the processing of a single item, recognition call
	// included. If zero or negative, defaults to 30 seconds.
	ItemTimeout time.Duration
}

// DefaultDispatcherConfig returns a DispatcherConfig with reasonable defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		WorkerCount: 4,
		ItemTimeout: 30 * time.Second,
	}
}

// Dispatcher walks a task's pending items and runs each through the
// recognizer under a global concurrency bound. One slow or failing item
// never blocks or fails its siblings; every item ends in exactly one
// outcome reported to the aggregator.
type Dispatcher struct {
	store      TaskStore
	files      filestore.FileStore
	recognizer recognition.Recognizer
	aggregator *Aggregator

	// sem bounds concurrent item processing across all running tasks.
	sem chan struct{}

	itemTimeout time.Duration
	logger      *slog.Logger

	// cancels maps running task IDs to their cancel functions so deletion
	// can stop further dispatch cooperatively.
	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc

	wg sync.WaitGroup

	// baseCtx is the parent of every task context; Stop cancels it.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewDispatcher creates a Dispatcher with the given collaborators.
func NewDispatcher(
	taskStore TaskStore,
	files filestore.FileStore,
	recognizer recognition.Recognizer,
	aggregator *Aggregator,
	config DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	if taskStore == nil {
		panic("taskStore cannot be nil")
	}
	if recognizer == nil {
		panic("recognizer cannot be nil")
	}
	if aggregator == nil {
		panic("aggregator cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	workerCount := config.WorkerCount
	if workerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		workerCount = 1
	}

	itemTimeout := config.ItemTimeout
	if itemTimeout <= 0 {
		itemTimeout = 30 * time.Second
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())

	return &Dispatcher{
		store:       taskStore,
		files:       files,
		recognizer:  recognizer,
		aggregator:  aggregator,
		sem:         make(chan struct{}, workerCount),
		itemTimeout: itemTimeout,
		logger:      logger.With(slog.String("component", "dispatcher")),
		cancels:     make(map[uuid.UUID]context.CancelFunc),
		baseCtx:     baseCtx,
		cancelBase:  cancelBase,
	}
}

// RunBatch starts processing the task's pending items in the background and
// returns immediately. Running the same task twice concurrently is rejected;
// re-running a task later is safe since terminal items are skipped by the
// store's guards.
func (d *Dispatcher) RunBatch(taskID uuid.UUID) error {
	d.mu.Lock()
	if _, running := d.cancels[taskID]; running {
		d.mu.Unlock()
		return fmt.Errorf("task %s is already being processed", taskID)
	}
	taskCtx, cancel := context.WithCancel(d.baseCtx)
	d.cancels[taskID] = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			cancel()
			d.mu.Lock()
			delete(d.cancels, taskID)
			d.mu.Unlock()
		}()
		d.runBatch(taskCtx, taskID)
	}()

	return nil
}

// Cancel stops further dispatch for the task. Items already handed to
// workers finish and report normally; pending items stay pending. Cancelling
// a task that is not running is a no-op.
func (d *Dispatcher) Cancel(taskID uuid.UUID) {
	d.mu.Lock()
	cancel, ok := d.cancels[taskID]
	d.mu.Unlock()

	if ok {
		d.logger.Info("cancelling task dispatch",
			slog.String("task_id", taskID.String()))
		cancel()
	}
}

// Recover re-dispatches every task that still has unprocessed items. Called
// once at startup so work interrupted by a crash or restart resumes without
// double-counting: terminal items are skipped by the store's guards.
func (d *Dispatcher) Recover(ctx context.Context) error {
	ids, err := d.store.ListUnfinishedTaskIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list unfinished tasks: %w", err)
	}

	if len(ids) == 0 {
		d.logger.Debug("no unfinished tasks to recover")
		return nil
	}

	d.logger.Info("recovering unfinished tasks", slog.Int("count", len(ids)))
	for _, id := range ids {
		if err := d.RunBatch(id); err != nil {
			d.logger.Warn("failed to re-dispatch task",
				slog.String("error", err.Error()),
				slog.String("task_id", id.String()))
		}
	}

	return nil
}

// Stop cancels all running tasks and waits for in-flight items to finish.
func (d *Dispatcher) Stop() {
	d.cancelBase()
	d.wg.Wait()
}

func (d *Dispatcher) runBatch(ctx context.Context, taskID uuid.UUID) {
	log := d.logger.With(slog.String("task_id", taskID.String()))

	items, err := d.store.GetPendingItems(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			log.Debug("task deleted before dispatch")
			return
		}
		log.Error("failed to load pending items", slog.String("error", err.Error()))
		return
	}

	if len(items) == 0 {
		log.Debug("no pending items to dispatch")
		return
	}

	log.Info("dispatching batch task", slog.Int("pending_items", len(items)))

	var itemWG sync.WaitGroup
	for _, item := range items {
		// Cooperative cancellation point: stop handing out work, let
		// in-flight items run to completion.
		select {
		case <-ctx.Done():
			log.Info("dispatch cancelled",
				slog.Int("remaining_items", len(items)))
			itemWG.Wait()
			return
		case d.sem <- struct{}{}:
		}

		itemWG.Add(1)
		go func(item *domain.BatchItem) {
			defer itemWG.Done()
			defer func() { <-d.sem }()
			d.processItem(ctx, taskID, item)
		}(item)
	}

	itemWG.Wait()
	log.Debug("batch dispatch finished")
}

// processItem runs one item through the recognizer and reports exactly one
// outcome. Any failure, recognizer error and timeout included, becomes a
// failed outcome for this item alone.
func (d *Dispatcher) processItem(ctx context.Context, taskID uuid.UUID, item *domain.BatchItem) {
	log := d.logger.With(
		slog.String("task_id", taskID.String()),
		slog.String("item_id", item.ID.String()),
		slog.String("file_name", item.FileName))

	if err := d.store.MarkItemProcessing(ctx, item.ID); err != nil {
		if errors.Is(err, store.ErrItemTerminal) {
			log.Debug("skipping already-processed item")
			return
		}
		if errors.Is(err, store.ErrItemNotFound) {
			log.Debug("skipping item deleted before processing")
			return
		}
		log.Warn("failed to mark item processing, continuing",
			slog.String("error", err.Error()))
	}

	itemCtx, cancel := context.WithTimeout(ctx, d.itemTimeout)
	defer cancel()

	outcome := d.recognizeItem(itemCtx, item, log)

	// Report against the task's context, not the expired item context, so a
	// timed-out item still records its failure.
	if _, err := d.aggregator.Report(ctx, taskID, item.ID, outcome); err != nil {
		log.Error("failed to report item outcome",
			slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) recognizeItem(ctx context.Context, item *domain.BatchItem, log *slog.Logger) domain.ItemOutcome {
	image, err := d.files.Get(ctx, item.StorageHandle)
	if err != nil {
		log.Warn("failed to load image bytes", slog.String("error", err.Error()))
		if errors.Is(err, filestore.ErrObjectNotFound) {
			return domain.FailureOutcome("stored image not found")
		}
		return domain.FailureOutcome(fmt.Sprintf("failed to load image: %v", err))
	}

	result, err := d.recognizer.Recognize(ctx, image, recognition.Params{
		MIMEType: mimeTypeFor(item.FileName),
		FileName: item.FileName,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn("item processing timed out")
			return domain.FailureOutcome("processing timed out")
		}
		log.Warn("recognition failed", slog.String("error", err.Error()))
		return domain.FailureOutcome(fmt.Sprintf("recognition failed: %v", err))
	}

	log.Debug("item recognized",
		slog.String("label", result.Label),
		slog.Float64("confidence", result.Confidence))
	return domain.SuccessOutcome(result)
}

// mimeTypeFor guesses the image MIME type from the file extension,
// defaulting to JPEG for unknown extensions.
func mimeTypeFor(fileName string) string {
	if t := mime.TypeByExtension(filepath.Ext(fileName)); t != "" {
		return t
	}
	return "image/jpeg"
}
