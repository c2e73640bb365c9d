package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/tovell/argus-api/internal/config"
	"github.com/tovell/argus-api/internal/events"
	"github.com/tovell/argus-api/internal/filestore"
	"github.com/tovell/argus-api/internal/platform/objectstore"
	"github.com/tovell/argus-api/internal/platform/postgres"
	"github.com/tovell/argus-api/internal/platform/rediscache"
	"github.com/tovell/argus-api/internal/platform/vision"
	"github.com/tovell/argus-api/internal/service"
	"github.com/tovell/argus-api/internal/service/auth"
	"github.com/tovell/argus-api/internal/store"
	"github.com/tovell/argus-api/internal/task"
)

// batchEventHandler hands batch recognition requests to the dispatcher.
type batchEventHandler struct {
	dispatcher *task.Dispatcher
	logger     *slog.Logger
}

// HandleEvent implements events.EventHandler.
func (h *batchEventHandler) HandleEvent(ctx context.Context, event *events.BatchRequestEvent) error {
	if event.Type != events.EventTypeBatchRecognition {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	var payload events.BatchRequestPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		h.logger.Error("failed to unmarshal payload", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if err := h.dispatcher.RunBatch(payload.TaskID); err != nil {
		h.logger.Error("failed to start batch dispatch",
			"error", err,
			"task_id", payload.TaskID,
			"event_id", event.ID)
		return fmt.Errorf("failed to start batch dispatch: %w", err)
	}

	h.logger.Info("batch dispatch started",
		"task_id", payload.TaskID,
		"event_id", event.ID)
	return nil
}

// application holds the shared application dependencies to simplify wiring
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	taskStore store.BatchTaskStore
	files     filestore.FileStore
	cache     store.ProgressCache
	redis     *rediscache.Cache

	jwtService  auth.JWTService
	taskService service.TaskService
	dispatcher  *task.Dispatcher
}

// newApplication wires every component of the batch engine.
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: log,
	}

	db, err := setupAppDatabase(cfg, log)
	if err != nil {
		return nil, err
	}
	app.db = db
	app.taskStore = postgres.NewPostgresBatchTaskStore(db, log)

	files, err := objectstore.NewMinioFileStore(ctx, cfg.ObjectStore, log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up object store: %w", err)
	}
	app.files = files

	// Progress cache is optional; without Redis reads just hit the database.
	if cfg.Redis.Addr != "" {
		redisCache, err := rediscache.Connect(cfg.Redis.Addr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.redis = redisCache
		app.cache = rediscache.NewProgressCache(redisCache)
		log.Info("progress cache enabled", "addr", cfg.Redis.Addr)
	} else {
		log.Info("progress cache disabled")
	}

	recognizer, err := vision.NewGeminiRecognizer(ctx, log, cfg.Vision)
	if err != nil {
		return nil, fmt.Errorf("failed to set up recognizer: %w", err)
	}

	aggregator := task.NewAggregator(app.taskStore, app.cache, cfg.Task.ReportRetries, log)
	app.dispatcher = task.NewDispatcher(app.taskStore, app.files, recognizer, aggregator,
		task.DispatcherConfig{
			WorkerCount: cfg.Task.WorkerCount,
			ItemTimeout: time.Duration(cfg.Task.ItemTimeoutSeconds) * time.Second,
		}, log)

	emitter := events.NewInMemoryEventEmitter(log)
	emitter.RegisterHandler(&batchEventHandler{
		dispatcher: app.dispatcher,
		logger:     log.With("component", "batch_event_handler"),
	})

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to set up JWT service: %w", err)
	}

	app.taskService, err = service.NewTaskService(
		app.taskStore, app.files, app.cache, emitter, app.dispatcher, log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up task service: %w", err)
	}

	log.Info("application initialized",
		"worker_count", cfg.Task.WorkerCount,
		"item_timeout_seconds", cfg.Task.ItemTimeoutSeconds)
	return app, nil
}

// cleanup releases application resources in reverse initialization order.
func (app *application) cleanup() {
	if app.dispatcher != nil {
		app.dispatcher.Stop()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("failed to close redis connection", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database connection", "error", err)
		}
	}
}
