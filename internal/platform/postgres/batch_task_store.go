package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tovell/argus-api/internal/domain"
	"github.com/tovell/argus-api/internal/platform/logger"
	"github.com/tovell/argus-api/internal/store"
)

// taskColumns is the select list shared by every task query.
const taskColumns = `id, user_id, name, description, total_count, processed_count,
	success_count, failed_count, progress, status, total_size,
	created_at, started_at, ended_at, updated_at`

// PostgresBatchTaskStore implements the store.BatchTaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresBatchTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// Ensure PostgresBatchTaskStore implements store.BatchTaskStore
var _ store.BatchTaskStore = (*PostgresBatchTaskStore)(nil)

// NewPostgresBatchTaskStore creates a new PostgreSQL implementation of the
// BatchTaskStore interface. It accepts a database connection or transaction
// that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresBatchTaskStore(db store.DBTX, logger *slog.Logger) *PostgresBatchTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresBatchTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "batch_task_store")),
	}
}

// WithTx implements store.BatchTaskStore.WithTx
func (s *PostgresBatchTaskStore) WithTx(tx *sql.Tx) store.BatchTaskStore {
	return &PostgresBatchTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

// runAtomic executes fn against a transactional copy of the store. When the
// store already wraps a transaction, fn runs directly on it.
func (s *PostgresBatchTaskStore) runAtomic(
	ctx context.Context,
	fn func(ctx context.Context, txStore *PostgresBatchTaskStore) error,
) error {
	if db, ok := s.db.(*sql.DB); ok {
		return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			return fn(ctx, &PostgresBatchTaskStore{db: tx, logger: s.logger})
		})
	}
	return fn(ctx, s)
}

// CreateWithItems implements store.BatchTaskStore.CreateWithItems
// It saves the task and all of its items as a single atomic unit, so a
// storage failure never leaves a task without its full item set.
func (s *PostgresBatchTaskStore) CreateWithItems(
	ctx context.Context,
	task *domain.BatchTask,
	items []*domain.BatchItem,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	if len(items) == 0 {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrEmptyItemSet)
	}

	for _, item := range items {
		if err := item.Validate(); err != nil {
			log.Warn("item validation failed during create",
				slog.String("error", err.Error()),
				slog.String("item_id", item.ID.String()))
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}

	err := s.runAtomic(ctx, func(ctx context.Context, txStore *PostgresBatchTaskStore) error {
		taskQuery := `
			INSERT INTO batch_tasks (id, user_id, name, description, total_count,
				processed_count, success_count, failed_count, progress, status,
				total_size, created_at, started_at, ended_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`
		_, err := txStore.db.ExecContext(ctx, taskQuery,
			task.ID,
			task.UserID,
			task.Name,
			task.Description,
			task.TotalCount,
			task.ProcessedCount,
			task.SuccessCount,
			task.FailedCount,
			task.Progress,
			task.Status,
			task.TotalSize,
			task.CreatedAt,
			task.StartedAt,
			task.EndedAt,
			task.UpdatedAt,
		)
		if err != nil {
			return err
		}

		itemQuery := `
			INSERT INTO batch_items (id, task_id, file_name, file_size,
				storage_handle, status, result, error_message, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		for _, item := range items {
			_, err := txStore.db.ExecContext(ctx, itemQuery,
				item.ID,
				item.TaskID,
				item.FileName,
				item.FileSize,
				item.StorageHandle,
				item.Status,
				nil,
				item.ErrorMessage,
				item.CreatedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate task or item ID", store.ErrInvalidEntity)
		}
		log.Error("failed to create batch task with items",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()),
			slog.String("user_id", task.UserID.String()))
		return err
	}

	log.Info("batch task created",
		slog.String("task_id", task.ID.String()),
		slog.String("user_id", task.UserID.String()),
		slog.Int("total_count", task.TotalCount))
	return nil
}

// GetByID implements store.BatchTaskStore.GetByID
// Ownership failures are reported as store.ErrTaskNotFound, indistinguishable
// from absence.
func (s *PostgresBatchTaskStore) GetByID(ctx context.Context, taskID, userID uuid.UUID) (*domain.BatchTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM batch_tasks WHERE id = $1 AND user_id = $2`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, taskID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("batch task not found",
				slog.String("task_id", taskID.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get batch task by ID",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return nil, err
	}

	return task, nil
}

// GetItems implements store.BatchTaskStore.GetItems
func (s *PostgresBatchTaskStore) GetItems(ctx context.Context, taskID uuid.UUID) ([]*domain.BatchItem, error) {
	return s.queryItems(ctx, `
		SELECT id, task_id, file_name, file_size, storage_handle, status,
			result, error_message, created_at
		FROM batch_items
		WHERE task_id = $1
		ORDER BY created_at ASC
	`, taskID)
}

// GetPendingItems implements store.BatchTaskStore.GetPendingItems
func (s *PostgresBatchTaskStore) GetPendingItems(ctx context.Context, taskID uuid.UUID) ([]*domain.BatchItem, error) {
	return s.queryItems(ctx, `
		SELECT id, task_id, file_name, file_size, storage_handle, status,
			result, error_message, created_at
		FROM batch_items
		WHERE task_id = $1 AND status IN ('pending', 'processing')
		ORDER BY created_at ASC
	`, taskID)
}

func (s *PostgresBatchTaskStore) queryItems(ctx context.Context, query string, taskID uuid.UUID) ([]*domain.BatchItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		log.Error("failed to query batch items",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	items := []*domain.BatchItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			log.Error("failed to scan batch item row",
				slog.String("error", err.Error()))
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning item rows",
			slog.String("error", err.Error()))
		return nil, err
	}

	return items, nil
}

// ListByUser implements store.BatchTaskStore.ListByUser
// Tasks are ordered by creation time descending.
func (s *PostgresBatchTaskStore) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	filter store.ListFilter,
) ([]*domain.BatchTask, int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.Size
	if size <= 0 {
		size = 10
	}
	offset := (page - 1) * size

	countQuery := `SELECT COUNT(*) FROM batch_tasks WHERE user_id = $1`
	listQuery := `SELECT ` + taskColumns + `
		FROM batch_tasks
		WHERE user_id = $1`
	countArgs := []any{userID}
	listArgs := []any{userID}

	if filter.Status != nil {
		countQuery += ` AND status = $2`
		listQuery += ` AND status = $2`
		countArgs = append(countArgs, *filter.Status)
		listArgs = append(listArgs, *filter.Status)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		log.Error("failed to count batch tasks",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, 0, err
	}

	listQuery += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		len(listArgs)+1, len(listArgs)+2)
	listArgs = append(listArgs, size, offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		log.Error("failed to list batch tasks",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, 0, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	tasks := []*domain.BatchTask{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan batch task row",
				slog.String("error", err.Error()))
			return nil, 0, err
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return tasks, total, nil
}

// CountByStatus implements store.BatchTaskStore.CountByStatus
func (s *PostgresBatchTaskStore) CountByStatus(ctx context.Context, userID uuid.UUID) (map[domain.TaskStatus]int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT status, COUNT(*) FROM batch_tasks WHERE user_id = $1 GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		log.Error("failed to count batch tasks by status",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	counts := make(map[domain.TaskStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[domain.TaskStatus(status)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

// Delete implements store.BatchTaskStore.Delete
// Items are removed before the task within one transaction so orphan items
// can never exist, even transiently.
func (s *PostgresBatchTaskStore) Delete(ctx context.Context, taskID, userID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	err := s.runAtomic(ctx, func(ctx context.Context, txStore *PostgresBatchTaskStore) error {
		var owned bool
		err := txStore.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM batch_tasks WHERE id = $1 AND user_id = $2)`,
			taskID, userID).Scan(&owned)
		if err != nil {
			return err
		}
		if !owned {
			return store.ErrTaskNotFound
		}

		if _, err := txStore.db.ExecContext(ctx,
			`DELETE FROM batch_items WHERE task_id = $1`, taskID); err != nil {
			return fmt.Errorf("%w: %v", store.ErrDeleteFailed, err)
		}

		if _, err := txStore.db.ExecContext(ctx,
			`DELETE FROM batch_tasks WHERE id = $1`, taskID); err != nil {
			return fmt.Errorf("%w: %v", store.ErrDeleteFailed, err)
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			log.Debug("batch task not found for delete",
				slog.String("task_id", taskID.String()))
			return store.ErrTaskNotFound
		}
		log.Error("failed to delete batch task",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return err
	}

	log.Info("batch task deleted",
		slog.String("task_id", taskID.String()),
		slog.String("user_id", userID.String()))
	return nil
}

// MarkItemProcessing implements store.BatchTaskStore.MarkItemProcessing
func (s *PostgresBatchTaskStore) MarkItemProcessing(ctx context.Context, itemID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `
		UPDATE batch_items
		SET status = 'processing'
		WHERE id = $1 AND status = 'pending'
	`, itemID)
	if err != nil {
		log.Error("failed to mark item processing",
			slog.String("error", err.Error()),
			slog.String("item_id", itemID.String()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	// No pending row was updated: distinguish missing, already processing,
	// and terminal items.
	var status string
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM batch_items WHERE id = $1`, itemID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrItemNotFound
		}
		return err
	}

	if domain.ItemStatus(status) == domain.ItemStatusProcessing {
		return nil
	}
	return store.ErrItemTerminal
}

// CompleteItem implements store.BatchTaskStore.CompleteItem
//
// The item's terminal flip is guarded by its current status, and the task's
// counters are advanced by a single UPDATE computing every derived field
// from the stored values. Both statements run in one transaction. Counters
// are never read and written back, so concurrent completions of sibling
// items cannot lose updates.
func (s *PostgresBatchTaskStore) CompleteItem(
	ctx context.Context,
	taskID, itemID uuid.UUID,
	outcome domain.ItemOutcome,
) (*domain.BatchTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var updated *domain.BatchTask
	err := s.runAtomic(ctx, func(ctx context.Context, txStore *PostgresBatchTaskStore) error {
		var resultJSON any
		if outcome.Success && outcome.Result != nil {
			data, err := json.Marshal(outcome.Result)
			if err != nil {
				return fmt.Errorf("failed to marshal recognition result: %w", err)
			}
			resultJSON = data
		}

		res, err := txStore.db.ExecContext(ctx, `
			UPDATE batch_items
			SET status = $2, result = $3, error_message = $4
			WHERE id = $1 AND task_id = $5 AND status IN ('pending', 'processing')
		`, itemID, outcome.TerminalStatus(), resultJSON, outcome.ErrorMessage, taskID)
		if err != nil {
			return err
		}

		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			var status string
			err := txStore.db.QueryRowContext(ctx,
				`SELECT status FROM batch_items WHERE id = $1 AND task_id = $2`,
				itemID, taskID).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				// Task and item were deleted while the outcome was in flight.
				return store.ErrTaskNotFound
			}
			if err != nil {
				return err
			}
			return store.ErrItemTerminal
		}

		successInc := 0
		failedInc := 0
		if outcome.Success {
			successInc = 1
		} else {
			failedInc = 1
		}

		now := time.Now().UTC()
		counterQuery := `
			UPDATE batch_tasks SET
				processed_count = processed_count + 1,
				success_count   = success_count + $2,
				failed_count    = failed_count + $3,
				progress = CASE WHEN total_count > 0
					THEN ((processed_count + 1) * 100) / total_count
					ELSE 0 END,
				status = CASE WHEN processed_count + 1 >= total_count
					THEN 'completed' ELSE 'processing' END,
				ended_at = CASE WHEN processed_count + 1 >= total_count AND ended_at IS NULL
					THEN $4 ELSE ended_at END,
				updated_at = $4
			WHERE id = $1
			RETURNING ` + taskColumns

		updated, err = scanTask(txStore.db.QueryRowContext(ctx, counterQuery,
			taskID, successInc, failedInc, now))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrTaskNotFound
			}
			return err
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, store.ErrItemTerminal) || errors.Is(err, store.ErrTaskNotFound) {
			return nil, err
		}
		log.Error("failed to complete batch item",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()),
			slog.String("item_id", itemID.String()))
		return nil, err
	}

	log.Debug("batch item completed",
		slog.String("task_id", taskID.String()),
		slog.String("item_id", itemID.String()),
		slog.Bool("success", outcome.Success),
		slog.Int("processed_count", updated.ProcessedCount),
		slog.String("status", string(updated.Status)))
	return updated, nil
}

// ListUnfinishedTaskIDs implements store.BatchTaskStore.ListUnfinishedTaskIDs
func (s *PostgresBatchTaskStore) ListUnfinishedTaskIDs(ctx context.Context) ([]uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM batch_tasks
		WHERE status IN ('pending', 'processing')
		ORDER BY created_at ASC
	`)
	if err != nil {
		log.Error("failed to list unfinished tasks",
			slog.String("error", err.Error()))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one task row in taskColumns order.
func scanTask(row rowScanner) (*domain.BatchTask, error) {
	var task domain.BatchTask
	var status string
	var endedAt sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Name,
		&task.Description,
		&task.TotalCount,
		&task.ProcessedCount,
		&task.SuccessCount,
		&task.FailedCount,
		&task.Progress,
		&status,
		&task.TotalSize,
		&task.CreatedAt,
		&task.StartedAt,
		&endedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	if endedAt.Valid {
		t := endedAt.Time
		task.EndedAt = &t
	}

	return &task, nil
}

// scanItem reads one item row.
func scanItem(row rowScanner) (*domain.BatchItem, error) {
	var item domain.BatchItem
	var status string
	var resultJSON []byte
	var errorMessage sql.NullString

	err := row.Scan(
		&item.ID,
		&item.TaskID,
		&item.FileName,
		&item.FileSize,
		&item.StorageHandle,
		&status,
		&resultJSON,
		&errorMessage,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Status = domain.ItemStatus(status)
	item.ErrorMessage = errorMessage.String

	if len(resultJSON) > 0 {
		var result domain.RecognitionResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recognition result: %w", err)
		}
		item.Result = &result
	}

	return &item, nil
}
