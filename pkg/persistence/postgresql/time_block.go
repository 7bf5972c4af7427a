package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/persistence"
)

// TimeBlockRepository handles schedule rows.
type TimeBlockRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTimeBlockRepository creates a new time block repository.
func NewTimeBlockRepository(db *sql.DB, logger *slog.Logger) *TimeBlockRepository {
	return &TimeBlockRepository{db: db, logger: logger}
}

const timeBlockColumns = `
	id, user_id, workflow_id, schedule_type, cron_expression, timezone,
	interval_seconds, run_at, end_at, max_runs, run_count, status,
	last_trigger_job_id, created_at, updated_at
`

func (r *TimeBlockRepository) GetTimeBlock(ctx context.Context, id string) (*models.TimeBlock, error) {
	query := "SELECT " + timeBlockColumns + " FROM time_blocks WHERE id = $1"

	block, err := r.scanTimeBlock(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTimeBlockError("GetTimeBlock", id, persistence.ErrTimeBlockNotFound)
		}

		return nil, fmt.Errorf("failed to scan time block: %w", err)
	}

	return block, nil
}

// SaveTimeBlock upserts a time block. The run counter and trigger guard are
// only moved by RecordTrigger.
func (r *TimeBlockRepository) SaveTimeBlock(ctx context.Context, block *models.TimeBlock) error {
	now := time.Now().UTC()

	if block.CreatedAt.IsZero() {
		block.CreatedAt = now
	}

	block.UpdatedAt = now

	if block.Status == "" {
		block.Status = models.TimeBlockStatusActive
	}

	query := `
		INSERT INTO time_blocks (` + timeBlockColumns + `)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, 0), $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			workflow_id = EXCLUDED.workflow_id,
			schedule_type = EXCLUDED.schedule_type,
			cron_expression = EXCLUDED.cron_expression,
			timezone = EXCLUDED.timezone,
			interval_seconds = EXCLUDED.interval_seconds,
			run_at = EXCLUDED.run_at,
			end_at = EXCLUDED.end_at,
			max_runs = EXCLUDED.max_runs,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		block.ID,
		block.UserID,
		block.WorkflowID,
		block.ScheduleType,
		block.CronExpression,
		block.Timezone,
		block.IntervalSeconds,
		block.RunAt,
		block.EndAt,
		block.MaxRuns,
		block.RunCount,
		block.Status,
		block.LastTriggerJobID,
		block.CreatedAt,
		block.UpdatedAt,
	)
	if err != nil {
		return persistence.NewTimeBlockError("SaveTimeBlock", block.ID, err)
	}

	return nil
}

// ListActiveTimeBlocks returns every block in ACTIVE status.
func (r *TimeBlockRepository) ListActiveTimeBlocks(ctx context.Context) ([]*models.TimeBlock, error) {
	query := "SELECT " + timeBlockColumns + " FROM time_blocks WHERE status = $1 ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query, models.TimeBlockStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query time blocks: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	blocks := make([]*models.TimeBlock, 0)

	for rows.Next() {
		block, err := r.scanTimeBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time block: %w", err)
		}

		blocks = append(blocks, block)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating time blocks: %w", err)
	}

	return blocks, nil
}

// RecordTrigger bumps run_count unless triggerJobID was already recorded, so
// a redelivered trigger job does not count twice.
func (r *TimeBlockRepository) RecordTrigger(ctx context.Context, id string, triggerJobID string) (bool, error) {
	query := `
		UPDATE time_blocks SET
			run_count = run_count + 1,
			last_trigger_job_id = $2,
			updated_at = NOW()
		WHERE id = $1 AND last_trigger_job_id IS DISTINCT FROM $2
	`

	result, err := r.db.ExecContext(ctx, query, id, triggerJobID)
	if err != nil {
		return false, persistence.NewTimeBlockError("RecordTrigger", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 1 {
		return true, nil
	}

	_, err = r.GetTimeBlock(ctx, id)
	if err != nil {
		return false, err
	}

	return false, nil
}

func (r *TimeBlockRepository) UpdateTimeBlockStatus(ctx context.Context, id string, status models.TimeBlockStatus) error {
	result, err := r.db.ExecContext(ctx, "UPDATE time_blocks SET status = $2, updated_at = NOW() WHERE id = $1", id, status)
	if err != nil {
		return persistence.NewTimeBlockError("UpdateTimeBlockStatus", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewTimeBlockError("UpdateTimeBlockStatus", id, persistence.ErrTimeBlockNotFound)
	}

	return nil
}

func (r *TimeBlockRepository) scanTimeBlock(row scanner) (*models.TimeBlock, error) {
	var (
		block                    models.TimeBlock
		cronExpression, timezone sql.NullString
		intervalSeconds, maxRuns sql.NullInt64
	)

	err := row.Scan(
		&block.ID,
		&block.UserID,
		&block.WorkflowID,
		&block.ScheduleType,
		&cronExpression,
		&timezone,
		&intervalSeconds,
		&block.RunAt,
		&block.EndAt,
		&maxRuns,
		&block.RunCount,
		&block.Status,
		&block.LastTriggerJobID,
		&block.CreatedAt,
		&block.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	block.CronExpression = cronExpression.String
	block.Timezone = timezone.String
	block.IntervalSeconds = int(intervalSeconds.Int64)

	if maxRuns.Valid {
		value := int(maxRuns.Int64)
		block.MaxRuns = &value
	}

	return &block, nil
}
