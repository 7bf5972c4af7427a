package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleType selects how a time block fires.
type ScheduleType string

const (
	ScheduleTypeCron     ScheduleType = "CRON"
	ScheduleTypeInterval ScheduleType = "INTERVAL"
	ScheduleTypeOneShot  ScheduleType = "ONE_SHOT"
)

// TimeBlockStatus is the lifecycle state of a time block.
type TimeBlockStatus string

const (
	TimeBlockStatusActive    TimeBlockStatus = "ACTIVE"
	TimeBlockStatusPaused    TimeBlockStatus = "PAUSED"
	TimeBlockStatusCompleted TimeBlockStatus = "COMPLETED"
	TimeBlockStatusCancelled TimeBlockStatus = "CANCELLED"
)

// ErrInvalidSchedule is returned when a time block's schedule fields are inconsistent.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// TimeBlock is a schedule that starts a workflow on a cron, interval or one-shot basis.
type TimeBlock struct {
	ID               string          `json:"id"                         validate:"required"`
	UserID           string          `json:"userId"                     validate:"required"`
	WorkflowID       string          `json:"workflowId"                 validate:"required"`
	ScheduleType     ScheduleType    `json:"scheduleType"               validate:"required,oneof=CRON INTERVAL ONE_SHOT"`
	CronExpression   string          `json:"cronExpression,omitempty"`
	Timezone         string          `json:"timezone,omitempty"`
	IntervalSeconds  int             `json:"intervalSeconds,omitempty"`
	RunAt            *time.Time      `json:"runAt,omitempty"`
	EndAt            *time.Time      `json:"endAt,omitempty"`
	MaxRuns          *int            `json:"maxRuns,omitempty"`
	RunCount         int             `json:"runCount"`
	Status           TimeBlockStatus `json:"status"`
	LastTriggerJobID *string         `json:"lastTriggerJobId,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// IsExpired reports whether the block's end time has passed.
func (b *TimeBlock) IsExpired(now time.Time) bool {
	return b.EndAt != nil && !now.Before(*b.EndAt)
}

// IsExhausted reports whether the block has used all of its runs.
func (b *TimeBlock) IsExhausted() bool {
	return b.MaxRuns != nil && b.RunCount >= *b.MaxRuns
}

// Location returns the block's timezone, defaulting to UTC.
func (b *TimeBlock) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.UTC, nil
	}

	return time.LoadLocation(b.Timezone)
}

// CronSchedule parses the cron expression in the block's timezone.
func (b *TimeBlock) CronSchedule() (cron.Schedule, error) {
	expression := b.CronExpression
	if b.Timezone != "" {
		expression = "CRON_TZ=" + b.Timezone + " " + expression
	}

	return cronParser.Parse(expression)
}

// Validate performs validation on the schedule fields.
func (b *TimeBlock) Validate() error {
	switch b.ScheduleType {
	case ScheduleTypeCron:
		if b.CronExpression == "" {
			return fmt.Errorf("%w: cron expression is required", ErrInvalidSchedule)
		}

		if _, err := b.CronSchedule(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
		}
	case ScheduleTypeInterval:
		if b.IntervalSeconds <= 0 {
			return fmt.Errorf("%w: interval must be positive", ErrInvalidSchedule)
		}
	case ScheduleTypeOneShot:
		if b.RunAt == nil {
			return fmt.Errorf("%w: runAt is required", ErrInvalidSchedule)
		}
	default:
		return fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, b.ScheduleType)
	}

	if _, err := b.Location(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	return nil
}
