package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/try-flowforge/backend/pkg/models"
)

// intervalSchedule fires every interval counted from anchor, so every replica
// computes the same slots.
type intervalSchedule struct {
	anchor   time.Time
	interval time.Duration
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	if t.Before(s.anchor) {
		return s.anchor
	}

	elapsed := t.Sub(s.anchor)
	slots := elapsed/s.interval + 1

	return s.anchor.Add(slots * s.interval)
}

// oneShotSchedule fires once at a fixed time. A zero time tells cron the
// entry never runs again.
type oneShotSchedule struct {
	at time.Time
}

func (s oneShotSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}

	return time.Time{}
}

// ScheduleFor builds the cron schedule of a time block.
func ScheduleFor(block *models.TimeBlock) (cron.Schedule, error) {
	err := block.Validate()
	if err != nil {
		return nil, err
	}

	switch block.ScheduleType {
	case models.ScheduleTypeCron:
		return block.CronSchedule()
	case models.ScheduleTypeInterval:
		anchor := block.CreatedAt
		if anchor.IsZero() {
			anchor = time.Unix(0, 0)
		}

		return intervalSchedule{anchor: anchor.UTC(), interval: time.Duration(block.IntervalSeconds) * time.Second}, nil
	case models.ScheduleTypeOneShot:
		return oneShotSchedule{at: block.RunAt.UTC()}, nil
	default:
		return nil, fmt.Errorf("%w: unknown schedule type %q", models.ErrInvalidSchedule, block.ScheduleType)
	}
}

// fingerprint changes whenever a field that affects firing changes.
func fingerprint(block *models.TimeBlock) string {
	var runAt, endAt int64

	if block.RunAt != nil {
		runAt = block.RunAt.UnixMilli()
	}

	if block.EndAt != nil {
		endAt = block.EndAt.UnixMilli()
	}

	return fmt.Sprintf("%s|%s|%s|%d|%d|%d|%d",
		block.ScheduleType, block.CronExpression, block.Timezone, block.IntervalSeconds, runAt, endAt, block.CreatedAt.UnixMilli())
}
