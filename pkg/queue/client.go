package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	// DefaultRetention bounds how long settled jobs are kept for deduplication.
	DefaultRetention = 24 * time.Hour

	promoteBatch = 100
)

func keyPrefix(queueName string) string { return "queue:" + queueName + ":" }
func waitKey(queueName string) string { return keyPrefix(queueName) + "wait" }
func activeKey(queueName string) string { return keyPrefix(queueName) + "active" }
func delayedKey(queueName string) string { return keyPrefix(queueName) + "delayed" }
func jobKey(queueName, id string) string { return keyPrefix(queueName) + "job:" + id }
func resultKey(queueName, id string) string { return keyPrefix(queueName) + "result:" + id }

// addScript inserts the job only if its id has not been seen within the retention horizon.
var addScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end

local state = 'waiting'
if tonumber(ARGV[5]) > 0 then
	state = 'delayed'
end

redis.call('HSET', KEYS[1], 'id', ARGV[1], 'payload', ARGV[2], 'attempts', 0, 'maxAttempts', ARGV[3], 'createdAt', ARGV[4], 'state', state)

if state == 'delayed' then
	redis.call('ZADD', KEYS[3], ARGV[5], ARGV[1])
else
	redis.call('LPUSH', KEYS[2], ARGV[1])
end

return 1
`)

var completeScript = redis.NewScript(`
redis.call('LREM', KEYS[1], 1, ARGV[1])
redis.call('HSET', KEYS[2], 'state', 'completed', 'result', ARGV[2])
redis.call('PEXPIRE', KEYS[2], ARGV[3])
redis.call('RPUSH', KEYS[3], ARGV[2])
redis.call('PEXPIRE', KEYS[3], ARGV[3])
return 1
`)

var retryScript = redis.NewScript(`
redis.call('LREM', KEYS[1], 1, ARGV[1])
redis.call('HSET', KEYS[2], 'state', 'delayed', 'error', ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return 1
`)

var failScript = redis.NewScript(`
redis.call('LREM', KEYS[1], 1, ARGV[1])
redis.call('HSET', KEYS[2], 'state', 'failed', 'error', ARGV[2])
redis.call('PEXPIRE', KEYS[2], ARGV[4])
redis.call('RPUSH', KEYS[3], ARGV[3])
redis.call('PEXPIRE', KEYS[3], ARGV[4])
return 1
`)

// promoteScript moves due delayed jobs back to the wait list.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], 0, ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('HSET', ARGV[3] .. id, 'state', 'waiting')
	redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

// requeueScript moves one stalled job from active back to wait.
var requeueScript = redis.NewScript(`
local removed = redis.call('LREM', KEYS[1], 1, ARGV[1])
if removed == 0 then
	return 0
end
redis.call('HSET', KEYS[3], 'state', 'waiting')
redis.call('LPUSH', KEYS[2], ARGV[1])
return 1
`)

// AddOptions customizes a single enqueue.
type AddOptions struct {
	JobID    string
	Delay    time.Duration
	Attempts int
}

// Client enqueues jobs and reads their outcome. Workers use it to move jobs
// through their lifecycle.
type Client struct {
	redis     redis.UniversalClient
	logger    *slog.Logger
	retention time.Duration
}

func NewClient(client redis.UniversalClient, logger *slog.Logger) *Client {
	return &Client{
		redis:     client,
		logger:    logger.With("module", "queue"),
		retention: DefaultRetention,
	}
}

// Add enqueues payload on queueName. It returns the job id and whether a new
// job was created; a duplicate id within the retention horizon is a no-op.
func (c *Client) Add(ctx context.Context, queueName string, payload any, opts AddOptions) (string, bool, error) {
	jobID := opts.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	// Zero attempts defers to the consuming worker's configuration.
	attempts := max(opts.Attempts, 0)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	var dueAt int64
	if opts.Delay > 0 {
		dueAt = time.Now().Add(opts.Delay).UnixMilli()
	}

	created, err := addScript.Run(ctx, c.redis,
		[]string{jobKey(queueName, jobID), waitKey(queueName), delayedKey(queueName)},
		jobID, string(body), attempts, time.Now().UnixMilli(), dueAt,
	).Int64()
	if err != nil {
		return "", false, fmt.Errorf("failed to add job %s to %s: %w", jobID, queueName, err)
	}

	if created == 0 {
		c.logger.DebugContext(ctx, "Duplicate job ignored", "queue", queueName, "job_id", jobID)
	}

	return jobID, created == 1, nil
}

// Get loads a job by id.
func (c *Client) Get(ctx context.Context, queueName, jobID string) (*Job, error) {
	fields, err := c.redis.HGetAll(ctx, jobKey(queueName, jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	return parseJob(queueName, fields), nil
}

// WaitForResult blocks until the job settles or timeout elapses. A job that
// exhausted its attempts yields a *JobFailedError.
func (c *Client) WaitForResult(ctx context.Context, queueName, jobID string, timeout time.Duration) (json.RawMessage, error) {
	values, err := c.redis.BLPop(ctx, timeout, resultKey(queueName, jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrWaitTimeout
		}

		return nil, fmt.Errorf("failed waiting for job %s: %w", jobID, err)
	}

	var envelope result

	err = json.Unmarshal([]byte(values[1]), &envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to decode result of job %s: %w", jobID, err)
	}

	if !envelope.OK {
		return nil, &JobFailedError{Queue: queueName, JobID: jobID, Message: envelope.Error}
	}

	return envelope.Result, nil
}

// reserve moves the next waiting job to the active list. It returns nil when
// nothing arrived within timeout.
func (c *Client) reserve(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	jobID, err := c.redis.BLMove(ctx, waitKey(queueName), activeKey(queueName), "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to reserve job on %s: %w", queueName, err)
	}

	key := jobKey(queueName, jobID)

	pipe := c.redis.TxPipeline()
	pipe.HIncrBy(ctx, key, "attempts", 1)
	pipe.HSet(ctx, key, "state", string(JobStateActive), "activeSince", time.Now().UnixMilli())
	fields := pipe.HGetAll(ctx, key)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to activate job %s: %w", jobID, err)
	}

	return parseJob(queueName, fields.Val()), nil
}

func (c *Client) complete(ctx context.Context, job *Job, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal result of job %s: %w", job.ID, err)
	}

	envelope, err := json.Marshal(result{OK: true, Result: body})
	if err != nil {
		return err
	}

	return completeScript.Run(ctx, c.redis,
		[]string{activeKey(job.Queue), jobKey(job.Queue, job.ID), resultKey(job.Queue, job.ID)},
		job.ID, string(envelope), c.retention.Milliseconds(),
	).Err()
}

func (c *Client) retry(ctx context.Context, job *Job, cause error, delay time.Duration) error {
	return retryScript.Run(ctx, c.redis,
		[]string{activeKey(job.Queue), jobKey(job.Queue, job.ID), delayedKey(job.Queue)},
		job.ID, cause.Error(), time.Now().Add(delay).UnixMilli(),
	).Err()
}

func (c *Client) fail(ctx context.Context, job *Job, cause error) error {
	envelope, err := json.Marshal(result{OK: false, Error: cause.Error()})
	if err != nil {
		return err
	}

	return failScript.Run(ctx, c.redis,
		[]string{activeKey(job.Queue), jobKey(job.Queue, job.ID), resultKey(job.Queue, job.ID)},
		job.ID, cause.Error(), string(envelope), c.retention.Milliseconds(),
	).Err()
}

// Promote moves delayed jobs whose due time has passed back to the wait list.
func (c *Client) Promote(ctx context.Context, queueName string) (int, error) {
	moved, err := promoteScript.Run(ctx, c.redis,
		[]string{delayedKey(queueName), waitKey(queueName)},
		time.Now().UnixMilli(), promoteBatch, keyPrefix(queueName)+"job:",
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to promote delayed jobs on %s: %w", queueName, err)
	}

	return moved, nil
}

// Recover re-queues jobs that have been active for longer than stallAfter,
// which happens when a worker dies mid-job.
func (c *Client) Recover(ctx context.Context, queueName string, stallAfter time.Duration) (int, error) {
	ids, err := c.redis.LRange(ctx, activeKey(queueName), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list active jobs on %s: %w", queueName, err)
	}

	threshold := time.Now().Add(-stallAfter).UnixMilli()
	recovered := 0

	for _, id := range ids {
		since, err := c.redis.HGet(ctx, jobKey(queueName, id), "activeSince").Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return recovered, fmt.Errorf("failed to read job %s: %w", id, err)
		}

		if since > threshold {
			continue
		}

		moved, err := requeueScript.Run(ctx, c.redis,
			[]string{activeKey(queueName), waitKey(queueName), jobKey(queueName, id)}, id,
		).Int()
		if err != nil {
			return recovered, fmt.Errorf("failed to requeue job %s: %w", id, err)
		}

		if moved == 1 {
			recovered++

			c.logger.WarnContext(ctx, "Recovered stalled job", "queue", queueName, "job_id", id)
		}
	}

	return recovered, nil
}

func parseJob(queueName string, fields map[string]string) *Job {
	attempts, _ := strconv.Atoi(fields["attempts"])
	maxAttempts, _ := strconv.Atoi(fields["maxAttempts"])
	createdAt, _ := strconv.ParseInt(fields["createdAt"], 10, 64)

	return &Job{
		ID:          fields["id"],
		Queue:       queueName,
		Payload:     json.RawMessage(fields["payload"]),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		State:       JobState(fields["state"]),
		Error:       fields["error"],
		CreatedAt:   time.UnixMilli(createdAt).UTC(),
	}
}
