package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDLQ struct {
	tasks []*Task
	errs  []error
}

func (d *recordingDLQ) HandleFailedTask(ctx context.Context, task *Task, err error) {
	d.tasks = append(d.tasks, task)
	d.errs = append(d.errs, err)
}

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newTestQueue(t *testing.T, dlq DLQHandler, rm *RetryManager) (*RedisQueue, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	cfg := DefaultRedisQueueConfig()
	cfg.Prefix = "test"
	cfg.EnableMetrics = false

	q := NewRedisQueue(client, cfg, rm, dlq)
	q.now = func() time.Time { return testNow }
	return q, mock
}

func newTask(executeAt time.Time) *Task {
	return &Task{
		ID:         "booking_confirmed_BK7Q2X9Z",
		Type:       TaskTypeBookingConfirmed,
		Data:       map[string]interface{}{"booking_ref": "BK7Q2X9Z"},
		ExecuteAt:  executeAt,
		CreatedAt:  testNow,
		MaxRetries: 3,
	}
}

func TestPublishImmediate(t *testing.T) {
	q, mock := newTestQueue(t, &recordingDLQ{}, nil)
	task := newTask(testNow)
	payload, err := json.Marshal(task)
	require.NoError(t, err)

	mock.ExpectLPush("test:tasks", payload).SetVal(1)

	require.NoError(t, q.Publish(context.Background(), task))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishDelayed(t *testing.T) {
	q, mock := newTestQueue(t, &recordingDLQ{}, nil)
	executeAt := testNow.Add(time.Hour)
	task := newTask(executeAt)
	payload, err := json.Marshal(task)
	require.NoError(t, err)

	mock.ExpectZAdd("test:tasks:delayed", redis.Z{
		Score:  float64(executeAt.UnixNano()) / 1e9,
		Member: payload,
	}).SetVal(1)

	require.NoError(t, q.Publish(context.Background(), task))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishFillsDefaults(t *testing.T) {
	q, mock := newTestQueue(t, &recordingDLQ{}, nil)
	task := &Task{Type: TaskTypeBookingConfirmed}

	mock.Regexp().ExpectLPush("test:tasks", `.*`).SetVal(1)

	require.NoError(t, q.Publish(context.Background(), task))
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, defaultMaxRetries, task.MaxRetries)
	assert.Equal(t, testNow, task.ExecuteAt)
	assert.NotNil(t, task.Data)
}

func TestPublishRejectsInvalidTask(t *testing.T) {
	q, mock := newTestQueue(t, &recordingDLQ{}, nil)

	assert.Error(t, q.Publish(context.Background(), nil))
	assert.Error(t, q.Publish(context.Background(), &Task{ID: "no-type"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessTaskSuccess(t *testing.T) {
	dlq := &recordingDLQ{}
	q, mock := newTestQueue(t, dlq, nil)
	payload, err := json.Marshal(newTask(testNow))
	require.NoError(t, err)

	mock.ExpectLRem("test:tasks:processing", 1, string(payload)).SetVal(1)

	var seen *Task
	q.processTask(context.Background(), string(payload), func(ctx context.Context, task *Task) error {
		seen = task
		return nil
	})

	require.NotNil(t, seen)
	assert.Equal(t, 1, seen.Attempts)
	assert.Empty(t, dlq.tasks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessTaskSchedulesRetry(t *testing.T) {
	// 1ns base delay leaves no room for jitter
	q, mock := newTestQueue(t, &recordingDLQ{}, NewRetryManager(3, time.Nanosecond))
	payload, err := json.Marshal(newTask(testNow))
	require.NoError(t, err)

	retried := newTask(testNow.Add(time.Nanosecond))
	retried.Attempts = 1
	retryPayload, err := json.Marshal(retried)
	require.NoError(t, err)

	mock.ExpectZAdd("test:tasks:delayed", redis.Z{
		Score:  float64(retried.ExecuteAt.UnixNano()) / 1e9,
		Member: retryPayload,
	}).SetVal(1)
	mock.ExpectLRem("test:tasks:processing", 1, string(payload)).SetVal(1)

	q.processTask(context.Background(), string(payload), func(ctx context.Context, task *Task) error {
		return errors.New("smtp timeout")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessTaskPermanentFailureGoesToDLQ(t *testing.T) {
	dlq := &recordingDLQ{}
	q, mock := newTestQueue(t, dlq, nil)
	payload, err := json.Marshal(newTask(testNow))
	require.NoError(t, err)

	mock.ExpectLRem("test:tasks:processing", 1, string(payload)).SetVal(1)

	q.processTask(context.Background(), string(payload), func(ctx context.Context, task *Task) error {
		return Permanent(errors.New("missing user_email"))
	})

	require.Len(t, dlq.tasks, 1)
	assert.Equal(t, "booking_confirmed_BK7Q2X9Z", dlq.tasks[0].ID)
	assert.ErrorIs(t, dlq.errs[0], ErrPermanent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessTaskCorruptedPayload(t *testing.T) {
	dlq := &recordingDLQ{}
	q, mock := newTestQueue(t, dlq, nil)

	mock.ExpectLRem("test:tasks:processing", 1, "{not json").SetVal(1)

	called := false
	q.processTask(context.Background(), "{not json", func(ctx context.Context, task *Task) error {
		called = true
		return nil
	})

	assert.False(t, called)
	require.Len(t, dlq.tasks, 1)
	assert.Equal(t, TaskType("corrupted"), dlq.tasks[0].Type)
	assert.Equal(t, "{not json", dlq.tasks[0].Data["raw_data"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMoveReadyDelayedTasks(t *testing.T) {
	q, mock := newTestQueue(t, &recordingDLQ{}, nil)
	maxScore := strconv.FormatFloat(float64(testNow.UnixNano())/1e9, 'f', -1, 64)

	mock.ExpectEvalSha(moveReadyScript.Hash(), []string{"test:tasks:delayed", "test:tasks"}, maxScore, defaultBatchSize).SetVal(int64(2))

	moved, err := q.moveReadyDelayedTasks(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetQueueStats(t *testing.T) {
	q, mock := newTestQueue(t, &recordingDLQ{}, nil)

	mock.ExpectLLen("test:tasks").SetVal(4)
	mock.ExpectZCard("test:tasks:delayed").SetVal(2)
	mock.ExpectLLen("test:tasks:processing").SetVal(1)
	mock.ExpectZCard("test:dlq").SetVal(0)

	stats, err := q.GetQueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.MainQueue)
	assert.Equal(t, int64(2), stats.DelayedQueue)
	assert.Equal(t, int64(1), stats.ProcessingQueue)
	assert.Zero(t, stats.DLQ)
	assert.NoError(t, mock.ExpectationsWereMet())
}
