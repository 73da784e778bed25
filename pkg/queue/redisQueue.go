package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxRetries   = 3
	defaultBaseDelay    = 5 * time.Second
	defaultQueueTimeout = 5 * time.Second
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
	defaultDLQThreshold = 1000
)

// moveReadyScript переносит созревшие отложенные задачи в основную очередь атомарно
var moveReadyScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, item in ipairs(items) do
	redis.call('LPUSH', KEYS[2], item)
	redis.call('ZREM', KEYS[1], item)
end
return #items
`)

// RedisQueue implements Queue interface using Redis
type RedisQueue struct {
	client          *redis.Client
	mainQueue       string
	delayedQueue    string
	processingQueue string
	dlq             string
	metricsPrefix   string
	retryManager    *RetryManager
	dlqHandler      DLQHandler
	config          *RedisQueueConfig
	stopChan        chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
	now             func() time.Time
}

// RedisQueueConfig contains configuration for RedisQueue
type RedisQueueConfig struct {
	// Prefix namespaces every key, e.g. bookit:tasks
	Prefix string

	// Behavior
	MaxRetries    int
	BaseDelay     time.Duration
	QueueTimeout  time.Duration
	PollInterval  time.Duration
	BatchSize     int
	DLQThreshold  int
	EnableDLQ     bool
	EnableMetrics bool
}

// DefaultRedisQueueConfig returns default configuration
func DefaultRedisQueueConfig() *RedisQueueConfig {
	return &RedisQueueConfig{
		Prefix:        "bookit",
		MaxRetries:    defaultMaxRetries,
		BaseDelay:     defaultBaseDelay,
		QueueTimeout:  defaultQueueTimeout,
		PollInterval:  defaultPollInterval,
		BatchSize:     defaultBatchSize,
		DLQThreshold:  defaultDLQThreshold,
		EnableDLQ:     true,
		EnableMetrics: true,
	}
}

func (c *RedisQueueConfig) MainQueue() string       { return c.Prefix + ":tasks" }
func (c *RedisQueueConfig) DelayedQueue() string    { return c.Prefix + ":tasks:delayed" }
func (c *RedisQueueConfig) ProcessingQueue() string { return c.Prefix + ":tasks:processing" }
func (c *RedisQueueConfig) DLQ() string             { return c.Prefix + ":dlq" }

// NewRedisQueue creates a new RedisQueue on top of an already connected client
func NewRedisQueue(client *redis.Client, cfg *RedisQueueConfig, retryManager *RetryManager, dlqHandler DLQHandler) *RedisQueue {
	if cfg == nil {
		cfg = DefaultRedisQueueConfig()
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = defaultQueueTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	if retryManager == nil {
		retryManager = NewRetryManager(cfg.MaxRetries, cfg.BaseDelay)
	}

	if dlqHandler == nil && cfg.EnableDLQ {
		dlqHandler = NewDefaultDLQHandler(client, cfg.DLQ(), cfg.MainQueue())
	}

	queue := &RedisQueue{
		client:          client,
		mainQueue:       cfg.MainQueue(),
		delayedQueue:    cfg.DelayedQueue(),
		processingQueue: cfg.ProcessingQueue(),
		dlq:             cfg.DLQ(),
		metricsPrefix:   cfg.Prefix + ":metrics",
		retryManager:    retryManager,
		dlqHandler:      dlqHandler,
		config:          cfg,
		stopChan:        make(chan struct{}),
		now:             time.Now,
	}

	logrus.WithFields(logrus.Fields{
		"main":    queue.mainQueue,
		"delayed": queue.delayedQueue,
		"dlq":     queue.dlq,
	}).Info("RedisQueue initialized")

	return queue
}

// Publish sends a task to the queue
func (r *RedisQueue) Publish(ctx context.Context, task *Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	// Validate and set default values
	if err := r.validateTask(task); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	return r.enqueue(ctx, task)
}

func (r *RedisQueue) enqueue(ctx context.Context, task *Task) error {
	taskData, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	// Use Redis Sorted Set for delayed tasks
	if task.ExecuteAt.After(r.now()) {
		err = r.client.ZAdd(ctx, r.delayedQueue, redis.Z{
			Score:  float64(task.ExecuteAt.UnixNano()) / 1e9,
			Member: taskData,
		}).Err()
		if err != nil {
			return fmt.Errorf("failed to publish delayed task: %w", err)
		}

		r.incrementMetric(ctx, "tasks_delayed")
		logrus.WithFields(logrus.Fields{
			"task_id":    task.ID,
			"execute_at": task.ExecuteAt.Format(time.RFC3339),
		}).Debug("Task scheduled")
		return nil
	}

	// Use Redis List for immediate tasks
	if err := r.client.LPush(ctx, r.mainQueue, taskData).Err(); err != nil {
		return fmt.Errorf("failed to publish immediate task: %w", err)
	}

	r.incrementMetric(ctx, "tasks_queued")
	logrus.WithField("task_id", task.ID).Debug("Task published to main queue")
	return nil
}

// Subscribe starts consuming tasks from the queue
func (r *RedisQueue) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	// Start background processors
	r.wg.Add(3)
	go r.processDelayedTasks(ctx)
	go r.processMainQueue(ctx, handler)
	go r.monitorQueueMetrics(ctx)

	logrus.Info("RedisQueue subscriber started")
	return nil
}

// processMainQueue processes tasks from the main queue
func (r *RedisQueue) processMainQueue(ctx context.Context, handler Handler) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Main queue processor stopped by context")
			return
		case <-r.stopChan:
			logrus.Info("Main queue processor stopped")
			return
		default:
			if err := r.processNext(ctx, handler); err != nil && ctx.Err() == nil {
				logrus.WithError(err).Error("Error processing queue")
				time.Sleep(time.Second) // Backoff on error
			}
		}
	}
}

// processNext moves one task to the processing list and runs it
func (r *RedisQueue) processNext(ctx context.Context, handler Handler) error {
	taskData, err := r.client.BLMove(ctx, r.mainQueue, r.processingQueue, "RIGHT", "LEFT", r.config.QueueTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil // Timeout, no tasks
	}
	if err != nil {
		return fmt.Errorf("failed to move task to processing queue: %w", err)
	}

	r.processTask(ctx, taskData, handler)
	return nil
}

func (r *RedisQueue) processTask(ctx context.Context, taskData string, handler Handler) {
	defer func() {
		// Remove from processing queue regardless of outcome
		if err := r.client.LRem(context.WithoutCancel(ctx), r.processingQueue, 1, taskData).Err(); err != nil {
			logrus.WithError(err).Warn("Failed to remove task from processing queue")
		}
	}()

	var task Task
	if err := json.Unmarshal([]byte(taskData), &task); err != nil {
		logrus.WithError(err).Error("Failed to unmarshal task")
		r.moveToDLQ(ctx, taskData, fmt.Errorf("invalid task format: %w", err))
		return
	}

	task.Attempts++
	startTime := time.Now()
	err := handler(ctx, &task)
	if err == nil {
		r.recordTaskResult(ctx, &task, "success", time.Since(startTime))
		logrus.WithField("task_id", task.ID).Info("Task completed successfully")
		return
	}
	r.recordTaskResult(ctx, &task, "failure", time.Since(startTime))

	log := logrus.WithError(err).WithFields(logrus.Fields{
		"task_id":     task.ID,
		"task_type":   task.Type,
		"attempt":     task.Attempts,
		"max_retries": task.MaxRetries,
	})

	// Повтор публикуется как отложенная задача, воркер не блокируется
	if shouldRetry, delay := r.retryManager.ShouldRetry(&task, err); shouldRetry {
		task.ExecuteAt = r.now().Add(delay)
		requeueErr := r.enqueue(ctx, &task)
		if requeueErr == nil {
			log.WithField("retry_in", delay.String()).Warn("Task failed, retry scheduled")
			return
		}
		err = fmt.Errorf("%w (requeue failed: %v)", err, requeueErr)
	}

	log.Error("Task failed permanently")
	if r.dlqHandler != nil {
		r.dlqHandler.HandleFailedTask(ctx, &task, err)
		r.incrementMetric(ctx, "tasks_dlq")
	}
}

// processDelayedTasks moves ready delayed tasks to main queue
func (r *RedisQueue) processDelayedTasks(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Delayed tasks processor stopped by context")
			return
		case <-r.stopChan:
			logrus.Info("Delayed tasks processor stopped")
			return
		case <-ticker.C:
			if _, err := r.moveReadyDelayedTasks(ctx, time.Now()); err != nil && ctx.Err() == nil {
				logrus.WithError(err).Error("Failed to process delayed tasks")
			}
		}
	}
}

// moveReadyDelayedTasks moves tasks due at or before now to the main queue
func (r *RedisQueue) moveReadyDelayedTasks(ctx context.Context, now time.Time) (int64, error) {
	maxScore := strconv.FormatFloat(float64(now.UnixNano())/1e9, 'f', -1, 64)

	moved, err := moveReadyScript.Run(ctx, r.client,
		[]string{r.delayedQueue, r.mainQueue}, maxScore, r.config.BatchSize).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to move delayed tasks: %w", err)
	}

	if moved > 0 {
		r.incrementMetricBy(ctx, "tasks_delayed_processed", moved)
		logrus.WithField("count", moved).Debug("Moved delayed tasks to main queue")
	}
	return moved, nil
}

// moveToDLQ stores a task that could not even be decoded
func (r *RedisQueue) moveToDLQ(ctx context.Context, taskData string, err error) {
	if !r.config.EnableDLQ || r.dlqHandler == nil {
		return
	}

	failedTask := &Task{
		ID:        fmt.Sprintf("corrupted_%d", time.Now().UnixNano()),
		Type:      "corrupted",
		Data:      map[string]interface{}{"raw_data": taskData},
		CreatedAt: time.Now(),
	}
	r.dlqHandler.HandleFailedTask(ctx, failedTask, err)
	r.incrementMetric(ctx, "tasks_dlq")
}

// validateTask validates task structure and sets defaults
func (r *RedisQueue) validateTask(task *Task) error {
	if task.ID == "" {
		task.ID = generateTaskID()
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = r.config.MaxRetries
	}
	now := r.now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.ExecuteAt.IsZero() {
		task.ExecuteAt = now
	}

	return task.Validate()
}

// monitorQueueMetrics monitors queue metrics and health
func (r *RedisQueue) monitorQueueMetrics(ctx context.Context) {
	defer r.wg.Done()

	if !r.config.EnableMetrics {
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			stats, err := r.GetQueueStats(ctx)
			if err != nil {
				logrus.WithError(err).Warn("Failed to collect queue metrics")
				continue
			}
			// Log if queues are getting too large
			if stats.MainQueue > int64(r.config.DLQThreshold) {
				logrus.WithFields(logrus.Fields{
					"size":      stats.MainQueue,
					"threshold": r.config.DLQThreshold,
				}).Warn("Main queue size exceeds threshold")
			}
		}
	}
}

// incrementMetric increments a counter metric
func (r *RedisQueue) incrementMetric(ctx context.Context, metric string) {
	r.incrementMetricBy(ctx, metric, 1)
}

// incrementMetricBy increments a counter metric by specific value
func (r *RedisQueue) incrementMetricBy(ctx context.Context, metric string, value int64) {
	if !r.config.EnableMetrics {
		return
	}

	key := fmt.Sprintf("%s:%s", r.metricsPrefix, metric)
	pipe := r.client.Pipeline()
	pipe.IncrBy(ctx, key, value)
	pipe.Expire(ctx, key, 24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		logrus.WithError(err).WithField("metric", metric).Debug("Failed to record queue metric")
	}
}

// recordTaskResult records task outcome and execution time
func (r *RedisQueue) recordTaskResult(ctx context.Context, task *Task, outcome string, duration time.Duration) {
	if !r.config.EnableMetrics {
		return
	}
	r.incrementMetric(ctx, "tasks_"+outcome)
	r.incrementMetric(ctx, fmt.Sprintf("tasks_%s_%s", outcome, task.Type))
	r.client.HIncrBy(ctx, r.metricsPrefix+":task_timing", string(task.Type), duration.Milliseconds())
}

// GetQueueStats returns current queue statistics
func (r *RedisQueue) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	pipe := r.client.Pipeline()

	mainLen := pipe.LLen(ctx, r.mainQueue)
	delayedLen := pipe.ZCard(ctx, r.delayedQueue)
	processingLen := pipe.LLen(ctx, r.processingQueue)
	dlqLen := pipe.ZCard(ctx, r.dlq)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}

	return &QueueStats{
		MainQueue:       mainLen.Val(),
		DelayedQueue:    delayedLen.Val(),
		ProcessingQueue: processingLen.Val(),
		DLQ:             dlqLen.Val(),
		Timestamp:       time.Now(),
	}, nil
}

// Close stops the consumers. The Redis client is owned by the caller.
func (r *RedisQueue) Close() error {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()

	logrus.Info("RedisQueue closed successfully")
	return nil
}

// QueueStats contains statistics about queue state
type QueueStats struct {
	MainQueue       int64     `json:"main_queue"`
	DelayedQueue    int64     `json:"delayed_queue"`
	ProcessingQueue int64     `json:"processing_queue"`
	DLQ             int64     `json:"dlq"`
	Timestamp       time.Time `json:"timestamp"`
}

// generateTaskID generates a unique task ID
func generateTaskID() string {
	return fmt.Sprintf("task_%d_%d", time.Now().UnixNano(), rand.Int63())
}
