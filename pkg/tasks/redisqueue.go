package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const defaultQueue = "stepflow:tasks"

// RedisQueueManager publishes task commands onto a redis list for an
// external task system to consume. Each command is one JSON document
// pushed to "<queue>:<operation>".
type RedisQueueManager struct {
	client redis.UniversalClient
	queue  string
	logger *slog.Logger
}

// NewRedisQueueManager creates a redis-backed task manager. Connection
// options come from a string map ("addr", "password", "db" handled by the
// URL); queue defaults to "stepflow:tasks".
func NewRedisQueueManager(ctx context.Context, redisURL, queue string, logger *slog.Logger) (*RedisQueueManager, error) {
	if redisURL == "" {
		return nil, errors.New("redis url is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	if queue == "" {
		queue = defaultQueue
	}

	return &RedisQueueManager{
		client: client,
		queue:  queue,
		logger: logger.With("module", "tasks", "queue", queue),
	}, nil
}

type taskCommand struct {
	TaskID    string         `json:"task_id"`
	Operation string         `json:"operation"`
	Info      *TaskInfo      `json:"info,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	IssuedAt  time.Time      `json:"issued_at"`
}

// CreateTask pushes a create command and returns the generated task id.
func (m *RedisQueueManager) CreateTask(ctx context.Context, info TaskInfo) (string, error) {
	taskID := uuid.New().String()

	err := m.push(ctx, taskCommand{
		TaskID:    taskID,
		Operation: "create",
		Info:      &info,
		IssuedAt:  time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}

	m.logger.InfoContext(ctx, "Created external task", "task_id", taskID, "step_instance_id", info.StepInstanceID)

	return taskID, nil
}

// CloseTask pushes a close command carrying the completion data.
func (m *RedisQueueManager) CloseTask(ctx context.Context, externalTaskID string, data map[string]any) error {
	return m.push(ctx, taskCommand{
		TaskID:    externalTaskID,
		Operation: "close",
		Data:      data,
		IssuedAt:  time.Now().UTC(),
	})
}

// UpdateTask pushes an update command.
func (m *RedisQueueManager) UpdateTask(ctx context.Context, externalTaskID string, data map[string]any) error {
	return m.push(ctx, taskCommand{
		TaskID:    externalTaskID,
		Operation: "update",
		Data:      data,
		IssuedAt:  time.Now().UTC(),
	})
}

// CancelTask pushes a cancel command.
func (m *RedisQueueManager) CancelTask(ctx context.Context, externalTaskID string) error {
	return m.push(ctx, taskCommand{
		TaskID:    externalTaskID,
		Operation: "cancel",
		IssuedAt:  time.Now().UTC(),
	})
}

// Close releases the redis connection.
func (m *RedisQueueManager) Close() error {
	return m.client.Close()
}

func (m *RedisQueueManager) push(ctx context.Context, cmd taskCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal task command: %w", err)
	}

	err = m.client.RPush(ctx, m.queue+":"+cmd.Operation, payload).Err()
	if err != nil {
		return fmt.Errorf("failed to push task command: %w", err)
	}

	return nil
}
