package repository

import (
	"context"
	"time"
)

// PrewarmTask asks a worker to render text ahead of the first request for it.
type PrewarmTask struct {
	Text        string    `json:"text"`
	Video       bool      `json:"video"`
	RetryCount  int       `json:"retry_count"`
	RequestedAt time.Time `json:"requested_at"`
}

// MessageQueue defines the interface for message queue operations.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type MessageQueue interface {
	// PublishPrewarmTask sends a prewarm task to the queue.
	// Used by the API server.
	PublishPrewarmTask(ctx context.Context, task PrewarmTask) error

	// ConsumePrewarmTasks consumes tasks until ctx is cancelled.
	// The handler function is called for each received task.
	// Used by the worker service.
	ConsumePrewarmTasks(ctx context.Context, handler func(task PrewarmTask) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
