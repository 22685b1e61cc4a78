// Package queue consumes form submissions from a Redis list and starts
// instances for definitions with a form trigger. The form platform pushes
// one JSON document per submission.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/engine"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
)

const defaultQueueKey = "flowforge:form_submissions"

// Submission is the wire format pushed by the form platform.
type Submission struct {
	GroupID     string         `json:"group_id"`
	SubmittedBy string         `json:"submitted_by"`
	Data        map[string]any `json:"data"`
}

// Starter is the slice of the engine the consumer needs.
type Starter interface {
	Start(ctx context.Context, params engine.StartParams) (*models.Instance, error)
}

// Consumer blocks on the submission list and starts one instance per
// payload. Malformed payloads are logged and dropped, not requeued.
type Consumer struct {
	client   *redis.Client
	starter  Starter
	queueKey string
	logger   *slog.Logger
}

type Option func(*Consumer)

// WithQueueKey overrides the Redis list the consumer reads.
func WithQueueKey(key string) Option {
	return func(c *Consumer) { c.queueKey = key }
}

func NewConsumer(client *redis.Client, starter Starter, logger *slog.Logger, opts ...Option) *Consumer {
	consumer := &Consumer{
		client:   client,
		starter:  starter,
		queueKey: defaultQueueKey,
		logger:   logger.With("module", "queue"),
	}

	for _, opt := range opts {
		opt(consumer)
	}

	return consumer
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "Form submission consumer started", "queue", c.queueKey)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := c.client.BLPop(ctx, 5*time.Second, c.queueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}

			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}

			c.logger.ErrorContext(ctx, "Queue read failed", "error", err)
			time.Sleep(time.Second)

			continue
		}

		// BLPop returns [key, value].
		if len(result) == 2 {
			c.handle(ctx, []byte(result[1]))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, payload []byte) {
	var submission Submission

	if err := json.Unmarshal(payload, &submission); err != nil {
		c.logger.ErrorContext(ctx, "Dropping malformed submission", "error", err)

		return
	}

	if submission.GroupID == "" {
		c.logger.ErrorContext(ctx, "Dropping submission without group_id")

		return
	}

	instance, err := c.starter.Start(ctx, engine.StartParams{
		GroupID:     submission.GroupID,
		StartedBy:   submission.SubmittedBy,
		TriggerData: submission.Data,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to start instance from submission",
			"group_id", submission.GroupID, "error", err)

		return
	}

	c.logger.InfoContext(ctx, "Instance started from form submission",
		"group_id", submission.GroupID, "instance_id", instance.ID)
}
