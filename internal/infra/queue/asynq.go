package queue

import (
	"fmt"

	"remindly/internal/domain/reminder"

	"github.com/hibiken/asynq"
)

// NewClient creates a new asynq client connected to Redis.
func NewClient(redisAddr, password string, db int) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})
}

// NewServer creates a new asynq server connected to Redis. Concurrency is
// pinned at 1: the run queue serializes reminder runs, so at most one run is
// active at a time and the ledger never sees two writers.
func NewServer(redisAddr, password string, db int) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		},
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				"runs": 1,
			},
		},
	)
}

// EnqueueRun enqueues a reminder run task.
func EnqueueRun(client *asynq.Client, dryRun bool, maxRetry int) error {
	task, err := reminder.NewRunTask(dryRun)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}

	_, err = client.Enqueue(task,
		asynq.MaxRetry(maxRetry),
		asynq.Queue("runs"),
	)
	if err != nil {
		return fmt.Errorf("enqueuing task: %w", err)
	}

	return nil
}
