package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

const (
	renderMaxRetry = 5
	renderTimeout  = 3 * time.Minute
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

// EnqueueRender schedules a job's renditions. The job id doubles as the task
// id so a repeated start cannot enqueue the same job twice.
func (c *Client) EnqueueRender(ctx context.Context, payload RenderPayload) (*asynq.TaskInfo, error) {
	task, err := NewRenderTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(renderMaxRetry),
		asynq.Timeout(renderTimeout),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
