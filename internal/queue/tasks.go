package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/pixelfit/internal/domain"
	"github.com/hibiken/asynq"
	jsoniter "github.com/json-iterator/go"
)

const TypeRenderJob = "image:render"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type RenderPayload struct {
	JobID       string           `json:"job_id"`
	UserID      string           `json:"user_id,omitempty"`
	SourceType  string           `json:"source_type"`
	WebhookURL  string           `json:"webhook_url,omitempty"`
	ObjectKey   string           `json:"object_key"`
	Variants    []domain.Variant `json:"variants"`
	RequestedAt time.Time        `json:"requested_at"`
}

func PayloadForJob(job domain.Job, now time.Time) RenderPayload {
	return RenderPayload{
		JobID:       job.ID,
		UserID:      job.UserID,
		SourceType:  job.SourceType,
		WebhookURL:  job.WebhookURL,
		ObjectKey:   job.ObjectKey,
		Variants:    job.Variants,
		RequestedAt: now.UTC(),
	}
}

func NewRenderTask(payload RenderPayload) (*asynq.Task, error) {
	if payload.JobID == "" {
		return nil, errors.New("job_id is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal render payload: %w", err)
	}
	return asynq.NewTask(TypeRenderJob, body), nil
}

func ParseRenderPayload(task *asynq.Task) (RenderPayload, error) {
	var payload RenderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RenderPayload{}, fmt.Errorf("unmarshal render payload: %w", err)
	}
	return payload, nil
}
