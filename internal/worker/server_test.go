package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dunamismax/pixelfit/internal/config"
	"github.com/dunamismax/pixelfit/internal/domain"
	"github.com/dunamismax/pixelfit/internal/pipeline"
	"github.com/dunamismax/pixelfit/internal/queue"
	"github.com/dunamismax/pixelfit/internal/source"
	"github.com/dunamismax/pixelfit/internal/store"
	"github.com/dunamismax/pixelfit/internal/transform"
	"github.com/dunamismax/pixelfit/internal/webhook"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureUsageStore struct {
	called bool
	log    domain.UsageLog
}

func (s *captureUsageStore) RecordUsage(_ context.Context, usage domain.UsageLog) error {
	s.called = true
	s.log = usage
	return nil
}

type captureWebhook struct {
	events []string
	bodies []map[string]any
}

func (w *captureWebhook) Send(_ context.Context, _ string, event string, payload any) error {
	w.events = append(w.events, event)
	w.bodies = append(w.bodies, payload.(map[string]any))
	return nil
}

func TestRecordUsageWritesUsageLog(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	require.NoError(t, jobStore.Create(context.Background(), domain.Job{
		ID:         "job-1",
		UserID:     "user-1",
		Status:     domain.JobStatusProcessing,
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  "input.png",
		Variants:   []domain.Variant{{ID: "thumb", Width: 100}},
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}))

	usageStore := &captureUsageStore{}
	s := newHandlerServer(zerolog.Nop(), config.WorkerConfig{}, nil, jobStore, usageStore)

	s.recordUsage(context.Background(), queue.RenderPayload{JobID: "job-1"}, pipeline.Result{
		SourceBytes: 1_000,
		Outputs: []pipeline.Output{
			{Width: 10, Height: 10, Bytes: 300},
			{Width: 20, Height: 20, Bytes: 400},
		},
	}, 250*time.Millisecond)

	require.True(t, usageStore.called)
	assert.Equal(t, "user-1", usageStore.log.UserID)
	assert.Equal(t, 2, usageStore.log.Renditions)
	assert.EqualValues(t, 500, usageStore.log.PixelsProcessed)
	assert.EqualValues(t, 300, usageStore.log.BytesSaved)
	assert.EqualValues(t, 250, usageStore.log.ComputeTimeMS)
}

func TestRecordUsageClampsNegativeBytesSaved(t *testing.T) {
	usageStore := &captureUsageStore{}
	s := newHandlerServer(zerolog.Nop(), config.WorkerConfig{}, nil, nil, usageStore)

	s.recordUsage(context.Background(), queue.RenderPayload{JobID: "job-2"}, pipeline.Result{
		SourceBytes: 100,
		Outputs:     []pipeline.Output{{Width: 5, Height: 5, Bytes: 200}},
	}, 0)

	assert.Equal(t, "anonymous", usageStore.log.UserID)
	assert.Zero(t, usageStore.log.BytesSaved)
	assert.GreaterOrEqual(t, usageStore.log.ComputeTimeMS, int64(1))
}

func newLocalJob(t *testing.T, variants []domain.Variant) (*Server, *store.MemoryJobStore, *captureWebhook, *asynq.Task, string) {
	t.Helper()

	tmp := t.TempDir()
	input := filepath.Join(tmp, "input.png")
	require.NoError(t, os.WriteFile(input, gradientPNG(t, 300, 150), 0o644))

	workerCfg := config.WorkerConfig{MaxActiveJobs: 1, LocalOutputDir: filepath.Join(tmp, "out")}
	processor, err := NewProcessor(workerCfg, transform.New(transform.Config{}), nil, nil, 0)
	require.NoError(t, err)

	jobs := store.NewMemoryJobStore()
	job := domain.Job{
		ID:         "job-local",
		UserID:     "user-3",
		Status:     domain.JobStatusQueued,
		SourceType: domain.SourceTypeLocalFile,
		WebhookURL: "https://hooks.example.com/pixelfit",
		ObjectKey:  input,
		Variants:   variants,
	}
	require.NoError(t, jobs.Create(context.Background(), job))

	hooks := &captureWebhook{}
	s := newHandlerServer(zerolog.Nop(), workerCfg, processor, jobs, jobs)
	s.webhookClient = hooks

	task, err := queue.NewRenderTask(queue.PayloadForJob(job, time.Now()))
	require.NoError(t, err)
	return s, jobs, hooks, task, workerCfg.LocalOutputDir
}

func TestHandleRenderJobRendersEveryVariant(t *testing.T) {
	s, jobs, hooks, task, outDir := newLocalJob(t, []domain.Variant{
		{ID: "thumb", Width: 100, Height: 100, Fit: "cover"},
		{ID: "card", Width: 200, Height: 200, Fit: "pad", Background: "ffffff", Format: "png"},
	})

	require.NoError(t, s.handleRenderJob(context.Background(), task))

	job, ok, err := jobs.Get(context.Background(), "job-local")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)

	for _, name := range []string{"thumb.jpeg", "card.png"} {
		_, err := os.Stat(filepath.Join(outDir, "job-local", name))
		assert.NoError(t, err, name)
	}

	require.Equal(t, []string{webhook.EventJobCompleted}, hooks.events)
	outputs, ok := hooks.bodies[0]["outputs"].([]pipeline.Output)
	require.True(t, ok)
	require.Len(t, outputs, 2)
	assert.Equal(t, 200, outputs[1].Width)
	assert.Equal(t, "pad", outputs[1].Fit)

	usage := jobs.Usage("user-3")
	require.Len(t, usage, 1)
	assert.Equal(t, 2, usage[0].Renditions)
	assert.EqualValues(t, 100*100+200*200, usage[0].PixelsProcessed)
}

func TestHandleRenderJobInvalidVariantIsPermanent(t *testing.T) {
	s, jobs, hooks, task, _ := newLocalJob(t, []domain.Variant{
		{ID: "huge", Width: 100_000},
	})

	err := s.handleRenderJob(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	job, _, _ := jobs.Get(context.Background(), "job-local")
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, []string{webhook.EventJobFailed}, hooks.events)
	assert.Empty(t, jobs.Usage("user-3"))
}

type failingProcessor struct {
	err error
}

func (p failingProcessor) Process(context.Context, pipeline.Request) (pipeline.Result, error) {
	return pipeline.Result{}, p.err
}

func TestHandleRenderJobEncodeFailureIsNotRetried(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	job := domain.Job{
		ID:         "job-encode",
		Status:     domain.JobStatusQueued,
		SourceType: domain.SourceTypeLocalFile,
		WebhookURL: "https://hooks.example.com/pixelfit",
		ObjectKey:  "/tmp/input.png",
		Variants:   []domain.Variant{{ID: "a", Width: 10}},
	}
	require.NoError(t, jobs.Create(context.Background(), job))

	processor := failingProcessor{err: fmt.Errorf("transform stage variant=a fit=contain: %w: disk full", transform.ErrEncode)}
	s := newHandlerServer(zerolog.Nop(), config.WorkerConfig{MaxActiveJobs: 1}, processor, jobs, jobs)
	hooks := &captureWebhook{}
	s.webhookClient = hooks

	task, err := queue.NewRenderTask(queue.PayloadForJob(job, time.Now()))
	require.NoError(t, err)

	err = s.handleRenderJob(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	stored, _, _ := jobs.Get(context.Background(), "job-encode")
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Equal(t, []string{webhook.EventJobFailed}, hooks.events)
}

func TestHandleRenderJobRejectsBadPayload(t *testing.T) {
	s := newHandlerServer(zerolog.Nop(), config.WorkerConfig{}, nil, nil, nil)
	err := s.handleRenderJob(context.Background(), asynq.NewTask(queue.TypeRenderJob, []byte("nope")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, isPermanent(fmt.Errorf("transform stage: %w", transform.ErrInvalidOptions)))
	assert.True(t, isPermanent(fmt.Errorf("fetch stage: %w", source.ErrNotFound)))
	assert.True(t, isPermanent(pipeline.ErrUnsupportedSourceType))
	assert.True(t, isPermanent(fmt.Errorf("transform stage variant=a fit=pad: %w", transform.ErrEncode)))
	assert.False(t, isPermanent(fmt.Errorf("fetch stage: %w", source.ErrUpstream)))
	assert.False(t, isPermanent(errors.New("connection reset")))
}

func TestIsFinalAttemptOutsideAsynq(t *testing.T) {
	assert.True(t, isFinalAttempt(context.Background()))
}

func gradientPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 140, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
