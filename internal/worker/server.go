package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/pixelfit/internal/config"
	"github.com/dunamismax/pixelfit/internal/domain"
	"github.com/dunamismax/pixelfit/internal/pipeline"
	"github.com/dunamismax/pixelfit/internal/queue"
	"github.com/dunamismax/pixelfit/internal/source"
	"github.com/dunamismax/pixelfit/internal/storage"
	"github.com/dunamismax/pixelfit/internal/store"
	"github.com/dunamismax/pixelfit/internal/transform"
	"github.com/dunamismax/pixelfit/internal/webhook"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type jobProcessor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type Server struct {
	logger        zerolog.Logger
	server        *asynq.Server
	sem           chan struct{}
	processor     jobProcessor
	webhookClient webhookSender
	jobStore      store.JobStore
	usageStore    store.UsageStore
	metrics       *metrics
	tracer        trace.Tracer
}

func NewServer(
	logger zerolog.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	processor jobProcessor,
	webhookClient *webhook.Client,
	jobStore store.JobStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	if usageStore == nil {
		if jobAndUsageStore, ok := jobStore.(store.UsageStore); ok {
			usageStore = jobAndUsageStore
		}
	}

	s := newHandlerServer(logger, workerCfg, processor, jobStore, usageStore)
	if webhookClient != nil {
		s.webhookClient = webhookClient
	}
	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			Logger:   asynqLogger{logger: logger.With().Str("subsystem", "asynq").Logger()},
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Warn().
					Err(err).
					Str("type", task.Type()).
					Int("retry", retried).
					Int("max_retry", maxRetry).
					Msg("task failed")
			}),
		},
	)
	return s, nil
}

func newHandlerServer(logger zerolog.Logger, workerCfg config.WorkerConfig, processor jobProcessor, jobStore store.JobStore, usageStore store.UsageStore) *Server {
	return &Server{
		logger:     logger,
		sem:        make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		processor:  processor,
		jobStore:   jobStore,
		usageStore: usageStore,
		metrics:    newMetrics(),
		tracer:     otel.Tracer("pixelfit/worker"),
	}
}

// NewProcessor assembles the job pipeline: every source type is routed to its
// fetcher and renditions go to object storage when a client is configured,
// the local output directory otherwise.
func NewProcessor(workerCfg config.WorkerConfig, renderer pipeline.Renderer, fetcher pipeline.URLFetcher, storageClient *storage.Client, maxSourceBytes int64) (*pipeline.Processor, error) {
	router := pipeline.SourceRouter{
		domain.SourceTypeLocalFile: pipeline.LocalFileFetcher{},
	}
	if fetcher != nil {
		router[domain.SourceTypeHTTPURL] = pipeline.HTTPFetcher{Client: fetcher}
	}

	var emitter pipeline.Emitter = pipeline.LocalFileEmitter{OutputDir: workerCfg.LocalOutputDir}
	if storageClient != nil {
		router[domain.SourceTypeS3Presigned] = pipeline.ObjectStoreFetcher{Storage: storageClient, MaxBytes: maxSourceBytes}
		emitter = pipeline.ObjectStoreEmitter{Storage: storageClient}
	}

	return pipeline.NewProcessor(router, renderer, emitter)
}

// Run processes render tasks until ctx is cancelled, then drains in-flight
// tasks.
func (s *Server) Run(ctx context.Context) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeRenderJob, s.handleRenderJob)
	if err := s.server.Start(mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}

	<-ctx.Done()
	s.server.Shutdown()
	return nil
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleRenderJob(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseRenderPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.render_job", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
		attribute.Int("job.variants", len(payload.Variants)),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	logger := s.logger.With().Str("job_id", payload.JobID).Str("source_type", payload.SourceType).Logger()
	logger.Info().Int("variants", len(payload.Variants)).Str("object_key", payload.ObjectKey).Msg("rendering job")

	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	result, err := s.processor.Process(ctx, pipeline.Request{
		JobID:      payload.JobID,
		SourceType: payload.SourceType,
		ObjectKey:  payload.ObjectKey,
		Variants:   payload.Variants,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")

		permanent := isPermanent(err)
		if !permanent && !isFinalAttempt(ctx) {
			logger.Warn().Err(err).Msg("render failed, will retry")
			return fmt.Errorf("run pipeline: %w", err)
		}

		logger.Error().Err(err).Msg("render failed")
		s.updateJobStatus(ctx, payload.JobID, domain.JobStatusFailed)
		_ = s.dispatchWebhook(ctx, payload, webhook.EventJobFailed, map[string]any{
			"job_id":       payload.JobID,
			"status":       domain.JobStatusFailed,
			"source_type":  payload.SourceType,
			"object_key":   payload.ObjectKey,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
		})
		if permanent {
			return fmt.Errorf("run pipeline: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("run pipeline: %w", err)
	}

	logger.Info().Int("outputs", len(result.Outputs)).Dur("elapsed", time.Since(startedAt)).Msg("job rendered")
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusSucceeded)
	s.metrics.renditionsTotal.Add(float64(len(result.Outputs)))
	for _, out := range result.Outputs {
		s.metrics.renditionsByFit.WithLabelValues(out.Fit, out.Format).Inc()
	}
	s.recordUsage(ctx, payload, result, time.Since(startedAt))

	if err := s.dispatchWebhook(ctx, payload, webhook.EventJobCompleted, map[string]any{
		"job_id":       payload.JobID,
		"status":       domain.JobStatusSucceeded,
		"source_type":  payload.SourceType,
		"object_key":   payload.ObjectKey,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"outputs":      result.Outputs,
	}); err != nil {
		// Renditions are stored; redelivery alone is not worth a re-render.
		span.RecordError(err)
	}

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "rendered")
	return nil
}

// isPermanent reports failures that a retry cannot fix.
func isPermanent(err error) bool {
	for _, target := range []error{
		transform.ErrInvalidOptions,
		transform.ErrDecode,
		transform.ErrEncode,
		pipeline.ErrUnsupportedSourceType,
		source.ErrInvalidURL,
		source.ErrNotFound,
		source.ErrTooLarge,
		storage.ErrObjectNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// isFinalAttempt is true outside an asynq handler context.
func isFinalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Str("status", status).Msg("job status update failed")
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.RenderPayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Warn().Err(err).Str("job_id", payload.JobID).Str("event", event).Msg("webhook delivery failed")
		return fmt.Errorf("dispatch webhook: %w", err)
	}
	return nil
}

func (s *Server) recordUsage(ctx context.Context, payload queue.RenderPayload, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	userID := strings.TrimSpace(payload.UserID)
	if userID == "" && s.jobStore != nil {
		job, ok, err := s.jobStore.Get(ctx, payload.JobID)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", payload.JobID).Msg("usage lookup failed")
		} else if ok {
			userID = strings.TrimSpace(job.UserID)
		}
	}
	if userID == "" {
		userID = "anonymous"
	}

	var (
		pixelsProcessed  int64
		totalOutputBytes int
	)
	for _, output := range result.Outputs {
		pixelsProcessed += int64(output.Width) * int64(output.Height)
		totalOutputBytes += output.Bytes
	}

	bytesSaved := max(0, int64(result.SourceBytes-totalOutputBytes))
	computeTimeMS := max(1, computeDuration.Milliseconds())

	usage := domain.UsageLog{
		UserID:          userID,
		JobID:           payload.JobID,
		Renditions:      len(result.Outputs),
		PixelsProcessed: pixelsProcessed,
		BytesSaved:      bytesSaved,
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.usageStore.RecordUsage(ctx, usage); err != nil {
		s.logger.Warn().Err(err).Str("job_id", payload.JobID).Msg("usage log write failed")
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(pixelsProcessed))
	s.metrics.bytesSavedTotal.Add(float64(bytesSaved))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}
