package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dunamismax/pixelfit/internal/cache"
	"github.com/dunamismax/pixelfit/internal/domain"
	"github.com/dunamismax/pixelfit/internal/id"
	"github.com/dunamismax/pixelfit/internal/queue"
	"github.com/dunamismax/pixelfit/internal/storage"
	"github.com/dunamismax/pixelfit/internal/store"
	"github.com/dunamismax/pixelfit/internal/transform"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/otel/trace"
)

const maxBodyBytes = 1 << 20

var (
	json       = jsoniter.ConfigCompatibleWithStandardLibrary
	strictJSON = jsoniter.Config{
		EscapeHTML:             true,
		ValidateJsonRawMessage: true,
		DisallowUnknownFields:  true,
	}.Froze()
)

type queueEnqueuer interface {
	EnqueueRender(ctx context.Context, payload queue.RenderPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

type sourceFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

type renderer interface {
	Transform(ctx context.Context, req transform.Request) (transform.Result, error)
}

type renderCache interface {
	Get(ctx context.Context, key string) (cache.Entry, bool, error)
	Set(ctx context.Context, key string, entry cache.Entry) error
}

// Options wires the server's collaborators. Storage, Cache, RateLimiter and
// Tracer are optional.
type Options struct {
	Logger       zerolog.Logger
	Queue        queueEnqueuer
	Jobs         store.JobStore
	Storage      objectStorage
	Fetcher      sourceFetcher
	Renderer     renderer
	Cache        renderCache
	RateLimiter  RateLimiter
	Tracer       trace.Tracer
	PresignTTL   time.Duration
	UserIDHeader string
}

type Server struct {
	logger       zerolog.Logger
	queueClient  queueEnqueuer
	jobStore     store.JobStore
	storage      objectStorage
	fetcher      sourceFetcher
	renderer     renderer
	cache        renderCache
	rateLimiter  RateLimiter
	tracer       trace.Tracer
	presignTTL   time.Duration
	userIDHeader string
	metrics      *metrics
	router       chi.Router
}

func NewServer(opts Options) *Server {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.Storage == nil {
		opts.Storage = unavailableObjectStorage{}
	}
	if strings.TrimSpace(opts.UserIDHeader) == "" {
		opts.UserIDHeader = "X-User-ID"
	}

	s := &Server{
		logger:       opts.Logger,
		queueClient:  opts.Queue,
		jobStore:     opts.Jobs,
		storage:      opts.Storage,
		fetcher:      opts.Fetcher,
		renderer:     opts.Renderer,
		cache:        opts.Cache,
		rateLimiter:  opts.RateLimiter,
		tracer:       opts.Tracer,
		presignTTL:   opts.PresignTTL,
		userIDHeader: opts.UserIDHeader,
		metrics:      newMetrics(),
	}
	s.router = s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		hlog.NewHandler(s.logger),
		hlog.RequestIDHandler("req_id", "X-Request-Id"),
		hlog.AccessHandler(accessLog),
		middleware.Recoverer,
		s.withTracing,
		s.metrics.withHTTPMetrics,
	)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", s.metrics.metricsHandler())
	r.Get("/images/raw/*", s.handleRawImage)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.With(s.withRateLimit).Post("/", s.handleCreateJob)
		r.Get("/{id}", s.handleGetJob)
		r.With(s.withRateLimit).Post("/{id}/start", s.handleStartJob)
	})
	return r
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("route", routeLabel(r)).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger := hlog.FromRequest(r)
	now := time.Now().UTC()
	jobID := id.New()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	uploadState := "not_required"
	presignedPutURL := ""

	var objectKey string
	switch sourceType {
	case domain.SourceTypeS3Presigned:
		objectKey = storage.SourceKey(jobID)
		u, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
		if err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("generate presigned url failed")
			writeError(w, http.StatusInternalServerError, "failed to generate upload URL")
			return
		}
		presignedPutURL = u
		uploadState = "ready"
	case domain.SourceTypeHTTPURL:
		objectKey = strings.TrimSpace(req.SourceURL)
	default:
		objectKey = strings.TrimSpace(req.ObjectKey)
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = strings.TrimSpace(r.Header.Get(s.userIDHeader))
	}

	job := domain.Job{
		ID:         jobID,
		UserID:     userID,
		Status:     domain.JobStatusCreated,
		SourceType: sourceType,
		WebhookURL: req.WebhookURL,
		Variants:   req.Variants,
		ObjectKey:  objectKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.jobStore.Create(r.Context(), job); err != nil {
		logger.Error().Err(err).Str("job_id", job.ID).Msg("create job failed")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"upload": map[string]string{
			"object_key":          job.ObjectKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		},
		"start_url":  fmt.Sprintf("/v1/jobs/%s/start", job.ID),
		"status_url": fmt.Sprintf("/v1/jobs/%s", job.ID),
	})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	switch job.Status {
	case domain.JobStatusCreated, domain.JobStatusFailed:
	default:
		writeError(w, http.StatusConflict, fmt.Sprintf("job is already %s", job.Status))
		return
	}

	if err := s.verifySourceExists(r.Context(), job); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	taskInfo, err := s.queueClient.EnqueueRender(r.Context(), queue.PayloadForJob(job, time.Now()))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			writeError(w, http.StatusConflict, "job is already enqueued")
			return
		}
		logger.Error().Err(err).Str("job_id", job.ID).Msg("enqueue failed")
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusQueued); err != nil {
		logger.Error().Err(err).Str("job_id", job.ID).Msg("update status failed")
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      domain.JobStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

type jobResponse struct {
	JobID      string           `json:"job_id"`
	UserID     string           `json:"user_id,omitempty"`
	Status     string           `json:"status"`
	SourceType string           `json:"source_type"`
	ObjectKey  string           `json:"object_key"`
	Variants   []domain.Variant `json:"variants"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{
		JobID:      job.ID,
		UserID:     job.UserID,
		Status:     job.Status,
		SourceType: job.SourceType,
		ObjectKey:  job.ObjectKey,
		Variants:   job.Variants,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	})
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (domain.Job, bool) {
	jobID := strings.TrimSpace(chi.URLParam(r, "id"))
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return domain.Job{}, false
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("job_id", jobID).Msg("fetch job failed")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return domain.Job{}, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return domain.Job{}, false
	}
	return job, true
}

func (s *Server) verifySourceExists(ctx context.Context, job domain.Job) error {
	switch job.SourceType {
	case domain.SourceTypeLocalFile:
		if _, err := os.Stat(job.ObjectKey); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("source object is missing: %s", job.ObjectKey)
			}
			return fmt.Errorf("source object check failed: %w", err)
		}
		return nil
	case domain.SourceTypeHTTPURL:
		// Remote sources are fetched by the worker.
		return nil
	default:
		exists, err := s.storage.ObjectExists(ctx, job.ObjectKey)
		if err != nil {
			return fmt.Errorf("source object check failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("source object is missing: %s", job.ObjectKey)
		}
		return nil
	}
}

func decodeJSON(r *http.Request, into any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return errors.New("request body too large")
	}
	if err := strictJSON.Unmarshal(body, into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
