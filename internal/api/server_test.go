package api

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dunamismax/pixelfit/internal/cache"
	"github.com/dunamismax/pixelfit/internal/domain"
	"github.com/dunamismax/pixelfit/internal/queue"
	"github.com/dunamismax/pixelfit/internal/ratelimit"
	"github.com/dunamismax/pixelfit/internal/source"
	"github.com/dunamismax/pixelfit/internal/store"
	"github.com/dunamismax/pixelfit/internal/transform"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const redSource = "https://img.example.com/red.png"

type fakeFetcher struct {
	mu      sync.Mutex
	sources map[string][]byte
	errs    map[string]error
	calls   int
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	data, ok := f.sources[rawURL]
	if !ok {
		return nil, source.ErrNotFound
	}
	return data, nil
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]cache.Entry
}

func (c *memoryCache) Get(_ context.Context, key string) (cache.Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, e cache.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
	return nil
}

type fakeQueue struct {
	payloads []queue.RenderPayload
}

func (q *fakeQueue) EnqueueRender(_ context.Context, payload queue.RenderPayload) (*asynq.TaskInfo, error) {
	q.payloads = append(q.payloads, payload)
	return &asynq.TaskInfo{
		ID:            payload.JobID,
		Queue:         "default",
		State:         asynq.TaskStatePending,
		NextProcessAt: time.Now(),
	}, nil
}

type fakeStorage struct {
	objects map[string]bool
}

func (s fakeStorage) PresignedPutURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://minio.local/pixelfit/" + objectKey + "?X-Amz-Signature=abc", nil
}

func (s fakeStorage) ObjectExists(_ context.Context, objectKey string) (bool, error) {
	return s.objects[objectKey], nil
}

type denyLimiter struct {
	subjects []string
}

func (l *denyLimiter) Allow(_ context.Context, subject string) (ratelimit.Decision, error) {
	l.subjects = append(l.subjects, subject)
	return ratelimit.Decision{Allowed: false, RetryAfter: 1500 * time.Millisecond}, nil
}

type testEnv struct {
	server  *Server
	fetcher *fakeFetcher
	queue   *fakeQueue
	jobs    *store.MemoryJobStore
}

func newTestEnv(t *testing.T, mutate func(*Options)) testEnv {
	t.Helper()

	fetcher := &fakeFetcher{
		sources: map[string][]byte{redSource: solidPNG(t, 200, 100, color.NRGBA{R: 255, A: 255})},
		errs: map[string]error{
			"https://img.example.com/broken.png": source.ErrUpstream,
		},
	}
	fetcher.sources["https://img.example.com/garbage.png"] = []byte("not an image")

	q := &fakeQueue{}
	jobs := store.NewMemoryJobStore()
	opts := Options{
		Logger:   zerolog.Nop(),
		Queue:    q,
		Jobs:     jobs,
		Storage:  fakeStorage{objects: map[string]bool{}},
		Fetcher:  fetcher,
		Renderer: transform.New(transform.Config{}),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return testEnv{server: NewServer(opts), fetcher: fetcher, queue: q, jobs: jobs}
}

func (e testEnv) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func imagePath(src, query string) string {
	p := "/images/raw/" + url.PathEscape(src)
	if query != "" {
		p += "?" + query
	}
	return p
}

func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRawImagePadsWithRequestedBackground(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, imagePath(redSource, "width=100&height=100&fit=pad&bg=ffffff&format=png"), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get(headerCache))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())

	r, g, b, _ := img.At(50, 5).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b}, "band above the letterboxed image")

	r, g, b, _ = img.At(50, 50).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Less(t, g>>8, uint32(50))
	assert.Less(t, b>>8, uint32(50))
}

func TestRawImageDefaultsToJPEG(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, imagePath(redSource, "width=50"), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	cfg, format, err := image.DecodeConfig(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 50, cfg.Width)
}

func TestRawImageRejectsBadQueries(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, query := range []string{
		"width=0",
		"height=0",
		"width=abc",
		"height=-5",
		"dpr=0",
		"fit=stretch",
		"bg=zzzzzz",
	} {
		rec := env.do(t, http.MethodGet, imagePath(redSource, query), "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
	assert.Zero(t, env.fetcher.calls, "malformed parameters must not reach the source")

	// Output encoding is checked by the transformer.
	for _, query := range []string{"quality=101", "format=gif"} {
		rec := env.do(t, http.MethodGet, imagePath(redSource, query), "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestRawImageMapsFailures(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := map[string]int{
		"https://img.example.com/missing.png": http.StatusNotFound,
		"https://img.example.com/broken.png":  http.StatusBadGateway,
		"https://img.example.com/garbage.png": http.StatusUnprocessableEntity,
	}
	for src, want := range cases {
		rec := env.do(t, http.MethodGet, imagePath(src, "width=10"), "")
		assert.Equal(t, want, rec.Code, src)
	}
}

func TestRawImageUsesRenderCache(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Cache = &memoryCache{entries: map[string]cache.Entry{}}
	})

	target := imagePath(redSource, "width=40&height=40&fit=cover")
	first := env.do(t, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, cacheMiss, first.Header().Get(headerCache))

	second := env.do(t, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, cacheHit, second.Header().Get(headerCache))
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Equal(t, 1, env.fetcher.calls)
}

func TestJobLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	body := `{"source_type":"http_url","source_url":"https://img.example.com/a.png","variants":[{"id":"thumb","width":100,"height":100,"fit":"cover"}]}`
	rec := env.do(t, http.MethodPost, "/v1/jobs", body, "X-User-ID", "user-7")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var created struct {
		JobID    string `json:"job_id"`
		Status   string `json:"status"`
		StartURL string `json:"start_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.JobID)
	assert.Equal(t, domain.JobStatusCreated, created.Status)

	rec = env.do(t, http.MethodPost, created.StartURL, "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, env.queue.payloads, 1)
	payload := env.queue.payloads[0]
	assert.Equal(t, created.JobID, payload.JobID)
	assert.Equal(t, "user-7", payload.UserID)
	assert.Equal(t, "https://img.example.com/a.png", payload.ObjectKey)
	assert.Equal(t, "cover", payload.Variants[0].Fit)

	rec = env.do(t, http.MethodGet, "/v1/jobs/"+created.JobID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status jobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, domain.JobStatusQueued, status.Status)

	rec = env.do(t, http.MethodPost, created.StartURL, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, env.queue.payloads, 1)
}

func TestCreatePresignedJob(t *testing.T) {
	env := newTestEnv(t, nil)

	body := `{"source_type":"s3_presigned","variants":[{"id":"card","width":480,"fit":"pad","background":"#ffffff"}]}`
	rec := env.do(t, http.MethodPost, "/v1/jobs", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var created struct {
		JobID  string            `json:"job_id"`
		Upload map[string]string `json:"upload"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "sources/"+created.JobID, created.Upload["object_key"])
	assert.Equal(t, "ready", created.Upload["presigned_url_state"])
	assert.Contains(t, created.Upload["presigned_put_url"], "X-Amz-Signature")

	// Nothing has been uploaded yet.
	rec = env.do(t, http.MethodPost, "/v1/jobs/"+created.JobID+"/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateJobValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	for name, body := range map[string]string{
		"unknown field":  `{"source_type":"http_url","bogus":1}`,
		"no variants":    `{"source_type":"http_url","source_url":"https://x.example/a.png","variants":[]}`,
		"bad fit":        `{"source_type":"http_url","source_url":"https://x.example/a.png","variants":[{"id":"a","fit":"stretch"}]}`,
		"trailing bytes": `{"source_type":"http_url"} {}`,
		"not json":       `source_type=http_url`,
	} {
		rec := env.do(t, http.MethodPost, "/v1/jobs", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestUnknownJob(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/jobs/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/v1/jobs/nope/start", "").Code)
}

func TestRateLimitRejectsJobMutations(t *testing.T) {
	limiter := &denyLimiter{}
	env := newTestEnv(t, func(o *Options) { o.RateLimiter = limiter })

	rec := env.do(t, http.MethodPost, "/v1/jobs", `{}`, "X-User-ID", "user-9")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	require.Len(t, limiter.subjects, 1)
	assert.True(t, strings.HasPrefix(limiter.subjects[0], "user-9:/v1/jobs"), limiter.subjects[0])

	// Reads are never limited.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "").Code)
	assert.Len(t, limiter.subjects, 1)
}

func TestMetricsUseRoutePatterns(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, imagePath(redSource, "width=10"), "")
	env.do(t, http.MethodGet, "/v1/jobs/abc", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `route="/images/raw/*"`)
	assert.Contains(t, out, `route="/v1/jobs/{id}"`)
	assert.NotContains(t, out, `route="/v1/jobs/abc"`)
	assert.Contains(t, out, `pixelfit_api_renders_total{fit="contain",outcome="ok"} 1`)
}

func TestStatusForError(t *testing.T) {
	cases := map[error]int{
		transform.ErrInvalidOptions: http.StatusBadRequest,
		source.ErrInvalidURL:        http.StatusBadRequest,
		source.ErrNotFound:          http.StatusNotFound,
		source.ErrUpstream:          http.StatusBadGateway,
		source.ErrTooLarge:          http.StatusBadGateway,
		transform.ErrDecode:         http.StatusUnprocessableEntity,
		transform.ErrEncode:         http.StatusInternalServerError,
		context.DeadlineExceeded:    http.StatusGatewayTimeout,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusForError(err), err.Error())
	}
}
