package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelfit/internal/cache"
	"github.com/dunamismax/pixelfit/internal/domain"
	"github.com/dunamismax/pixelfit/internal/source"
	"github.com/dunamismax/pixelfit/internal/transform"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

const (
	headerCache = "X-Cache"
	cacheHit    = "HIT"
	cacheMiss   = "MISS"
)

// handleRawImage serves GET /images/raw/{source}, where source is the
// URL-escaped address of the original image.
func (s *Server) handleRawImage(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)
	if s.fetcher == nil || s.renderer == nil {
		writeError(w, http.StatusServiceUnavailable, "image rendering is not configured")
		return
	}

	sourceURL, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || strings.TrimSpace(sourceURL) == "" {
		writeError(w, http.StatusBadRequest, "source must be a URL-escaped image address")
		return
	}

	req, err := parseImageQuery(r.URL.Query())
	if err != nil {
		s.metrics.renderTotal.WithLabelValues(fitLabel(r.URL.Query().Get("fit")), "invalid").Inc()
		writeError(w, statusForError(err), err.Error())
		return
	}
	fit := fitLabel(req.Fit)

	key := cache.Key(sourceURL, req)
	if s.cache != nil {
		entry, hit, err := s.cache.Get(r.Context(), key)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("render cache read failed")
		case hit:
			s.metrics.cacheLookups.WithLabelValues("hit").Inc()
			s.metrics.renderTotal.WithLabelValues(fit, "cached").Inc()
			writeImage(w, entry.Format, entry.Data, cacheHit)
			return
		default:
			s.metrics.cacheLookups.WithLabelValues("miss").Inc()
		}
	}

	data, err := s.fetcher.Fetch(r.Context(), sourceURL)
	if err != nil {
		s.metrics.renderTotal.WithLabelValues(fit, "fetch_error").Inc()
		logger.Info().Err(err).Msg("source fetch failed")
		writeError(w, statusForError(err), err.Error())
		return
	}
	req.Source = data

	start := time.Now()
	result, err := s.renderer.Transform(r.Context(), req)
	s.metrics.renderDuration.WithLabelValues(fit).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.renderTotal.WithLabelValues(fit, "error").Inc()
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).Msg("render failed")
		}
		writeError(w, status, err.Error())
		return
	}
	s.metrics.renderTotal.WithLabelValues(fit, "ok").Inc()

	cacheHeader := ""
	if s.cache != nil {
		cacheHeader = cacheMiss
		if err := s.cache.Set(r.Context(), key, cache.Entry{Data: result.Data, Format: result.Format}); err != nil {
			logger.Warn().Err(err).Msg("render cache write failed")
		}
	}

	logger.Debug().
		Str("fit", result.Fit.String()).
		Int("width", result.Width).
		Int("height", result.Height).
		Str("format", result.Format).
		Int("bytes", len(result.Data)).
		Msg("rendered")
	writeImage(w, result.Format, result.Data, cacheHeader)
}

func writeImage(w http.ResponseWriter, format string, data []byte, cacheHeader string) {
	w.Header().Set("Content-Type", transform.ContentType(format))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if cacheHeader != "" {
		w.Header().Set(headerCache, cacheHeader)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// parseImageQuery reads the render parameters. Parameters that are present
// must be well formed; width=0 or height=0 is rejected, omit them for the
// source's native size.
func parseImageQuery(q url.Values) (transform.Request, error) {
	var (
		req transform.Request
		err error
	)

	if req.Width, err = positiveParam(q, "width"); err != nil {
		return transform.Request{}, err
	}
	if req.Height, err = positiveParam(q, "height"); err != nil {
		return transform.Request{}, err
	}
	if req.DPR, err = positiveParam(q, "dpr"); err != nil {
		return transform.Request{}, err
	}
	if req.Quality, err = positiveParam(q, "quality"); err != nil {
		return transform.Request{}, err
	}

	if q.Has("fit") {
		mode, err := domain.ParseFitMode(q.Get("fit"))
		if err != nil {
			return transform.Request{}, fmt.Errorf("%w: %w", transform.ErrInvalidOptions, err)
		}
		req.Fit = mode.String()
	}

	if bg := strings.TrimSpace(q.Get("bg")); bg != "" {
		rgb, err := domain.ParseRGB(bg)
		if err != nil {
			return transform.Request{}, fmt.Errorf("%w: bg: %w", transform.ErrInvalidOptions, err)
		}
		req.Background = &rgb
	}

	req.Format = strings.TrimSpace(q.Get("format"))
	return req, nil
}

func positiveParam(q url.Values, name string) (int, error) {
	if !q.Has(name) {
		return 0, nil
	}
	raw := strings.TrimSpace(q.Get(name))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", transform.ErrInvalidOptions, name, raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %s must be at least 1", transform.ErrInvalidOptions, name)
	}
	return n, nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, transform.ErrInvalidOptions), errors.Is(err, source.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, source.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, source.ErrUpstream), errors.Is(err, source.ErrTooLarge):
		return http.StatusBadGateway
	case errors.Is(err, transform.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func fitLabel(raw string) string {
	mode, err := domain.ParseFitMode(raw)
	if err != nil {
		return "unknown"
	}
	return mode.String()
}
