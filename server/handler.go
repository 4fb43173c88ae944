package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/superfly/frameRender/auth"
	"github.com/superfly/frameRender/metrics"
	"github.com/superfly/frameRender/pool"
	"github.com/superfly/frameRender/session"
)

const RequestIdHeader = "X-Request-Id"

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// withRequest tags the request with an id, then logs and counts it.
func (s *Server) withRequest(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(RequestIdHeader, id)

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)

		metrics.Requests.WithLabelValues(endpoint, strconv.Itoa(sw.code)).Inc()
		s.log.Info("server: request",
			zap.String("id", id),
			zap.String("endpoint", endpoint),
			zap.String("query", r.URL.RawQuery),
			zap.Int("code", sw.code),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.verifier(time.Now(), r.Header.Get(auth.Header)); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// configFromQuery reads the render configuration from url, alpha and scale.
func configFromQuery(q url.Values) (session.Config, error) {
	cfg := session.Config{Url: q.Get("url"), Scale: 1}
	if cfg.Url == "" {
		return cfg, fmt.Errorf("missing url")
	}

	if v := q.Get("alpha"); v != "" {
		alpha, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("bad alpha %q", v)
		}
		cfg.Alpha = alpha
	}

	if v := q.Get("scale"); v != "" {
		scale, err := strconv.ParseFloat(v, 64)
		if err != nil || scale <= 0 {
			return cfg, fmt.Errorf("bad scale %q", v)
		}
		cfg.Scale = scale
	}
	return cfg, nil
}

// errorCode maps a pool error to an http status.
func errorCode(err error) int {
	switch {
	case errors.Is(err, pool.ErrPoolClosed):
		// the configuration changed while this request waited.
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cfg, err := configFromQuery(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	frame, err := strconv.Atoi(q.Get("frame"))
	if err != nil || frame < 0 {
		http.Error(w, "bad frame", http.StatusBadRequest)
		return
	}

	buf, err := s.cache.Get(cfg).Render(r.Context(), frame)
	if err != nil {
		s.log.Warn("server: render", zap.Int("frame", frame), zap.Error(err))
		http.Error(w, err.Error(), errorCode(err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
	w.Write(buf)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	cfg, err := configFromQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	info, err := s.cache.Get(cfg).Info(r.Context())
	if err != nil {
		s.log.Warn("server: info", zap.Error(err))
		http.Error(w, err.Error(), errorCode(err))
		return
	}
	writeJson(w, info)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJson(w, s.cache.Stats().Snapshot())
}

func writeJson(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
