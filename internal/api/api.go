// Package api exposes the timetable pipeline and the calendar handshake over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/autott/autott/internal/auth"
	"github.com/autott/autott/internal/engine"
	"github.com/autott/autott/internal/pipeline"
	"github.com/autott/autott/internal/schedule"
	"github.com/autott/autott/internal/staging"
	"github.com/autott/autott/internal/storage"
)

const maxJSONBodySize = 64 << 10 // 64KB

// Processor runs one upload through the pipeline.
type Processor interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

// Authenticator drives the calendar handshake.
type Authenticator interface {
	Start(ctx context.Context) (string, error)
	Complete(ctx context.Context, code string) (engine.AuthCompletion, error)
	Status(ctx context.Context) (auth.Status, error)
	Logout(ctx context.Context) (string, error)
	ClearToken() (string, error)
}

// RunLister reads run history.
type RunLister interface {
	ListRuns(limit, offset int) ([]storage.Run, error)
}

type AppDeps struct {
	Pipeline Processor
	Auth     Authenticator
	Runs     RunLister
	// Token protects every route except /health when set.
	Token string
	// MaxUploadBytes is the per-file limit; the request body may carry two.
	MaxUploadBytes int64
	// Now defaults to time.Now and anchors the default sync start date.
	Now func() time.Time
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = staging.DefaultMaxBytes
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/process", handleProcess(deps))
		r.Post("/calendar-auth", handleCalendarAuth(deps))
		r.Get("/calendar-user", handleGetCalendarUser(deps))
		r.Post("/calendar-user", handlePostCalendarUser(deps))
		r.Post("/cleanup", handleCleanup(deps))
		r.Get("/runs", handleListRuns(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleListRuns(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		runs, err := deps.Runs.ListRuns(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list runs: %v", err)
			return
		}
		if runs == nil {
			runs = []storage.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// statusFor maps a domain error onto an HTTP status. Only caller mistakes
// are 4xx; every engine or filesystem failure is a 500.
func statusFor(err error) int {
	var (
		stagingErr  *staging.ValidationError
		scheduleErr *schedule.ValidationError
	)
	if errors.As(err, &stagingErr) || errors.As(err, &scheduleErr) || errors.Is(err, auth.ErrEmptyCode) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
