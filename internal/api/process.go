package api

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/autott/autott/internal/pipeline"
	"github.com/autott/autott/internal/schedule"
	"github.com/autott/autott/internal/staging"
)

// multipartSlack covers form fields and part headers on top of two files.
const multipartSlack = 1 << 20

type scheduleResponse struct {
	Schedule schedule.Document `json:"schedule"`
}

type syncResponse struct {
	Schedule         schedule.Document `json:"schedule"`
	Success          bool              `json:"success"`
	Message          string            `json:"message,omitempty"`
	EventsCreated    int               `json:"events_created"`
	NeedsAuth        bool              `json:"needs_auth"`
	AuthURL          string            `json:"auth_url,omitempty"`
	AuthURLCamel     string            `json:"authUrl,omitempty"`
	AuthWindowOpened bool              `json:"auth_window_opened"`
	Warnings         []string          `json:"warnings,omitempty"`
	FirstDates       map[string]string `json:"first_dates,omitempty"`
	Error            string            `json:"error,omitempty"`
}

func handleProcess(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 2*deps.MaxUploadBytes + multipartSlack
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(limit); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpError(w, http.StatusBadRequest, "upload exceeds %d bytes", limit)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid multipart form: %v", err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		image := formFile(r.MultipartForm, "image")
		if image == nil {
			httpError(w, http.StatusBadRequest, "image file is required")
			return
		}
		csv := formFile(r.MultipartForm, "csv_file")
		if csv == nil {
			httpError(w, http.StatusBadRequest, "csv_file is required")
			return
		}

		opts, err := schedule.ParseSyncOptions(url.Values(r.MultipartForm.Value), deps.Now())
		if err != nil {
			httpError(w, statusFor(err), "%v", err)
			return
		}

		resp, err := deps.Pipeline.Run(r.Context(), pipeline.Request{
			Image:   staging.FromHeader(image),
			CSV:     staging.FromHeader(csv),
			Options: opts,
		})
		if err != nil {
			code := statusFor(err)
			if code >= http.StatusInternalServerError {
				slog.Error("process request failed", "error", err)
			}
			httpError(w, code, "%v", err)
			return
		}

		if !resp.Synced {
			writeJSON(w, http.StatusOK, scheduleResponse{Schedule: resp.Schedule})
			return
		}
		writeJSON(w, http.StatusOK, syncResponse{
			Schedule:         resp.Schedule,
			Success:          resp.Sync.Success,
			Message:          resp.Sync.Message,
			EventsCreated:    resp.Sync.EventsCreated,
			NeedsAuth:        resp.Sync.NeedsAuth,
			AuthURL:          resp.Sync.AuthURL,
			AuthURLCamel:     resp.Sync.AuthURL,
			AuthWindowOpened: resp.AuthWindowOpened,
			Warnings:         resp.Warnings,
			FirstDates:       resp.FirstDates,
			Error:            resp.Sync.Error,
		})
	}
}

func formFile(form *multipart.Form, key string) *multipart.FileHeader {
	if files := form.File[key]; len(files) > 0 {
		return files[0]
	}
	return nil
}
