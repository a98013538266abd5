package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

type calendarAuthRequest struct {
	Code *string `json:"code"`
}

type completionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Error   string `json:"error,omitempty"`
}

type userResponse struct {
	Success       bool   `json:"success"`
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	Message       string `json:"message,omitempty"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// decodeOptional decodes a JSON body, treating an empty body as {}.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// handleCalendarAuth starts the handshake for {} and completes it for {code}.
func handleCalendarAuth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		defer r.Body.Close()

		var req calendarAuthRequest
		if err := decodeOptional(r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		if req.Code == nil {
			url, err := deps.Auth.Start(r.Context())
			if err != nil {
				slog.Error("calendar auth start failed", "error", err)
				httpError(w, http.StatusInternalServerError, "%v", err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"authUrl": url})
			return
		}

		res, err := deps.Auth.Complete(r.Context(), *req.Code)
		if err != nil {
			code := statusFor(err)
			if code >= http.StatusInternalServerError {
				slog.Error("calendar auth completion failed", "error", err)
			}
			httpError(w, code, "%v", err)
			return
		}
		if !res.Success {
			writeJSON(w, http.StatusOK, completionResponse{Success: false, Error: res.Error})
			return
		}
		msg := res.Message
		if msg == "" {
			msg = "Authentication successful"
		}
		writeJSON(w, http.StatusOK, completionResponse{
			Success: true,
			Message: msg,
			Email:   res.Email,
			Name:    res.Name,
		})
	}
}

func handleGetCalendarUser(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Auth.Status(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, userResponse{
			Success:       true,
			Authenticated: st.Authenticated,
			Email:         st.Email,
			Name:          st.Name,
			Message:       st.Message,
		})
	}
}

func handlePostCalendarUser(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		defer r.Body.Close()

		var req struct {
			Action string `json:"action"`
		}
		if err := decodeOptional(r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.Action != "logout" {
			httpError(w, http.StatusBadRequest, "unsupported action %q", req.Action)
			return
		}

		msg, err := deps.Auth.Logout(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: msg})
	}
}

func handleCleanup(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := deps.Auth.ClearToken()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: msg})
	}
}
