package engine

import (
	"errors"
	"fmt"

	"github.com/autott/autott/internal/schedule"
)

// ReportedError means the engine exited cleanly but reported a failure in
// its JSON payload.
type ReportedError struct {
	Mode    string
	Message string
}

func (e *ReportedError) Error() string {
	return fmt.Sprintf("engine %s failed: %s", e.Mode, e.Message)
}

// AuthStart is the begin-auth payload.
type AuthStart struct {
	AuthURL string `json:"auth_url"`
}

func (AuthStart) required() []string { return []string{"auth_url"} }

func (a AuthStart) check() error {
	if a.AuthURL == "" {
		return errors.New("auth_url is empty")
	}
	return nil
}

// AuthCompletion is the complete-auth payload.
type AuthCompletion struct {
	Success bool   `json:"success"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (AuthCompletion) required() []string { return []string{"success"} }

func (a AuthCompletion) check() error {
	if !a.Success && a.Error == "" {
		return errors.New("failed completion carries no error")
	}
	return nil
}

// Identity is the whoami payload.
type Identity struct {
	Success       bool   `json:"success"`
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (Identity) required() []string { return []string{"success"} }
func (Identity) check() error       { return nil }

// LogoutResult is the logout payload.
type LogoutResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (LogoutResult) required() []string { return []string{"success"} }
func (LogoutResult) check() error       { return nil }

// WindowScript is the new-window prep payload.
type WindowScript struct {
	Success    bool   `json:"success"`
	ScriptPath string `json:"script_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (WindowScript) required() []string { return []string{"success"} }

func (w WindowScript) check() error {
	if !w.Success && w.Error == "" {
		return errors.New("failed prep carries no error")
	}
	return nil
}

// scheduleResult is the OCR payload: either a schedule or an error.
type scheduleResult struct {
	Schedule schedule.Document `json:"schedule"`
	Error    string            `json:"error"`
}

func (scheduleResult) required() []string { return nil }

func (s scheduleResult) check() error {
	if s.Error == "" && s.Schedule == nil {
		return errors.New("schedule is missing")
	}
	return nil
}

// SyncResult is the calendar-sync payload. A NeedsAuth result is a signal
// for the caller, not an error.
type SyncResult struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message,omitempty"`
	EventsCreated int      `json:"events_created,omitempty"`
	NeedsAuth     bool     `json:"needs_auth,omitempty"`
	AuthURL       string   `json:"auth_url,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func (SyncResult) required() []string { return []string{"success"} }
func (SyncResult) check() error       { return nil }
