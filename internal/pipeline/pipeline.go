// Package pipeline runs one timetable request end to end: staging, schedule
// extraction, optional calendar sync and cleanup.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/autott/autott/internal/engine"
	"github.com/autott/autott/internal/schedule"
	"github.com/autott/autott/internal/staging"
	"github.com/autott/autott/internal/storage"
)

// Auth modes decide what happens when a sync reports needs_auth.
const (
	// AuthModeInline returns the signal to the caller for an in-page code paste.
	AuthModeInline = "inline"
	// AuthModeWindow also opens an authorization window on the host.
	AuthModeWindow = "window"
)

// Stager stages an upload pair into a fresh area.
type Stager interface {
	Stage(ctx context.Context, image, csv staging.File) (*staging.Area, error)
}

// Engine is the engine subset used by the pipeline.
type Engine interface {
	ExtractSchedule(ctx context.Context, imagePath, csvPath string) (schedule.Document, error)
	SyncCalendar(ctx context.Context, schedulePath string, opts schedule.SyncOptions) (engine.SyncResult, error)
}

// Authorizer prepares the engine's credentials and starts authorization
// when a sync reports needs_auth.
type Authorizer interface {
	EnsureDescriptor() error
	Start(ctx context.Context) (string, error)
	OpenWindow(ctx context.Context) error
}

// RunRecorder persists run history.
type RunRecorder interface {
	SaveRun(r storage.Run) error
}

// Request is one upload with its sync options.
type Request struct {
	Image   staging.File
	CSV     staging.File
	Options schedule.SyncOptions
}

// Response carries the schedule and, when a sync was requested, its outcome.
type Response struct {
	RunID    string
	Schedule schedule.Document

	Synced           bool
	Sync             engine.SyncResult
	AuthWindowOpened bool
	// Warnings merges engine warnings with selected days that have no periods.
	Warnings []string
	// FirstDates maps each selected day to its first date after the start date.
	FirstDates map[string]string
}

// Pipeline is safe for concurrent use; every request stages into its own area.
type Pipeline struct {
	stager   Stager
	engine   Engine
	auth     Authorizer
	recorder RunRecorder
	authMode string
	logger   *slog.Logger
}

// New creates a Pipeline. auth and recorder may be nil.
func New(stager Stager, eng Engine, auth Authorizer, recorder RunRecorder, authMode string) *Pipeline {
	if authMode == "" {
		authMode = AuthModeInline
	}
	return &Pipeline{
		stager:   stager,
		engine:   eng,
		auth:     auth,
		recorder: recorder,
		authMode: authMode,
		logger:   slog.Default(),
	}
}

// Run processes req:
//  1. Stage the image and CSV (validation failures stop here)
//  2. Extract the schedule
//  3. If syncing, make sure the client-secrets descriptor exists, write the
//     schedule next to the uploads and run the sync
//  4. On needs_auth, fill in a missing authorization URL (inline mode) or
//     open the authorization window (window mode)
//
// The staged area is released once on every return path, and every run is
// recorded.
func (p *Pipeline) Run(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	run := storage.Run{ID: uuid.NewString(), CreatedAt: start.UTC(), Mode: "process"}
	if req.Options.SyncToCalendar {
		run.Mode = "sync"
		run.Days = strings.Join(req.Options.Days, ",")
	}
	defer func() {
		p.record(run, resp, err, time.Since(start))
	}()

	// 1. Stage.
	area, err := p.stager.Stage(ctx, req.Image, req.CSV)
	if err != nil {
		return nil, err
	}
	defer p.release(area)

	// 2. Extract.
	doc, err := p.engine.ExtractSchedule(ctx, area.ImagePath, area.CSVPath)
	if err != nil {
		return nil, err
	}
	resp = &Response{RunID: run.ID, Schedule: doc}
	p.logger.Info("schedule extracted", "run_id", run.ID, "days", len(doc), "periods", doc.PeriodCount())
	if !req.Options.SyncToCalendar {
		return resp, nil
	}

	// 3. Sync.
	if p.auth != nil {
		if err := p.auth.EnsureDescriptor(); err != nil {
			return nil, fmt.Errorf("preparing client secrets: %w", err)
		}
	}
	if err := writeSchedule(area.SchedulePath, doc); err != nil {
		return nil, err
	}
	res, err := p.engine.SyncCalendar(ctx, area.SchedulePath, req.Options)
	if err != nil {
		return nil, err
	}
	resp.Synced = true
	resp.Sync = res
	resp.Warnings = p.warnings(doc, req.Options, res)
	resp.FirstDates = p.firstDates(req.Options)

	// 4. Authorization.
	if res.NeedsAuth && p.auth != nil {
		p.authorize(ctx, run.ID, resp)
	}
	return resp, nil
}

func (p *Pipeline) authorize(ctx context.Context, runID string, resp *Response) {
	switch p.authMode {
	case AuthModeWindow:
		if err := p.auth.OpenWindow(ctx); err != nil {
			p.logger.Warn("could not open authorization window", "run_id", runID, "error", err)
			return
		}
		resp.AuthWindowOpened = true
	default:
		if resp.Sync.AuthURL != "" {
			return
		}
		url, err := p.auth.Start(ctx)
		if err != nil {
			p.logger.Warn("could not start authorization", "run_id", runID, "error", err)
			return
		}
		resp.Sync.AuthURL = url
	}
}

func writeSchedule(path string, doc schedule.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schedule: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing schedule: %w", err)
	}
	return nil
}

func (p *Pipeline) warnings(doc schedule.Document, opts schedule.SyncOptions, res engine.SyncResult) []string {
	out := append([]string(nil), res.Warnings...)
	for _, day := range schedule.MissingDays(doc, opts.Days) {
		out = append(out, fmt.Sprintf("No classes found for %s", day))
	}
	return out
}

func (p *Pipeline) firstDates(opts schedule.SyncOptions) map[string]string {
	occ, err := schedule.FirstOccurrences(opts.Days, opts.StartDate)
	if err != nil {
		p.logger.Warn("could not compute first dates", "error", err)
		return nil
	}
	out := make(map[string]string, len(occ))
	for day, t := range occ {
		out[day] = t.Format(schedule.DateLayout)
	}
	return out
}

func (p *Pipeline) release(area *staging.Area) {
	if err := area.Release(); err != nil {
		p.logger.Warn("cleanup failed", "area", area.ID, "error", err)
	}
}

func (p *Pipeline) record(run storage.Run, resp *Response, err error, elapsed time.Duration) {
	run.DurationMS = elapsed.Milliseconds()
	switch {
	case err != nil:
		run.Status = "failed"
		run.Error = err.Error()
	case resp.Synced && resp.Sync.NeedsAuth:
		run.Status = "needs_auth"
	case resp.Synced && !resp.Sync.Success:
		run.Status = "failed"
		run.Error = resp.Sync.Error
	default:
		run.Status = "ok"
		run.EventsCreated = resp.Sync.EventsCreated
	}

	if p.recorder == nil {
		return
	}
	if err := p.recorder.SaveRun(run); err != nil {
		p.logger.Warn("could not record run", "run_id", run.ID, "error", err)
	}
}
