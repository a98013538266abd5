// Package engine talks to the external timetable engine. The engine is a
// program run once per operation with a positional argument vector; it
// prints diagnostics followed by exactly one JSON object on stdout.
package engine

import (
	"context"

	"github.com/autott/autott/internal/schedule"
)

// Engine is the full set of engine operations. Consumers depend on the
// subset they need.
type Engine interface {
	BeginAuth(ctx context.Context) (AuthStart, error)
	CompleteAuth(ctx context.Context, code string) (AuthCompletion, error)
	WhoAmI(ctx context.Context) (Identity, error)
	Logout(ctx context.Context) (LogoutResult, error)
	PrepareAuthWindow(ctx context.Context, scriptPath string) (WindowScript, error)
	ExtractSchedule(ctx context.Context, imagePath, csvPath string) (schedule.Document, error)
	SyncCalendar(ctx context.Context, schedulePath string, opts schedule.SyncOptions) (SyncResult, error)
}
