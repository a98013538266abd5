package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/autott/autott/internal/schedule"
)

// Client builds argument vectors for each engine mode and decodes the
// results. root is the project root holding the token and credentials.
type Client struct {
	runner Runner
	script string
	root   string
	logger *slog.Logger
}

var _ Engine = (*Client)(nil)

// NewClient returns a Client. When script is empty the runner's command is
// treated as the engine itself.
func NewClient(r Runner, script, root string) *Client {
	return &Client{
		runner: r,
		script: script,
		root:   root,
		logger: slog.Default(),
	}
}

func (c *Client) BeginAuth(ctx context.Context) (AuthStart, error) {
	var out AuthStart
	err := c.call(ctx, "begin-auth", LastLine, &out, "--auth", c.root)
	return out, err
}

func (c *Client) CompleteAuth(ctx context.Context, code string) (AuthCompletion, error) {
	var out AuthCompletion
	err := c.call(ctx, "complete-auth", LastLine, &out, "--complete-auth", code, c.root)
	return out, err
}

func (c *Client) WhoAmI(ctx context.Context) (Identity, error) {
	var out Identity
	err := c.call(ctx, "whoami", FirstObject, &out, "--user-info", c.root)
	return out, err
}

func (c *Client) Logout(ctx context.Context) (LogoutResult, error) {
	var out LogoutResult
	err := c.call(ctx, "logout", FirstObject, &out, "--logout", c.root)
	return out, err
}

func (c *Client) PrepareAuthWindow(ctx context.Context, scriptPath string) (WindowScript, error) {
	var out WindowScript
	err := c.call(ctx, "prepare-auth-window", LastLine, &out, "--prepare-auth-script", scriptPath, c.root)
	return out, err
}

// ExtractSchedule runs OCR and course matching. An engine-reported failure
// is returned as *ReportedError.
func (c *Client) ExtractSchedule(ctx context.Context, imagePath, csvPath string) (schedule.Document, error) {
	var out scheduleResult
	if err := c.call(ctx, "ocr", LastLine, &out, "--image", imagePath, "--csv", csvPath, "--json"); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, &ReportedError{Mode: "ocr", Message: out.Error}
	}
	return out.Schedule, nil
}

func (c *Client) SyncCalendar(ctx context.Context, schedulePath string, opts schedule.SyncOptions) (SyncResult, error) {
	args := []string{"--sync-calendar", "--schedule", schedulePath, "--days", strings.Join(opts.Days, ",")}
	if opts.Recurring {
		args = append(args, "--recurring")
	}
	args = append(args, "--start-date", opts.StartDateString(), c.root)

	var out SyncResult
	err := c.call(ctx, "calendar-sync", LastLine, &out, args...)
	return out, err
}

func (c *Client) call(ctx context.Context, mode string, s Strategy, v envelope, args ...string) error {
	if c.script != "" {
		args = append([]string{c.script}, args...)
	}

	start := time.Now()
	res, err := c.runner.Invoke(ctx, args...)
	c.logger.Debug("engine invocation finished", "mode", mode, "exit_code", res.ExitCode, "elapsed", time.Since(start))
	if err != nil {
		return fmt.Errorf("engine %s: %w", mode, err)
	}
	if err := decode(res.Stdout, s, v); err != nil {
		return fmt.Errorf("engine %s: %w", mode, err)
	}
	return nil
}
