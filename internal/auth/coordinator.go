// Package auth coordinates the OAuth handshake with the engine and owns the
// lifecycle of the token artifact.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/autott/autott/internal/credentials"
	"github.com/autott/autott/internal/engine"
)

// State is the handshake position as seen by this process.
type State int

const (
	Unauthenticated State = iota
	AuthURLIssued
	CodeSubmitted
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case AuthURLIssued:
		return "auth_url_issued"
	case CodeSubmitted:
		return "code_submitted"
	case Authenticated:
		return "authenticated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const (
	msgTokenDeleted  = "Token file deleted"
	msgTokenNotFound = "Token file not found"
)

var (
	// ErrEmptyCode is returned by Complete when no code was supplied.
	ErrEmptyCode = errors.New("authorization code is required")
	// ErrWindowUnsupported is returned by OpenWindow without a launcher.
	ErrWindowUnsupported = errors.New("new-window authorization is not available")
)

// StartError wraps any failure to obtain an authorization URL.
type StartError struct {
	Err error
}

func (e *StartError) Error() string { return "starting authorization: " + e.Err.Error() }
func (e *StartError) Unwrap() error { return e.Err }

// Handshaker is the engine subset the coordinator drives.
type Handshaker interface {
	BeginAuth(ctx context.Context) (engine.AuthStart, error)
	CompleteAuth(ctx context.Context, code string) (engine.AuthCompletion, error)
	WhoAmI(ctx context.Context) (engine.Identity, error)
	Logout(ctx context.Context) (engine.LogoutResult, error)
	PrepareAuthWindow(ctx context.Context, scriptPath string) (engine.WindowScript, error)
}

// Descriptor guarantees the OAuth client descriptor exists on disk.
type Descriptor interface {
	Ensure() (*oauth2.Config, error)
}

// RemovalScheduler deletes a path after a delay.
type RemovalScheduler interface {
	ScheduleRemoval(path string, delay time.Duration) error
}

// Deps wires a Coordinator. Launcher and Cleanup are only needed for the
// new-window flow.
type Deps struct {
	Engine     Handshaker
	Tokens     credentials.Store
	Descriptor Descriptor
	Launcher   Launcher
	Cleanup    RemovalScheduler

	// ScratchDir receives generated window scripts.
	ScratchDir string
	// Python runs the generated window script.
	Python string
	// WorkDir is the working directory of the launched window.
	WorkDir      string
	CleanupDelay time.Duration
}

// Status is the answer to "who is signed in".
type Status struct {
	Authenticated bool
	Email         string
	Name          string
	Message       string
}

// Coordinator serializes writers of the token artifact. Readers run
// concurrently and treat a vanished token as unauthenticated.
type Coordinator struct {
	deps   Deps
	logger *slog.Logger

	// write is held across engine calls that create or remove the token;
	// mu only guards state and is never held while the engine runs.
	write sync.Mutex
	mu    sync.Mutex
	state State
}

// New returns a Coordinator in the Unauthenticated state.
func New(deps Deps) *Coordinator {
	if deps.CleanupDelay <= 0 {
		deps.CleanupDelay = time.Minute
	}
	if deps.ScratchDir != "" {
		if abs, err := filepath.Abs(deps.ScratchDir); err == nil {
			deps.ScratchDir = abs
		}
	}
	return &Coordinator{deps: deps, logger: slog.Default()}
}

// State reports the current handshake state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// EnsureDescriptor writes the client-secrets descriptor the engine reads
// when it is missing.
func (c *Coordinator) EnsureDescriptor() error {
	_, err := c.deps.Descriptor.Ensure()
	return err
}

// Start asks the engine for an authorization URL.
func (c *Coordinator) Start(ctx context.Context) (string, error) {
	if _, err := c.deps.Descriptor.Ensure(); err != nil {
		return "", &StartError{Err: err}
	}
	res, err := c.deps.Engine.BeginAuth(ctx)
	if err != nil {
		return "", &StartError{Err: err}
	}
	c.setState(AuthURLIssued)
	c.logger.Info("authorization url issued")
	return res.AuthURL, nil
}

// Complete exchanges a pasted code for a token. A failed exchange leaves the
// handshake retryable with another code.
func (c *Coordinator) Complete(ctx context.Context, code string) (engine.AuthCompletion, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return engine.AuthCompletion{}, ErrEmptyCode
	}
	if _, err := c.deps.Descriptor.Ensure(); err != nil {
		return engine.AuthCompletion{}, err
	}

	c.write.Lock()
	defer c.write.Unlock()

	c.setState(CodeSubmitted)
	res, err := c.deps.Engine.CompleteAuth(ctx, code)
	if err != nil {
		c.setState(AuthURLIssued)
		return engine.AuthCompletion{}, err
	}
	if !res.Success {
		c.setState(AuthURLIssued)
		c.logger.Warn("authorization code rejected", "error", res.Error)
		return res, nil
	}
	c.setState(Authenticated)
	c.logger.Info("authorization completed", "email", res.Email)
	return res, nil
}

// Status reports the signed-in identity. Without a token no engine process
// is started. Engine failures become an unauthenticated status.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	ok, err := c.deps.Tokens.Exists()
	if err != nil {
		return Status{}, fmt.Errorf("checking token: %w", err)
	}
	if !ok {
		c.settle(Unauthenticated)
		return Status{Message: "Not authenticated"}, nil
	}

	id, err := c.deps.Engine.WhoAmI(ctx)
	if err != nil {
		c.logger.Warn("identity lookup failed", "error", err)
		return Status{Message: err.Error()}, nil
	}
	if !id.Success || !id.Authenticated {
		msg := id.Error
		if msg == "" {
			msg = id.Message
		}
		c.settle(Unauthenticated)
		return Status{Message: msg}, nil
	}
	c.settle(Authenticated)
	return Status{Authenticated: true, Email: id.Email, Name: id.Name, Message: id.Message}, nil
}

// settle records an observed state unless a handshake is in flight.
func (c *Coordinator) settle(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == AuthURLIssued || c.state == CodeSubmitted {
		if s != Authenticated {
			return
		}
	}
	c.state = s
}

// Logout lets the engine revoke the session, then removes the token. Both a
// present and an absent token count as success.
func (c *Coordinator) Logout(ctx context.Context) (string, error) {
	c.write.Lock()
	defer c.write.Unlock()

	existed, err := c.deps.Tokens.Exists()
	if err != nil {
		return "", fmt.Errorf("checking token: %w", err)
	}
	if existed {
		res, err := c.deps.Engine.Logout(ctx)
		switch {
		case err != nil:
			c.logger.Warn("engine logout failed", "error", err)
		case !res.Success:
			c.logger.Warn("engine logout reported failure", "error", res.Error)
		}
	}

	if err := c.deps.Tokens.Delete(); err != nil && !errors.Is(err, credentials.ErrNotFound) {
		return "", fmt.Errorf("deleting token: %w", err)
	}
	c.setState(Unauthenticated)
	if existed {
		return msgTokenDeleted, nil
	}
	return msgTokenNotFound, nil
}

// ClearToken removes the token without involving the engine.
func (c *Coordinator) ClearToken() (string, error) {
	c.write.Lock()
	defer c.write.Unlock()

	err := c.deps.Tokens.Delete()
	if err != nil && !errors.Is(err, credentials.ErrNotFound) {
		return "", fmt.Errorf("deleting token: %w", err)
	}
	c.setState(Unauthenticated)
	if err != nil {
		return msgTokenNotFound, nil
	}
	return msgTokenDeleted, nil
}

// OpenWindow has the engine write a standalone authorization script and
// launches it in a new console. The script is removed after CleanupDelay
// whether or not the launch succeeded.
func (c *Coordinator) OpenWindow(ctx context.Context) error {
	if c.deps.Launcher == nil {
		return ErrWindowUnsupported
	}
	if _, err := c.deps.Descriptor.Ensure(); err != nil {
		return err
	}
	if err := os.MkdirAll(c.deps.ScratchDir, 0o700); err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}

	path := filepath.Join(c.deps.ScratchDir, "auth-"+uuid.NewString()+".py")
	defer func() { c.scheduleRemoval(path) }()

	res, err := c.deps.Engine.PrepareAuthWindow(ctx, path)
	if err != nil {
		return err
	}
	if !res.Success {
		return &engine.ReportedError{Mode: "prepare-auth-window", Message: res.Error}
	}
	if res.ScriptPath != "" {
		path = res.ScriptPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.deps.WorkDir, path)
		}
	}

	err = c.deps.Launcher.Launch(Command{
		Path: c.deps.Python,
		Args: []string{path},
		Dir:  c.deps.WorkDir,
	})
	if err != nil {
		return fmt.Errorf("launching authorization window: %w", err)
	}
	c.setState(AuthURLIssued)
	c.logger.Info("authorization window opened", "script", path)
	return nil
}

func (c *Coordinator) scheduleRemoval(path string) {
	if c.deps.Cleanup == nil {
		return
	}
	if err := c.deps.Cleanup.ScheduleRemoval(path, c.deps.CleanupDelay); err != nil {
		c.logger.Warn("could not schedule script removal", "path", path, "error", err)
	}
}
