package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/autott/autott/internal/credentials"
	"github.com/autott/autott/internal/engine"
)

type fakeEngine struct {
	mu    sync.Mutex
	calls []string

	start      engine.AuthStart
	startErr   error
	completion func(code string) (engine.AuthCompletion, error)
	identity   engine.Identity
	identErr   error
	logout     engine.LogoutResult
	logoutErr  error
	window     func(path string) (engine.WindowScript, error)
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeEngine) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeEngine) BeginAuth(context.Context) (engine.AuthStart, error) {
	f.record("begin")
	return f.start, f.startErr
}

func (f *fakeEngine) CompleteAuth(_ context.Context, code string) (engine.AuthCompletion, error) {
	f.record("complete")
	return f.completion(code)
}

func (f *fakeEngine) WhoAmI(context.Context) (engine.Identity, error) {
	f.record("whoami")
	return f.identity, f.identErr
}

func (f *fakeEngine) Logout(context.Context) (engine.LogoutResult, error) {
	f.record("logout")
	return f.logout, f.logoutErr
}

func (f *fakeEngine) PrepareAuthWindow(_ context.Context, path string) (engine.WindowScript, error) {
	f.record("window")
	return f.window(path)
}

type fakeDescriptor struct {
	err   error
	calls int
}

func (d *fakeDescriptor) Ensure() (*oauth2.Config, error) {
	d.calls++
	return &oauth2.Config{}, d.err
}

type fakeLauncher struct {
	err      error
	launched []Command
}

func (l *fakeLauncher) Launch(cmd Command) error {
	l.launched = append(l.launched, cmd)
	return l.err
}

type fakeScheduler struct {
	paths  []string
	delays []time.Duration
}

func (s *fakeScheduler) ScheduleRemoval(path string, delay time.Duration) error {
	s.paths = append(s.paths, path)
	s.delays = append(s.delays, delay)
	return nil
}

type fixture struct {
	coord      *Coordinator
	engine     *fakeEngine
	tokens     *credentials.FileStore
	descriptor *fakeDescriptor
	launcher   *fakeLauncher
	cleanup    *fakeScheduler
	scratch    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		engine: &fakeEngine{
			start: engine.AuthStart{AuthURL: "https://accounts.example/auth"},
			completion: func(string) (engine.AuthCompletion, error) {
				return engine.AuthCompletion{Success: true, Email: "ana@example.com", Name: "Ana"}, nil
			},
			identity: engine.Identity{Success: true, Authenticated: true, Email: "ana@example.com", Name: "Ana"},
			logout:   engine.LogoutResult{Success: true},
			window: func(path string) (engine.WindowScript, error) {
				return engine.WindowScript{Success: true, ScriptPath: path}, nil
			},
		},
		tokens:     credentials.NewFileStore(filepath.Join(dir, "token.json")),
		descriptor: &fakeDescriptor{},
		launcher:   &fakeLauncher{},
		cleanup:    &fakeScheduler{},
		scratch:    filepath.Join(dir, "scratch"),
	}
	f.coord = New(Deps{
		Engine:       f.engine,
		Tokens:       f.tokens,
		Descriptor:   f.descriptor,
		Launcher:     f.launcher,
		Cleanup:      f.cleanup,
		ScratchDir:   f.scratch,
		Python:       "python3",
		WorkDir:      dir,
		CleanupDelay: time.Minute,
	})
	return f
}

func (f *fixture) writeToken(t *testing.T) {
	t.Helper()
	if err := f.tokens.Write([]byte(`{"refresh_token":"r"}`)); err != nil {
		t.Fatalf("writing token: %v", err)
	}
}

func TestStart_IssuesURL(t *testing.T) {
	f := newFixture(t)

	url, err := f.coord.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if url != "https://accounts.example/auth" {
		t.Errorf("url = %q", url)
	}
	if f.coord.State() != AuthURLIssued {
		t.Errorf("state = %v, want %v", f.coord.State(), AuthURLIssued)
	}
	if f.descriptor.calls != 1 {
		t.Errorf("descriptor ensured %d times, want 1", f.descriptor.calls)
	}
}

func TestStart_Failures(t *testing.T) {
	t.Run("engine", func(t *testing.T) {
		f := newFixture(t)
		f.engine.startErr = &engine.LaunchError{Command: "python3", Err: os.ErrNotExist}

		_, err := f.coord.Start(context.Background())
		var se *StartError
		if !errors.As(err, &se) {
			t.Fatalf("err = %v, want *StartError", err)
		}
		var le *engine.LaunchError
		if !errors.As(err, &le) {
			t.Errorf("StartError does not unwrap to *engine.LaunchError")
		}
		if f.coord.State() != Unauthenticated {
			t.Errorf("state = %v, want %v", f.coord.State(), Unauthenticated)
		}
	})

	t.Run("descriptor", func(t *testing.T) {
		f := newFixture(t)
		f.descriptor.err = credentials.ErrMissingClientSecrets

		_, err := f.coord.Start(context.Background())
		if !errors.Is(err, credentials.ErrMissingClientSecrets) {
			t.Fatalf("err = %v, want ErrMissingClientSecrets", err)
		}
		if f.engine.callCount("begin") != 0 {
			t.Error("engine invoked without a descriptor")
		}
	})
}

func TestComplete_FailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.engine.completion = func(code string) (engine.AuthCompletion, error) {
		if code == "good" {
			return engine.AuthCompletion{Success: true, Email: "ana@example.com"}, nil
		}
		return engine.AuthCompletion{Success: false, Error: "invalid_grant"}, nil
	}
	if _, err := f.coord.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := f.coord.Complete(context.Background(), "bad")
	if err != nil {
		t.Fatalf("Complete(bad): %v", err)
	}
	if res.Success || res.Error != "invalid_grant" {
		t.Errorf("Complete(bad) = %+v", res)
	}
	if f.coord.State() != AuthURLIssued {
		t.Errorf("state after failure = %v, want %v", f.coord.State(), AuthURLIssued)
	}

	res, err = f.coord.Complete(context.Background(), "  good \n")
	if err != nil {
		t.Fatalf("Complete(good): %v", err)
	}
	if !res.Success {
		t.Errorf("Complete(good) = %+v, want success", res)
	}
	if f.coord.State() != Authenticated {
		t.Errorf("state = %v, want %v", f.coord.State(), Authenticated)
	}
}

func TestComplete_EngineErrorKeepsRetryable(t *testing.T) {
	f := newFixture(t)
	f.engine.completion = func(string) (engine.AuthCompletion, error) {
		return engine.AuthCompletion{}, engine.ErrTimeout
	}

	_, err := f.coord.Complete(context.Background(), "code")
	if !errors.Is(err, engine.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if f.coord.State() != AuthURLIssued {
		t.Errorf("state = %v, want %v", f.coord.State(), AuthURLIssued)
	}
}

func TestComplete_EmptyCode(t *testing.T) {
	f := newFixture(t)
	if _, err := f.coord.Complete(context.Background(), "   "); !errors.Is(err, ErrEmptyCode) {
		t.Fatalf("err = %v, want ErrEmptyCode", err)
	}
	if f.engine.callCount("complete") != 0 {
		t.Error("engine invoked for an empty code")
	}
}

func TestComplete_StatusAnswersDuringExchange(t *testing.T) {
	f := newFixture(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	f.engine.completion = func(string) (engine.AuthCompletion, error) {
		close(entered)
		<-release
		return engine.AuthCompletion{Success: true, Email: "ana@example.com"}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.Complete(context.Background(), "code")
		done <- err
	}()
	<-entered

	statusDone := make(chan Status, 1)
	go func() {
		st, _ := f.coord.Status(context.Background())
		statusDone <- st
	}()
	select {
	case st := <-statusDone:
		if st.Authenticated {
			t.Errorf("status during exchange = %+v, want unauthenticated", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Status blocked behind an in-flight code exchange")
	}
	if got := f.coord.State(); got != CodeSubmitted {
		t.Errorf("state during exchange = %v, want %v", got, CodeSubmitted)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := f.coord.State(); got != Authenticated {
		t.Errorf("state after exchange = %v, want %v", got, Authenticated)
	}
}

func TestStatus_NoTokenSkipsEngine(t *testing.T) {
	f := newFixture(t)

	st, err := f.coord.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Authenticated {
		t.Error("Authenticated = true without a token")
	}
	if f.engine.callCount("whoami") != 0 {
		t.Error("engine invoked without a token")
	}
}

func TestStatus_WithToken(t *testing.T) {
	f := newFixture(t)
	f.writeToken(t)

	st, err := f.coord.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Authenticated || st.Email != "ana@example.com" || st.Name != "Ana" {
		t.Errorf("Status = %+v", st)
	}
	if f.coord.State() != Authenticated {
		t.Errorf("state = %v, want %v", f.coord.State(), Authenticated)
	}
}

func TestStatus_EngineFailureIsSoft(t *testing.T) {
	tests := []struct {
		name     string
		identity engine.Identity
		err      error
		wantMsg  string
	}{
		{"expired", engine.Identity{Success: false, Error: "token expired"}, nil, "token expired"},
		{"not authenticated", engine.Identity{Success: true, Authenticated: false, Message: "no credentials"}, nil, "no credentials"},
		{"exit", engine.Identity{}, &engine.ExitError{Code: 1, Stderr: "Traceback"}, "status 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.writeToken(t)
			f.engine.identity = tt.identity
			f.engine.identErr = tt.err

			st, err := f.coord.Status(context.Background())
			if err != nil {
				t.Fatalf("Status returned hard error: %v", err)
			}
			if st.Authenticated {
				t.Error("Authenticated = true")
			}
			if !strings.Contains(st.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want it to contain %q", st.Message, tt.wantMsg)
			}
		})
	}
}

func TestLogout_ThenStatusIsUnauthenticated(t *testing.T) {
	for _, withToken := range []bool{true, false} {
		f := newFixture(t)
		if withToken {
			f.writeToken(t)
		}

		msg, err := f.coord.Logout(context.Background())
		if err != nil {
			t.Fatalf("Logout(token=%v): %v", withToken, err)
		}
		want := msgTokenNotFound
		if withToken {
			want = msgTokenDeleted
		}
		if msg != want {
			t.Errorf("Logout(token=%v) = %q, want %q", withToken, msg, want)
		}
		if got := f.engine.callCount("logout"); got != map[bool]int{true: 1, false: 0}[withToken] {
			t.Errorf("engine logout calls = %d (token=%v)", got, withToken)
		}

		st, err := f.coord.Status(context.Background())
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.Authenticated {
			t.Errorf("Authenticated after logout (token=%v)", withToken)
		}
	}
}

func TestLogout_EngineFailureStillDeletes(t *testing.T) {
	f := newFixture(t)
	f.writeToken(t)
	f.engine.logoutErr = errors.New("boom")

	msg, err := f.coord.Logout(context.Background())
	if err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if msg != msgTokenDeleted {
		t.Errorf("msg = %q", msg)
	}
	if ok, _ := f.tokens.Exists(); ok {
		t.Error("token still exists")
	}
}

func TestClearToken(t *testing.T) {
	f := newFixture(t)
	f.writeToken(t)

	msg, err := f.coord.ClearToken()
	if err != nil || msg != msgTokenDeleted {
		t.Fatalf("ClearToken = %q, %v", msg, err)
	}
	msg, err = f.coord.ClearToken()
	if err != nil || msg != msgTokenNotFound {
		t.Fatalf("second ClearToken = %q, %v", msg, err)
	}
	if len(f.engine.calls) != 0 {
		t.Errorf("engine calls = %v, want none", f.engine.calls)
	}
}

func TestOpenWindow_LaunchesAndSchedulesRemoval(t *testing.T) {
	f := newFixture(t)

	if err := f.coord.OpenWindow(context.Background()); err != nil {
		t.Fatalf("OpenWindow: %v", err)
	}
	if len(f.launcher.launched) != 1 {
		t.Fatalf("launched %d commands, want 1", len(f.launcher.launched))
	}
	cmd := f.launcher.launched[0]
	if cmd.Path != "python3" || len(cmd.Args) != 1 {
		t.Fatalf("command = %+v", cmd)
	}
	script := cmd.Args[0]
	if filepath.Dir(script) != f.scratch || !strings.HasPrefix(filepath.Base(script), "auth-") {
		t.Errorf("script path = %q, want auth-*.py under %q", script, f.scratch)
	}
	if len(f.cleanup.paths) != 1 || f.cleanup.paths[0] != script || f.cleanup.delays[0] != time.Minute {
		t.Errorf("scheduled removals = %v %v", f.cleanup.paths, f.cleanup.delays)
	}
}

func TestOpenWindow_LaunchFailureStillCleansUp(t *testing.T) {
	f := newFixture(t)
	f.launcher.err = errors.New("no terminal")

	if err := f.coord.OpenWindow(context.Background()); err == nil {
		t.Fatal("OpenWindow succeeded, want error")
	}
	if len(f.cleanup.paths) != 1 {
		t.Errorf("scheduled removals = %d, want 1", len(f.cleanup.paths))
	}
}

func TestOpenWindow_EngineReportsFailure(t *testing.T) {
	f := newFixture(t)
	f.engine.window = func(string) (engine.WindowScript, error) {
		return engine.WindowScript{Success: false, Error: "no client secret"}, nil
	}

	err := f.coord.OpenWindow(context.Background())
	var re *engine.ReportedError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *engine.ReportedError", err)
	}
	if len(f.launcher.launched) != 0 {
		t.Error("launcher called after a failed prep")
	}
}

func TestOpenWindow_NoLauncher(t *testing.T) {
	c := New(Deps{Engine: &fakeEngine{}, Descriptor: &fakeDescriptor{}})
	if err := c.OpenWindow(context.Background()); !errors.Is(err, ErrWindowUnsupported) {
		t.Fatalf("err = %v, want ErrWindowUnsupported", err)
	}
}

func TestOpenWindow_RelativeScriptPathJoinsWorkDir(t *testing.T) {
	f := newFixture(t)
	f.engine.window = func(string) (engine.WindowScript, error) {
		return engine.WindowScript{Success: true, ScriptPath: "scratch/auth-x.py"}, nil
	}

	if err := f.coord.OpenWindow(context.Background()); err != nil {
		t.Fatalf("OpenWindow: %v", err)
	}
	want := filepath.Join(f.coord.deps.WorkDir, "scratch", "auth-x.py")
	if got := f.launcher.launched[0].Args[0]; got != want {
		t.Errorf("launched script = %q, want %q", got, want)
	}
	if len(f.cleanup.paths) != 1 || f.cleanup.paths[0] != want {
		t.Errorf("scheduled removals = %v, want [%s]", f.cleanup.paths, want)
	}
}
