package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

// helperInvoker re-executes the test binary as a fake engine.
func helperInvoker(timeout time.Duration) *Invoker {
	return &Invoker{
		Command: os.Args[0],
		Env:     []string{"GO_WANT_HELPER_PROCESS=1"},
		Timeout: timeout,
	}
}

func helperArgs(mode string, extra ...string) []string {
	return append([]string{"-test.run=TestHelperProcess", "--", mode}, extra...)
}

// TestHelperProcess is not a real test. It is the fake engine executed by
// the invoker tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}
	mode, rest := args[1], args[2:]

	switch mode {
	case "ok":
		fmt.Println("loading model...")
		fmt.Fprintln(os.Stderr, "some warning")
		fmt.Println(`{"auth_url":"https://accounts.example/auth"}`)
	case "echo-args":
		fmt.Printf("{\"argc\":%d,\"args\":%q}\n", len(rest), strings.Join(rest, "|"))
	case "fail":
		fmt.Fprintln(os.Stderr, "Traceback: token exchange failed")
		os.Exit(3)
	case "hang":
		time.Sleep(30 * time.Second)
	}
	os.Exit(0)
}

func TestInvoke_Success(t *testing.T) {
	res, err := helperInvoker(0).Invoke(context.Background(), helperArgs("ok")...)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "auth_url") {
		t.Errorf("Stdout = %q, want auth_url payload", res.Stdout)
	}
	if !strings.Contains(res.Stderr, "some warning") {
		t.Errorf("Stderr = %q, want warning", res.Stderr)
	}
}

func TestInvoke_ArgumentsAreNotInterpreted(t *testing.T) {
	hostile := `4/0Ab; rm -rf / && echo $(whoami) "quoted"`
	res, err := helperInvoker(0).Invoke(context.Background(), helperArgs("echo-args", hostile, "second")...)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(res.Stdout, `"argc":2`) {
		t.Errorf("Stdout = %q, want exactly two args", res.Stdout)
	}
}

func TestInvoke_NonZeroExit(t *testing.T) {
	res, err := helperInvoker(0).Invoke(context.Background(), helperArgs("fail")...)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("err = %v, want *ExitError", err)
	}
	if exitErr.Code != 3 {
		t.Errorf("Code = %d, want 3", exitErr.Code)
	}
	if !strings.Contains(exitErr.Error(), "token exchange failed") {
		t.Errorf("Error() = %q, want stderr excerpt", exitErr.Error())
	}
	if res.ExitCode != 3 {
		t.Errorf("Result.ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestInvoke_LaunchFailure(t *testing.T) {
	inv := &Invoker{Command: "/nonexistent/autott-engine"}
	_, err := inv.Invoke(context.Background(), "--auth", "/tmp")
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("err = %v, want *LaunchError", err)
	}
	if launchErr.Command != "/nonexistent/autott-engine" {
		t.Errorf("Command = %q", launchErr.Command)
	}
}

func TestInvoke_Timeout(t *testing.T) {
	start := time.Now()
	_, err := helperInvoker(200*time.Millisecond).Invoke(context.Background(), helperArgs("hang")...)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Invoke took %s, want the child killed promptly", elapsed)
	}
}

func TestInvoke_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := helperInvoker(0).Invoke(ctx, helperArgs("hang")...)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
