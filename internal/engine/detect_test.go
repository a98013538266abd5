package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDetect_PrefersExplicitPath(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Skipf("os.Executable: %v", err)
	}
	got, err := Detect(DetectConfig{Preferred: exe})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if filepath.Clean(got) != filepath.Clean(exe) {
		t.Errorf("Detect = %q, want %q", got, exe)
	}
}

func TestDetect_NothingFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := Detect(DetectConfig{Preferred: "definitely-not-an-interpreter"})
	if err == nil {
		t.Fatal("expected error when no interpreter is on PATH")
	}
	if !strings.Contains(err.Error(), "no interpreter found") {
		t.Errorf("error = %q", err)
	}
}
