package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureReady_AllPresent(t *testing.T) {
	root := t.TempDir()
	script := filepath.Join(root, "calendar_sync.py")
	if err := os.WriteFile(script, []byte("print('{}')\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := EnsureReady(script, root, &buf); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if !strings.Contains(buf.String(), "ready") {
		t.Errorf("output = %q, want readiness lines", buf.String())
	}
}

func TestEnsureReady_MissingScript(t *testing.T) {
	root := t.TempDir()
	err := EnsureReady(filepath.Join(root, "missing.py"), root, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for missing script")
	}
}

func TestEnsureReady_RootIsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := EnsureReady("", f, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error when root is a file")
	}
}
