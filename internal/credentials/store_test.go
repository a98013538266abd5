package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_RoundTrip(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "token.json"))

	if ok, err := s.Exists(); err != nil || ok {
		t.Fatalf("Exists = %v, %v; want false, nil", ok, err)
	}
	if _, err := s.Read(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read err = %v, want ErrNotFound", err)
	}

	if err := s.Write([]byte(`{"token":"abc"}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != `{"token":"abc"}` {
		t.Errorf("Read = %s", data)
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		t.Errorf("token perms = %o, want owner-only", perm)
	}
}

func TestFileStore_DeleteIsIdempotent(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	if err := s.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := s.Delete(); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := s.Delete(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete err = %v, want ErrNotFound", err)
	}
	if ok, _ := s.Exists(); ok {
		t.Error("token still exists after Delete")
	}
}

func TestFileStore_WriteReplaces(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nested", "token.json"))
	for _, v := range []string{"first", "second"} {
		if err := s.Write([]byte(v)); err != nil {
			t.Fatalf("Write(%s): %v", v, err)
		}
	}
	data, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("Read = %q, want second", data)
	}

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want only the token", len(entries))
	}
}
