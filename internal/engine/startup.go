package engine

import (
	"fmt"
	"io"
	"os"
)

// EnsureReady checks that the engine script and project root exist and
// reports each check to w.
func EnsureReady(script, root string, w io.Writer) error {
	if script != "" {
		if _, err := os.Stat(script); err != nil {
			return fmt.Errorf("engine script %s: %w", script, err)
		}
		fmt.Fprintf(w, "engine script %s: ready\n", script)
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("project root %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project root %s is not a directory", root)
	}
	fmt.Fprintf(w, "project root %s: ready\n", root)
	return nil
}
