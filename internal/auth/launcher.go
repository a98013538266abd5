package auth

import (
	"fmt"
	"log/slog"
	"os/exec"
)

// Command describes a program to launch. Args are passed verbatim, never
// through a shell.
type Command struct {
	Path string
	Args []string
	Dir  string
}

// Launcher opens a program in a new console window and does not wait for it.
type Launcher interface {
	Launch(cmd Command) error
}

// start starts c and reaps it in the background.
func start(c *exec.Cmd) error {
	if err := c.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", c.Path, err)
	}
	go func() {
		if err := c.Wait(); err != nil {
			slog.Debug("launched window exited", "command", c.Path, "error", err)
		}
	}()
	return nil
}
