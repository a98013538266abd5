//go:build !windows

package auth

import "os/exec"

// TerminalLauncher runs commands through a terminal emulator's -e option.
type TerminalLauncher struct {
	Terminal string
}

// NewLauncher returns the platform launcher.
func NewLauncher(terminal string) Launcher {
	if terminal == "" {
		terminal = "x-terminal-emulator"
	}
	return TerminalLauncher{Terminal: terminal}
}

func (l TerminalLauncher) Launch(cmd Command) error {
	return start(l.command(cmd))
}

func (l TerminalLauncher) command(cmd Command) *exec.Cmd {
	args := append([]string{"-e", cmd.Path}, cmd.Args...)
	c := exec.Command(l.Terminal, args...)
	c.Dir = cmd.Dir
	return c
}
