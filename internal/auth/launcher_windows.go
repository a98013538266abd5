//go:build windows

package auth

import "os/exec"

// ConsoleLauncher runs commands in a fresh console host window.
type ConsoleLauncher struct{}

// NewLauncher returns the platform launcher. The terminal setting is not
// used on Windows.
func NewLauncher(string) Launcher {
	return ConsoleLauncher{}
}

func (ConsoleLauncher) Launch(cmd Command) error {
	args := append([]string{cmd.Path}, cmd.Args...)
	c := exec.Command("conhost.exe", args...)
	c.Dir = cmd.Dir
	return start(c)
}
