package engine

import (
	"fmt"
	"os/exec"
)

// DetectConfig holds parameters for interpreter detection.
type DetectConfig struct {
	Preferred string // explicit interpreter name or path, tried first
}

var interpreterCandidates = []string{"python3", "python", "py"}

// Detect resolves the interpreter that runs the engine script.
func Detect(cfg DetectConfig) (string, error) {
	candidates := interpreterCandidates
	if cfg.Preferred != "" {
		candidates = append([]string{cfg.Preferred}, candidates...)
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no interpreter found (tried %v)", candidates)
}
