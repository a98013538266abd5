package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweep removes staging areas last modified more than maxAge ago. These are
// left behind only when the process dies mid-request.
func (s *Stager) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("listing staging root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// StartSweeper runs Sweep on a cron schedule such as "@every 10m". The
// returned stop function waits for a running sweep to finish.
func (s *Stager) StartSweeper(spec string, maxAge time.Duration) (stop func(), err error) {
	c := cron.New()
	_, err = c.AddFunc(spec, func() {
		n, err := s.Sweep(maxAge)
		if err != nil {
			s.logger.Warn("sweeping staging areas", "error", err)
		}
		if n > 0 {
			s.logger.Info("removed stale staging areas", "count", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
