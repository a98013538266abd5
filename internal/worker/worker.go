// Package worker runs deferred filesystem cleanup queued in the job table.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/autott/autott/internal/storage"
)

// JobRemovePath deletes a single file or directory once its delay expires.
const JobRemovePath = "remove_path"

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	PruneJobs(cutoff time.Time) (int64, error)
	RequeueStaleJobs(cutoff time.Time) (int64, error)
}

type removePayload struct {
	Path string `json:"path"`
}

// Scheduler queues delayed removals.
type Scheduler struct {
	store JobStore
}

// NewScheduler returns a Scheduler backed by store.
func NewScheduler(store JobStore) *Scheduler {
	return &Scheduler{store: store}
}

// ScheduleRemoval queues path for deletion after delay.
func (s *Scheduler) ScheduleRemoval(path string, delay time.Duration) error {
	payload, err := json.Marshal(removePayload{Path: path})
	if err != nil {
		return fmt.Errorf("encoding removal payload: %w", err)
	}
	return s.store.EnqueueJob(storage.Job{
		ID:          uuid.NewString(),
		Type:        JobRemovePath,
		PayloadJSON: string(payload),
		RunAfter:    time.Now().Add(delay),
		MaxAttempts: 5,
	})
}

// Finished jobs are kept for a day and pruned at most hourly. A claim not
// finished within jobLease is handed back to the queue.
const (
	jobRetention = 24 * time.Hour
	pruneEvery   = time.Hour
	jobLease     = 10 * time.Minute
)

// Worker processes remove_path jobs. Paths outside root are refused.
type Worker struct {
	store     JobStore
	root      string
	poll      time.Duration
	lastPrune time.Time
	logger    *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 1s.
func NewWorker(store JobStore, root string, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		store:  store,
		root:   root,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled. Claims left running by an
// earlier process are requeued first.
func (w *Worker) Run(ctx context.Context) {
	w.requeue(time.Now())
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}
		w.prune(time.Now())

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single due job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobRemovePath})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(job); err != nil {
		w.logger.Warn("cleanup job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// prune drops finished jobs older than jobRetention and requeues claims
// older than jobLease.
func (w *Worker) prune(now time.Time) {
	if now.Sub(w.lastPrune) < pruneEvery {
		return
	}
	w.lastPrune = now
	w.requeue(now.Add(-jobLease))
	n, err := w.store.PruneJobs(now.Add(-jobRetention))
	if err != nil {
		w.logger.Warn("pruning finished jobs", "error", err)
		return
	}
	if n > 0 {
		w.logger.Debug("pruned finished jobs", "count", n)
	}
}

func (w *Worker) requeue(cutoff time.Time) {
	n, err := w.store.RequeueStaleJobs(cutoff)
	if err != nil {
		w.logger.Warn("requeueing stale jobs", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("requeued stale jobs", "count", n)
	}
}

func (w *Worker) processJob(job *storage.Job) error {
	var payload removePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if !w.within(payload.Path) {
		return fmt.Errorf("refusing to remove %q outside %q", payload.Path, w.root)
	}

	err := os.RemoveAll(payload.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", payload.Path, err)
	}
	w.logger.Debug("removed path", "path", payload.Path, "job_id", job.ID)
	return nil
}

func (w *Worker) within(path string) bool {
	if path == "" || !filepath.IsAbs(path) {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
