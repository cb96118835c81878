package spool

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Janitor removes spooled clips that were never archived, e.g. because their
// archive job failed.
type Janitor struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func NewJanitor(dir string, maxAge time.Duration, log *zap.Logger) *Janitor {
	return &Janitor{
		dir:      dir,
		maxAge:   maxAge,
		interval: time.Hour,
		log:      log,
		now:      time.Now,
	}
}

// Start sweeps once an hour until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	j.log.Info("Starting spool cleanup scheduler", zap.String("dir", j.dir), zap.Duration("max_age", j.maxAge))
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := j.Sweep()
			if err != nil {
				j.log.Error("Error cleaning up spool", zap.Error(err))
				continue
			}
			if removed > 0 {
				j.log.Info("Spool cleanup complete", zap.Int("removed", removed))
			}
		}
	}
}

// Sweep deletes regular files in the spool older than the retention period.
// A missing spool directory is not an error.
func (j *Janitor) Sweep() (int, error) {
	if j.maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			j.log.Warn("failed to remove spooled clip", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
