package cachedstats

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thehanda/countcam-app/pkg/models"
	"github.com/thehanda/countcam-app/pkg/stats"
)

const refreshInterval = 30 * time.Second

// RecordSource supplies the ordered visitor history.
type RecordSource interface {
	Snapshot(ctx context.Context) ([]models.VisitorLogRecord, error)
}

// JobCounter reports queued job counts by status.
type JobCounter interface {
	Counts(ctx context.Context) (map[string]int, error)
}

// CachedStats holds the summary served by /api/summary so requests never
// walk the history or probe the host themselves.
type CachedStats struct {
	sync.RWMutex
	Data          gin.H
	isInitialized bool

	records RecordSource
	jobs    JobCounter
	dataDir string
	log     *zap.Logger

	// systemInfo is swapped in tests.
	systemInfo func(ctx context.Context, dataDir string) stats.SystemInfo
}

func New(records RecordSource, jobs JobCounter, dataDir string, log *zap.Logger) *CachedStats {
	return &CachedStats{
		Data:       make(gin.H),
		records:    records,
		jobs:       jobs,
		dataDir:    dataDir,
		log:        log,
		systemInfo: stats.GetSystemInfo,
	}
}

// RunUpdater refreshes the cache immediately and then every 30 seconds
// until ctx is cancelled.
func (cs *CachedStats) RunUpdater(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	go func() {
		defer ticker.Stop()
		for {
			cs.Update(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (cs *CachedStats) Update(ctx context.Context) {
	data := gin.H{
		"system_info": cs.systemInfo(ctx, cs.dataDir),
		"updated_at":  time.Now().UTC().Format(time.RFC3339),
	}

	if records, err := cs.records.Snapshot(ctx); err != nil {
		cs.log.Warn("failed to read history for summary", zap.Error(err))
		data["totals"] = nil
	} else {
		data["totals"] = stats.Totals(records)
	}

	if cs.jobs != nil {
		if counts, err := cs.jobs.Counts(ctx); err != nil {
			cs.log.Warn("failed to count jobs for summary", zap.Error(err))
		} else {
			data["jobs"] = counts
		}
	}

	cs.Lock()
	defer cs.Unlock()
	cs.Data = data
	cs.isInitialized = true
}

func (cs *CachedStats) GetData() gin.H {
	cs.RLock()
	defer cs.RUnlock()
	if !cs.isInitialized {
		return gin.H{"is_loading": true}
	}
	return cs.Data
}
