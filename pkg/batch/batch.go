// Package batch uploads a selection of clips one after another and keeps a
// running progress report.
package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/thehanda/countcam-app/pkg/metadata"
	"github.com/thehanda/countcam-app/pkg/models"
)

var (
	ErrNothingSelected = errors.New("no files selected")
	ErrRunning         = errors.New("a batch is already running")
)

// UploadRequest describes one clip to submit.
type UploadRequest struct {
	Path               string
	FileName           string
	Direction          models.Direction
	RecordingTimestamp *time.Time
	UploadSource       models.UploadSource
	LocationName       string
}

// Uploader submits one clip and returns the stored record.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (*models.VisitorLogRecord, error)
}

type Options struct {
	Direction models.Direction
	// Fallback is used for files whose names carry no timestamp.
	Fallback     *time.Time
	Location     *time.Location
	UploadSource models.UploadSource
	LocationName string
	// OnProgress is called before each file and once after the last.
	OnProgress func(Progress)
}

// Progress is a point-in-time view of a running batch.
type Progress struct {
	Completed int
	Total     int
	// CurrentIndex is zero-based; -1 when no file is in flight.
	CurrentIndex int
	CurrentFile  string
}

// Fraction is Completed/Total, or 0 for an empty batch.
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total)
}

// Result is the outcome for one file.
type Result struct {
	File   string
	Record *models.VisitorLogRecord
	Err    error
}

type Summary struct {
	Succeeded int
	Failed    int
	Results   []Result
}

func (s Summary) String() string {
	return fmt.Sprintf("%d succeeded, %d failed", s.Succeeded, s.Failed)
}

// Controller runs one batch at a time.
type Controller struct {
	uploader Uploader

	mu        sync.Mutex
	selection []string
	progress  Progress
	running   bool
}

func NewController(u Uploader) *Controller {
	return &Controller{uploader: u, progress: Progress{CurrentIndex: -1}}
}

// Select replaces the selection, keeping the given order.
func (c *Controller) Select(files []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrRunning
	}
	c.selection = append([]string(nil), files...)
	c.progress = Progress{Total: len(files), CurrentIndex: -1}
	return nil
}

// Selection returns the files waiting to be uploaded.
func (c *Controller) Selection() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.selection...)
}

func (c *Controller) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Run uploads the selection strictly in order. A failed file is recorded
// and the batch moves on. When ctx is cancelled the remaining files are
// reported as failed without being sent. The selection is cleared at the end.
func (c *Controller) Run(ctx context.Context, opts Options) (Summary, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return Summary{}, ErrRunning
	}
	if len(c.selection) == 0 {
		c.mu.Unlock()
		return Summary{}, ErrNothingSelected
	}
	files := c.selection
	c.running = true
	c.progress = Progress{Total: len(files), CurrentIndex: -1}
	c.mu.Unlock()

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	summary := Summary{Results: make([]Result, 0, len(files))}
	for i, path := range files {
		name := filepath.Base(path)
		c.setProgress(opts.OnProgress, func(p *Progress) {
			p.CurrentIndex = i
			p.CurrentFile = name
		})

		res := Result{File: name}
		if err := ctx.Err(); err != nil {
			res.Err = err
		} else {
			res.Record, res.Err = c.uploader.Upload(ctx, UploadRequest{
				Path:               path,
				FileName:           name,
				Direction:          opts.Direction,
				RecordingTimestamp: metadata.Resolve(name, opts.Fallback, loc),
				UploadSource:       opts.UploadSource,
				LocationName:       opts.LocationName,
			})
		}
		if res.Err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
		summary.Results = append(summary.Results, res)

		c.mu.Lock()
		c.progress.Completed++
		c.mu.Unlock()
	}

	c.setProgress(opts.OnProgress, func(p *Progress) {
		p.CurrentIndex = -1
		p.CurrentFile = ""
	})

	c.mu.Lock()
	c.selection = nil
	c.running = false
	c.mu.Unlock()
	return summary, nil
}

func (c *Controller) setProgress(notify func(Progress), update func(*Progress)) {
	c.mu.Lock()
	update(&c.progress)
	p := c.progress
	c.mu.Unlock()
	if notify != nil {
		notify(p)
	}
}
