// Package countertest provides a scripted counter.Counter for tests.
package countertest

import (
	"context"
	"sync"

	"github.com/thehanda/countcam-app/pkg/counter"
	"github.com/thehanda/countcam-app/pkg/models"
)

// Fake answers every Count call with Result or Err. When Result is nil the
// requested direction is echoed with Visitors as the count.
type Fake struct {
	mu       sync.Mutex
	Result   *counter.Result
	Err      error
	Visitors int
	Requests []counter.Request
	// FailFor makes calls for these file names fail with Err.
	FailFor map[string]bool
}

func (f *Fake) Count(_ context.Context, req counter.Request) (*counter.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)

	if f.Err != nil && (f.FailFor == nil || f.FailFor[req.FileName]) {
		return nil, f.Err
	}
	if f.Result != nil {
		res := *f.Result
		res.DirectionMismatch = res.CountedDirection != req.Direction
		return &res, nil
	}
	return &counter.Result{
		VisitorCount:     f.Visitors,
		CountedDirection: req.Direction,
		FinishReason:     "stop",
	}, nil
}

// Calls returns the number of Count calls so far.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}

// LastDirection returns the direction of the most recent request.
func (f *Fake) LastDirection() models.Direction {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Requests) == 0 {
		return ""
	}
	return f.Requests[len(f.Requests)-1].Direction
}
