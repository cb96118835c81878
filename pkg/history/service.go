package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thehanda/countcam-app/pkg/models"
)

// Announcer tells other instances that a record was appended.
type Announcer interface {
	Announce(ctx context.Context, recordID string) error
}

type subscriber struct {
	ch   chan []models.VisitorLogRecord
	done chan struct{}
	once sync.Once
}

// deliver replaces any snapshot the subscriber has not read yet.
func (s *subscriber) deliver(snapshot []models.VisitorLogRecord) {
	select {
	case s.ch <- snapshot:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- snapshot:
	default:
	}
}

// Service is the History Store used by the rest of the application.
type Service struct {
	repo Repository
	log  *zap.Logger

	now   func() time.Time
	newID func() string

	// publishMu orders snapshot publication so subscribers see writes in order.
	publishMu sync.Mutex
	subsMu    sync.Mutex
	subs      map[int]*subscriber
	nextSub   int

	announcer Announcer
}

func NewService(repo Repository, log *zap.Logger) *Service {
	return &Service{
		repo:  repo,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
		subs:  make(map[int]*subscriber),
	}
}

// SetAnnouncer registers the cross-instance relay. It must be called before
// the service starts handling appends.
func (s *Service) SetAnnouncer(a Announcer) {
	s.announcer = a
}

// Append assigns the id and processing timestamp, persists the record and
// publishes the new snapshot. The returned record is what was stored.
func (s *Service) Append(ctx context.Context, rec models.VisitorLogRecord) (*models.VisitorLogRecord, error) {
	rec.ID = s.newID()
	rec.ProcessingTimestamp = s.now().UTC().Truncate(time.Millisecond)
	if rec.LocationName == "" {
		rec.LocationName = models.DefaultLocationName
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("append visitor log: %w", err)
	}

	if err := s.publish(ctx); err != nil {
		// The record is stored; subscribers catch up on the next change.
		s.log.Error("failed to publish history snapshot", zap.String("id", rec.ID), zap.Error(err))
	}
	if s.announcer != nil {
		if err := s.announcer.Announce(ctx, rec.ID); err != nil {
			s.log.Warn("failed to announce appended record", zap.String("id", rec.ID), zap.Error(err))
		}
	}
	return &rec, nil
}

// Snapshot returns every record, newest first.
func (s *Service) Snapshot(ctx context.Context) ([]models.VisitorLogRecord, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list visitor logs: %w", err)
	}
	return records, nil
}

// Subscribe delivers the current snapshot immediately and every later one
// in write order. A slow reader only ever sees the latest snapshot. The
// subscription ends when ctx is done or cancel is called; the channel is
// closed afterwards. Snapshots are shared and must not be modified.
func (s *Service) Subscribe(ctx context.Context) (<-chan []models.VisitorLogRecord, func(), error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}

	sub := &subscriber{
		ch:   make(chan []models.VisitorLogRecord, 1),
		done: make(chan struct{}),
	}
	sub.ch <- snapshot

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.subsMu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			// Removal under publishMu so no publish is mid-delivery to a closed channel.
			s.publishMu.Lock()
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
			close(sub.ch)
			close(sub.done)
			s.publishMu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return sub.ch, cancel, nil
}

// Refresh re-publishes the current snapshot, e.g. after another instance wrote.
func (s *Service) Refresh(ctx context.Context) error {
	return s.publish(ctx)
}

// SubscriberCount reports the number of live subscriptions.
func (s *Service) SubscriberCount() int {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return len(s.subs)
}

func (s *Service) publish(ctx context.Context) error {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.subsMu.Lock()
	empty := len(s.subs) == 0
	s.subsMu.Unlock()
	if empty {
		return nil
	}

	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		sub.deliver(snapshot)
	}
	return nil
}

// Close releases the storage driver.
func (s *Service) Close(ctx context.Context) error {
	return s.repo.Close(ctx)
}
