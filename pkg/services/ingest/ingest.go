// Package ingest is the upload pipeline: validate the clip and its sidecar
// fields, have the model count it, then append the result to the history.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thehanda/countcam-app/pkg/counter"
	"github.com/thehanda/countcam-app/pkg/jobs"
	"github.com/thehanda/countcam-app/pkg/metadata"
	"github.com/thehanda/countcam-app/pkg/models"
	"github.com/thehanda/countcam-app/pkg/util"
)

// Input is one clip with its sidecar fields, as received.
type Input struct {
	FileName           string
	ContentType        string
	Data               []byte
	Direction          string
	RecordingTimestamp string
	RecordingDate      string
	RecordingTime      string
	UploadSource       string
	LocationName       string
}

// Appender persists a record and returns it with its store-assigned fields.
type Appender interface {
	Append(ctx context.Context, rec models.VisitorLogRecord) (*models.VisitorLogRecord, error)
}

// Enqueuer queues background jobs.
type Enqueuer interface {
	Create(ctx context.Context, jobType string, payload any) (int64, error)
}

type Options struct {
	MaxBytes int64
	Location *time.Location
	// SpoolDir and Queue enable clip archival when both are set.
	SpoolDir string
	Queue    Enqueuer
}

type Pipeline struct {
	counter counter.Counter
	store   Appender
	opts    Options
	log     *zap.Logger
}

func New(c counter.Counter, store Appender, opts Options, log *zap.Logger) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Pipeline{counter: c, store: store, opts: opts, log: log}
}

// MaxBytes is the size cap for one clip.
func (p *Pipeline) MaxBytes() int64 {
	return p.opts.MaxBytes
}

type validated struct {
	mimeType  string
	direction models.Direction
	source    models.UploadSource
	location  string
	recording *time.Time
}

func (p *Pipeline) validate(in Input) (*validated, error) {
	if len(in.Data) == 0 {
		return nil, BadRequest("videoFile is required")
	}
	if p.opts.MaxBytes > 0 && int64(len(in.Data)) > p.opts.MaxBytes {
		return nil, TooLarge(p.opts.MaxBytes)
	}

	mimeType := util.DetectMIME(in.ContentType, in.Data)
	if !strings.HasPrefix(mimeType, "video/") {
		return nil, unsupported("file must be a video, got %q", mimeType)
	}

	direction, ok := models.ParseDirection(in.Direction)
	if !ok {
		return nil, BadRequest("direction must be one of entering, exiting, both; got %q", in.Direction)
	}
	source, ok := models.ParseUploadSource(in.UploadSource)
	if !ok {
		return nil, BadRequest("uploadSource must be ui or api; got %q", in.UploadSource)
	}

	recording, err := p.recordingTime(in)
	if err != nil {
		return nil, err
	}

	location := strings.TrimSpace(in.LocationName)
	if location == "" {
		location = models.DefaultLocationName
	}

	return &validated{
		mimeType:  mimeType,
		direction: direction,
		source:    source,
		location:  location,
		recording: recording,
	}, nil
}

// recordingTime prefers the RFC 3339 timestamp, then the separate date and
// time fields, then a timestamp in the file name, all read in the configured
// location. With none of them the recording time is unknown.
func (p *Pipeline) recordingTime(in Input) (*time.Time, error) {
	if ts := strings.TrimSpace(in.RecordingTimestamp); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, BadRequest("recordingTimestamp must be RFC 3339 with an offset, got %q", ts)
		}
		return &t, nil
	}

	date, clock := strings.TrimSpace(in.RecordingDate), strings.TrimSpace(in.RecordingTime)
	switch {
	case date == "" && clock == "":
		return metadata.Resolve(in.FileName, nil, p.opts.Location), nil
	case date == "":
		return nil, BadRequest("recordingDate is required with recordingTime")
	case clock == "":
		return nil, BadRequest("recordingTime is required with recordingDate")
	}
	t, err := metadata.ParseDateTime(date, clock, p.opts.Location)
	if err != nil {
		return nil, BadRequest("%v", err)
	}
	return &t, nil
}

// Process runs the whole pipeline for one clip. Validation failures are
// *ValidationError, model failures come from the counter unchanged, and
// storage failures wrap ErrStorage. Nothing is written unless the model
// succeeded.
func (p *Pipeline) Process(ctx context.Context, in Input) (*models.VisitorLogRecord, error) {
	v, err := p.validate(in)
	if err != nil {
		return nil, err
	}

	result, err := p.counter.Count(ctx, counter.Request{
		VideoDataURI: util.EncodeDataURI(v.mimeType, in.Data),
		Direction:    v.direction,
		FileName:     in.FileName,
	})
	if err != nil {
		return nil, err
	}

	rec, err := p.store.Append(ctx, models.VisitorLogRecord{
		VisitorCount:           result.VisitorCount,
		CountedDirection:       result.CountedDirection,
		DirectionMismatch:      result.DirectionMismatch,
		VideoFileName:          in.FileName,
		RecordingStartDateTime: v.recording,
		UploadSource:           v.source,
		LocationName:           v.location,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	p.log.Info("clip counted",
		zap.String("id", rec.ID),
		zap.String("file", rec.VideoFileName),
		zap.String("direction", string(rec.CountedDirection)),
		zap.Int("visitors", rec.VisitorCount),
		zap.Bool("mismatch", rec.DirectionMismatch),
	)

	p.archive(ctx, rec, v.mimeType, in.Data)
	return rec, nil
}

// archive spools the clip and queues its upload. Failures are logged only.
func (p *Pipeline) archive(ctx context.Context, rec *models.VisitorLogRecord, mimeType string, data []byte) {
	if p.opts.Queue == nil || p.opts.SpoolDir == "" {
		return
	}

	ext := util.ExtensionFor(rec.VideoFileName, mimeType)
	spoolPath := filepath.Join(p.opts.SpoolDir, rec.ID+ext)
	if err := os.MkdirAll(p.opts.SpoolDir, 0755); err != nil {
		p.log.Error("failed to create spool directory", zap.Error(err))
		return
	}
	if err := os.WriteFile(spoolPath, data, 0644); err != nil {
		p.log.Error("failed to spool clip", zap.String("id", rec.ID), zap.Error(err))
		return
	}

	payload := jobs.ArchiveClipPayload{
		RecordID:    rec.ID,
		SpoolPath:   spoolPath,
		FileName:    rec.VideoFileName,
		ContentType: mimeType,
		Extension:   ext,
		ProcessedAt: rec.ProcessingTimestamp.Format(time.RFC3339Nano),
	}
	if _, err := p.opts.Queue.Create(ctx, jobs.TypeArchiveClip, payload); err != nil {
		p.log.Error("failed to queue clip archival", zap.String("id", rec.ID), zap.Error(err))
		_ = os.Remove(spoolPath)
	}
}
