// Package handlers holds the HTTP API. Every handler answers JSON; error
// bodies have the shape {"error": string, "details"?: any}.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thehanda/countcam-app/pkg/counter"
	"github.com/thehanda/countcam-app/pkg/models"
	"github.com/thehanda/countcam-app/pkg/services/ingest"
)

// Ingester runs the upload pipeline.
type Ingester interface {
	Process(ctx context.Context, in ingest.Input) (*models.VisitorLogRecord, error)
	MaxBytes() int64
}

// History is the read side of the History Store.
type History interface {
	Snapshot(ctx context.Context) ([]models.VisitorLogRecord, error)
	Subscribe(ctx context.Context) (<-chan []models.VisitorLogRecord, func(), error)
}

// UserStore manages accounts for the admin endpoints.
type UserStore interface {
	CreateUser(username, password string, isAdmin bool) error
	DeleteUser(username string) error
	UpdateUserPassword(username, newPassword string) error
	GetAllUsers() ([]models.User, error)
}

// Summary serves cached totals.
type Summary interface {
	GetData() gin.H
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Ingest   Ingester
	History  History
	Users    UserStore
	Summary  Summary
	Health   Pinger
	Location *time.Location
	Log      *zap.Logger
}

type Handler struct {
	ingest   Ingester
	history  History
	users    UserStore
	summary  Summary
	health   Pinger
	location *time.Location
	log      *zap.Logger
	now      func() time.Time
}

func New(d Deps) *Handler {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		ingest:   d.Ingest,
		history:  d.History,
		users:    d.Users,
		summary:  d.Summary,
		health:   d.Health,
		location: loc,
		log:      d.Log,
		now:      time.Now,
	}
}

// writeError maps pipeline errors onto status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	var validation *ingest.ValidationError
	var modelErr *counter.ModelOutputError

	switch {
	case errors.As(err, &validation):
		c.JSON(validation.Status, gin.H{"error": validation.Message})
	case errors.As(err, &modelErr):
		h.log.Warn("model returned unusable output", zap.Error(err), zap.String("raw", modelErr.Raw))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "model returned unusable output", "details": modelErr.Details()})
	case errors.Is(err, ingest.ErrStorage):
		h.log.Error("failed to persist record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": ingest.ErrStorage.Error()})
	default:
		h.log.Error("failed to count visitors", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count visitors", "details": err.Error()})
	}
	_ = c.Error(err)
}

// HandleHealth reports whether the server and its database are reachable.
func (h *Handler) HandleHealth(c *gin.Context) {
	if h.health != nil {
		if err := h.health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) HandleSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.summary.GetData())
}
