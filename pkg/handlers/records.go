package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/thehanda/countcam-app/pkg/models"
	"github.com/thehanda/countcam-app/pkg/report"
)

// sourceFilter reads ?uploadSource=. An absent value means no filtering.
func sourceFilter(c *gin.Context) (models.UploadSource, bool) {
	raw := strings.TrimSpace(c.Query("uploadSource"))
	if raw == "" {
		return "", true
	}
	return models.ParseUploadSource(raw)
}

// HandleRecords returns the ordered history, newest first.
func (h *Handler) HandleRecords(c *gin.Context) {
	src, ok := sourceFilter(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uploadSource must be ui or api"})
		return
	}

	records, err := h.history.Snapshot(c.Request.Context())
	if err != nil {
		h.log.Error("failed to load history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": models.FilterBySource(records, src)})
}

// HandleExport serves the history as CSV, gzip-compressed when the client
// accepts it.
func (h *Handler) HandleExport(c *gin.Context) {
	mode, err := report.ParseMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	src, ok := sourceFilter(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uploadSource must be ui or api"})
		return
	}

	records, err := h.history.Snapshot(c.Request.Context())
	if err != nil {
		h.log.Error("failed to load history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, mode, models.FilterBySource(records, src), h.location); err != nil {
		h.log.Error("failed to render export", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render export"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.FileName(mode, h.now().In(h.location))))
	c.Header("Vary", "Accept-Encoding")

	body := buf.Bytes()
	if acceptsGzip(c.GetHeader("Accept-Encoding")) {
		var gz bytes.Buffer
		zw := gzip.NewWriter(&gz)
		if _, err := zw.Write(body); err == nil {
			err = zw.Close()
		}
		if err != nil {
			h.log.Error("failed to compress export", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render export"})
			return
		}
		c.Header("Content-Encoding", "gzip")
		body = gz.Bytes()
	}
	c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
}

// acceptsGzip reports whether an Accept-Encoding header allows gzip.
func acceptsGzip(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		coding = strings.ToLower(strings.TrimSpace(coding))
		if coding != "gzip" && coding != "*" {
			continue
		}
		q := strings.TrimSpace(params)
		if v, found := strings.CutPrefix(q, "q="); found {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f == 0 {
				continue
			}
		}
		return true
	}
	return false
}
