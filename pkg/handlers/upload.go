package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thehanda/countcam-app/pkg/services/ingest"
	"github.com/thehanda/countcam-app/pkg/util"
)

// Room for form fields and multipart framing on top of the clip itself.
const formOverhead = 1 << 20

type jsonUpload struct {
	VideoDataURI       string `json:"videoDataUri"`
	VideoFileName      string `json:"videoFileName"`
	Direction          string `json:"direction"`
	RecordingTimestamp string `json:"recordingTimestamp"`
	RecordingDate      string `json:"recordingDate"`
	RecordingTime      string `json:"recordingTime"`
	UploadSource       string `json:"uploadSource"`
	LocationName       string `json:"locationName"`
}

// HandleUpload accepts one clip as multipart/form-data or JSON, counts the
// visitors in it and answers with the stored record.
func (h *Handler) HandleUpload(c *gin.Context) {
	var (
		in  ingest.Input
		err error
	)
	switch ct := c.ContentType(); ct {
	case gin.MIMEMultipartPOSTForm:
		in, err = h.readMultipart(c)
	case gin.MIMEJSON:
		in, err = h.readJSON(c)
	default:
		err = ingest.UnsupportedContentType(ct)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	rec, err := h.ingest.Process(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) readMultipart(c *gin.Context) (ingest.Input, error) {
	limit := h.ingest.MaxBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+formOverhead)
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		if isBodyTooLarge(err) {
			return ingest.Input{}, ingest.TooLarge(limit)
		}
		return ingest.Input{}, ingest.BadRequest("invalid multipart form: %v", err)
	}

	header, err := c.FormFile("videoFile")
	if err != nil {
		return ingest.Input{}, ingest.BadRequest("videoFile is required")
	}
	if header.Size > limit {
		return ingest.Input{}, ingest.TooLarge(limit)
	}
	f, err := header.Open()
	if err != nil {
		return ingest.Input{}, ingest.BadRequest("cannot read videoFile: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return ingest.Input{}, ingest.BadRequest("cannot read videoFile: %v", err)
	}

	return ingest.Input{
		FileName:           header.Filename,
		ContentType:        header.Header.Get("Content-Type"),
		Data:               data,
		Direction:          c.PostForm("direction"),
		RecordingTimestamp: c.PostForm("recordingTimestamp"),
		RecordingDate:      c.PostForm("recordingDate"),
		RecordingTime:      c.PostForm("recordingTime"),
		UploadSource:       c.PostForm("uploadSource"),
		LocationName:       c.PostForm("locationName"),
	}, nil
}

func (h *Handler) readJSON(c *gin.Context) (ingest.Input, error) {
	limit := h.ingest.MaxBytes()
	// base64 grows the clip by a third.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit/3*4+formOverhead)

	var body jsonUpload
	if err := c.ShouldBindJSON(&body); err != nil {
		if isBodyTooLarge(err) {
			return ingest.Input{}, ingest.TooLarge(limit)
		}
		return ingest.Input{}, ingest.BadRequest("invalid JSON body: %v", err)
	}
	if body.VideoDataURI == "" {
		return ingest.Input{}, ingest.BadRequest("videoDataUri is required")
	}
	mimeType, data, err := util.DecodeDataURI(body.VideoDataURI)
	if err != nil {
		return ingest.Input{}, ingest.BadRequest("videoDataUri: %v", err)
	}

	return ingest.Input{
		FileName:           body.VideoFileName,
		ContentType:        mimeType,
		Data:               data,
		Direction:          body.Direction,
		RecordingTimestamp: body.RecordingTimestamp,
		RecordingDate:      body.RecordingDate,
		RecordingTime:      body.RecordingTime,
		UploadSource:       body.UploadSource,
		LocationName:       body.LocationName,
	}, nil
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
