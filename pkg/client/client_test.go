package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thehanda/countcam-app/pkg/batch"
	"github.com/thehanda/countcam-app/pkg/models"
	"github.com/thehanda/countcam-app/pkg/report"
)

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/login", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"tok-1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", nil)
	err := c.Login(context.Background(), "admin", "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid credentials", apiErr.Message)

	require.NoError(t, c.Login(context.Background(), "admin", "secret"))
	assert.Equal(t, "tok-1", c.Token())
}

func TestUploadSendsMultipartForm(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "20240712_143000.mp4")
	require.NoError(t, os.WriteFile(path, []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom"), 0o644))

	ts := time.Date(2024, 7, 12, 14, 30, 0, 0, time.FixedZone("JST", 9*3600))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "entering", r.FormValue("direction"))
		assert.Equal(t, "2024-07-12T14:30:00+09:00", r.FormValue("recordingTimestamp"))
		assert.Equal(t, "ui", r.FormValue("uploadSource"))
		assert.Equal(t, "Gate A", r.FormValue("locationName"))

		f, hdr, err := r.FormFile("videoFile")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "20240712_143000.mp4", hdr.Filename)
		assert.Equal(t, "video/mp4", hdr.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"rec-1","visitorCount":4,"countedDirection":"entering","uploadSource":"ui"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	c.SetToken("tok")
	rec, err := c.Upload(context.Background(), batch.UploadRequest{
		Path:               path,
		Direction:          models.DirectionEntering,
		RecordingTimestamp: &ts,
		UploadSource:       models.SourceUI,
		LocationName:       "Gate A",
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, 4, rec.VisitorCount)
}

func TestUploadReportsModelDetails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("clip"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model returned unusable output","details":{"finishReason":"content_filter"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).Upload(context.Background(), batch.UploadRequest{Path: path, Direction: models.DirectionBoth})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "content_filter", apiErr.Details["finishReason"])
	assert.Contains(t, err.Error(), "finish reason content_filter")
}

func TestUploadReportsStringDetails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("clip"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"details":"model request failed: connection refused","error":"failed to count visitors"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).Upload(context.Background(), batch.UploadRequest{Path: path, Direction: models.DirectionBoth})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "failed to count visitors", apiErr.Message)
	assert.Equal(t, "model request failed: connection refused", apiErr.Detail)
	assert.Nil(t, apiErr.Details)
	assert.Equal(t, "server returned 500: failed to count visitors (model request failed: connection refused)", err.Error())
}

func TestUploadReportsPlainTextError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("clip"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).Upload(context.Background(), batch.UploadRequest{Path: path})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "bad gateway", apiErr.Message)
}

func TestUploadMissingFile(t *testing.T) {
	_, err := New("http://127.0.0.1:0", nil).Upload(context.Background(), batch.UploadRequest{Path: "/does/not/exist.mp4"})
	assert.Error(t, err)
}

func TestRecordsPassesSourceFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/records", r.URL.Path)
		assert.Equal(t, "api", r.URL.Query().Get("uploadSource"))
		_, _ = w.Write([]byte(`{"data":[{"id":"a","uploadSource":"api"},{"id":"b","uploadSource":"api"}]}`))
	}))
	defer srv.Close()

	recs, err := New(srv.URL, nil).Records(context.Background(), models.SourceAPI)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
}

func TestExportDecompressesGzip(t *testing.T) {
	const csv = "Date,Hour,Entering,Exiting,Both,Total\n2024-07-12,14:00,4,0,0,4\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "hourly", r.URL.Query().Get("mode"))
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write([]byte(csv))
		_ = zw.Close()
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, New(srv.URL, nil).Export(context.Background(), report.ModeHourly, "", &out))
	assert.Equal(t, csv, out.String())
}

func TestExportPlainAndError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mode") != "raw" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unknown export mode"}`))
			return
		}
		_, _ = w.Write([]byte("ID\n"))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	var out bytes.Buffer
	require.NoError(t, c.Export(context.Background(), report.ModeRaw, models.SourceUI, &out))
	assert.Equal(t, "ID\n", out.String())

	err := c.Export(context.Background(), report.Mode("weekly"), "", &out)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}
