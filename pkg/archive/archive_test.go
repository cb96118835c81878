package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedPut struct {
	method      string
	path        string
	contentType string
	body        []byte
}

func fakeS3(t *testing.T, status int) (*httptest.Server, func() []capturedPut) {
	t.Helper()
	var (
		mu   sync.Mutex
		puts []capturedPut
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, capturedPut{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        body,
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedPut {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedPut(nil), puts...)
	}
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2024, 7, 12, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600))
	assert.Equal(t, "clips/2024/07/13/abc.mp4", ObjectKey("abc", ".mp4", at))
}

func TestNormalizeObjectKey(t *testing.T) {
	assert.Equal(t, "clips/a/b.mp4", normalizeObjectKey(` /clips//a\b.mp4 `))
	assert.Equal(t, "", normalizeObjectKey("/"))
}

func TestNewUploaderValidation(t *testing.T) {
	_, err := NewUploader(Options{Region: "us-east-1"})
	assert.Error(t, err)

	_, err = NewUploader(Options{Bucket: "clips", Region: "us-east-1", AccessKey: "only-half"})
	assert.Error(t, err)

	_, err = NewUploader(Options{Bucket: "clips", Region: "us-east-1", Endpoint: "http://"})
	assert.Error(t, err)

	u, err := NewUploader(Options{Bucket: "clips", Region: "us-east-1"})
	require.NoError(t, err)
	assert.NotNil(t, u)
}

func TestUploadPathStyle(t *testing.T) {
	srv, puts := fakeS3(t, http.StatusOK)
	u, err := NewUploader(Options{
		Bucket:     "museum",
		Region:     "us-east-1",
		Endpoint:   srv.URL,
		AccessKey:  "AKIDEXAMPLE",
		SecretKey:  "secret",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	location, err := u.Upload(context.Background(), "clips/2024/07/12/abc.mp4", []byte("clip-bytes"), "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "s3://museum/clips/2024/07/12/abc.mp4", location)

	got := puts()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPut, got[0].method)
	assert.Equal(t, "/museum/clips/2024/07/12/abc.mp4", got[0].path)
	assert.Equal(t, "video/mp4", got[0].contentType)
	assert.Contains(t, string(got[0].body), "clip-bytes")
}

func TestUploadFailureIsNotRetried(t *testing.T) {
	srv, puts := fakeS3(t, http.StatusInternalServerError)
	u, err := NewUploader(Options{
		Bucket:     "museum",
		Region:     "us-east-1",
		Endpoint:   srv.URL,
		AccessKey:  "AKIDEXAMPLE",
		SecretKey:  "secret",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), "clips/x.mp4", []byte("x"), "")
	assert.Error(t, err)
	assert.Len(t, puts(), 1)
}
