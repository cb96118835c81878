package util

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataURIRoundTrip(t *testing.T) {
	payload := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2'}

	uri := EncodeDataURI("video/mp4", payload)
	assert.Equal(t, "data:video/mp4;base64,AAAAGGZ0eXBtcDQy", uri)

	mimeType, data, err := DecodeDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", mimeType)
	assert.Equal(t, payload, data)
}

func TestDecodeDataURIErrors(t *testing.T) {
	for _, uri := range []string{
		"",
		"video/mp4;base64,AAAA",
		"data:video/mp4;base64",
		"data:video/mp4,plain",
		"data:video/mp4;base64,!!!",
	} {
		_, _, err := DecodeDataURI(uri)
		assert.True(t, errors.Is(err, ErrInvalidDataURI), "uri %q", uri)
	}
}

func TestDetectMIME(t *testing.T) {
	mp4 := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00, 'i', 's', 'o', 'm', 'm', 'p', '4', '2'}

	assert.Equal(t, "video/quicktime", DetectMIME("video/quicktime", mp4))
	assert.Equal(t, "video/webm", DetectMIME("video/webm; codecs=vp9", nil))
	assert.Equal(t, "video/mp4", DetectMIME("application/octet-stream", mp4))
	assert.Equal(t, "video/mp4", DetectMIME("", mp4))
	assert.Equal(t, "text/plain; charset=utf-8", DetectMIME("", []byte("hello world")))
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".mp4", ExtensionFor("20240712_143000.MP4", "video/mp4"))
	assert.Equal(t, ".webm", ExtensionFor("clip", "video/webm"))
	assert.Equal(t, ".bin", ExtensionFor("clip.", "application/x-unknown"))
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")

	assert.False(t, FileExists(path))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	assert.True(t, FileExists(path))
}
