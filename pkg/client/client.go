// Package client talks to a countcam server over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/thehanda/countcam-app/pkg/batch"
	"github.com/thehanda/countcam-app/pkg/models"
	"github.com/thehanda/countcam-app/pkg/report"
	"github.com/thehanda/countcam-app/pkg/util"
)

// APIError is a non-2xx answer from the server. The server's details field
// lands in Details when it is an object and in Detail when it is a string.
type APIError struct {
	Status  int
	Message string
	Details map[string]any
	Detail  string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	if reason, ok := e.Details["finishReason"]; ok {
		msg += fmt.Sprintf(" (finish reason %v)", reason)
	}
	if e.Detail != "" {
		msg += fmt.Sprintf(" (%s)", e.Detail)
	}
	return msg
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New returns a client for the server at baseURL. httpClient may be nil.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// SetToken uses an existing session token instead of logging in.
func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) Token() string {
	return c.token
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(req, &out); err != nil {
		return err
	}
	if out.Token == "" {
		return fmt.Errorf("login response carried no token")
	}
	c.token = out.Token
	return nil
}

// Upload sends one clip to POST /upload as multipart/form-data.
func (c *Client) Upload(ctx context.Context, up batch.UploadRequest) (*models.VisitorLogRecord, error) {
	data, err := os.ReadFile(up.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", up.Path, err)
	}
	name := up.FileName
	if name == "" {
		name = filepath.Base(up.Path)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"direction":    string(up.Direction),
		"uploadSource": string(up.UploadSource),
		"locationName": up.LocationName,
	}
	if up.RecordingTimestamp != nil {
		fields["recordingTimestamp"] = up.RecordingTimestamp.Format(time.RFC3339)
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="videoFile"; filename=%q`, name))
	hdr.Set("Content-Type", util.DetectMIME(mime.TypeByExtension(filepath.Ext(name)), data))
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var rec models.VisitorLogRecord
	if err := c.doJSON(req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Records fetches the ordered history, optionally filtered by source.
func (c *Client) Records(ctx context.Context, src models.UploadSource) ([]models.VisitorLogRecord, error) {
	path := "/api/records"
	if src != "" {
		path += "?" + url.Values{"uploadSource": {string(src)}}.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data []models.VisitorLogRecord `json:"data"`
	}
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Export streams the CSV export to w.
func (c *Client) Export(ctx context.Context, mode report.Mode, src models.UploadSource, w io.Writer) error {
	q := url.Values{"mode": {string(mode)}}
	if src != "" {
		q.Set("uploadSource", string(src))
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/records/export?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	// Asking explicitly turns off transparent decompression in net/http.
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	var r io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("decompress export: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	_, err = io.Copy(w, r)
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error   string          `json:"error"`
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		if len(body.Details) > 0 {
			var details any
			if err := json.Unmarshal(body.Details, &details); err == nil {
				switch d := details.(type) {
				case map[string]any:
					apiErr.Details = d
				case string:
					apiErr.Detail = d
				case nil:
				default:
					apiErr.Detail = string(body.Details)
				}
			}
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}
