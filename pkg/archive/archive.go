// Package archive copies accepted clips to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Uploader puts clips into one bucket.
type Uploader struct {
	client *s3.Client
	bucket string
}

func NewUploader(opts Options) (*Uploader, error) {
	bucket := strings.TrimSpace(opts.Bucket)
	region := strings.TrimSpace(opts.Region)
	if bucket == "" || region == "" {
		return nil, errors.New("incomplete archive config: bucket and region are required")
	}

	s3opts := s3.Options{
		Region:  region,
		Retryer: aws.NopRetryer{},
	}
	accessKey, secretKey := strings.TrimSpace(opts.AccessKey), strings.TrimSpace(opts.SecretKey)
	if accessKey != "" || secretKey != "" {
		if accessKey == "" || secretKey == "" {
			return nil, errors.New("incomplete archive config: both access key and secret key are required")
		}
		s3opts.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""))
	}

	// Custom endpoints (MinIO, R2, ...) are addressed path-style.
	if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		endpoint = strings.TrimSuffix(endpoint, "/")
		parsed, err := url.Parse(endpoint)
		if err != nil || parsed.Host == "" {
			return nil, fmt.Errorf("invalid archive endpoint: %s", opts.Endpoint)
		}
		s3opts.BaseEndpoint = aws.String(endpoint)
		s3opts.UsePathStyle = true
	}

	if opts.HTTPClient != nil {
		s3opts.HTTPClient = opts.HTTPClient
	} else {
		s3opts.HTTPClient = &http.Client{Timeout: 45 * time.Second}
	}

	return &Uploader{client: s3.New(s3opts), bucket: bucket}, nil
}

// ObjectKey is where a clip is stored: clips/<yyyy>/<mm>/<dd>/<id><ext>,
// dated by its UTC processing time.
func ObjectKey(recordID, ext string, processedAt time.Time) string {
	return fmt.Sprintf("clips/%s/%s%s", processedAt.UTC().Format("2006/01/02"), recordID, ext)
}

// Upload stores payload under key and returns the s3:// location.
func (u *Uploader) Upload(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	key = normalizeObjectKey(key)
	if key == "" {
		return "", errors.New("invalid object key")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return "s3://" + u.bucket + "/" + key, nil
}

func normalizeObjectKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimPrefix(key, "/")
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	return key
}
