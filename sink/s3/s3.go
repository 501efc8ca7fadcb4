// Package s3 uploads artifacts to S3-compatible object storage such as
// Cloudflare R2.
package s3

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BranchIntl/bullworker/errors"
	"github.com/BranchIntl/bullworker/sink"
	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultPresignExpiry is how long presigned URLs stay valid
const DefaultPresignExpiry = 7 * 24 * time.Hour

// Options configures the S3 sink
type Options struct {
	// Endpoint is a URL ("https://<account>.r2.cloudflarestorage.com") or a
	// bare host, which implies TLS
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// Region defaults to "auto", which R2 expects
	Region string
	// PublicURL, when set, is used to build returned URLs instead of
	// presigning
	PublicURL string
	// PresignExpiry defaults to DefaultPresignExpiry
	PresignExpiry time.Duration
}

// Store uploads artifacts to a bucket
type Store struct {
	client  *minio.Client
	options Options
}

// New creates an S3 sink. No request is made until the first upload.
func New(options Options) (*Store, error) {
	if options.Bucket == "" {
		return nil, stdErrors.New("s3 sink: bucket is required")
	}
	if options.Region == "" {
		options.Region = "auto"
	}
	if options.PresignExpiry <= 0 {
		options.PresignExpiry = DefaultPresignExpiry
	}
	options.PublicURL = strings.TrimRight(options.PublicURL, "/")

	host, secure, err := parseEndpoint(options.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(options.AccessKey, options.SecretKey, ""),
		Secure: secure,
		Region: options.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 sink: create client: %w", err)
	}

	return &Store{client: client, options: options}, nil
}

func parseEndpoint(endpoint string) (string, bool, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", false, stdErrors.New("s3 sink: endpoint is required")
	}
	if !strings.Contains(endpoint, "://") {
		return strings.TrimRight(endpoint, "/"), true, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("s3 sink: invalid endpoint: %w", err)
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("s3 sink: unsupported endpoint scheme %q", u.Scheme)
	}
}

// Upload puts localPath at outputs/<jobID>/output.<ext> and returns a URL
// for it
func (s *Store) Upload(ctx context.Context, jobID, localPath, contentType string) (string, error) {
	key := sink.OutputKey(jobID, contentType)

	info, err := s.client.FPutObject(ctx, s.options.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", errors.NewSinkError("upload", localPath, err)
	}

	slog.Info("Uploaded artifact", "job", jobID, "bucket", s.options.Bucket, "key", key,
		"size", humanize.Bytes(uint64(info.Size)))

	return s.URL(ctx, key)
}

// URL returns the public URL for key, or a presigned GET URL when no public
// URL is configured
func (s *Store) URL(ctx context.Context, key string) (string, error) {
	if s.options.PublicURL != "" {
		return s.options.PublicURL + "/" + key, nil
	}

	u, err := s.client.PresignedGetObject(ctx, s.options.Bucket, key, s.options.PresignExpiry, url.Values{})
	if err != nil {
		return "", errors.NewSinkError("presign", key, err)
	}
	return u.String(), nil
}

// Size returns the size of a local file in bytes
func (s *Store) Size(localPath string) (int64, error) {
	return sink.Size(localPath)
}
