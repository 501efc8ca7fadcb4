// Package filesystem stores artifacts in a local directory. It is meant for
// development and tests where no object storage is available.
package filesystem

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BranchIntl/bullworker/errors"
	"github.com/BranchIntl/bullworker/sink"
	"github.com/dustin/go-humanize"
)

// Store copies artifacts under a base directory
type Store struct {
	basePath string
	baseURL  string
}

// New creates a Store rooted at basePath. URLs are baseURL + "/" + key, or
// file:// URLs when baseURL is empty.
func New(basePath, baseURL string) (*Store, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, stdErrors.New("filesystem sink: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem sink: ensure base path: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("filesystem sink: resolve base path: %w", err)
	}
	return &Store{basePath: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// BasePath returns the configured root directory
func (s *Store) BasePath() string {
	return s.basePath
}

// Upload copies localPath to the job's output key
func (s *Store) Upload(ctx context.Context, jobID, localPath, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.NewSinkError("upload", localPath, err)
	}

	key, err := sanitizeKey(sink.OutputKey(jobID, contentType))
	if err != nil {
		return "", errors.NewSinkError("upload", localPath, err)
	}

	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", errors.NewSinkError("upload", localPath, fmt.Errorf("ensure directory: %w", err))
	}

	written, err := copyFile(localPath, fullPath)
	if err != nil {
		return "", errors.NewSinkError("upload", localPath, err)
	}

	slog.Info("Stored artifact", "job", jobID, "key", key, "size", humanize.Bytes(uint64(written)))

	if s.baseURL == "" {
		return "file://" + filepath.ToSlash(fullPath), nil
	}
	return s.baseURL + "/" + key, nil
}

// Size returns the size of a local file in bytes
func (s *Store) Size(localPath string) (int64, error) {
	return sink.Size(localPath)
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tmp := dst + ".partial"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return n, os.Rename(tmp, dst)
}

// sanitizeKey normalizes a key and prevents escaping the storage root
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", stdErrors.New("key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return cleaned, nil
}
