// Package sink holds what the result sinks share: the output key layout and
// local file sizing.
package sink

import (
	"os"

	"github.com/BranchIntl/bullworker/errors"
)

var extensions = map[string]string{
	"video/mp4":  "mp4",
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// Extension returns the file extension for a content type, "bin" if unknown
func Extension(contentType string) string {
	if ext, ok := extensions[contentType]; ok {
		return ext
	}
	return "bin"
}

// OutputKey returns the object key for a job's artifact:
// outputs/<jobID>/output.<ext>
func OutputKey(jobID, contentType string) string {
	return "outputs/" + jobID + "/output." + Extension(contentType)
}

// Size returns the size of a local file in bytes
func Size(localPath string) (int64, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return 0, errors.NewSinkError("size", localPath, err)
	}
	if info.IsDir() {
		return 0, errors.NewSinkError("size", localPath, errors.ErrEmptyArtifactPath)
	}
	return info.Size(), nil
}
