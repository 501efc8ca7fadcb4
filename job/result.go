package job

import (
	"encoding/json"
)

// Result is the record stored as a completed job's returnvalue
type Result struct {
	URL              string
	ContentType      string
	FileSizeBytes    int64
	ProcessingTimeMs int64

	// Metadata holds executor-specific fields (width, height, durationMs, ...)
	Metadata map[string]interface{}
}

// MarshalJSON flattens Metadata alongside the fixed fields. Fixed fields win
// on key collisions.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Metadata)+4)
	for k, v := range r.Metadata {
		out[k] = v
	}
	out["url"] = r.URL
	out["contentType"] = r.ContentType
	out["fileSizeBytes"] = r.FileSizeBytes
	out["processingTimeMs"] = r.ProcessingTimeMs
	return json.Marshal(out)
}

// Map returns the record as it appears to notification consumers
func (r Result) Map() map[string]interface{} {
	data, err := r.MarshalJSON()
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
