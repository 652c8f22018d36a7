package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// UploadRequest is one client upload as received by the transport.
type UploadRequest struct {
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
}

// StoredMedia is the persisted copy of an upload inside the upload directory.
type StoredMedia struct {
	ID           string `json:"id"`
	Path         string `json:"path"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
}

// Segment is one timed caption entry.
type Segment struct {
	Index int           `json:"index"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// SubtitleArtifact is the transcript written for one request.
type SubtitleArtifact struct {
	Path     string    `json:"path"`
	Segments []Segment `json:"segments"`
}

// AnalysisResult holds the model's JSON object exactly as it was produced.
type AnalysisResult json.RawMessage

// MarshalJSON writes the stored document unchanged.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// Fields decodes the document into a generic map.
func (r AnalysisResult) Fields() (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(r, &out); err != nil {
		return nil, fmt.Errorf("decode analysis result: %w", err)
	}
	return out, nil
}
