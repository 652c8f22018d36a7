package analysis

import (
	"encoding/json"
	"strings"

	"video-insights-go/internal/types"
)

// Parse extracts the JSON object from a model completion. A completion that
// is a single object, optionally fenced, is returned as is. Otherwise the
// longest top-level object embedded in surrounding prose wins, so a stray
// "{}" in a preamble cannot stand in for the real document. The object bytes
// are kept as produced.
func Parse(completion string) (types.AnalysisResult, error) {
	s := strings.TrimSpace(strings.ReplaceAll(completion, "\r\n", "\n"))
	if s == "" {
		return nil, ErrEmptyCompletion
	}
	s = strings.TrimSpace(stripFences(s))
	if strings.HasPrefix(s, "{") && json.Valid([]byte(s)) {
		return types.AnalysisResult(s), nil
	}

	var best json.RawMessage
	for offset := 0; offset < len(s); {
		i := strings.IndexByte(s[offset:], '{')
		if i < 0 {
			break
		}
		start := offset + i

		var raw json.RawMessage
		dec := json.NewDecoder(strings.NewReader(s[start:]))
		if err := dec.Decode(&raw); err != nil {
			offset = start + 1
			continue
		}
		if len(raw) > len(best) {
			best = raw
		}
		offset = start + int(dec.InputOffset())
	}
	if best == nil {
		return nil, ErrInvalidJSON
	}
	return types.AnalysisResult(best), nil
}

// stripFences removes ```json ... ``` style wrappers anywhere in s.
func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
