// Package subtitle reads and writes SubRip (.srt) caption files.
package subtitle

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"video-insights-go/internal/types"
)

// ErrNoSegments is returned when a file holds no caption entries.
var ErrNoSegments = errors.New("subtitle contains no segments")

var reTiming = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})`)

// Parse decodes SRT content into segments ordered as they appear.
func Parse(content string) ([]types.Segment, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var (
		segments []types.Segment
		current  *types.Segment
		text     []string
		lineNo   int
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimSpace(strings.Join(text, "\n"))
		segments = append(segments, *current)
		current = nil
		text = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if m := reTiming.FindStringSubmatch(line); m != nil {
			flush()
			start, end := clock(m[1:5]), clock(m[5:9])
			if end < start {
				return nil, fmt.Errorf("line %d: end %s before start %s", lineNo, end, start)
			}
			current = &types.Segment{Index: len(segments) + 1, Start: start, End: end}
			continue
		}

		if current == nil {
			// sequence numbers and stray blank lines before a timing line
			if line == "" || isIndex(line) {
				continue
			}
			return nil, fmt.Errorf("line %d: text outside of a cue: %q", lineNo, line)
		}

		if line == "" {
			flush()
			continue
		}
		text = append(text, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read subtitle: %w", err)
	}
	flush()

	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	return segments, nil
}

// Format renders segments as SRT, numbering them from 1.
func Format(segments []types.Segment) string {
	var b strings.Builder
	for i, s := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, Timestamp(s.Start), Timestamp(s.End), strings.TrimSpace(s.Text))
	}
	return b.String()
}

// Text joins the caption text of all segments, one per line.
func Text(segments []types.Segment) string {
	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}

// Timestamp formats d as HH:MM:SS,mmm.
func Timestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func clock(parts []string) time.Duration {
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	s, _ := strconv.Atoi(parts[2])
	frac := parts[3]
	for len(frac) < 3 {
		frac += "0"
	}
	ms, _ := strconv.Atoi(frac)
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond
}

func isIndex(line string) bool {
	_, err := strconv.Atoi(line)
	return err == nil
}
