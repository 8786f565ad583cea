package fetch

import (
	"bytes"
	"strings"
)

// Heuristic decides when a fetched page needs a headless render. Court sites
// occasionally serve search results as a script shell whose tables only exist
// after JavaScript runs.
type Heuristic struct {
	bodyThreshold int
}

// NewHeuristic creates a detector. A non-positive threshold falls back to
// 2048 bytes.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = 2048
	}
	return &Heuristic{bodyThreshold: threshold}
}

var scriptShellMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
}

// ShouldPromote reports whether the body looks like an unrendered shell.
func (h *Heuristic) ShouldPromote(body []byte) bool {
	if len(body) == 0 {
		return true
	}
	if len(body) < h.bodyThreshold && scriptHeavy(body) {
		return true
	}
	for _, marker := range scriptShellMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptHeavy reports whether script tags cover at least a quarter of the
// document.
func scriptHeavy(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const closeTag = "</script>"
	covered := 0
	pos := 0
	for {
		i := strings.Index(lower[pos:], "<script")
		if i == -1 {
			break
		}
		start := pos + i
		gt := strings.IndexByte(lower[start:], '>')
		if gt == -1 {
			// Malformed tag; count the remainder as script.
			covered += total - start
			break
		}
		contentStart := start + gt + 1
		end := strings.Index(lower[contentStart:], closeTag)
		var next int
		if end == -1 {
			next = total
		} else {
			next = contentStart + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	if covered == 0 {
		return false
	}
	return covered*100/total >= 25
}
