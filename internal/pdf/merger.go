// Package pdf merges opinion fragments into a single document.
package pdf

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/texapp/opinion-harvester/internal/harvest"
)

// Merger concatenates PDFs with pdfcpu.
type Merger struct{}

// NewMerger returns a Merger.
func NewMerger() *Merger {
	return &Merger{}
}

// Merge writes the pages of inputs, in order, to output.
func (m *Merger) Merge(inputs []string, output string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no input files to merge")
	}
	if err := api.MergeCreateFile(inputs, output, false, nil); err != nil {
		return fmt.Errorf("merge %d files into %s: %w", len(inputs), output, err)
	}
	return nil
}

var _ harvest.Merger = (*Merger)(nil)
