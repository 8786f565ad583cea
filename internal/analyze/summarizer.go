package analyze

import (
	"context"
	"fmt"
	"strings"

	"github.com/texapp/opinion-harvester/internal/harvest"
)

// Summarizer is the default Analyzer: a local metadata summary with no
// external calls. Deployments wanting deeper analysis swap in their own
// Analyzer at wiring time.
type Summarizer struct{}

// NewSummarizer returns a Summarizer.
func NewSummarizer() *Summarizer {
	return &Summarizer{}
}

// Analyze renders a one-line description of the artifact's composition.
func (Summarizer) Analyze(_ context.Context, artifact harvest.Artifact) (Result, error) {
	parts := []string{
		fmt.Sprintf("case %s, court %02d", artifact.CaseNumber, artifact.Court),
		fmt.Sprintf("%d document(s): %s", artifact.Merged, orEmpty(artifact.KindSummary)),
	}
	if artifact.JusticeSummary != "" {
		parts = append(parts, "separate writings: "+artifact.JusticeSummary)
	}
	return Result{Summary: strings.Join(parts, "; ")}, nil
}

func orEmpty(s string) string {
	if s == "" {
		return "unclassified"
	}
	return s
}

var _ Analyzer = (*Summarizer)(nil)
