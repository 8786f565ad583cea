// Package analyze drives downstream processing of assembled artifacts. The
// Analyzer interface is the boundary behind which an LLM (or any other
// examiner) would sit; the batch driver only needs "does this artifact have
// an analysis sidecar yet" to find its work.
package analyze

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/texapp/opinion-harvester/internal/artifacts"
	"github.com/texapp/opinion-harvester/internal/harvest"
)

// Result is the stored analysis for one artifact.
type Result struct {
	CaseNumber string    `json:"case_number"`
	Court      int       `json:"court"`
	Period     time.Time `json:"period"`
	Summary    string    `json:"summary"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Analyzer examines one assembled artifact.
type Analyzer interface {
	Analyze(ctx context.Context, artifact harvest.Artifact) (Result, error)
}

// Batch walks a period's unprocessed artifacts through the Analyzer. The
// "needs processing" set is re-derived from the sidecar files on every call,
// so an interrupted batch resumes without replaying finished items.
type Batch struct {
	store    *artifacts.Store
	analyzer Analyzer
	clock    harvest.Clock
	logger   *zap.Logger
}

// NewBatch builds a Batch driver.
func NewBatch(store *artifacts.Store, analyzer Analyzer, clock harvest.Clock, logger *zap.Logger) *Batch {
	return &Batch{store: store, analyzer: analyzer, clock: clock, logger: logger}
}

// Run processes every pending artifact for the period. Item failures are
// logged and skipped; Run returns an error only when the pending set cannot
// be derived or every item failed.
func (b *Batch) Run(ctx context.Context, period time.Time) (processed, failed int, err error) {
	pending, err := b.store.PendingAnalysis(period)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending artifacts: %w", err)
	}
	if len(pending) == 0 {
		b.logger.Info("nothing pending analysis", zap.Time("period", period))
		return 0, 0, nil
	}

	for _, artifact := range pending {
		if err := ctx.Err(); err != nil {
			return processed, failed, fmt.Errorf("analysis interrupted: %w", err)
		}
		if err := b.runOne(ctx, period, artifact); err != nil {
			failed++
			b.logger.Warn("artifact analysis failed",
				zap.String("case", artifact.CaseNumber), zap.Error(err))
			continue
		}
		processed++
	}

	if processed == 0 && failed > 0 {
		return processed, failed, fmt.Errorf("all %d pending artifacts failed analysis", failed)
	}
	return processed, failed, nil
}

func (b *Batch) runOne(ctx context.Context, period time.Time, artifact harvest.Artifact) error {
	result, err := b.analyzer.Analyze(ctx, artifact)
	if err != nil {
		return err
	}
	result.CaseNumber = artifact.CaseNumber
	result.Court = artifact.Court
	result.Period = harvest.Day(period)
	if result.AnalyzedAt.IsZero() {
		result.AnalyzedAt = b.clock.Now()
	}
	if _, err := b.store.WriteAnalysis(period, artifact.CaseNumber, result); err != nil {
		return fmt.Errorf("write analysis sidecar: %w", err)
	}
	return nil
}
