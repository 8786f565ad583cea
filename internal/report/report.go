// Package report renders a plain-text summary of one period's assembled
// artifacts. The report is deterministic for a given set of sidecars, so
// regenerating it after a crash overwrites rather than duplicates.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/texapp/opinion-harvester/internal/analyze"
	"github.com/texapp/opinion-harvester/internal/artifacts"
	"github.com/texapp/opinion-harvester/internal/harvest"
)

// Writer generates period reports into a directory.
type Writer struct {
	store  *artifacts.Store
	dir    string
	logger *zap.Logger
}

// NewWriter builds a Writer rooted at dir.
func NewWriter(store *artifacts.Store, dir string, logger *zap.Logger) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("report dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &Writer{store: store, dir: dir, logger: logger}, nil
}

// Path returns where the period's report lives.
func (w *Writer) Path(period time.Time) string {
	return filepath.Join(w.dir, "opinions-"+harvest.Day(period).Format("2006-01-02")+".txt")
}

// Generate writes the period report and returns its path, or "" when the
// period produced no artifacts. Regeneration for the same period overwrites.
func (w *Writer) Generate(period time.Time) (string, error) {
	metas, err := w.store.ListMetas(period)
	if err != nil {
		return "", fmt.Errorf("list artifacts: %w", err)
	}
	if len(metas) == 0 {
		w.logger.Info("no artifacts to report", zap.Time("period", period))
		return "", nil
	}

	sort.Slice(metas, func(i, j int) bool {
		if metas[i].Court != metas[j].Court {
			return metas[i].Court < metas[j].Court
		}
		return metas[i].CaseNumber < metas[j].CaseNumber
	})

	var b strings.Builder
	day := harvest.Day(period)
	fmt.Fprintf(&b, "Criminal opinions handed down %s\n", day.Format("January 2, 2006"))
	fmt.Fprintf(&b, "Cases: %d\n\n", len(metas))
	for _, meta := range metas {
		w.writeCase(&b, meta)
	}

	dest := w.Path(period)
	if err := writeFileAtomic(dest, []byte(b.String())); err != nil {
		return "", err
	}
	w.logger.Info("report written", zap.String("path", dest), zap.Int("cases", len(metas)))
	return dest, nil
}

func (w *Writer) writeCase(b *strings.Builder, meta harvest.Artifact) {
	fmt.Fprintf(b, "%s (court %02d)\n", meta.CaseNumber, meta.Court)
	fmt.Fprintf(b, "  documents: %s\n", orDash(meta.KindSummary))
	if meta.JusticeSummary != "" {
		fmt.Fprintf(b, "  writings:  %s\n", meta.JusticeSummary)
	}
	if meta.CaseURL != "" {
		fmt.Fprintf(b, "  case page: %s\n", meta.CaseURL)
	}
	if summary := w.analysisSummary(meta); summary != "" {
		fmt.Fprintf(b, "  analysis:  %s\n", summary)
	}
	b.WriteString("\n")
}

// analysisSummary pulls the analysis sidecar when one exists. A missing or
// unreadable sidecar just omits the line; the report never fails on it.
func (w *Writer) analysisSummary(meta harvest.Artifact) string {
	data, err := os.ReadFile(w.store.AnalysisPath(meta.Date, meta.CaseNumber))
	if err != nil {
		return ""
	}
	var result analyze.Result
	if err := json.Unmarshal(data, &result); err != nil {
		w.logger.Warn("unreadable analysis sidecar",
			zap.String("case", meta.CaseNumber), zap.Error(err))
		return ""
	}
	return result.Summary
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("install report %s: %w", path, err)
	}
	return nil
}
