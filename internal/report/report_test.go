package report

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/texapp/opinion-harvester/internal/analyze"
	"github.com/texapp/opinion-harvester/internal/artifacts"
	"github.com/texapp/opinion-harvester/internal/clock/system"
	"github.com/texapp/opinion-harvester/internal/harvest"
)

var period = time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *artifacts.Store, caseNumber, kinds, justices string) {
	t.Helper()
	_, err := store.WriteMeta(harvest.Artifact{
		CaseNumber:     caseNumber,
		Court:          3,
		Date:           period,
		Path:           store.PDFPath(period, caseNumber),
		KindSummary:    kinds,
		JusticeSummary: justices,
		Merged:         1,
	})
	require.NoError(t, err)
}

func TestGenerateEmptyPeriod(t *testing.T) {
	t.Parallel()

	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)
	w, err := NewWriter(store, t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	path, err := w.Generate(period)
	require.NoError(t, err)
	require.Empty(t, path, "nothing to report yields no file")
}

func TestGenerateDeterministicAndOverwrites(t *testing.T) {
	t.Parallel()

	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)
	seed(t, store, "03-25-00456-CR", "op", "")
	seed(t, store, "03-25-00123-CR", "mem+dis", "dis_lee")

	w, err := NewWriter(store, t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	path, err := w.Generate(period)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(first), "03-25-00123-CR")
	require.Contains(t, string(first), "dis_lee")
	// Cases appear in case-number order regardless of sidecar order.
	require.Less(t,
		strings.Index(string(first), "03-25-00123-CR"),
		strings.Index(string(first), "03-25-00456-CR"))

	again, err := w.Generate(period)
	require.NoError(t, err)
	require.Equal(t, path, again)
	second, err := os.ReadFile(again)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestGenerateIncludesAnalysis(t *testing.T) {
	t.Parallel()

	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)
	seed(t, store, "03-25-00123-CR", "mem", "")

	batch := analyze.NewBatch(store, analyze.NewSummarizer(), system.New(), zap.NewNop())
	_, _, err = batch.Run(context.Background(), period)
	require.NoError(t, err)

	w, err := NewWriter(store, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	path, err := w.Generate(period)
	require.NoError(t, err)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(body), "analysis:")
}
