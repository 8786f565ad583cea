package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/texapp/opinion-harvester/internal/clock/system"
	"github.com/texapp/opinion-harvester/internal/harvest"
	"github.com/texapp/opinion-harvester/internal/storage/memory"
	"github.com/texapp/opinion-harvester/internal/store"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	body  []byte
	err   error
}

func (f *fakeFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.body, f.err
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeParser struct {
	groups []harvest.CaseGroup
	err    error
}

func (p *fakeParser) Parse(harvest.WorkUnit, []byte) ([]harvest.CaseGroup, error) {
	return p.groups, p.err
}

type fakeAssembler struct {
	failFor map[string]error
	built   []string
}

func (a *fakeAssembler) Assemble(_ context.Context, unit harvest.WorkUnit, group harvest.CaseGroup) (harvest.Artifact, error) {
	if err := a.failFor[group.Number]; err != nil {
		return harvest.Artifact{}, err
	}
	a.built = append(a.built, group.Number)
	return harvest.Artifact{
		CaseNumber: group.Number,
		Court:      unit.Court,
		Date:       unit.Date,
		Merged:     len(group.Fragments),
	}, nil
}

func newCoordinator(t *testing.T, ledger store.Ledger, fetcher *fakeFetcher, parser *fakeParser, assembler *fakeAssembler) *Coordinator {
	t.Helper()
	return New(
		Config{BaseURL: "https://search.example.test", Courts: []int{3}},
		ledger,
		fetcher,
		parser,
		assembler,
		harvest.NewPacer(0, 1),
		nil,
		system.New(),
		zap.NewNop(),
	)
}

func group(number string, fragments int) harvest.CaseGroup {
	g := harvest.CaseGroup{Number: number}
	for i := 0; i < fragments; i++ {
		g.Fragments = append(g.Fragments, harvest.Fragment{
			URL:         fmt.Sprintf("https://search.example.test/media/%s/%d", number, i),
			Description: "Memorandum Opinion",
		})
	}
	return g
}

func TestHarvestRecordsCompletedUnit(t *testing.T) {
	t.Parallel()

	ledger := memory.NewLedger()
	fetcher := &fakeFetcher{body: []byte("<html/>")}
	parser := &fakeParser{groups: []harvest.CaseGroup{group("03-25-00123-CR", 2)}}
	assembler := &fakeAssembler{}
	c := newCoordinator(t, ledger, fetcher, parser, assembler)

	unit := harvest.NewWorkUnit(3, time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC))
	totals, err := c.HarvestUnits(context.Background(), []harvest.WorkUnit{unit})
	require.NoError(t, err)
	require.Equal(t, Totals{Sources: 1, Cases: 1, Files: 1}, totals)

	entry, err := ledger.Entry(context.Background(), unit)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, entry.Status)
	require.Equal(t, 1, entry.Cases)
	require.Equal(t, 1, entry.Files)
}

func TestHarvestSkipsLedgeredUnits(t *testing.T) {
	t.Parallel()

	ledger := memory.NewLedger()
	fetcher := &fakeFetcher{body: []byte("<html/>")}
	parser := &fakeParser{groups: []harvest.CaseGroup{group("03-25-00123-CR", 1)}}
	c := newCoordinator(t, ledger, fetcher, parser, &fakeAssembler{})

	unit := harvest.NewWorkUnit(3, time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC))
	units := []harvest.WorkUnit{unit}

	_, err := c.HarvestUnits(context.Background(), units)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.count())

	// Second pass: the ledger is the only signal, and it says done.
	totals, err := c.HarvestUnits(context.Background(), units)
	require.NoError(t, err)
	require.Zero(t, totals.Sources)
	require.Equal(t, 1, fetcher.count(), "second pass must not hit the network")
}

func TestHarvestErrorUnitStaysRetryable(t *testing.T) {
	t.Parallel()

	ledger := memory.NewLedger()
	fetcher := &fakeFetcher{err: errors.New("connection reset")}
	c := newCoordinator(t, ledger, fetcher, &fakeParser{}, &fakeAssembler{})

	unit := harvest.NewWorkUnit(5, time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC))
	_, err := c.HarvestUnits(context.Background(), []harvest.WorkUnit{unit})
	require.NoError(t, err, "a unit failure must not abort the pass")

	entry, err := ledger.Entry(context.Background(), unit)
	require.NoError(t, err)
	require.True(t, store.IsErrorStatus(entry.Status))

	// An error entry does not block the retry pass.
	fetcher.err = nil
	fetcher.body = []byte("<html/>")
	_, err = c.HarvestUnits(context.Background(), []harvest.WorkUnit{unit})
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.count())
}

func TestHarvestEmptyDocketIsNoItems(t *testing.T) {
	t.Parallel()

	ledger := memory.NewLedger()
	c := newCoordinator(t, ledger, &fakeFetcher{body: []byte("<html/>")}, &fakeParser{}, &fakeAssembler{})

	unit := harvest.NewWorkUnit(7, time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC))
	totals, err := c.HarvestUnits(context.Background(), []harvest.WorkUnit{unit})
	require.NoError(t, err)
	require.Equal(t, Totals{Sources: 1}, totals)

	entry, err := ledger.Entry(context.Background(), unit)
	require.NoError(t, err)
	require.Equal(t, store.StatusNoItems, entry.Status)

	done, err := ledger.IsDone(context.Background(), unit)
	require.NoError(t, err)
	require.True(t, done, "no_items counts as done")
}

func TestHarvestCaseFailureDoesNotFailUnit(t *testing.T) {
	t.Parallel()

	ledger := memory.NewLedger()
	parser := &fakeParser{groups: []harvest.CaseGroup{
		group("03-25-00123-CR", 1),
		group("03-25-00456-CR", 1),
		group("03-25-00789-CR", 1),
	}}
	assembler := &fakeAssembler{failFor: map[string]error{
		"03-25-00456-CR": errors.New("no fragments retrieved"),
	}}
	c := newCoordinator(t, ledger, &fakeFetcher{body: []byte("<html/>")}, parser, assembler)

	unit := harvest.NewWorkUnit(3, time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC))
	totals, err := c.HarvestUnits(context.Background(), []harvest.WorkUnit{unit})
	require.NoError(t, err)
	require.Equal(t, Totals{Sources: 1, Cases: 3, Files: 2}, totals)
	require.Equal(t, []string{"03-25-00123-CR", "03-25-00789-CR"}, assembler.built)

	entry, err := ledger.Entry(context.Background(), unit)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, entry.Status)
}

func TestHarvestAllCasesFailedStaysRetryable(t *testing.T) {
	t.Parallel()

	ledger := memory.NewLedger()
	fetcher := &fakeFetcher{body: []byte("<html/>")}
	parser := &fakeParser{groups: []harvest.CaseGroup{
		group("03-25-00123-CR", 1),
		group("03-25-00456-CR", 1),
	}}
	assembler := &fakeAssembler{failFor: map[string]error{
		"03-25-00123-CR": errors.New("no fragments retrieved"),
		"03-25-00456-CR": errors.New("no fragments retrieved"),
	}}
	c := newCoordinator(t, ledger, fetcher, parser, assembler)

	unit := harvest.NewWorkUnit(3, time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC))
	totals, err := c.HarvestUnits(context.Background(), []harvest.WorkUnit{unit})
	require.NoError(t, err)
	require.Equal(t, Totals{Sources: 1, Cases: 2}, totals)

	entry, err := ledger.Entry(context.Background(), unit)
	require.NoError(t, err)
	require.True(t, store.IsErrorStatus(entry.Status), "a unit with zero files must not close")

	done, err := ledger.IsDone(context.Background(), unit)
	require.NoError(t, err)
	require.False(t, done)

	// The next pass retries the unit from the top.
	_, err = c.HarvestUnits(context.Background(), []harvest.WorkUnit{unit})
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.count())
}
