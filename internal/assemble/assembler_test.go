package assemble

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/texapp/opinion-harvester/internal/artifacts"
	"github.com/texapp/opinion-harvester/internal/harvest"
	"github.com/texapp/opinion-harvester/internal/hash/sha256"
)

var day = time.Date(2025, time.February, 4, 0, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu      sync.Mutex
	content map[string][]byte
	fail    map[string]error
	calls   []string
}

func (f *fakeFetcher) FetchBinary(_ context.Context, url, dest string, _ []byte, _ string) error {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if err, ok := f.fail[url]; ok {
		return err
	}
	body, ok := f.content[url]
	if !ok {
		return fmt.Errorf("unexpected url %s", url)
	}
	return os.WriteFile(dest, body, 0o600)
}

type concatMerger struct{}

func (concatMerger) Merge(inputs []string, output string) error {
	var buf bytes.Buffer
	for _, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		buf.Write(data)
	}
	return os.WriteFile(output, buf.Bytes(), 0o600)
}

type nopPauser struct{}

func (nopPauser) Pause(context.Context, time.Duration) {}

type recordingMirror struct {
	objects []string
	err     error
}

func (m *recordingMirror) Upload(_ context.Context, _ string, object string) (string, error) {
	m.objects = append(m.objects, object)
	if m.err != nil {
		return "", m.err
	}
	return "gs://mirror/" + object, nil
}

func newAssembler(t *testing.T, fetcher harvest.BinaryFetcher, mirror Mirror) (*Assembler, *artifacts.Store) {
	t.Helper()
	store, err := artifacts.NewStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)
	a := New(
		Config{WorkDir: t.TempDir()},
		fetcher,
		concatMerger{},
		sha256.New(),
		store,
		mirror,
		nopPauser{},
		zap.NewNop(),
	)
	return a, store
}

func unit() harvest.WorkUnit {
	return harvest.NewWorkUnit(3, day)
}

func TestAssembleSingleFragment(t *testing.T) {
	t.Parallel()

	memBody := []byte("%PDF-1.7 memorandum")
	fetcher := &fakeFetcher{content: map[string][]byte{"https://c/mem.pdf": memBody}}
	a, store := newAssembler(t, fetcher, nil)

	group := harvest.CaseGroup{
		Number:      "03-25-00123-CR",
		CaseURL:     "https://c/Case.aspx?cn=03-25-00123-CR",
		Disposition: "Affirmed",
		Fragments: []harvest.Fragment{
			{URL: "https://c/mem.pdf", Description: "Memorandum Opinion"},
		},
	}

	artifact, err := a.Assemble(context.Background(), unit(), group)
	require.NoError(t, err)
	require.Equal(t, 1, artifact.Merged)
	require.Equal(t, "mem", artifact.KindSummary)
	require.Empty(t, artifact.JusticeSummary)
	require.Equal(t, group.CaseURL, artifact.CaseURL)

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	require.Equal(t, memBody, data)

	wantSum, err := sha256.New().Hash(memBody)
	require.NoError(t, err)
	require.Equal(t, wantSum, artifact.Checksum)

	meta, err := store.ReadMeta(day, group.Number)
	require.NoError(t, err)
	require.Equal(t, artifact.Checksum, meta.Checksum)
	require.Equal(t, []string{"https://c/mem.pdf"}, meta.SourceURLs)
}

func TestAssembleMergesInRankOrder(t *testing.T) {
	t.Parallel()

	memBody := []byte("%PDF mem pages ")
	disBody := []byte("%PDF dissent pages")
	fetcher := &fakeFetcher{content: map[string][]byte{
		"https://c/dis.pdf": disBody,
		"https://c/mem.pdf": memBody,
	}}
	a, _ := newAssembler(t, fetcher, nil)

	// Docket lists the dissent first; assembly puts the controlling opinion
	// in front.
	group := harvest.CaseGroup{
		Number: "03-25-00123-CR",
		Fragments: []harvest.Fragment{
			{URL: "https://c/dis.pdf", Description: "Dissenting Opinion by Justice Lee"},
			{URL: "https://c/mem.pdf", Description: "Memorandum Opinion"},
		},
	}

	artifact, err := a.Assemble(context.Background(), unit(), group)
	require.NoError(t, err)
	require.Equal(t, 2, artifact.Merged)
	require.Equal(t, "mem+dis", artifact.KindSummary)
	require.Equal(t, "dis_lee", artifact.JusticeSummary)
	require.Equal(t, []string{"https://c/mem.pdf", "https://c/dis.pdf"}, artifact.SourceURLs)

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	require.Equal(t, append(append([]byte(nil), memBody...), disBody...), data)
}

func TestAssembleExcludesFailedFragments(t *testing.T) {
	t.Parallel()

	memBody := []byte("%PDF mem")
	fetcher := &fakeFetcher{
		content: map[string][]byte{"https://c/mem.pdf": memBody},
		fail:    map[string]error{"https://c/dis.pdf": fmt.Errorf("boom")},
	}
	a, _ := newAssembler(t, fetcher, nil)

	group := harvest.CaseGroup{
		Number: "03-25-00123-CR",
		Fragments: []harvest.Fragment{
			{URL: "https://c/mem.pdf", Description: "Memorandum Opinion"},
			{URL: "https://c/dis.pdf", Description: "Dissenting Opinion by Justice Lee"},
		},
	}

	artifact, err := a.Assemble(context.Background(), unit(), group)
	require.NoError(t, err)
	require.Equal(t, 1, artifact.Merged)
	require.Equal(t, "mem", artifact.KindSummary)
	require.Equal(t, []string{"https://c/mem.pdf"}, artifact.SourceURLs)

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	require.Equal(t, memBody, data)
}

func TestAssembleFailsWhenNothingFetched(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{fail: map[string]error{"https://c/op.pdf": fmt.Errorf("boom")}}
	a, store := newAssembler(t, fetcher, nil)

	group := harvest.CaseGroup{
		Number: "03-25-00123-CR",
		Fragments: []harvest.Fragment{
			{URL: "https://c/op.pdf", Description: "Opinion"},
		},
	}

	_, err := a.Assemble(context.Background(), unit(), group)
	require.Error(t, err)
	require.False(t, store.Exists(day, group.Number))

	metas, err := store.ListMetas(day)
	require.NoError(t, err)
	require.Empty(t, metas)
}

func TestAssembleShortCircuitsExistingArtifact(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	a, store := newAssembler(t, fetcher, nil)

	src := filepath.Join(t.TempDir(), "done.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF existing"), 0o600))
	installed, err := store.Install(src, day, "03-25-00123-CR")
	require.NoError(t, err)
	_, err = store.WriteMeta(harvest.Artifact{
		CaseNumber:  "03-25-00123-CR",
		Court:       3,
		Date:        day,
		Path:        installed,
		KindSummary: "mem",
		Merged:      1,
	})
	require.NoError(t, err)

	group := harvest.CaseGroup{
		Number: "03-25-00123-CR",
		Fragments: []harvest.Fragment{
			{URL: "https://c/mem.pdf", Description: "Memorandum Opinion"},
		},
	}

	artifact, err := a.Assemble(context.Background(), unit(), group)
	require.NoError(t, err)
	require.Equal(t, "mem", artifact.KindSummary)
	require.Empty(t, fetcher.calls)
}

func TestAssembleMirrorsArtifactAndMeta(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{content: map[string][]byte{"https://c/mem.pdf": []byte("%PDF mem")}}
	mirror := &recordingMirror{}
	a, _ := newAssembler(t, fetcher, mirror)

	group := harvest.CaseGroup{
		Number: "03-25-00123-CR",
		Fragments: []harvest.Fragment{
			{URL: "https://c/mem.pdf", Description: "Memorandum Opinion"},
		},
	}

	_, err := a.Assemble(context.Background(), unit(), group)
	require.NoError(t, err)
	require.Equal(t, []string{
		"20250204/03-25-00123-CR.pdf",
		"20250204/03-25-00123-CR.meta.json",
	}, mirror.objects)
}

func TestAssembleSurvivesMirrorFailure(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{content: map[string][]byte{"https://c/mem.pdf": []byte("%PDF mem")}}
	mirror := &recordingMirror{err: fmt.Errorf("bucket offline")}
	a, store := newAssembler(t, fetcher, mirror)

	group := harvest.CaseGroup{
		Number: "03-25-00123-CR",
		Fragments: []harvest.Fragment{
			{URL: "https://c/mem.pdf", Description: "Memorandum Opinion"},
		},
	}

	_, err := a.Assemble(context.Background(), unit(), group)
	require.NoError(t, err)
	require.True(t, store.Exists(day, group.Number))
}

func TestOrderFragments(t *testing.T) {
	t.Parallel()

	fragments := []harvest.Fragment{
		{Kind: harvest.KindDissent, Justice: "zamora", Label: "dis"},
		{Kind: harvest.KindUnknown},
		{Kind: harvest.KindDissent, Justice: "alcala", Label: "dis"},
		{Kind: harvest.KindConcurrence, Justice: "smith", Label: "con"},
		{Kind: harvest.KindPrimary, Label: "op"},
	}
	orderFragments(fragments)

	require.Equal(t, harvest.KindPrimary, fragments[0].Kind)
	require.Equal(t, "smith", fragments[1].Justice)
	require.Equal(t, "alcala", fragments[2].Justice)
	require.Equal(t, "zamora", fragments[3].Justice)
	require.Equal(t, harvest.KindUnknown, fragments[4].Kind)
}
