// Package assemble turns one case group's fragments into a single installed
// artifact: classify, order, download, merge, record.
package assemble

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/texapp/opinion-harvester/internal/artifacts"
	"github.com/texapp/opinion-harvester/internal/harvest"
)

// pdfMagic is the leading byte signature a downloaded fragment must carry.
var pdfMagic = []byte("%PDF")

const pdfContentType = "application/pdf"

// Mirror uploads finished artifacts to remote storage. Implementations live
// under internal/artifacts.
type Mirror interface {
	Upload(ctx context.Context, localPath, objectName string) (string, error)
}

// Config controls assembly behavior.
type Config struct {
	// WorkDir holds per-case scratch directories during assembly. Empty
	// means the system temp dir.
	WorkDir string
	// FragmentDelay is the politeness pause after each fragment download.
	FragmentDelay time.Duration
}

// Assembler downloads, orders, and merges case fragments, then installs the
// result with its metadata sidecar.
type Assembler struct {
	cfg     Config
	fetcher harvest.BinaryFetcher
	merger  harvest.Merger
	hasher  harvest.Hasher
	store   *artifacts.Store
	mirror  Mirror
	pauser  harvest.Pauser
	logger  *zap.Logger
}

// New builds an Assembler. mirror may be nil to disable remote mirroring.
func New(
	cfg Config,
	fetcher harvest.BinaryFetcher,
	merger harvest.Merger,
	hasher harvest.Hasher,
	store *artifacts.Store,
	mirror Mirror,
	pauser harvest.Pauser,
	logger *zap.Logger,
) *Assembler {
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &Assembler{
		cfg:     cfg,
		fetcher: fetcher,
		merger:  merger,
		hasher:  hasher,
		store:   store,
		mirror:  mirror,
		pauser:  pauser,
		logger:  logger,
	}
}

// Assemble produces the merged artifact for one case group. An artifact that
// already exists on disk short-circuits the whole pipeline; fragments that
// fail to download are excluded rather than failing the case. Assemble
// returns an error only when nothing could be retrieved.
func (a *Assembler) Assemble(ctx context.Context, unit harvest.WorkUnit, group harvest.CaseGroup) (harvest.Artifact, error) {
	if a.store.Exists(unit.Date, group.Number) {
		a.logger.Debug("artifact already assembled",
			zap.String("case", group.Number), zap.String("unit", unit.Key()))
		return a.existingArtifact(unit, group)
	}

	fragments := classified(group)
	orderFragments(fragments)

	workDir, err := os.MkdirTemp(a.cfg.WorkDir, "assemble-"+group.Number+"-")
	if err != nil {
		return harvest.Artifact{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	fetched := a.download(ctx, workDir, group.Number, fragments)
	if len(fetched) == 0 {
		return harvest.Artifact{}, fmt.Errorf("no fragments retrieved for case %s", group.Number)
	}

	installed, err := a.install(workDir, unit, group.Number, fetched)
	if err != nil {
		return harvest.Artifact{}, err
	}

	checksum, err := a.hasher.HashFile(installed)
	if err != nil {
		return harvest.Artifact{}, fmt.Errorf("checksum %s: %w", installed, err)
	}

	artifact := buildArtifact(unit, group, fetched, installed, checksum)
	if _, err := a.store.WriteMeta(artifact); err != nil {
		return harvest.Artifact{}, err
	}

	a.mirrorArtifact(ctx, unit, artifact)

	a.logger.Info("assembled case",
		zap.String("case", group.Number),
		zap.String("unit", unit.Key()),
		zap.Int("fragments", len(fetched)),
		zap.String("kinds", artifact.KindSummary))
	return artifact, nil
}

func (a *Assembler) existingArtifact(unit harvest.WorkUnit, group harvest.CaseGroup) (harvest.Artifact, error) {
	meta, err := a.store.ReadMeta(unit.Date, group.Number)
	if err == nil {
		return meta, nil
	}
	// The PDF survived but its sidecar did not; return what we know.
	return harvest.Artifact{
		CaseNumber: group.Number,
		Court:      unit.Court,
		Date:       unit.Date,
		Path:       a.store.PDFPath(unit.Date, group.Number),
		CaseURL:    group.CaseURL,
	}, nil
}

// classified returns the group's fragments with classification applied.
func classified(group harvest.CaseGroup) []harvest.Fragment {
	fragments := make([]harvest.Fragment, len(group.Fragments))
	copy(fragments, group.Fragments)
	for i := range fragments {
		c := harvest.Classify(fragments[i].Description, group.Disposition)
		fragments[i].Kind = c.Kind
		fragments[i].Label = c.Label
		fragments[i].Justice = c.Justice
	}
	return fragments
}

// orderFragments sorts for merging: controlling opinion first, then
// concurrences, then dissents, then unclassified; author name breaks ties.
// The sort is stable, so docket order decides the rest.
func orderFragments(fragments []harvest.Fragment) {
	sort.SliceStable(fragments, func(i, j int) bool {
		ri, rj := fragments[i].Kind.Rank(), fragments[j].Kind.Rank()
		if ri != rj {
			return ri < rj
		}
		return fragments[i].Justice < fragments[j].Justice
	})
}

// download fetches each fragment into workDir, pacing between requests.
// Fragments that fail validation or exhaust retries are dropped.
func (a *Assembler) download(ctx context.Context, workDir, caseNumber string, fragments []harvest.Fragment) []harvest.Fragment {
	var fetched []harvest.Fragment
	for i, frag := range fragments {
		if ctx.Err() != nil {
			break
		}
		frag.TempPath = filepath.Join(workDir, fmt.Sprintf("%02d_%s.pdf", i, labelOrDoc(frag.Label)))
		err := a.fetcher.FetchBinary(ctx, frag.URL, frag.TempPath, pdfMagic, pdfContentType)
		if err != nil {
			a.logger.Warn("fragment download failed, excluding from merge",
				zap.String("case", caseNumber),
				zap.String("url", frag.URL),
				zap.Error(err))
		} else {
			fetched = append(fetched, frag)
		}
		if a.cfg.FragmentDelay > 0 {
			a.pauser.Pause(ctx, a.cfg.FragmentDelay)
		}
	}
	return fetched
}

// install moves a single fragment into place directly, or merges multiple
// fragments first. Either way the artifact appears atomically.
func (a *Assembler) install(workDir string, unit harvest.WorkUnit, caseNumber string, fetched []harvest.Fragment) (string, error) {
	if len(fetched) == 1 {
		return a.store.Install(fetched[0].TempPath, unit.Date, caseNumber)
	}
	inputs := make([]string, len(fetched))
	for i, frag := range fetched {
		inputs[i] = frag.TempPath
	}
	merged := filepath.Join(workDir, "merged.pdf")
	if err := a.merger.Merge(inputs, merged); err != nil {
		return "", fmt.Errorf("merge case %s: %w", caseNumber, err)
	}
	return a.store.Install(merged, unit.Date, caseNumber)
}

func (a *Assembler) mirrorArtifact(ctx context.Context, unit harvest.WorkUnit, artifact harvest.Artifact) {
	if a.mirror == nil {
		return
	}
	for _, local := range []string{artifact.Path, a.store.MetaPath(unit.Date, artifact.CaseNumber)} {
		object := a.store.ObjectName(unit.Date, filepath.Base(local))
		if _, err := a.mirror.Upload(ctx, local, object); err != nil {
			a.logger.Warn("artifact mirror failed",
				zap.String("case", artifact.CaseNumber),
				zap.String("object", object),
				zap.Error(err))
		}
	}
}

func buildArtifact(unit harvest.WorkUnit, group harvest.CaseGroup, fetched []harvest.Fragment, path, checksum string) harvest.Artifact {
	labels := make([]string, 0, len(fetched))
	var attributed []string
	urls := make([]string, 0, len(fetched))
	for _, frag := range fetched {
		labels = append(labels, labelOrDoc(frag.Label))
		if frag.Justice != "" && (frag.Kind == harvest.KindConcurrence || frag.Kind == harvest.KindDissent) {
			attributed = append(attributed, frag.Label+"_"+frag.Justice)
		}
		urls = append(urls, frag.URL)
	}
	return harvest.Artifact{
		CaseNumber:     group.Number,
		Court:          unit.Court,
		Date:           unit.Date,
		Path:           path,
		KindSummary:    strings.Join(labels, "+"),
		JusticeSummary: strings.Join(attributed, ";"),
		SourceURLs:     urls,
		Checksum:       checksum,
		Merged:         len(fetched),
		CaseURL:        group.CaseURL,
	}
}

func labelOrDoc(label string) string {
	if label == "" {
		return "doc"
	}
	return label
}
