// Package artifacts manages the on-disk layout of assembled opinion files:
// one directory per docket date, one PDF per case, plus JSON sidecars for
// assembly metadata and analysis results.
package artifacts

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/texapp/opinion-harvester/internal/harvest"
)

const (
	dirFormat      = "20060102"
	metaSuffix     = ".meta.json"
	analysisSuffix = ".analysis.json"
)

// Store lays out artifacts under a root directory.
type Store struct {
	root string
}

// NewStore validates the root directory, creating it if needed.
func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("artifact root is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat artifact root: %w", err)
		}
		if mkErr := os.MkdirAll(root, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create artifact root: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("artifact root %s is not a directory", root)
	}
	return &Store{root: root}, nil
}

// Dir returns the directory holding one docket date's artifacts.
func (s *Store) Dir(date time.Time) string {
	return filepath.Join(s.root, harvest.Day(date).Format(dirFormat))
}

// PDFPath returns the assembled PDF location for a case.
func (s *Store) PDFPath(date time.Time, caseNumber string) string {
	return filepath.Join(s.Dir(date), caseNumber+".pdf")
}

// MetaPath returns the assembly metadata sidecar location for a case.
func (s *Store) MetaPath(date time.Time, caseNumber string) string {
	return filepath.Join(s.Dir(date), caseNumber+metaSuffix)
}

// AnalysisPath returns the analysis sidecar location for a case.
func (s *Store) AnalysisPath(date time.Time, caseNumber string) string {
	return filepath.Join(s.Dir(date), caseNumber+analysisSuffix)
}

// ObjectName returns the bucket-relative name for a file under the root,
// using forward slashes regardless of platform.
func (s *Store) ObjectName(date time.Time, filename string) string {
	return path.Join(harvest.Day(date).Format(dirFormat), filename)
}

// Exists reports whether the assembled PDF for a case is already on disk.
func (s *Store) Exists(date time.Time, caseNumber string) bool {
	info, err := os.Stat(s.PDFPath(date, caseNumber))
	return err == nil && !info.IsDir()
}

// HasAnalysis reports whether the analysis sidecar exists for a case.
func (s *Store) HasAnalysis(date time.Time, caseNumber string) bool {
	info, err := os.Stat(s.AnalysisPath(date, caseNumber))
	return err == nil && !info.IsDir()
}

// Install moves a finished file from its work location into the date
// directory. The final step is always a rename, so readers never observe a
// partially written artifact.
func (s *Store) Install(src string, date time.Time, caseNumber string) (string, error) {
	if err := safeName(caseNumber); err != nil {
		return "", err
	}
	dest := s.PDFPath(date, caseNumber)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.Rename(src, dest); err == nil {
		return dest, nil
	}
	// src may live on another filesystem; copy into the destination
	// directory and rename from there.
	if err := copyIntoPlace(src, dest); err != nil {
		return "", err
	}
	_ = os.Remove(src)
	return dest, nil
}

// WriteMeta writes the assembly sidecar for an artifact.
func (s *Store) WriteMeta(meta harvest.Artifact) (string, error) {
	if err := safeName(meta.CaseNumber); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact meta: %w", err)
	}
	dest := s.MetaPath(meta.Date, meta.CaseNumber)
	if err := writeFileAtomic(dest, data); err != nil {
		return "", err
	}
	return dest, nil
}

// ReadMeta loads the assembly sidecar for a case.
func (s *Store) ReadMeta(date time.Time, caseNumber string) (harvest.Artifact, error) {
	data, err := os.ReadFile(s.MetaPath(date, caseNumber))
	if err != nil {
		return harvest.Artifact{}, fmt.Errorf("read artifact meta: %w", err)
	}
	var meta harvest.Artifact
	if err := json.Unmarshal(data, &meta); err != nil {
		return harvest.Artifact{}, fmt.Errorf("decode artifact meta: %w", err)
	}
	return meta, nil
}

// WriteAnalysis writes the analysis sidecar for a case.
func (s *Store) WriteAnalysis(date time.Time, caseNumber string, result any) (string, error) {
	if err := safeName(caseNumber); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal analysis: %w", err)
	}
	dest := s.AnalysisPath(date, caseNumber)
	if err := writeFileAtomic(dest, data); err != nil {
		return "", err
	}
	return dest, nil
}

// ListMetas loads every assembly sidecar recorded for a docket date.
func (s *Store) ListMetas(date time.Time) ([]harvest.Artifact, error) {
	entries, err := os.ReadDir(s.Dir(date))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact dir: %w", err)
	}
	var metas []harvest.Artifact
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		meta, err := s.ReadMeta(date, strings.TrimSuffix(name, metaSuffix))
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// PendingAnalysis returns artifacts for the date that have no analysis
// sidecar yet.
func (s *Store) PendingAnalysis(date time.Time) ([]harvest.Artifact, error) {
	metas, err := s.ListMetas(date)
	if err != nil {
		return nil, err
	}
	var pending []harvest.Artifact
	for _, meta := range metas {
		if !s.HasAnalysis(date, meta.CaseNumber) {
			pending = append(pending, meta)
		}
	}
	return pending, nil
}

func safeName(caseNumber string) error {
	if caseNumber == "" {
		return fmt.Errorf("case number is required")
	}
	if strings.ContainsAny(caseNumber, `/\`) || strings.Contains(caseNumber, "..") {
		return fmt.Errorf("unsafe case number %q", caseNumber)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".sidecar-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("install %s: %w", path, err)
	}
	return nil
}

func copyIntoPlace(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".install-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("install %s: %w", dest, err)
	}
	return nil
}
