// Package manifest keeps the per-known-source ledger of uploaded files and
// their content fingerprints.
//
// A pass over a known source evaluates every matched file against the ledger
// and commits the new fingerprint only once the upload has been confirmed, so
// a failed upload is retried on the next pass. The ledger is persisted as
// JSON; every save first moves the previous file aside under a timestamped
// name.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/yuya-takeyama/manifest-s3-sync/internal/checksum"
)

const (
	// FileSuffix is appended to a known source name to build its manifest file name.
	FileSuffix = ".manifest.json"

	backupTimeFormat = "20060102T150405"
)

// rename is swapped in tests to simulate a failing backup.
var rename = os.Rename

// ErrParse matches every *ParseError.
var ErrParse = errors.New("malformed manifest")

// ParseError reports a manifest file that exists but cannot be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse manifest %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Entry is the ledger row for one source file.
type Entry struct {
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
	Fingerprint string `json:"fingerprint"`
}

// Manifest maps absolute source file paths to their last uploaded state.
type Manifest struct {
	ContainerName  string           `json:"containerName,omitempty"`
	SourcePath     string           `json:"sourcePath,omitempty"`
	FileExtensions []string         `json:"fileExtensions,omitempty"`
	Entries        map[string]Entry `json:"entries"`

	dirty bool
}

// Decision is the outcome of Evaluate. It carries everything Commit needs.
type Decision struct {
	SourcePath  string
	Entry       Entry
	NeedsUpload bool
	IsNew       bool
}

// Reason describes the decision for logs.
func (d Decision) Reason() string {
	switch {
	case d.IsNew:
		return "new file"
	case d.NeedsUpload:
		return "checksum differs"
	default:
		return "unchanged"
	}
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{Entries: make(map[string]Entry)}
}

// Changed reports whether Commit recorded anything since the last load or save.
func (m *Manifest) Changed() bool {
	return m.dirty
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.Entries)
}

// Get returns the entry for a source path.
func (m *Manifest) Get(sourcePath string) (Entry, bool) {
	e, ok := m.Entries[sourcePath]
	return e, ok
}

// Evaluate fingerprints sourcePath and compares it with the recorded entry.
// It does not modify the manifest.
func (m *Manifest) Evaluate(sourcePath, destPath, contentType string) (Decision, error) {
	fingerprint, err := checksum.CalculateFileSHA256(sourcePath)
	if err != nil {
		return Decision{}, fmt.Errorf("fingerprint %s: %w", sourcePath, err)
	}

	d := Decision{
		SourcePath: sourcePath,
		Entry: Entry{
			Path:        destPath,
			ContentType: contentType,
			Fingerprint: fingerprint,
		},
	}

	existing, ok := m.Entries[sourcePath]
	switch {
	case !ok:
		d.IsNew = true
		d.NeedsUpload = true
	case !checksum.Equal(existing.Fingerprint, fingerprint):
		d.NeedsUpload = true
	}

	return d, nil
}

// Commit records a decision that needed an upload. Call it after the upload succeeded.
func (m *Manifest) Commit(d Decision) {
	if !d.NeedsUpload {
		return
	}
	if m.Entries == nil {
		m.Entries = make(map[string]Entry)
	}
	m.Entries[d.SourcePath] = d.Entry
	m.dirty = true
}

// Decide evaluates and immediately commits, returning whether an upload is needed.
// The fingerprint is recorded before any upload happens.
func (m *Manifest) Decide(sourcePath, destPath, contentType string) (bool, error) {
	d, err := m.Evaluate(sourcePath, destPath, contentType)
	if err != nil {
		return false, err
	}
	m.Commit(d)
	return d.NeedsUpload, nil
}

// Load reads a manifest file. A missing file yields an empty manifest.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	m := New()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if m.Entries == nil {
		m.Entries = make(map[string]Entry)
	}
	m.dirty = false
	return m, nil
}

// Save writes m to path. An existing file is first renamed to a backup named
// after now; if that rename fails nothing is written.
func Save(path string, m *Manifest, now time.Time) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		backup := backupPath(path, now)
		if err := rename(path, backup); err != nil {
			return fmt.Errorf("backup manifest: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat manifest: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace manifest: %w", err)
	}

	m.dirty = false
	return nil
}

// backupPath returns "<name>.<yyyyMMddTHHmmss>.manifest.json" next to path,
// adding "-N" to the timestamp when that name is already taken.
func backupPath(path string, now time.Time) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	suffix := FileSuffix
	if !strings.HasSuffix(base, FileSuffix) {
		suffix = filepath.Ext(base)
	}
	name := strings.TrimSuffix(base, suffix)
	stamp := now.UTC().Format(backupTimeFormat)

	candidate := filepath.Join(dir, fmt.Sprintf("%s.%s%s", name, stamp, suffix))
	for n := 1; ; n++ {
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s.%s-%d%s", name, stamp, n, suffix))
	}
}
