package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuya-takeyama/manifest-s3-sync/internal/walker"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/logger"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/manifest"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/s3client"
)

var (
	// ErrUnknownSource is returned when a name is not configured as a known source.
	ErrUnknownSource = errors.New("unknown known source")
	// ErrUploadFailed is returned when at least one file of a pass could not be uploaded.
	ErrUploadFailed = errors.New("upload failed")
)

// KnownSource is a configured local directory and its file filter.
type KnownSource struct {
	Root           string
	FileExtensions []string
	ForceLowerCase bool
	Excludes       []string
}

type SourceProvider interface {
	GetKnownSources() map[string]KnownSource
}

// StaticSources is a fixed SourceProvider.
type StaticSources map[string]KnownSource

func (s StaticSources) GetKnownSources() map[string]KnownSource {
	return s
}

type Options struct {
	Logger logger.Logger
	// DryRun logs the uploads a pass would make without calling the sink or
	// touching the manifest.
	DryRun bool
}

// Result summarizes one pass over a known source.
type Result struct {
	Source        string        `json:"source"`
	Matched       int           `json:"matched"`
	Uploaded      int           `json:"uploaded"`
	Skipped       int           `json:"skipped"`
	Empty         int           `json:"empty"`
	Failed        int           `json:"failed"`
	Bytes         int64         `json:"bytes"`
	Duration      time.Duration `json:"duration"`
	ManifestSaved bool          `json:"manifestSaved"`
}

// Engine uploads the changed files of known sources.
type Engine struct {
	sink     s3client.Client
	store    *manifest.Store
	provider SourceProvider
	logger   logger.Logger
	dryRun   bool
	locks    *sourceLocks
}

func New(sink s3client.Client, store *manifest.Store, provider SourceProvider, opts Options) *Engine {
	l := opts.Logger
	if l == nil {
		l = &logger.SyncLogger{IsDryRun: opts.DryRun}
	}
	return &Engine{
		sink:     sink,
		store:    store,
		provider: provider,
		logger:   l,
		dryRun:   opts.DryRun,
		locks:    newSourceLocks(),
	}
}

// Lookup finds a known source by name, ignoring case when there is no exact match.
func (e *Engine) Lookup(name string) (KnownSource, bool) {
	_, src, ok := e.resolve(name)
	return src, ok
}

// resolve also returns the configured spelling of name.
func (e *Engine) resolve(name string) (string, KnownSource, bool) {
	sources := e.provider.GetKnownSources()
	if src, ok := sources[name]; ok {
		return name, src, true
	}
	for n, src := range sources {
		if strings.EqualFold(n, name) {
			return n, src, true
		}
	}
	return "", KnownSource{}, false
}

// Sync runs one pass over the named known source. Only one pass per source
// runs at a time; a second caller waits for the first. The returned Result is
// non-nil whenever the source exists, even if the pass failed.
func (e *Engine) Sync(ctx context.Context, name string) (*Result, error) {
	canonical, src, ok := e.resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	name = canonical

	unlock, err := e.locks.lock(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", name, err)
	}
	defer unlock()

	start := time.Now()
	result := &Result{Source: name}
	defer func() { result.Duration = time.Since(start) }()

	w, err := walker.NewWalker(src.Root, src.FileExtensions, src.Excludes)
	if err != nil {
		return result, fmt.Errorf("resolve %s: %w", name, err)
	}
	files, err := w.Walk()
	if err != nil {
		return result, fmt.Errorf("resolve %s: %w", name, err)
	}

	result.Matched = len(files)
	if len(files) == 0 {
		e.logger.Debug("no files found", "source", name, "path", w.Root())
		return result, nil
	}

	m, err := e.store.Load(name)
	if err != nil {
		return result, fmt.Errorf("load manifest for %s: %w", name, err)
	}
	m.ContainerName = e.sink.Target()
	m.SourcePath = w.Root()
	m.FileExtensions = w.Patterns()

	e.logger.Debug("starting uploads", "source", name, "files", len(files), "target", e.sink.Target())

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("sync %s: %w", name, err)
		}

		// empty files are never recorded nor uploaded
		if f.Size == 0 {
			result.Empty++
			e.logger.Skip(f.Path, "empty file")
			continue
		}

		key := destinationKey(name, f.RelPath, src.ForceLowerCase)
		d, err := m.Evaluate(f.Path, key, contentType(f.Path))
		if err != nil {
			result.Failed++
			e.logger.Error("fingerprint", f.Path, err)
			continue
		}
		if !d.NeedsUpload {
			result.Skipped++
			e.logger.Skip(f.Path, d.Reason())
			continue
		}

		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("sync %s: %w", name, err)
		}

		e.logger.Upload(f.Path, key)
		if e.dryRun {
			result.Uploaded++
			result.Bytes += f.Size
			continue
		}

		err = e.sink.Upload(ctx, &s3client.UploadRequest{
			LocalPath:   f.Path,
			Key:         key,
			ContentType: d.Entry.ContentType,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, fmt.Errorf("sync %s: %w", name, ctxErr)
			}
			result.Failed++
			e.logger.Error("upload", key, err)
			continue
		}

		m.Commit(d)
		result.Uploaded++
		result.Bytes += f.Size
	}

	if m.Changed() {
		if err := e.store.Save(name, m); err != nil {
			return result, fmt.Errorf("save manifest for %s: %w", name, err)
		}
		result.ManifestSaved = true
		e.logger.Debug("manifest saved", "source", name, "path", e.store.Path(name))
	}

	if result.Failed > 0 {
		return result, fmt.Errorf("%w: %d file(s) in %s", ErrUploadFailed, result.Failed, name)
	}
	return result, nil
}

// destinationKey places relPath under the known source name using forward slashes.
func destinationKey(name, relPath string, lower bool) string {
	rel := filepath.ToSlash(relPath)
	if lower {
		rel = strings.ToLower(rel)
	}
	return path.Join(name, rel)
}
