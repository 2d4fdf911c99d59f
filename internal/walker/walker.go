package walker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
)

var (
	// ErrRootNotFound is returned when a known source's root path does not exist.
	ErrRootNotFound = errors.New("root path not found")
	// ErrNotDirectory is returned when a known source's root path is a file.
	ErrNotDirectory = errors.New("root is not a directory")
)

// DefaultFileExtensions is used when a known source configures no patterns.
var DefaultFileExtensions = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.js", "*.txt", "*.pdf",
	"*.ttf", "*.otf", "*.woff", "*.woff2", "*.eot", "*.svg", "*.html", "*.htm",
}

// FileInfo represents a matched local file
type FileInfo struct {
	Path    string // Absolute path
	RelPath string // Relative path from root, forward slashes
	Size    int64
	ModTime int64 // Unix timestamp
}

// Walker resolves the files of one known source
type Walker struct {
	root     string
	walkRoot string
	patterns []string
	excludes []string
}

// NormalizePatterns turns configured extensions into lower-case "*.ext" globs.
// Entries like ".ttf" or "ttf" become "*.ttf"; blanks are dropped and duplicates removed.
func NormalizePatterns(exts []string) []string {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, ext := range exts {
		p := strings.ToLower(strings.TrimSpace(ext))
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "*") {
			if !strings.HasPrefix(p, ".") {
				p = "." + p
			}
			p = "*" + p
		}
		set.Add(p)
	}
	if set.Cardinality() == 0 {
		return NormalizePatterns(DefaultFileExtensions)
	}

	patterns := set.ToSlice()
	sort.Strings(patterns)
	return patterns
}

// NewWalker creates a walker for root. Patterns are normalized with NormalizePatterns.
func NewWalker(root string, patterns []string, excludes []string) (*Walker, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("get absolute path: %w", err)
	}

	walkRoot, err := filepath.EvalSymlinks(absRoot)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, absRoot)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	info, err := os.Stat(walkRoot)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, absRoot)
	}
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, absRoot)
	}

	normalized := NormalizePatterns(patterns)
	for _, p := range normalized {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}
	for _, p := range excludes {
		if !doublestar.ValidatePattern(strings.TrimSuffix(p, "/")) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}

	return &Walker{
		root:     absRoot,
		walkRoot: walkRoot,
		patterns: normalized,
		excludes: excludes,
	}, nil
}

// Root returns the absolute root directory.
func (w *Walker) Root() string {
	return w.root
}

// Patterns returns the normalized include patterns.
func (w *Walker) Patterns() []string {
	return w.patterns
}

// Walk walks the file tree and returns matching files in lexical order
func (w *Walker) Walk() ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(w.walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(w.walkRoot, path)
		if err != nil {
			return fmt.Errorf("get relative path: %w", err)
		}
		relPath = filepath.ToSlash(relPath)

		if !w.isIncluded(relPath) || w.isExcluded(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("get file info: %w", err)
		}
		if !info.Mode().IsRegular() {
			// symlinks count when they point at a regular file
			target, err := os.Stat(path)
			if err != nil || !target.Mode().IsRegular() {
				return nil
			}
			info = target
		}

		files = append(files, FileInfo{
			Path:    filepath.Join(w.root, filepath.FromSlash(relPath)),
			RelPath: relPath,
			Size:    info.Size(),
			ModTime: info.ModTime().Unix(),
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	return files, nil
}

// isIncluded matches the path against "**/<pattern>", ignoring case
func (w *Walker) isIncluded(path string) bool {
	lower := strings.ToLower(path)
	for _, pattern := range w.patterns {
		if matched, _ := doublestar.Match("**/"+pattern, lower); matched {
			return true
		}
	}
	return false
}

// isExcluded checks if a path matches any exclude pattern
func (w *Walker) isExcluded(path string) bool {
	for _, pattern := range w.excludes {
		// Handle directory patterns (ending with /)
		if strings.HasSuffix(pattern, "/") {
			dirPattern := strings.TrimSuffix(pattern, "/")
			parts := strings.Split(path, "/")
			for i := 1; i < len(parts); i++ {
				subPath := strings.Join(parts[:i], "/")
				if matched, _ := doublestar.Match(dirPattern, subPath); matched {
					return true
				}
			}
		} else {
			if matched, _ := doublestar.Match(pattern, path); matched {
				return true
			}
		}
	}
	return false
}
