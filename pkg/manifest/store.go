package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
)

const lockFile = ".lock"

var (
	// ErrStoreLocked is returned by Lock when another process owns the manifest directory.
	ErrStoreLocked = errors.New("manifest directory locked by another process")
	// ErrInvalidName is returned for known source names that cannot be used as file names.
	ErrInvalidName = errors.New("invalid known source name")
)

// Store keeps one manifest file per known source in a directory.
type Store struct {
	dir   string
	clock clockwork.Clock
	flock *flock.Flock
}

// NewStore creates a store rooted at dir. A nil clock uses the real clock.
func NewStore(dir string, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		dir:   dir,
		clock: clock,
		flock: flock.New(filepath.Join(dir, lockFile)),
	}
}

// Dir returns the manifest directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the manifest file for a known source.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+FileSuffix)
}

func (s *Store) Load(name string) (*Manifest, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return Load(s.Path(name))
}

func (s *Store) Save(name string, m *Manifest) error {
	if err := checkName(name); err != nil {
		return err
	}
	return Save(s.Path(name), m, s.clock.Now())
}

// Backups lists the backup files of a known source, oldest first.
func (s *Store) Backups(name string) ([]string, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest directory: %w", err)
	}

	re := regexp.MustCompile(`^` + regexp.QuoteMeta(name) + `\.(\d{8}T\d{6})(?:-(\d+))?` + regexp.QuoteMeta(FileSuffix) + `$`)

	type backup struct {
		path  string
		stamp string
		seq   int
	}
	var found []backup
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		seq := 0
		if m[2] != "" {
			seq, _ = strconv.Atoi(m[2])
		}
		found = append(found, backup{path: filepath.Join(s.dir, e.Name()), stamp: m[1], seq: seq})
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].stamp != found[j].stamp {
			return found[i].stamp < found[j].stamp
		}
		return found[i].seq < found[j].seq
	})

	paths := make([]string, len(found))
	for i, b := range found {
		paths[i] = b.path
	}
	return paths, nil
}

// Lock takes an exclusive lock on the manifest directory for this process.
func (s *Store) Lock() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}

	locked, err := s.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock manifest directory: %w", err)
	}
	if !locked {
		return ErrStoreLocked
	}
	return nil
}

// Unlock releases the lock taken by Lock.
func (s *Store) Unlock() error {
	if !s.flock.Locked() {
		return nil
	}
	return s.flock.Unlock()
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
