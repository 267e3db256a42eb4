// Package workspace manages per-job working directories.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TextureFile = "texture.png"
	ModelFile   = "model.usd"
	GLBFile     = "model.glb"
)

var ErrNotFound = errors.New("not found")

var idRegexp = regexp.MustCompile(`^[0-9a-f]{32}$`)

// NewID returns a random job identifier of 32 lowercase hex characters.
func NewID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

// ValidID reports whether id could have been returned by NewID.
func ValidID(id string) bool {
	return idRegexp.MatchString(id)
}

// Workspace is a root directory holding one subdirectory per job.
type Workspace struct {
	root string

	mu      sync.Mutex
	created bool
}

func New(root string) *Workspace {
	return &Workspace{root: root}
}

// Root creates the root directory on first use and returns its path.
func (w *Workspace) Root() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.created {
		if err := os.MkdirAll(w.root, 0o777); err != nil {
			return "", fmt.Errorf("workspace.Root: %w", err)
		}
		w.created = true
	}
	return w.root, nil
}

// Create creates the directory of a new job.
// It fails if the directory already exists.
func (w *Workspace) Create(id string) (*Job, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("workspace.Create: invalid job id %q", id)
	}
	root, err := w.Root()
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(root, id)
	if err = os.Mkdir(dir, 0o777); err != nil {
		return nil, fmt.Errorf("workspace.Create: %w", err)
	}

	return &Job{ID: id, Dir: dir}, nil
}

// Remove deletes the directory of a job.
func (w *Workspace) Remove(id string) error {
	if !ValidID(id) {
		return fmt.Errorf("workspace.Remove: invalid job id %q", id)
	}
	if err := os.RemoveAll(filepath.Join(w.root, id)); err != nil {
		return fmt.Errorf("workspace.Remove: %w", err)
	}
	return nil
}

// ArchivePath returns the path of the archive a job serves.
// Only the file named <id>.<ext> is ever resolved.
func (w *Workspace) ArchivePath(id, file, ext string) (string, error) {
	if !ValidID(id) || file != id+"."+ext {
		return "", ErrNotFound
	}
	p := filepath.Join(w.root, id, file)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return p, nil
}

// Sweep removes job directories last modified before now minus ttl.
// Entries that are not job directories are left alone.
func (w *Workspace) Sweep(ctx context.Context, ttl time.Duration, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(w.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("workspace.Sweep: %w", err)
	}

	cutoff := now.Add(-ttl)
	var removed []string
	var errs error
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !e.IsDir() || !ValidID(e.Name()) {
			continue
		}
		info, infoErr := e.Info()
		if infoErr != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if rmErr := os.RemoveAll(filepath.Join(w.root, e.Name())); rmErr != nil {
			errs = errors.Join(errs, rmErr)
			continue
		}
		removed = append(removed, e.Name())
	}
	if errs != nil {
		return removed, fmt.Errorf("workspace.Sweep: %w", errs)
	}

	return removed, nil
}

// Job is the directory of one build.
// Artifacts use fixed names so tools can run with Dir as their working
// directory and refer to them relatively.
type Job struct {
	ID  string
	Dir string
}

func (j *Job) Path(name string) string {
	return filepath.Join(j.Dir, name)
}

func (j *Job) TexturePath() string { return j.Path(TextureFile) }
func (j *Job) ModelPath() string   { return j.Path(ModelFile) }
func (j *Job) GLBPath() string     { return j.Path(GLBFile) }

// ArchiveName returns the served file name for ext.
func (j *Job) ArchiveName(ext string) string {
	return j.ID + "." + ext
}

func (j *Job) ArchivePath(ext string) string {
	return j.Path(j.ArchiveName(ext))
}

// WriteFile writes a file into the job directory.
func (j *Job) WriteFile(name string, data []byte) error {
	if err := os.WriteFile(j.Path(name), data, 0o666); err != nil {
		return fmt.Errorf("workspace.Job: %w", err)
	}
	return nil
}

// ClearArchive removes a leftover archive so a failed packaging run
// can't be mistaken for a successful one.
func (j *Job) ClearArchive(ext string) error {
	err := os.Remove(j.ArchivePath(ext))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("workspace.Job: %w", err)
	}
	return nil
}

// Entry is a file in a job directory.
type Entry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Listing returns the files in the job directory sorted by name.
func (j *Job) Listing() ([]Entry, error) {
	entries, err := os.ReadDir(j.Dir)
	if err != nil {
		return nil, fmt.Errorf("workspace.Job: %w", err)
	}
	listing := make([]Entry, 0, len(entries))
	for _, e := range entries {
		info, infoErr := e.Info()
		if infoErr != nil {
			continue
		}
		listing = append(listing, Entry{Name: e.Name(), Size: info.Size()})
	}
	slices.SortFunc(listing, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return listing, nil
}
