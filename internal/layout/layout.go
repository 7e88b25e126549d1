// Package layout resolves the on-disk locations the mirror engine uses: the
// deterministic per-origin working directory, and the cross-process
// exclusive lockfile that guards a mirror_dir for the duration of a run.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/k8scat/git-mirror/internal/mirrorerr"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a URL into a deterministic, filesystem-safe directory name:
// lowercased, all non-alphanumeric runs collapsed to a single hyphen,
// leading/trailing hyphens trimmed. Identical origins always yield
// identical slugs.
func Slug(origin string) string {
	lower := strings.ToLower(origin)
	slug := nonAlphanumeric.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}

// PathFor returns the working directory git-mirror uses for origin, rooted
// at mirrorDir.
func PathFor(mirrorDir, origin string) string {
	return filepath.Join(mirrorDir, Slug(origin))
}

// Lock is an acquired exclusive advisory lock on mirror_dir/git-mirror.lock.
// It must be released with Unlock once the run completes.
type Lock struct {
	file *os.File
}

// Acquire creates mirror_dir (recursively) if needed, then takes an
// exclusive, non-blocking advisory lock on git-mirror.lock inside it.
// Failure to acquire (including because another instance already holds it)
// is reported as a *mirrorerr.GenericError, per spec.
func Acquire(mirrorDir string) (*Lock, error) {
	if err := os.MkdirAll(mirrorDir, 0o755); err != nil {
		return nil, mirrorerr.NewGeneric("unable to create mirror dir %s: %v", mirrorDir, err)
	}

	lockPath := filepath.Join(mirrorDir, "git-mirror.lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, mirrorerr.NewGeneric("unable to open lockfile %s: %v", lockPath, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, mirrorerr.NewGeneric("another instance is already running against %s: %v", mirrorDir, err)
	}

	return &Lock{file: f}, nil
}

// Unlock releases the lock and closes the underlying file.
func (l *Lock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("unable to release lockfile: %w", err)
	}
	return l.file.Close()
}
