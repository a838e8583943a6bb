package proc

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrNotFound is the error resulting if a path search failed to find an
// executable file.
var ErrNotFound = exec.ErrNotFound

// Resolver locates executables for pipeline stages. Lookups are never
// memoized; the filesystem may change between invocations so every call
// re-checks it.
type Resolver struct {
	fs     afero.Fs
	getenv func(string) string
}

// NewResolver returns a resolver over the host filesystem and environment.
func NewResolver() *Resolver {
	return NewResolverFs(afero.NewOsFs(), os.Getenv)
}

// NewResolverFs returns a resolver over an arbitrary filesystem and
// environment lookup, used by tests and embedders.
func NewResolverFs(fsys afero.Fs, getenv func(string) string) *Resolver {
	return &Resolver{fs: fsys, getenv: getenv}
}

func (r *Resolver) findExecutable(file string) error {
	d, err := r.fs.Stat(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case err != nil:
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}

// Resolve searches for an executable named name. An absolute name is tried
// directly and the search path is not consulted. Otherwise each directory
// listed in the PATH environment value is tried in order and the first
// executable candidate wins; an empty list entry means the current
// directory. ErrNotFound is returned when nothing matches.
func (r *Resolver) Resolve(name string) (string, error) {
	if filepath.IsAbs(name) {
		if err := r.findExecutable(name); err != nil {
			return "", ErrNotFound
		}
		return name, nil
	}

	for _, dir := range filepath.SplitList(r.getenv("PATH")) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		if err := r.findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", ErrNotFound
}
