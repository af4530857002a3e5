// Package resource implements the file-backed resource area each
// container is allocated on start (§4.1, §6): a directory rooted at
// resources/container_<id>, from which plugins may read static data but
// never escape.
package resource

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/simfleet/simfleet/internal/simerr"
)

// Area is a sandboxed read/write view rooted at one container's resource
// directory. Every path is resolved relative to Root, with ".." segments
// collapsed inside Root, so a module can never reach another container's files
// or the host filesystem (§5 resource/class isolation).
type Area struct {
	Root string
}

// New allocates (creating if absent) the resource area for containerID
// under baseDir, e.g. baseDir/container_<id>.
func New(baseDir string, containerID int64) (*Area, error) {
	root := filepath.Join(baseDir, "container_"+strconv.FormatInt(containerID, 10))
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, simerr.Wrap(simerr.InvalidRequest, "allocate resource area", err)
	}
	return &Area{Root: root}, nil
}

// resolve maps a module-relative path onto the filesystem. Rooting the
// path at "/" before cleaning collapses any ".." segments against that
// synthetic root rather than the real filesystem root, so a path can
// never resolve outside Root no matter how many ".." components it
// carries.
func (a *Area) resolve(relPath string) (string, error) {
	cleaned := filepath.Clean("/" + relPath)
	full := filepath.Join(a.Root, cleaned)
	if full != a.Root && !strings.HasPrefix(full, a.Root+string(filepath.Separator)) {
		return "", simerr.InvalidRequestf("resource path %q escapes the container resource area", relPath)
	}
	return full, nil
}

// ReadFile reads a resource relative to the area root.
func (a *Area) ReadFile(relPath string) ([]byte, error) {
	full, err := a.resolve(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, simerr.NotFoundf("resource %q", relPath)
		}
		return nil, simerr.Wrap(simerr.InvalidRequest, "read resource", err)
	}
	return data, nil
}

// WriteFile writes a resource relative to the area root, creating parent
// directories as needed.
func (a *Area) WriteFile(relPath string, data []byte) error {
	full, err := a.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return simerr.Wrap(simerr.InvalidRequest, "create resource directory", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return simerr.Wrap(simerr.InvalidRequest, "write resource", err)
	}
	return nil
}

// Exists reports whether a resource relative to the area root is present.
func (a *Area) Exists(relPath string) bool {
	full, err := a.resolve(relPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}

// Remove deletes a resource release relative to the area root.
func (a *Area) Remove(relPath string) error {
	full, err := a.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return simerr.Wrap(simerr.InvalidRequest, "remove resource", err)
	}
	return nil
}
