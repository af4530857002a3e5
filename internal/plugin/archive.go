package plugin

import (
	"archive/zip"
	"encoding/json"
	"io"
	"sort"

	"github.com/simfleet/simfleet/internal/simerr"
)

// manifestComponent is the on-disk shape of one declared component.
type manifestComponent struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Level string `json:"level,omitempty"`
}

// manifestCommand is the on-disk shape of one declared command.
type manifestCommand struct {
	Name     string            `json:"name"`
	Schema   map[string]string `json:"schema"`
	Function string            `json:"function,omitempty"`
	Params   []CommandParam    `json:"parameters,omitempty"`
}

// manifest is manifest.json inside a plugin archive: the declarative part
// of a module (name, version, components, command schemas) that must be
// known before any script runs, since component ids must be stable across
// reloads.
type manifest struct {
	Name          string              `json:"name"`
	Version       string              `json:"version"`
	FlagComponent *manifestComponent  `json:"flagComponent,omitempty"`
	Components    []manifestComponent `json:"components"`
	Systems       []string            `json:"systems"`
	Commands      []manifestCommand   `json:"commands"`
	Exports       []string            `json:"exports"`
	Scripts       []string            `json:"scripts"`
}

// Archive is a parsed plugin archive ready to be turned into a Factory via
// NewGojaFactory.
type Archive struct {
	Path     string
	Manifest manifest
	Source   string // concatenated, in Scripts order
}

// LoadArchive opens a zip-format plugin archive at path and reads its
// manifest.json plus every script it lists, in declared order, so a
// multi-file plugin still produces one compilation unit (goja has no
// module/import resolution of its own).
func LoadArchive(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, simerr.Wrap(simerr.InvalidRequest, "open plugin archive", err)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	manifestFile, ok := files["manifest.json"]
	if !ok {
		return nil, simerr.InvalidRequestf("plugin archive %s has no manifest.json", path)
	}
	var m manifest
	if err := readJSON(manifestFile, &m); err != nil {
		return nil, simerr.Wrap(simerr.InvalidRequest, "decode manifest.json", err)
	}
	if m.Name == "" {
		return nil, simerr.InvalidRequestf("plugin archive %s: manifest missing name", path)
	}

	scripts := m.Scripts
	if len(scripts) == 0 {
		// No explicit script list: run every .js file in the archive, sorted for
		// determinism.
		for name := range files {
			if len(name) > 3 && name[len(name)-3:] == ".js" {
				scripts = append(scripts, name)
			}
		}
		sort.Strings(scripts)
	}

	var source string
	for _, name := range scripts {
		f, ok := files[name]
		if !ok {
			return nil, simerr.InvalidRequestf("plugin archive %s: script %s not found", path, name)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, simerr.Wrap(simerr.InvalidRequest, "open plugin script", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, simerr.Wrap(simerr.InvalidRequest, "read plugin script", err)
		}
		source += string(data) + "\n"
	}

	return &Archive{Path: path, Manifest: m, Source: source}, nil
}

func readJSON(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return json.NewDecoder(rc).Decode(v)
}
