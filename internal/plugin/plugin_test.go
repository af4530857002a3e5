package plugin

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simfleet/simfleet/internal/ecs"
)

func newZipFile(path string) (*os.File, error) {
	return os.Create(path)
}

func mustWriteEntry(t *testing.T, w *zip.Writer, name, content string) {
	t.Helper()
	entry, err := w.Create(name)
	require.NoError(t, err)
	_, err = io.WriteString(entry, content)
	require.NoError(t, err)
}

func writeTestArchive(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "sample.simplugin")
	f, err := newZipFile(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)

	manifestJSON := `{
		"name": "sample",
		"version": "1.0.0",
		"components": [{"id": 50, "name": "HEALTH", "kind": "value", "level": "READ"}],
		"systems": ["regen"],
		"commands": [{"name": "heal", "schema": {"entityId": "int", "amount": "float"}}],
		"exports": ["MAX_HEALTH"]
	}`
	mustWriteEntry(t, w, "manifest.json", manifestJSON)

	script := `
		var MAX_HEALTH = 100;
		function regen() {
			// no-op system body for the test
		}
		function heal(payload) {
			store.attachComponent(payload.entityId, 50, payload.amount);
		}
	`
	mustWriteEntry(t, w, "sample.js", script)

	require.NoError(t, w.Close())
	return path
}

func TestLoadArchiveAndRunPlugin(t *testing.T) {
	dir := t.TempDir()
	path := writeTestArchive(t, dir)

	archive, err := LoadArchive(path)
	require.NoError(t, err)
	assert.Equal(t, "sample", archive.Manifest.Name)

	factory := NewGojaFactory(archive)
	store := ecs.New(10, 8)
	ctx := NewContext("sample", nil)
	ctx.SetStore(store)

	mod, err := factory.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sample", mod.Name())
	assert.Equal(t, "1.0.0", mod.Version())
	require.Len(t, mod.Components(), 1)
	assert.Equal(t, ecs.ComponentID(50), mod.Components()[0].ID)

	systems := mod.Systems()
	require.Len(t, systems, 1)
	require.NoError(t, systems[0].Update())

	id, err := store.CreateEntityForMatch(1)
	require.NoError(t, err)

	commands := mod.Commands()
	require.Len(t, commands, 1)
	require.Equal(t, "heal", commands[0].Name)
	require.NoError(t, commands[0].Execute(map[string]any{"entityId": float64(id), "amount": float64(75)}))

	v, err := store.GetComponent(id, 50)
	require.NoError(t, err)
	assert.Equal(t, float32(75), v)

	exports := mod.Exports()
	assert.Equal(t, int64(100), exports["MAX_HEALTH"])
}
