package dirlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSortsDirsFirstThenName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("xx"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	entries, err := Build(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "sub", entries[0].Name)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, "a.txt", entries[1].Name)
	assert.Equal(t, "b.txt", entries[2].Name)
}

func TestEntryHumanSize(t *testing.T) {
	f := Entry{Name: "x", Size: 2048}
	assert.Equal(t, "2.0 KiB", f.HumanSize())

	d := Entry{Name: "d", IsDir: true}
	assert.Equal(t, "-", d.HumanSize())
}

func TestRenderIncludesParentLinkAndEntries(t *testing.T) {
	entries := []Entry{{Name: "cat.png", Size: 10, ModTime: "2024-01-01 00:00"}}
	out := string(Render("/images/", entries))
	assert.Contains(t, out, "Index of /images/")
	assert.Contains(t, out, "../")
	assert.Contains(t, out, "cat.png")
}

func TestRenderRootHasNoParentLink(t *testing.T) {
	out := string(Render("/", nil))
	assert.NotContains(t, out, "../")
}
