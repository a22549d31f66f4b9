package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Both implementations must satisfy FileSystem.
var (
	_ FileSystem = OSFileSystem{}
	_ FileSystem = (*MemoryFileSystem)(nil)
)

func exercise(t *testing.T, fsys FileSystem, dir string) {
	t.Helper()

	require.NoError(t, fsys.MkdirAll(filepath.Join(dir, "out"), 0755))
	assert.True(t, fsys.Exists(filepath.Join(dir, "out")))

	w, err := fsys.Create(filepath.Join(dir, "out", "run_z"))
	require.NoError(t, err)
	_, err = w.Write([]byte("1.5\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, fsys.WriteFile(filepath.Join(dir, "out", "run_angle"), []byte("0.25\n"), 0644))

	data, err := fsys.ReadFile(filepath.Join(dir, "out", "run_z"))
	require.NoError(t, err)
	assert.Equal(t, "1.5\n", string(data))

	info, err := fsys.Stat(filepath.Join(dir, "out", "run_angle"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	assert.False(t, info.IsDir())

	matches, err := fsys.Glob(filepath.Join(dir, "out", "run_*"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "out", "run_angle"),
		filepath.Join(dir, "out", "run_z"),
	}, matches)

	_, err = fsys.ReadFile(filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.False(t, fsys.Exists(filepath.Join(dir, "missing")))
}

func TestOSFileSystem(t *testing.T) {
	exercise(t, OSFileSystem{}, t.TempDir())
}

func TestMemoryFileSystem(t *testing.T) {
	m := NewMemoryFileSystem()
	exercise(t, m, "/data")

	assert.Equal(t, []string{"/data/out/run_angle", "/data/out/run_z"}, m.Files("/data/out/"))

	info, err := m.Stat("/data")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMemoryFileSystemCopiesData(t *testing.T) {
	m := NewMemoryFileSystem()
	buf := []byte("abc")
	require.NoError(t, m.WriteFile("f", buf, 0644))
	buf[0] = 'x'

	got, err := m.ReadFile("f")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}
