package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestCopyDirectory(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	writeFile(t, filepath.Join(src, "level.dat"), "level")
	writeFile(t, filepath.Join(src, "region", "r.0.0.mca"), "chunk")
	writeFile(t, filepath.Join(src, "session.lock"), "lock")
	writeFile(t, filepath.Join(src, "region", "session.lock"), "lock")

	ignore, err := NewMatcher([]string{"session.lock"})
	require.NoError(t, err)

	dst := filepath.Join(root, "dst")
	require.NoError(t, Copy(src, dst, ignore))

	assert.Equal(t, "level", readFile(t, filepath.Join(dst, "level.dat")))
	assert.Equal(t, "chunk", readFile(t, filepath.Join(dst, "region", "r.0.0.mca")))
	assert.False(t, Exists(filepath.Join(dst, "session.lock")))
	assert.False(t, Exists(filepath.Join(dst, "region", "session.lock")))
}

func TestCopyReplacesDestination(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeFile(t, filepath.Join(src, "a"), "new")
	writeFile(t, filepath.Join(dst, "stale"), "old")

	require.NoError(t, Copy(src, dst, nil))

	assert.Equal(t, "new", readFile(t, filepath.Join(dst, "a")))
	assert.False(t, Exists(filepath.Join(dst, "stale")))
}

func TestCopyFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "server.properties"), "motd=hi")

	require.NoError(t, Copy(filepath.Join(root, "server.properties"), filepath.Join(root, "out"), nil))
	assert.Equal(t, "motd=hi", readFile(t, filepath.Join(root, "out")))
}

func TestCopyIgnoredSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "session.lock"), "x")
	ignore, err := NewMatcher([]string{"session.lock"})
	require.NoError(t, err)

	require.NoError(t, Copy(filepath.Join(root, "session.lock"), filepath.Join(root, "out"), ignore))
	assert.False(t, Exists(filepath.Join(root, "out")))
}

func TestCopyMissingSource(t *testing.T) {
	root := t.TempDir()
	err := Copy(filepath.Join(root, "missing"), filepath.Join(root, "out"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestRemove(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "dir", "f"), "x")

	require.NoError(t, Remove(filepath.Join(root, "dir")))
	assert.False(t, Exists(filepath.Join(root, "dir")))
	assert.NoError(t, Remove(filepath.Join(root, "dir")), "removing a missing path is not an error")
}

func TestSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a"), "12345")
	writeFile(t, filepath.Join(root, "sub", "b"), "123")

	size, err := Size(root)
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)
}

func TestCopyFollowsSymlinkedSource(t *testing.T) {
	root := t.TempDir()
	realDir := filepath.Join(root, "realworld")
	writeFile(t, filepath.Join(realDir, "level.dat"), "level")
	writeFile(t, filepath.Join(realDir, "region", "r.0.0.mca"), "chunk")
	world := filepath.Join(root, "world")
	require.NoError(t, os.Symlink(realDir, world))

	dst := filepath.Join(root, "backup")
	require.NoError(t, Copy(world, dst, nil))

	info, err := os.Lstat(dst)
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "a linked directory is copied by content")
	assert.Equal(t, "level", readFile(t, filepath.Join(dst, "level.dat")))
	assert.Equal(t, "chunk", readFile(t, filepath.Join(dst, "region", "r.0.0.mca")))
}

func TestCopyDanglingSymlink(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(root, "gone")
	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), link))

	dst := filepath.Join(root, "out")
	require.NoError(t, Copy(link, dst, nil))

	target, err := os.Readlink(dst)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "missing"), target)
}

func TestCopySymlinkLoop(t *testing.T) {
	root := t.TempDir()
	loop := filepath.Join(root, "loop")
	require.NoError(t, os.Symlink(loop, loop))

	err := Copy(loop, filepath.Join(root, "out"), nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, fs.ErrNotExist))
}

func TestCopyKeepsNestedLinks(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	writeFile(t, filepath.Join(src, "level.dat"), "level")
	require.NoError(t, os.Symlink("level.dat", filepath.Join(src, "alias")))

	dst := filepath.Join(root, "dst")
	require.NoError(t, Copy(src, dst, nil))

	target, err := os.Readlink(filepath.Join(dst, "alias"))
	require.NoError(t, err)
	assert.Equal(t, "level.dat", target)
}

func TestBackupKeepsLink(t *testing.T) {
	root := t.TempDir()
	realDir := filepath.Join(root, "realworld")
	writeFile(t, filepath.Join(realDir, "level.dat"), "level")
	world := filepath.Join(root, "world")
	require.NoError(t, os.Symlink(realDir, world))

	dst := filepath.Join(root, "backup")
	writeFile(t, filepath.Join(dst, "stale"), "old")
	require.NoError(t, Backup(world, dst))

	target, err := os.Readlink(dst)
	require.NoError(t, err)
	assert.Equal(t, realDir, target)

	plain := filepath.Join(root, "plain")
	require.NoError(t, Backup(realDir, plain))
	assert.Equal(t, "level", readFile(t, filepath.Join(plain, "level.dat")))
}

func TestRemoveLeavesLinkTarget(t *testing.T) {
	root := t.TempDir()
	realDir := filepath.Join(root, "realworld")
	writeFile(t, filepath.Join(realDir, "level.dat"), "level")
	world := filepath.Join(root, "world")
	require.NoError(t, os.Symlink(realDir, world))

	require.NoError(t, Remove(world))

	assert.False(t, Exists(world))
	assert.Equal(t, "level", readFile(t, filepath.Join(realDir, "level.dat")))
}
