package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Exists reports whether path exists. Errors other than not-exist count as existing.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// Copy copies src to dst. Files are copied with their mode, directories
// recursively. Entries whose base name matches ignore are skipped at
// every level, including src itself. An existing dst is replaced.
// A symlinked src is followed, so a linked world folder is copied by
// content; a dangling one is copied as a link. Links below src are kept
// as links. Returns fs.ErrNotExist (wrapped) when src is missing.
func Copy(src, dst string, ignore *Matcher) error {
	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if ignore.Match(filepath.Base(src)) {
		return nil
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Stat(src)
		switch {
		case err == nil:
			info = target
		case errors.Is(err, fs.ErrNotExist):
			return Backup(src, dst)
		default:
			return fmt.Errorf("follow %s: %w", src, err)
		}
	}
	if err := Remove(dst); err != nil {
		return err
	}
	switch {
	case info.IsDir():
		return copyDir(src, dst, info.Mode().Perm(), ignore)
	case info.Mode().IsRegular():
		return copyFile(src, dst, info.Mode().Perm())
	default:
		return fmt.Errorf("copy %s: unsupported file type %s", src, info.Mode().Type())
	}
}

// Backup copies src to dst without ignoring anything. Unlike Copy, a
// symlinked src is copied as the link itself, so restoring the backup
// brings the link back and never touches its target.
func Backup(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return Copy(src, dst, nil)
	}
	if err := Remove(dst); err != nil {
		return err
	}
	return copySymlink(src, dst)
}

func copyDir(src, dst string, perm fs.FileMode, ignore *Matcher) error {
	if err := os.MkdirAll(dst, perm|0700); err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	for _, e := range entries {
		if ignore.Match(e.Name()) {
			continue
		}
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dst, e.Name())
		info, err := e.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", from, err)
		}
		switch {
		case info.IsDir():
			err = copyDir(from, to, info.Mode().Perm(), ignore)
		case info.Mode().IsRegular():
			err = copyFile(from, to, info.Mode().Perm())
		case info.Mode()&fs.ModeSymlink != 0:
			err = copySymlink(from, to)
		default:
			// sockets, devices and pipes have no place in a world folder
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}

func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("readlink %s: %w", src, err)
	}
	if err := os.Symlink(target, dst); err != nil {
		return fmt.Errorf("symlink %s: %w", dst, err)
	}
	return nil
}

// Remove deletes path recursively. A symlink is removed itself, its target
// is left alone. A missing path is not an error.
func Remove(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Size returns the total size in bytes of the regular files under path.
func Size(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measure %s: %w", path, err)
	}
	return total, nil
}
