package install

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// copyTrees copies each named directory of src into the same place under
// dst. Symbolic links are recreated, never followed, and file modes are kept.
func copyTrees(src, dst string, trees []string, lg *log.Logger) error {
	for _, t := range trees {
		from := filepath.Join(src, filepath.FromSlash(t))
		fi, err := os.Stat(from)
		if err != nil {
			return fmt.Errorf("install tree %s: %w", t, err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("install tree %s: not a directory", t)
		}
		if err := copyDir(from, filepath.Join(dst, filepath.FromSlash(t)), lg); err != nil {
			return fmt.Errorf("install tree %s: %w", t, err)
		}
	}
	return nil
}

func copyDir(src, dst string, lg *log.Logger) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch typ := d.Type(); {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case typ&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return err
			}
			return os.Symlink(link, target)
		case typ.IsRegular():
			return copyFile(path, target)
		default:
			lg.Warn("not copying special file", "path", path)
			return nil
		}
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	// a read-only file from an earlier install must not block the overwrite
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, info.Mode().Perm())
}
