package extract

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/afero"
)

// Resolves an archive entry name to a path inside dest
func safeJoin(dest, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
		}
	}

	clean := path.Clean("/" + name)
	if clean == "/" {
		return filepath.Clean(dest), nil
	}

	target := filepath.Join(dest, filepath.FromSlash(clean))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}

	return target, nil
}

func conflictError(target string) error {
	return fmt.Errorf("%w: %q conflicts with an earlier entry", ErrCorruptArchive, target)
}

func isConflict(err error) bool {
	return errors.Is(err, syscall.ENOTDIR) ||
		errors.Is(err, syscall.EISDIR) ||
		errors.Is(err, fs.ErrExist)
}

// MkdirAll that refuses to descend through a file an earlier entry wrote
func mkdirAll(afs afero.Fs, dir string) error {
	for p := dir; ; {
		info, err := afs.Stat(p)
		if err == nil {
			if !info.IsDir() {
				return conflictError(p)
			}
			break
		}

		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}

	if err := afs.MkdirAll(dir, 0o750); err != nil {
		if isConflict(err) {
			return conflictError(dir)
		}
		return err
	}

	return nil
}

func writeFile(afs afero.Fs, target string, mode fs.FileMode, r io.Reader) error {
	if err := mkdirAll(afs, filepath.Dir(target)); err != nil {
		return err
	}

	if info, err := afs.Stat(target); err == nil && info.IsDir() {
		return conflictError(target)
	}

	// owner always keeps read/write so cleanup can remove the tree
	f, err := afs.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm()|0o600)
	if err != nil {
		if isConflict(err) {
			return conflictError(target)
		}
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}
