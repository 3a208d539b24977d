package workspace

import (
	"io"
	"os"
	"path/filepath"
	"slices"
)

// copyTree recursively copies src into dst, skipping any directory whose base
// name is in excludeDirs. .git is intentionally not excluded by default so
// history is preserved for copy-strategy workspaces that want it (spec.md
// section 4.2: "`.git` objects may be included to preserve history").
func copyTree(src, dst string, excludeDirs []string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}

		if d.IsDir() {
			if rel != "." && slices.Contains(excludeDirs, d.Name()) {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}

		return copyFile(path, filepath.Join(dst, rel), d)
	})
}

func copyFile(src, dst string, d os.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	// Preserve symlinks rather than following them into possibly-huge targets.
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(target, dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	// Keep the source's modification time so fileDiffers treats an
	// untouched copy as unchanged.
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
