package source

import (
	"io/fs"
	"path/filepath"
)

// Walk is filepath.WalkDir that follows a symlinked root. Paths passed to fn
// stay under root as given.
func Walk(root string, fn fs.WalkDirFunc) error {
	real, err := filepath.EvalSymlinks(root)
	if err != nil {
		return err
	}
	if real == root {
		return filepath.WalkDir(root, fn)
	}
	return filepath.WalkDir(real, func(path string, d fs.DirEntry, err error) error {
		rel, relErr := filepath.Rel(real, path)
		switch {
		case relErr != nil:
		case rel == ".":
			path = root
		default:
			path = filepath.Join(root, rel)
		}
		return fn(path, d, err)
	})
}
