package asset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

const appIconSetExt = ".appiconset"

// iconContents is the part of an appiconset's Contents.json that names images.
type iconContents struct {
	Images []struct {
		Filename string `json:"filename"`
		Idiom    string `json:"idiom"`
		Platform string `json:"platform"`
		Size     string `json:"size"`
		Scale    string `json:"scale"`
	} `json:"images"`
}

// Glob fallbacks for catalogs whose Contents.json does not name the
// marketing icon, tried in order. Recursive entries match on base name.
var (
	iconSetGlobs = []string{
		"AppIcon.appiconset/icon_1024*.png",
		"AppIcon.appiconset/*1024*.png",
		"AppIcon.appiconset/AppStore*.png",
	}
	iconNameGlobs = []string{
		"AppIcon*1024*.png",
		"icon-1024*.png",
	}
)

// IsCatalog reports whether path names an asset catalog or an icon set.
func IsCatalog(path string) bool {
	ext := filepath.Ext(filepath.Clean(path))
	return ext == ".xcassets" || ext == appIconSetExt
}

// ContentsError is an icon set whose Contents.json could not be parsed.
type ContentsError struct {
	Path string
	Err  error
}

func (e *ContentsError) Error() string {
	return fmt.Sprintf("%s: invalid Contents.json: %v", filepath.Dir(e.Path), e.Err)
}

func (e *ContentsError) Unwrap() error { return e.Err }

// FindIcon locates the 1024pt App Store icon inside an asset catalog or icon
// set. It returns "" when the catalog has none. Icon sets with a malformed
// Contents.json are skipped and returned alongside the result.
func FindIcon(dir string) (string, []*ContentsError, error) {
	sets, err := iconSets(dir)
	if err != nil {
		return "", nil, err
	}
	var malformed []*ContentsError
	for _, set := range sets {
		path, err := iconFromContents(set)
		var ce *ContentsError
		if errors.As(err, &ce) {
			malformed = append(malformed, ce)
			continue
		}
		if err != nil {
			return "", malformed, err
		}
		if path != "" {
			return path, malformed, nil
		}
	}

	base := dir
	if filepath.Ext(dir) == appIconSetExt {
		base = filepath.Dir(dir)
	}
	for _, pattern := range iconSetGlobs {
		matches, err := filepath.Glob(filepath.Join(base, pattern))
		if err != nil {
			return "", malformed, err
		}
		if len(matches) > 0 {
			return matches[0], malformed, nil
		}
	}

	for _, pattern := range iconNameGlobs {
		var found string
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if ok, _ := filepath.Match(pattern, d.Name()); ok {
				found = path
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			return "", malformed, err
		}
		if found != "" {
			return found, malformed, nil
		}
	}
	return "", malformed, nil
}

// iconSets lists the icon sets under dir with AppIcon.appiconset first.
func iconSets(dir string) ([]string, error) {
	if filepath.Ext(dir) == appIconSetExt {
		return []string{dir}, nil
	}
	var sets []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && strings.HasSuffix(d.Name(), appIconSetExt) {
			if d.Name() == "AppIcon"+appIconSetExt {
				sets = append([]string{path}, sets...)
			} else {
				sets = append(sets, path)
			}
			return fs.SkipDir
		}
		return nil
	})
	return sets, err
}

func iconFromContents(set string) (string, error) {
	contentsPath := filepath.Join(set, "Contents.json")
	data, err := os.ReadFile(contentsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var contents iconContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return "", &ContentsError{Path: contentsPath, Err: err}
	}
	for _, img := range contents.Images {
		if img.Filename == "" {
			continue
		}
		marketing := img.Idiom == "ios-marketing" ||
			(img.Idiom == "universal" && img.Size == "1024x1024")
		if !marketing {
			continue
		}
		path := filepath.Join(set, img.Filename)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}
