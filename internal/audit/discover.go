package audit

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/moasq/storecheck/internal/asset"
	"github.com/moasq/storecheck/internal/finding"
	"github.com/moasq/storecheck/internal/source"
)

// Discover finds the audit targets inside an Xcode project directory: the
// app's Info.plist, its asset catalog, a screenshots folder, and the tree
// itself for the source and privacy checks. Targets come back in Kinds
// order; kinds with nothing to check are left out.
func Discover(root string, excludeDirs []string) ([]Target, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, finding.NotFound(root)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New(root + " is not a directory")
	}

	exclude := append(slices.Clone(source.DefaultExcludeDirs), excludeDirs...)
	var plist, catalog, shots string
	err = source.Walk(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if slices.Contains(exclude, name) || isTestDir(name) || filepath.Ext(name) == ".app" {
				return fs.SkipDir
			}
			switch {
			case filepath.Ext(name) == ".xcassets":
				if catalog == "" && hasIconSet(path) {
					catalog = path
				}
				return fs.SkipDir
			case strings.EqualFold(name, "screenshots") && shots == "":
				shots = path
			}
			return nil
		}
		if name == "Info.plist" && plist == "" {
			plist = path
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var targets []Target
	if plist != "" {
		targets = append(targets, Target{Kind: KindManifest, Path: plist})
	}
	if catalog != "" {
		targets = append(targets, Target{Kind: KindIcon, Path: catalog})
	}
	if shots != "" {
		targets = append(targets, Target{Kind: KindScreenshots, Path: shots})
	}
	targets = append(targets,
		Target{Kind: KindSource, Path: root},
		Target{Kind: KindPrivacy, Path: root},
	)
	return targets, nil
}

func isTestDir(name string) bool {
	return strings.HasSuffix(name, "Tests")
}

func hasIconSet(catalog string) bool {
	icon, _, err := asset.FindIcon(catalog)
	if err == nil && icon != "" {
		return true
	}
	entries, err := os.ReadDir(catalog)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() && asset.IsCatalog(e.Name()) && filepath.Ext(e.Name()) != ".xcassets" {
			return true
		}
	}
	return false
}
