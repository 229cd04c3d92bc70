package rules

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

// Table file names, looked up both in the embedded defaults and in an
// override directory.
const (
	ManifestFile = "manifest.yaml"
	PatternsFile = "patterns.yaml"
	AssetsFile   = "assets.yaml"
	PrivacyFile  = "privacy.yaml"
)

// Files lists the table files in load order.
var Files = []string{ManifestFile, PatternsFile, AssetsFile, PrivacyFile}

type manifestDoc struct {
	Rules []ManifestRule `yaml:"rules"`
}

type patternsDoc struct {
	Patterns []PatternRule `yaml:"patterns"`
}

type assetsDoc struct {
	Icon        AssetSpec   `yaml:"icon"`
	Screenshots []AssetSpec `yaml:"screenshots"`
}

type privacyDoc struct {
	Categories []ReasonCategory `yaml:"categories"`
}

// Default loads the embedded tables.
func Default() (*Tables, error) {
	return Load("")
}

// Load reads the embedded tables, replacing each one whose file exists in dir.
// An empty dir loads the defaults only.
func Load(dir string) (*Tables, error) {
	var (
		t        Tables
		manifest manifestDoc
		patterns patternsDoc
		assets   assetsDoc
		privacy  privacyDoc
	)
	files := []struct {
		name string
		out  any
	}{
		{ManifestFile, &manifest},
		{PatternsFile, &patterns},
		{AssetsFile, &assets},
		{PrivacyFile, &privacy},
	}
	for _, f := range files {
		data, err := readTable(dir, f.name)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, f.out); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f.name, err)
		}
	}

	t.Manifest = manifest.Rules
	t.Patterns = patterns.Patterns
	t.Icon = assets.Icon
	t.Screenshots = assets.Screenshots
	t.Privacy = privacy.Categories

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Encode writes the named table in the layout Load reads, so the output can
// seed a rules directory.
func (t *Tables) Encode(w io.Writer, name string) error {
	var doc any
	switch name {
	case ManifestFile:
		doc = manifestDoc{Rules: t.Manifest}
	case PatternsFile:
		doc = patternsDoc{Patterns: t.Patterns}
	case AssetsFile:
		doc = assetsDoc{Icon: t.Icon, Screenshots: t.Screenshots}
	case PrivacyFile:
		doc = privacyDoc{Categories: t.Privacy}
	default:
		return fmt.Errorf("unknown table %q", name)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return enc.Close()
}

func readTable(dir, name string) ([]byte, error) {
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
	}
	data, err := defaultsFS.ReadFile("defaults/" + name)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded %s: %w", name, err)
	}
	return data, nil
}

// Validate checks table invariants and compiles source patterns. Codes must be
// unique within each table.
func (t *Tables) Validate() error {
	var errs []error

	seen := make(map[string]bool)
	for i, r := range t.Manifest {
		switch {
		case r.Code == "":
			errs = append(errs, fmt.Errorf("%s: rule %d has no code", ManifestFile, i))
		case seen[r.Code]:
			errs = append(errs, fmt.Errorf("%s: duplicate rule code %q", ManifestFile, r.Code))
		}
		seen[r.Code] = true
		if !slices.Contains(manifestKinds, r.Kind) {
			errs = append(errs, fmt.Errorf("%s: rule %s has unknown kind %q", ManifestFile, r.Code, r.Kind))
		}
		if r.Key == "" {
			errs = append(errs, fmt.Errorf("%s: rule %s has no key", ManifestFile, r.Code))
		}
		if r.Severity == "" {
			errs = append(errs, fmt.Errorf("%s: rule %s has no severity", ManifestFile, r.Code))
		}
	}

	seen = make(map[string]bool)
	for i := range t.Patterns {
		p := &t.Patterns[i]
		switch {
		case p.Code == "":
			errs = append(errs, fmt.Errorf("%s: pattern %d has no code", PatternsFile, i))
		case seen[p.Code]:
			errs = append(errs, fmt.Errorf("%s: duplicate pattern code %q", PatternsFile, p.Code))
		}
		seen[p.Code] = true
		if p.Severity == "" {
			errs = append(errs, fmt.Errorf("%s: pattern %s has no severity", PatternsFile, p.Code))
		}
		switch p.Intent {
		case IntentDeprecatedAPI, IntentDataCollection:
		case IntentRequiredReason:
			if _, ok := t.Category(p.Category); !ok {
				errs = append(errs, fmt.Errorf("%s: pattern %s references unknown category %q", PatternsFile, p.Code, p.Category))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: pattern %s has unknown intent %q", PatternsFile, p.Code, p.Intent))
		}
		if err := p.Compile(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", PatternsFile, err))
		}
	}

	seen = make(map[string]bool)
	for _, spec := range append([]AssetSpec{t.Icon}, t.Screenshots...) {
		if spec.DeviceClass == "" {
			errs = append(errs, fmt.Errorf("%s: asset spec without device_class", AssetsFile))
			continue
		}
		if seen[spec.DeviceClass] {
			errs = append(errs, fmt.Errorf("%s: duplicate device class %q", AssetsFile, spec.DeviceClass))
		}
		seen[spec.DeviceClass] = true
		if len(spec.Sizes) == 0 {
			errs = append(errs, fmt.Errorf("%s: %s has no sizes", AssetsFile, spec.DeviceClass))
		}
		if spec.MaxCount > 0 && spec.MinCount > spec.MaxCount {
			errs = append(errs, fmt.Errorf("%s: %s min_count %d exceeds max_count %d", AssetsFile, spec.DeviceClass, spec.MinCount, spec.MaxCount))
		}
	}
	for _, spec := range t.Screenshots {
		if spec.Fallback != "" && !seen[spec.Fallback] {
			errs = append(errs, fmt.Errorf("%s: %s falls back to unknown class %q", AssetsFile, spec.DeviceClass, spec.Fallback))
		}
	}

	seen = make(map[string]bool)
	for _, c := range t.Privacy {
		if seen[c.Category] {
			errs = append(errs, fmt.Errorf("%s: duplicate category %q", PrivacyFile, c.Category))
		}
		seen[c.Category] = true
	}

	return errors.Join(errs...)
}
