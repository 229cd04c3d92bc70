// Package rules holds the compliance data the checkers evaluate: Info.plist
// rules, source patterns, image requirements and required reason API
// categories. Tables are YAML; defaults are embedded and any table can be
// replaced from a directory without touching checker code.
package rules

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/moasq/storecheck/internal/finding"
)

// ManifestKind selects the predicate a manifest rule is evaluated with.
type ManifestKind string

const (
	KindRequired         ManifestKind = "required"
	KindSemver           ManifestKind = "semver"
	KindBuildNumber      ManifestKind = "build-number"
	KindUsageDescription ManifestKind = "usage-description"
	KindDiscouraged      ManifestKind = "discouraged"
	KindDeprecated       ManifestKind = "deprecated"
	KindCapabilities     ManifestKind = "capabilities"
)

var manifestKinds = []ManifestKind{
	KindRequired, KindSemver, KindBuildNumber, KindUsageDescription,
	KindDiscouraged, KindDeprecated, KindCapabilities,
}

// Trigger marks a manifest key whose presence implies another key is needed.
// With Contains set, the key's array (or dictionary) must hold that value.
type Trigger struct {
	Key      string `yaml:"key"`
	Contains string `yaml:"contains,omitempty"`
}

func (t Trigger) String() string {
	if t.Contains == "" {
		return t.Key
	}
	return t.Key + " " + t.Contains
}

// ManifestRule is one Info.plist requirement.
type ManifestRule struct {
	Code     string           `yaml:"code"`
	Kind     ManifestKind     `yaml:"kind"`
	Key      string           `yaml:"key"`
	Severity finding.Severity `yaml:"severity"`
	Message  string           `yaml:"message"`

	// AnyOf lists alternative keys that satisfy a required rule.
	AnyOf []string `yaml:"any_of,omitempty"`
	// Purpose describes what a usage description unlocks.
	Purpose string `yaml:"purpose,omitempty"`
	// When lists the triggers of a usage-description rule.
	When []Trigger `yaml:"when,omitempty"`
	// MinLength is the shortest acceptable usage description.
	MinLength int `yaml:"min_length,omitempty"`
	// Broad lists device capabilities that narrow the audience.
	Broad []string `yaml:"broad,omitempty"`
	// JustifiedBy maps a broad capability to the usage description whose
	// presence shows the app really needs it.
	JustifiedBy map[string]string `yaml:"justified_by,omitempty"`
}

// DefaultMinDescriptionLength applies when a usage-description rule sets none.
const DefaultMinDescriptionLength = 10

// DescriptionMinLength returns the effective minimum description length.
func (r ManifestRule) DescriptionMinLength() int {
	if r.MinLength > 0 {
		return r.MinLength
	}
	return DefaultMinDescriptionLength
}

// PatternIntent distinguishes why a source pattern is reported.
type PatternIntent string

const (
	IntentDeprecatedAPI  PatternIntent = "deprecated-api"
	IntentDataCollection PatternIntent = "data-collection"
	IntentRequiredReason PatternIntent = "required-reason"
)

// PatternRule is one line-oriented regular expression searched in source files.
type PatternRule struct {
	Code     string           `yaml:"code"`
	Intent   PatternIntent    `yaml:"intent"`
	Pattern  string           `yaml:"pattern"`
	Severity finding.Severity `yaml:"severity"`
	Message  string           `yaml:"message"`
	// Category is the required reason API category for IntentRequiredReason.
	Category string `yaml:"category,omitempty"`

	re *regexp.Regexp
}

// Compile prepares the rule's regular expression.
func (r *PatternRule) Compile() error {
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return fmt.Errorf("pattern %s: %w", r.Code, err)
	}
	r.re = re
	return nil
}

// Regexp returns the compiled expression, or nil before Compile.
func (r PatternRule) Regexp() *regexp.Regexp {
	return r.re
}

// Size is an exact pixel size.
type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// AssetSpec is the requirement for one class of image.
type AssetSpec struct {
	DeviceClass string   `yaml:"device_class"`
	Name        string   `yaml:"name"`
	Sizes       []Size   `yaml:"sizes"`
	Formats     []string `yaml:"formats,omitempty"`
	AllowAlpha  bool     `yaml:"allow_alpha"`
	MinCount    int      `yaml:"min_count"`
	MaxCount    int      `yaml:"max_count"`
	// Fallback names a class whose screenshots App Store Connect scales down
	// for this one.
	Fallback string `yaml:"fallback,omitempty"`
	// MinBytes flags suspiciously small files, likely placeholders.
	MinBytes int64 `yaml:"min_bytes,omitempty"`
}

// Matches reports whether an image of the given size belongs to the class.
func (s AssetSpec) Matches(width, height int) bool {
	for _, size := range s.Sizes {
		if size.Width == width && size.Height == height {
			return true
		}
	}
	return false
}

// AllowsFormat reports whether the image format is accepted. An empty format
// list accepts anything.
func (s AssetSpec) AllowsFormat(format string) bool {
	if len(s.Formats) == 0 {
		return true
	}
	return slices.Contains(s.Formats, strings.ToLower(format))
}

// ExpectedSizes renders the accepted sizes for messages.
func (s AssetSpec) ExpectedSizes() string {
	parts := make([]string, len(s.Sizes))
	for i, size := range s.Sizes {
		parts[i] = size.String()
	}
	return strings.Join(parts, " or ")
}

// Label is the human name of the class, falling back to its identifier.
func (s AssetSpec) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.DeviceClass
}

// ReasonCategory lists the approved reasons for one required reason API
// category.
type ReasonCategory struct {
	Category string   `yaml:"category"`
	Name     string   `yaml:"name"`
	Reasons  []string `yaml:"reasons"`
}

// Tables is the full set of compliance data for one run.
type Tables struct {
	Manifest    []ManifestRule   `yaml:"manifest"`
	Patterns    []PatternRule    `yaml:"patterns"`
	Icon        AssetSpec        `yaml:"icon"`
	Screenshots []AssetSpec      `yaml:"screenshots"`
	Privacy     []ReasonCategory `yaml:"privacy"`
}

// ScreenshotsFor narrows the screenshot table to the named device classes,
// keeping table order. No names returns the whole table.
func (t *Tables) ScreenshotsFor(devices []string) ([]AssetSpec, error) {
	if len(devices) == 0 {
		return t.Screenshots, nil
	}
	var out []AssetSpec
	for _, spec := range t.Screenshots {
		if slices.Contains(devices, spec.DeviceClass) {
			out = append(out, spec)
		}
	}
	for _, d := range devices {
		if !slices.ContainsFunc(t.Screenshots, func(s AssetSpec) bool { return s.DeviceClass == d }) {
			return nil, fmt.Errorf("unknown device class %q", d)
		}
	}
	return out, nil
}

// PatternsFor returns the patterns with one of the given intents.
func (t *Tables) PatternsFor(intents ...PatternIntent) []PatternRule {
	var out []PatternRule
	for _, p := range t.Patterns {
		if slices.Contains(intents, p.Intent) {
			out = append(out, p)
		}
	}
	return out
}

// Category looks up a required reason category.
func (t *Tables) Category(name string) (ReasonCategory, bool) {
	for _, c := range t.Privacy {
		if c.Category == name {
			return c, true
		}
	}
	return ReasonCategory{}, false
}

// Expand fills {name} placeholders in a message template. Unknown
// placeholders are left as written.
func Expand(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
