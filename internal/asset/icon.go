package asset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/moasq/storecheck/internal/finding"
	"github.com/moasq/storecheck/internal/rules"
)

// Checker names used in findings.
const (
	IconChecker        = "icon"
	ScreenshotsChecker = "screenshots"
)

// Icon finding codes.
const (
	CodeIconMissing     = "icon.missing"
	CodeIconFormat      = "icon.format"
	CodeIconDimensions  = "icon.dimensions"
	CodeIconAlpha       = "icon.alpha"
	CodeIconPlaceholder = "icon.placeholder"
	CodeIconColorMode   = "icon.color-mode"
)

// Check runs icon mode for an image file or asset catalog, using the first
// spec, and screenshot mode for any other directory.
func Check(path string, specs []rules.AssetSpec) ([]finding.Finding, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, finding.NotFound(path)
	}
	if err != nil {
		return []finding.Finding{finding.New(IconChecker, finding.SeverityError, finding.CodeIOError, err.Error(), finding.AtPath(path))}, nil
	}
	if info.IsDir() && !IsCatalog(path) {
		return CheckScreenshots(path, specs)
	}
	if len(specs) == 0 {
		return nil, errors.New("no icon spec given")
	}
	return CheckIcon(path, specs[0])
}

// CheckIcon validates a single App Store icon. path is either the image or
// an asset catalog to search.
func CheckIcon(path string, spec rules.AssetSpec) ([]finding.Finding, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, finding.NotFound(path)
	}
	if err != nil {
		return []finding.Finding{iconFinding(finding.SeverityError, finding.CodeIOError, err.Error(), path)}, nil
	}

	var out []finding.Finding
	if info.IsDir() {
		icon, malformed, err := FindIcon(path)
		for _, ce := range malformed {
			out = append(out, iconFinding(finding.SeverityError, finding.CodeParseError, ce.Error(), ce.Path))
		}
		if err != nil {
			return append(out, iconFinding(finding.SeverityError, finding.CodeIOError, err.Error(), path)), nil
		}
		if icon == "" {
			msg := fmt.Sprintf("no %s %s image found in %s", spec.ExpectedSizes(), spec.Label(), path)
			return append(out, iconFinding(finding.SeverityError, CodeIconMissing, msg, path)), nil
		}
		path = icon
	}

	h, err := Probe(path)
	if err != nil {
		return append(out, iconFinding(finding.SeverityError, finding.CodeDecodeError, err.Error(), path)), nil
	}
	return append(out, iconFindings(path, h, spec)...), nil
}

func iconFindings(path string, h Header, spec rules.AssetSpec) []finding.Finding {
	var out []finding.Finding
	if !spec.AllowsFormat(h.Format) {
		msg := fmt.Sprintf("icon is %s, the %s must be %s", h.Format, spec.Label(), formatList(spec.Formats))
		out = append(out, iconFinding(finding.SeverityError, CodeIconFormat, msg, path))
	}
	if !spec.Matches(h.Width, h.Height) {
		msg := fmt.Sprintf("icon is %dx%d, expected %s", h.Width, h.Height, spec.ExpectedSizes())
		out = append(out, iconFinding(finding.SeverityError, CodeIconDimensions, msg, path))
	}
	if h.HasAlpha && !spec.AllowAlpha {
		msg := fmt.Sprintf("icon has an alpha channel (%s); App Store icons must be fully opaque", h.ColorMode)
		out = append(out, iconFinding(finding.SeverityError, CodeIconAlpha, msg, path))
	}
	if spec.MinBytes > 0 && h.Size < spec.MinBytes {
		msg := fmt.Sprintf("icon file is only %d bytes, which usually means a placeholder image", h.Size)
		out = append(out, iconFinding(finding.SeverityWarning, CodeIconPlaceholder, msg, path))
	}
	if unusualMode(h) {
		msg := fmt.Sprintf("icon uses %d-bit %s colour; export 8-bit RGB in sRGB or Display P3", h.BitDepth, h.ColorMode)
		out = append(out, iconFinding(finding.SeverityInfo, CodeIconColorMode, msg, path))
	}
	return out
}

func unusualMode(h Header) bool {
	if h.BitDepth > 8 {
		return true
	}
	switch h.ColorMode {
	case ModeRGB, ModeRGBA, ModePalette, ModeYCbCr:
		return false
	}
	return true
}

func iconFinding(sev finding.Severity, code, msg, path string) finding.Finding {
	return finding.New(IconChecker, sev, code, msg, finding.AtPath(path))
}

func formatList(formats []string) string {
	switch len(formats) {
	case 0:
		return "any format"
	case 1:
		return formats[0]
	}
	out := formats[0]
	for _, f := range formats[1:] {
		out += " or " + f
	}
	return out
}
