package asset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moasq/storecheck/internal/finding"
	"github.com/moasq/storecheck/internal/rules"
)

// Screenshot finding codes.
const (
	CodeScreenshotsMissing      = "screenshots.missing"
	CodeScreenshotsTooFew       = "screenshots.too-few"
	CodeScreenshotsTooMany      = "screenshots.too-many"
	CodeScreenshotsFallback     = "screenshots.fallback"
	CodeScreenshotsUnrecognized = "screenshots.unrecognized"
	CodeScreenshotsFormat       = "screenshots.format"
	CodeScreenshotsAlpha        = "screenshots.alpha"
)

type screenshot struct {
	path   string
	header Header
	// classes holds the index of every spec the size matches.
	classes []int
	failure *finding.Finding
}

// CheckScreenshots classifies the images directly inside dir by device class
// and checks each class's count against its bounds. A single file gets the
// per-image checks only. Non-image files are ignored.
func CheckScreenshots(dir string, specs []rules.AssetSpec) ([]finding.Finding, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, finding.NotFound(dir)
	}
	if err != nil {
		return []finding.Finding{shotFinding(finding.SeverityError, finding.CodeIOError, err.Error(), dir)}, nil
	}

	var paths []string
	if info.IsDir() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return []finding.Finding{shotFinding(finding.SeverityError, finding.CodeIOError, err.Error(), dir)}, nil
		}
		for _, e := range entries {
			if e.Type().IsRegular() {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	} else {
		paths = []string{dir}
	}

	var shots []screenshot
	for _, p := range paths {
		h, err := Probe(p)
		if errors.Is(err, ErrNotImage) {
			continue
		}
		if err != nil {
			f := shotFinding(finding.SeverityError, finding.CodeDecodeError, err.Error(), p)
			shots = append(shots, screenshot{path: p, failure: &f})
			continue
		}
		s := screenshot{path: p, header: h}
		for i, spec := range specs {
			if spec.Matches(h.Width, h.Height) {
				s.classes = append(s.classes, i)
			}
		}
		shots = append(shots, s)
	}

	counts := make(map[string]int, len(specs))
	for _, s := range shots {
		for _, i := range s.classes {
			counts[specs[i].DeviceClass]++
		}
	}

	var out []finding.Finding
	for i, spec := range specs {
		for _, s := range shots {
			if len(s.classes) > 0 && s.classes[0] == i {
				out = append(out, imageFindings(s, spec)...)
			}
		}
		if info.IsDir() {
			out = append(out, countFindings(dir, spec, counts)...)
		}
	}
	// Unclassified images and undecodable files close the list.
	for _, s := range shots {
		switch {
		case s.failure != nil:
			out = append(out, *s.failure)
		case len(s.classes) == 0:
			msg := fmt.Sprintf("%s is %dx%d, which matches no device class; verify it is intended", filepath.Base(s.path), s.header.Width, s.header.Height)
			out = append(out, shotFinding(finding.SeverityInfo, CodeScreenshotsUnrecognized, msg, s.path))
		}
	}
	return out, nil
}

func imageFindings(s screenshot, spec rules.AssetSpec) []finding.Finding {
	var out []finding.Finding
	name := filepath.Base(s.path)
	if !spec.AllowsFormat(s.header.Format) {
		msg := fmt.Sprintf("%s is %s, %s screenshots must be %s", name, s.header.Format, spec.Label(), formatList(spec.Formats))
		out = append(out, shotFinding(finding.SeverityError, CodeScreenshotsFormat, msg, s.path))
	}
	if s.header.HasAlpha && !spec.AllowAlpha {
		msg := fmt.Sprintf("%s has an alpha channel; App Store Connect may reject transparent screenshots", name)
		out = append(out, shotFinding(finding.SeverityWarning, CodeScreenshotsAlpha, msg, s.path))
	}
	return out
}

func countFindings(dir string, spec rules.AssetSpec, counts map[string]int) []finding.Finding {
	n := counts[spec.DeviceClass]
	switch {
	case n == 0 && spec.MinCount >= 1:
		if spec.Fallback != "" && counts[spec.Fallback] >= spec.MinCount {
			msg := fmt.Sprintf("no %s screenshots; App Store Connect will scale the %s set", spec.Label(), spec.Fallback)
			return []finding.Finding{shotFinding(finding.SeverityInfo, CodeScreenshotsFallback, msg, dir)}
		}
		msg := fmt.Sprintf("missing required screenshots for device class %s (%s)", spec.DeviceClass, spec.ExpectedSizes())
		return []finding.Finding{shotFinding(finding.SeverityError, CodeScreenshotsMissing, msg, dir)}
	case n > 0 && n < spec.MinCount:
		msg := fmt.Sprintf("%s has %d screenshots, at least %d required", spec.Label(), n, spec.MinCount)
		return []finding.Finding{shotFinding(finding.SeverityError, CodeScreenshotsTooFew, msg, dir)}
	case spec.MaxCount > 0 && n > spec.MaxCount:
		msg := fmt.Sprintf("%s has %d screenshots, only the first %d are used", spec.Label(), n, spec.MaxCount)
		return []finding.Finding{shotFinding(finding.SeverityWarning, CodeScreenshotsTooMany, msg, dir)}
	}
	return nil
}

func shotFinding(sev finding.Severity, code, msg, path string) finding.Finding {
	return finding.New(ScreenshotsChecker, sev, code, msg, finding.AtPath(path))
}
