package source

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/moasq/storecheck/internal/finding"
	"github.com/moasq/storecheck/internal/manifest"
	"github.com/moasq/storecheck/internal/rules"
)

// PrivacyName identifies findings produced by the privacy manifest
// cross-check.
const PrivacyName = "privacy"

// Privacy finding codes.
const (
	CodePrivacyManifestMissing = "privacy.manifest-missing"
	CodePrivacyUndeclared      = "privacy.undeclared-category"
	CodePrivacyInvalidReason   = "privacy.invalid-reason"
	CodePrivacyMissingReason   = "privacy.missing-reason"
	CodePrivacyTrackingDomains = "privacy.tracking-domains"
	CodePrivacyCollectedData   = "privacy.collected-data"
)

// usage records where a required reason category was first seen.
type usage struct {
	first Match
	count int
}

// CheckPrivacy scans root with the required reason patterns and compares the
// categories in use against the privacy manifest found under root. Pattern
// hits themselves are reported by Check, not here.
func (s *Scanner) CheckPrivacy(root string, patterns []rules.PatternRule, categories []rules.ReasonCategory) ([]finding.Finding, error) {
	var reasonPatterns []rules.PatternRule
	for _, p := range patterns {
		if p.Intent == rules.IntentRequiredReason && p.Category != "" {
			reasonPatterns = append(reasonPatterns, p)
		}
	}

	used := make(map[string]*usage)
	err := s.scan(root, reasonPatterns, func(m Match) {
		u, ok := used[m.Rule.Category]
		if !ok {
			u = &usage{first: m}
			used[m.Rule.Category] = u
		}
		u.count++
	}, func(f finding.Finding) {
		s.log.Debugw("privacy scan skipped file", "path", f.Location().Path, "error", f.Message())
	})
	if err != nil {
		return nil, err
	}

	manifestPath, err := s.findPrivacyManifest(root)
	if err != nil {
		return []finding.Finding{privacyFinding(finding.SeverityError, finding.CodeIOError, err.Error(), finding.AtPath(root))}, nil
	}

	inUse := usedInOrder(used, categories)
	if manifestPath == "" {
		if len(inUse) == 0 {
			return nil, nil
		}
		names := make([]string, len(inUse))
		for i, c := range inUse {
			names[i] = label(c)
		}
		msg := fmt.Sprintf("%s not found but required reason APIs are used: %s", manifest.PrivacyManifestName, strings.Join(names, ", "))
		return []finding.Finding{privacyFinding(finding.SeverityError, CodePrivacyManifestMissing, msg, finding.AtPath(root))}, nil
	}

	pm, err := manifest.ReadPrivacyManifest(manifestPath)
	if err != nil {
		return []finding.Finding{privacyFinding(finding.SeverityError, finding.CodeParseError, err.Error(), finding.AtPath(manifestPath))}, nil
	}

	var out []finding.Finding
	for _, c := range inUse {
		if _, declared := pm.Reasons(c.Category); declared {
			continue
		}
		u := used[c.Category]
		msg := fmt.Sprintf("%s are used (%d matches, first at %s:%d) but %s is not declared",
			label(c), u.count, u.first.Path, u.first.Line, c.Category)
		out = append(out, privacyFinding(finding.SeverityError, CodePrivacyUndeclared, msg,
			finding.AtKey(manifestPath, "NSPrivacyAccessedAPITypes")))
	}

	for _, api := range pm.AccessedAPIs {
		loc := finding.AtKey(manifestPath, "NSPrivacyAccessedAPITypes")
		if len(api.Reasons) == 0 {
			msg := fmt.Sprintf("%s is declared without any NSPrivacyAccessedAPITypeReasons", api.Category)
			out = append(out, privacyFinding(finding.SeverityError, CodePrivacyMissingReason, msg, loc))
			continue
		}
		c, known := findCategory(categories, api.Category)
		if !known {
			continue
		}
		for _, reason := range api.Reasons {
			if !slices.Contains(c.Reasons, reason) {
				msg := fmt.Sprintf("reason %q is not valid for %s; valid reasons: %s", reason, label(c), strings.Join(c.Reasons, ", "))
				out = append(out, privacyFinding(finding.SeverityError, CodePrivacyInvalidReason, msg, loc))
			}
		}
	}

	if pm.Tracking && len(pm.TrackingDomains) == 0 {
		msg := "NSPrivacyTracking is enabled but NSPrivacyTrackingDomains is empty; tracking requests will not be blocked before consent"
		out = append(out, privacyFinding(finding.SeverityWarning, CodePrivacyTrackingDomains, msg, finding.AtKey(manifestPath, "NSPrivacyTrackingDomains")))
	}
	if pm.Tracking && len(pm.CollectedData) == 0 {
		msg := "NSPrivacyTracking is enabled but NSPrivacyCollectedDataTypes declares no data used for tracking"
		out = append(out, privacyFinding(finding.SeverityWarning, CodePrivacyCollectedData, msg, finding.AtKey(manifestPath, "NSPrivacyCollectedDataTypes")))
	}
	return out, nil
}

// findPrivacyManifest returns the first privacy manifest under root in
// lexical order, skipping excluded directories.
func (s *Scanner) findPrivacyManifest(root string) (string, error) {
	var found string
	err := Walk(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && s.exclude[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if d.Name() == manifest.PrivacyManifestName {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if errors.Is(err, fs.SkipAll) {
		err = nil
	}
	return found, err
}

func usedInOrder(used map[string]*usage, categories []rules.ReasonCategory) []rules.ReasonCategory {
	var out []rules.ReasonCategory
	for _, c := range categories {
		if _, ok := used[c.Category]; ok {
			out = append(out, c)
		}
	}
	return out
}

func findCategory(categories []rules.ReasonCategory, name string) (rules.ReasonCategory, bool) {
	for _, c := range categories {
		if c.Category == name {
			return c, true
		}
	}
	return rules.ReasonCategory{}, false
}

func label(c rules.ReasonCategory) string {
	if c.Name != "" {
		return c.Name
	}
	return c.Category
}

func privacyFinding(sev finding.Severity, code, msg string, loc finding.Option) finding.Finding {
	return finding.New(PrivacyName, sev, code, msg, loc)
}
