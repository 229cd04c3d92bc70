package manifest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/moasq/storecheck/internal/finding"
	"github.com/moasq/storecheck/internal/rules"
)

// Name identifies findings produced by this checker.
const Name = "manifest"

// maxManifestSize caps how much of a manifest is read.
const maxManifestSize = 10 << 20

// Options tunes a Checker.
type Options struct {
	// PriorBuild is the last uploaded CFBundleVersion. When set, the build
	// number under check must be strictly greater.
	PriorBuild string
	Logger     *zap.SugaredLogger
}

// Checker evaluates Info.plist files against a manifest rule table.
type Checker struct {
	rules []rules.ManifestRule
	prior BuildNumber
	log   *zap.SugaredLogger
}

// New builds a Checker. It fails when PriorBuild is not a build number.
func New(rs []rules.ManifestRule, opts Options) (*Checker, error) {
	c := &Checker{rules: rs, log: opts.Logger}
	if c.log == nil {
		c.log = zap.NewNop().Sugar()
	}
	if opts.PriorBuild != "" {
		prior, err := ParseBuildNumber(opts.PriorBuild)
		if err != nil {
			return nil, fmt.Errorf("invalid prior build: %w", err)
		}
		c.prior = prior
	}
	return c, nil
}

// Check reads and evaluates the manifest at path. A path that does not exist
// returns finding.ErrTargetNotFound; any other read or parse failure becomes
// a single parse-error finding so a broader run keeps going.
func (c *Checker) Check(path string) ([]finding.Finding, error) {
	data, err := readManifest(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, finding.NotFound(path)
	}
	if err != nil {
		c.log.Debugw("manifest unreadable", "path", path, "error", err)
		return []finding.Finding{parseError(err)}, nil
	}

	doc, err := Decode(data)
	if err != nil {
		c.log.Debugw("manifest malformed", "path", path, "error", err)
		return []finding.Finding{parseError(fmt.Errorf("%s: %w", path, err))}, nil
	}
	return c.CheckDocument(path, doc), nil
}

func parseError(err error) finding.Finding {
	return finding.New(Name, finding.SeverityError, finding.CodeParseError, err.Error())
}

func readManifest(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a property list", path)
	}
	if info.Size() > maxManifestSize {
		return nil, fmt.Errorf("%s is larger than %d MB", path, maxManifestSize>>20)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// CheckDocument evaluates an already decoded manifest. Findings come out in
// rule-table order.
func (c *Checker) CheckDocument(path string, doc *Document) []finding.Finding {
	var out []finding.Finding
	for _, r := range c.rules {
		out = append(out, c.evaluate(path, doc, r)...)
	}
	c.log.Debugw("manifest checked", "path", path, "rules", len(c.rules), "findings", len(out))
	return out
}

func (c *Checker) evaluate(path string, doc *Document, r rules.ManifestRule) []finding.Finding {
	switch r.Kind {
	case rules.KindRequired:
		return checkRequired(path, doc, r)
	case rules.KindSemver:
		return checkVersion(path, doc, r)
	case rules.KindBuildNumber:
		return c.checkBuildNumber(path, doc, r)
	case rules.KindUsageDescription:
		return checkUsageDescription(path, doc, r)
	case rules.KindDiscouraged, rules.KindDeprecated:
		return checkFlag(path, doc, r)
	case rules.KindCapabilities:
		return checkCapabilities(path, doc, r)
	}
	c.log.Warnw("skipping rule with unknown kind", "code", r.Code, "kind", r.Kind)
	return nil
}

func violation(path string, r rules.ManifestRule, vars map[string]string) finding.Finding {
	if _, ok := vars["key"]; !ok {
		vars["key"] = r.Key
	}
	return finding.New(Name, r.Severity, r.Code, rules.Expand(r.Message, vars), finding.AtKey(path, r.Key))
}

func checkRequired(path string, doc *Document, r rules.ManifestRule) []finding.Finding {
	for _, key := range append([]string{r.Key}, r.AnyOf...) {
		if v, ok := doc.Lookup(key); ok && !isEmpty(v) {
			return nil
		}
	}
	return []finding.Finding{violation(path, r, map[string]string{})}
}

// checkVersion leaves a missing key to the required rules.
func checkVersion(path string, doc *Document, r rules.ManifestRule) []finding.Finding {
	v, ok := doc.Lookup(r.Key)
	if !ok || isEmpty(v) {
		return nil
	}
	if s := stringValue(v); !ValidVersion(s) {
		return []finding.Finding{violation(path, r, map[string]string{"value": s})}
	}
	return nil
}

func (c *Checker) checkBuildNumber(path string, doc *Document, r rules.ManifestRule) []finding.Finding {
	v, ok := doc.Lookup(r.Key)
	if !ok || isEmpty(v) {
		return nil
	}
	s := stringValue(v)
	vars := map[string]string{"value": s, "prior": "none given"}
	if c.prior != nil {
		vars["prior"] = c.prior.String()
	}

	build, err := ParseBuildNumber(s)
	if err != nil {
		return []finding.Finding{violation(path, r, vars)}
	}
	if c.prior != nil && build.Compare(c.prior) <= 0 {
		return []finding.Finding{violation(path, r, vars)}
	}
	return nil
}

func checkUsageDescription(path string, doc *Document, r rules.ManifestRule) []finding.Finding {
	v, declared := doc.Lookup(r.Key)
	if declared && isEmpty(v) {
		msg := fmt.Sprintf("%s is declared but empty; App Review rejects blank purpose strings", r.Key)
		return []finding.Finding{finding.New(Name, r.Severity, r.Code, msg, finding.AtKey(path, r.Key))}
	}
	if !declared {
		if trigger, ok := firstTrigger(doc, r.When); ok {
			return []finding.Finding{violation(path, r, map[string]string{"trigger": trigger.String()})}
		}
		return nil
	}

	desc := strings.TrimSpace(stringValue(v))
	if len([]rune(desc)) <= r.DescriptionMinLength() {
		purpose := r.Purpose
		if purpose == "" {
			purpose = "permission"
		}
		msg := fmt.Sprintf("%s description %q is too short to explain the %s request to App Review", r.Key, desc, strings.ToLower(purpose))
		return []finding.Finding{finding.New(Name, finding.SeverityWarning, r.Code+".too-short", msg, finding.AtKey(path, r.Key))}
	}
	return nil
}

func firstTrigger(doc *Document, triggers []rules.Trigger) (rules.Trigger, bool) {
	for _, t := range triggers {
		v, ok := doc.Lookup(t.Key)
		if !ok {
			continue
		}
		if t.Contains == "" || slices.Contains(members(v), t.Contains) {
			return t, true
		}
	}
	return rules.Trigger{}, false
}

func checkFlag(path string, doc *Document, r rules.ManifestRule) []finding.Finding {
	v, ok := doc.Lookup(r.Key)
	if !ok || !truthy(v) {
		return nil
	}
	return []finding.Finding{violation(path, r, map[string]string{"value": stringValue(v)})}
}

func checkCapabilities(path string, doc *Document, r rules.ManifestRule) []finding.Finding {
	v, ok := doc.Lookup(r.Key)
	if !ok {
		return nil
	}
	var out []finding.Finding
	for _, capability := range members(v) {
		if !slices.Contains(r.Broad, capability) {
			continue
		}
		if need, ok := r.JustifiedBy[capability]; ok {
			if dv, declared := doc.Lookup(need); declared && !isEmpty(dv) {
				continue
			}
		}
		out = append(out, violation(path, r, map[string]string{"value": capability}))
	}
	return out
}
