// Package audit runs several checkers over one project and merges their
// findings in a fixed order.
package audit

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/moasq/storecheck/internal/asset"
	"github.com/moasq/storecheck/internal/finding"
	"github.com/moasq/storecheck/internal/logging"
	"github.com/moasq/storecheck/internal/manifest"
	"github.com/moasq/storecheck/internal/rules"
	"github.com/moasq/storecheck/internal/source"
)

// Kind selects the checker a target is handed to.
type Kind string

const (
	KindManifest    Kind = "manifest"
	KindIcon        Kind = "icon"
	KindScreenshots Kind = "screenshots"
	KindSource      Kind = "source"
	KindPrivacy     Kind = "privacy"
)

// Kinds lists every target kind in audit order.
var Kinds = []Kind{KindManifest, KindIcon, KindScreenshots, KindSource, KindPrivacy}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown check %q", s)
}

// Target is one path to check.
type Target struct {
	Kind Kind   `json:"kind"`
	Path string `json:"path"`
}

// Options configures the checkers a Runner builds.
type Options struct {
	Tables      *rules.Tables
	PriorBuild  string
	Devices     []string
	ExcludeDirs []string
	Logger      *zap.SugaredLogger
}

// Runner dispatches targets to the checker for their kind. It holds no
// mutable state and is safe for concurrent use.
type Runner struct {
	tables      *rules.Tables
	manifest    *manifest.Checker
	scanner     *source.Scanner
	screenshots []rules.AssetSpec
	log         *zap.SugaredLogger
}

// NewRunner builds every checker up front so configuration errors surface
// before any target is read.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Tables == nil {
		tables, err := rules.Default()
		if err != nil {
			return nil, err
		}
		opts.Tables = tables
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	mc, err := manifest.New(opts.Tables.Manifest, manifest.Options{PriorBuild: opts.PriorBuild, Logger: log})
	if err != nil {
		return nil, err
	}
	shots, err := opts.Tables.ScreenshotsFor(opts.Devices)
	if err != nil {
		return nil, err
	}
	return &Runner{
		tables:      opts.Tables,
		manifest:    mc,
		scanner:     source.New(source.Options{ExcludeDirs: opts.ExcludeDirs, Logger: log}),
		screenshots: shots,
		log:         log,
	}, nil
}

// Check runs the checker for one target.
func (r *Runner) Check(t Target) ([]finding.Finding, error) {
	r.log.Debugw("checking target", "kind", t.Kind, "path", t.Path)
	switch t.Kind {
	case KindManifest:
		return r.manifest.Check(t.Path)
	case KindIcon:
		return asset.CheckIcon(t.Path, r.tables.Icon)
	case KindScreenshots:
		return asset.CheckScreenshots(t.Path, r.screenshots)
	case KindSource:
		return r.scanner.Check(t.Path, r.tables.Patterns)
	case KindPrivacy:
		return r.scanner.CheckPrivacy(t.Path, r.tables.PatternsFor(rules.IntentRequiredReason), r.tables.Privacy)
	}
	return nil, fmt.Errorf("unknown check %q", t.Kind)
}

// Run checks every target with at most parallel checkers at once and returns
// the findings in target order, so the output does not depend on
// scheduling. parallel <= 0 uses GOMAXPROCS. The first checker error cancels
// the remaining targets.
func (r *Runner) Run(ctx context.Context, targets []Target, parallel int) ([]finding.Finding, error) {
	if parallel <= 0 {
		parallel = runtime.GOMAXPROCS(0)
	}
	results := make([][]finding.Finding, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, t := range targets {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			fs, err := r.Check(t)
			if err != nil {
				return fmt.Errorf("%s check: %w", t.Kind, err)
			}
			results[i] = fs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []finding.Finding
	for _, fs := range results {
		out = append(out, fs...)
	}
	r.log.Debugw("audit finished", "targets", len(targets), "findings", len(out))
	return out, nil
}

// Plan is a complete audit request.
type Plan struct {
	Options
	Targets  []Target
	Parallel int
}

// Run executes a plan with a fresh Runner.
func Run(ctx context.Context, p Plan) ([]finding.Finding, error) {
	r, err := NewRunner(p.Options)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, p.Targets, p.Parallel)
}
