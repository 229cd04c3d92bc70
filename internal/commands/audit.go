package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/moasq/storecheck/internal/audit"
	"github.com/moasq/storecheck/internal/finding"
)

// auditFlags are the per-kind path overrides and the kind filter.
type auditFlags struct {
	plist       string
	icon        string
	screenshots string
	source      string
	only        []string
}

func (f *auditFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.plist, "plist", "", "Info.plist to check instead of the discovered one")
	fs.StringVar(&f.icon, "icon", "", "icon file or asset catalog instead of the discovered one")
	fs.StringVar(&f.screenshots, "screenshots", "", "screenshots directory instead of the discovered one")
	fs.StringVar(&f.source, "source", "", "source tree for the source and privacy checks instead of the project root")
	fs.StringSliceVar(&f.only, "only", nil, "run only these checks: manifest, icon, screenshots, source, privacy")
	fs.String("prior-build", "", "build number of the last upload; the new build must be greater")
	fs.StringSlice("device", nil, "limit screenshot checks to these device classes")
	fs.StringSlice("exclude", nil, "directory names to skip in addition to Pods, Carthage and build output")
	fs.Int("parallel", 0, "maximum checks run at once (0 uses every CPU)")
}

// targets discovers the project's targets and applies the overrides.
func (f *auditFlags) targets(root string, excludeDirs []string) ([]audit.Target, error) {
	only := make([]audit.Kind, 0, len(f.only))
	for _, s := range f.only {
		k, err := audit.ParseKind(s)
		if err != nil {
			return nil, err
		}
		only = append(only, k)
	}

	discovered, err := audit.Discover(root, excludeDirs)
	if err != nil {
		return nil, err
	}
	paths := make(map[audit.Kind]string, len(audit.Kinds))
	for _, t := range discovered {
		paths[t.Kind] = t.Path
	}
	for kind, override := range map[audit.Kind]string{
		audit.KindManifest:    f.plist,
		audit.KindIcon:        f.icon,
		audit.KindScreenshots: f.screenshots,
		audit.KindSource:      f.source,
		audit.KindPrivacy:     f.source,
	} {
		if override != "" {
			paths[kind] = override
		}
	}

	var out []audit.Target
	for _, k := range audit.Kinds {
		path, ok := paths[k]
		if !ok {
			continue
		}
		if len(only) > 0 && !slices.Contains(only, k) {
			continue
		}
		out = append(out, audit.Target{Kind: k, Path: path})
	}
	return out, nil
}

func newAuditCommand(a *app) *cobra.Command {
	var flags auditFlags
	cmd := &cobra.Command{
		Use:   "audit [project]",
		Short: "Run every applicable check against a project",
		Long: "Discovers the Info.plist, asset catalog, screenshots folder and sources of an Xcode " +
			"project (default: the current directory), runs the checks concurrently and prints " +
			"one combined report.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			findings, err := a.audit(cmd.Context(), cmd, &flags, root)
			if err != nil {
				return classify(err)
			}
			return a.emit(cmd, findings)
		},
	}
	flags.register(cmd)
	return cmd
}

// audit discovers and checks root, showing a spinner on stderr meanwhile.
func (a *app) audit(ctx context.Context, cmd *cobra.Command, flags *auditFlags, root string) ([]finding.Finding, error) {
	targets, err := flags.targets(root, a.cfg.Source.ExcludeDirs)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("nothing to check in %s", root)
	}
	for _, t := range targets {
		rel, err := filepath.Rel(root, t.Path)
		if err != nil {
			rel = t.Path
		}
		a.log.Debugw("audit target", "kind", t.Kind, "path", rel)
	}

	spinner := a.status(cmd).NewSpinner(fmt.Sprintf("Checking %d targets...", len(targets)))
	spinner.Start()
	defer spinner.Stop()

	return audit.Run(ctx, audit.Plan{
		Options:  a.runnerOptions(),
		Targets:  targets,
		Parallel: a.cfg.Parallel,
	})
}
