package mcpserver

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/moasq/storecheck/internal/audit"
	"github.com/moasq/storecheck/internal/logging"
	"github.com/moasq/storecheck/internal/report"
)

type pathInput struct {
	Path string `json:"path" jsonschema:"File or directory to check, absolute or relative to the server's working directory"`
}

type manifestInput struct {
	Path       string `json:"path" jsonschema:"Path to the Info.plist file"`
	PriorBuild string `json:"prior_build,omitempty" jsonschema:"Build number of the last uploaded build; the new build must be greater"`
}

type screenshotsInput struct {
	Path    string   `json:"path" jsonschema:"Directory holding the screenshots"`
	Devices []string `json:"devices,omitempty" jsonschema:"Device classes to check e.g. iphone-6.7 or ipad-13; all classes when empty"`
}

type auditInput struct {
	Root   string `json:"root" jsonschema:"Project root directory"`
	Strict bool   `json:"strict,omitempty" jsonschema:"Treat a CAUTION verdict as failing in exit_code"`
}

// checkOutput is the report returned by every tool.
type checkOutput struct {
	Report   report.View `json:"report"`
	ExitCode int         `json:"exit_code"`
}

type auditOutput struct {
	Targets  []audit.Target `json:"targets"`
	Report   report.View    `json:"report"`
	ExitCode int            `json:"exit_code"`
}

type handlers struct {
	deps Deps
	log  *zap.SugaredLogger
}

func newHandlers(deps Deps) *handlers {
	log := deps.Logger
	if log == nil {
		log = logging.Nop()
	}
	deps.Options.Logger = log
	return &handlers{deps: deps, log: log}
}

// run checks targets with the server defaults, overridden by change.
func (h *handlers) run(ctx context.Context, targets []audit.Target, change func(*audit.Options)) (report.Report, error) {
	opts := h.deps.Options
	if change != nil {
		change(&opts)
	}
	findings, err := audit.Run(ctx, audit.Plan{Options: opts, Targets: targets, Parallel: h.deps.Parallel})
	if err != nil {
		return report.Report{}, err
	}
	return report.Aggregate(findings), nil
}

func (h *handlers) single(ctx context.Context, kind audit.Kind, path string, change func(*audit.Options)) (*mcp.CallToolResult, checkOutput, error) {
	abs, err := resolve(path)
	if err != nil {
		return nil, checkOutput{}, err
	}
	h.log.Debugw("tool call", "check", kind, "path", abs)
	r, err := h.run(ctx, []audit.Target{{Kind: kind, Path: abs}}, change)
	if err != nil {
		return nil, checkOutput{}, err
	}
	return nil, checkOutput{Report: report.NewView(r), ExitCode: r.Verdict.ExitCode(false)}, nil
}

func (h *handlers) checkManifest(ctx context.Context, req *mcp.CallToolRequest, input manifestInput) (*mcp.CallToolResult, checkOutput, error) {
	return h.single(ctx, audit.KindManifest, input.Path, func(o *audit.Options) {
		if input.PriorBuild != "" {
			o.PriorBuild = input.PriorBuild
		}
	})
}

func (h *handlers) checkIcon(ctx context.Context, req *mcp.CallToolRequest, input pathInput) (*mcp.CallToolResult, checkOutput, error) {
	return h.single(ctx, audit.KindIcon, input.Path, nil)
}

func (h *handlers) checkScreenshots(ctx context.Context, req *mcp.CallToolRequest, input screenshotsInput) (*mcp.CallToolResult, checkOutput, error) {
	return h.single(ctx, audit.KindScreenshots, input.Path, func(o *audit.Options) {
		if len(input.Devices) > 0 {
			o.Devices = input.Devices
		}
	})
}

func (h *handlers) scanSource(ctx context.Context, req *mcp.CallToolRequest, input pathInput) (*mcp.CallToolResult, checkOutput, error) {
	return h.single(ctx, audit.KindSource, input.Path, nil)
}

func (h *handlers) checkPrivacy(ctx context.Context, req *mcp.CallToolRequest, input pathInput) (*mcp.CallToolResult, checkOutput, error) {
	return h.single(ctx, audit.KindPrivacy, input.Path, nil)
}

func (h *handlers) auditProject(ctx context.Context, req *mcp.CallToolRequest, input auditInput) (*mcp.CallToolResult, auditOutput, error) {
	root, err := resolve(input.Root)
	if err != nil {
		return nil, auditOutput{}, err
	}
	targets, err := audit.Discover(root, h.deps.Options.ExcludeDirs)
	if err != nil {
		return nil, auditOutput{}, err
	}
	h.log.Debugw("tool call", "check", "audit", "root", root, "targets", len(targets))
	r, err := h.run(ctx, targets, nil)
	if err != nil {
		return nil, auditOutput{}, err
	}
	return nil, auditOutput{
		Targets:  targets,
		Report:   report.NewView(r),
		ExitCode: r.Verdict.ExitCode(input.Strict),
	}, nil
}

func resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return abs, nil
}
