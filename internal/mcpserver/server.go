// Package mcpserver exposes the compliance checkers as MCP tools so an agent
// can validate a project while it builds it.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/moasq/storecheck/internal/audit"
)

// Deps is what the tool handlers share.
type Deps struct {
	// Options are the defaults every tool call starts from.
	Options  audit.Options
	Parallel int
	Version  string
	Logger   *zap.SugaredLogger
}

// NewServer builds the MCP server with every storecheck tool registered.
func NewServer(deps Deps) *mcp.Server {
	h := newHandlers(deps)

	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storecheck",
			Version: deps.Version,
		},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_manifest",
		Description: "Validate an Info.plist against App Store requirements: required keys, version and build number format, privacy usage descriptions, discouraged and deprecated keys. Example: check_manifest(path: \"App/Info.plist\", prior_build: \"41\")",
	}, h.checkManifest)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_icon",
		Description: "Validate the App Store icon. Accepts a PNG file or an Assets.xcassets catalog and checks format, 1024x1024 dimensions and transparency.",
	}, h.checkIcon)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_screenshots",
		Description: "Validate a directory of App Store screenshots. Classifies every image by device size and checks per-device counts, formats and transparency.",
	}, h.checkScreenshots)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "scan_source",
		Description: "Scan a source tree for deprecated APIs, data collection SDKs and APIs, and required reason APIs. Third-party directories such as Pods are skipped.",
	}, h.scanSource)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_privacy",
		Description: "Cross-check Required Reason API usage in a source tree against the declarations in PrivacyInfo.xcprivacy.",
	}, h.checkPrivacy)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "audit_project",
		Description: "Discover the manifest, icon, screenshots and sources of a project and run every applicable check. Returns the combined report with a READY, CAUTION or BLOCKED verdict. Read-only: never modifies the project.",
	}, h.auditProject)

	return server
}

// Run starts the server over stdio.
// It blocks until the client disconnects or the context is cancelled.
func Run(ctx context.Context, deps Deps) error {
	return NewServer(deps).Run(ctx, &mcp.StdioTransport{})
}
