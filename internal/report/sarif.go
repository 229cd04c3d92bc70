package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/moasq/storecheck/internal/finding"
)

const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version,omitempty"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID string `json:"id"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	RuleIndex           int               `json:"ruleIndex"`
	Level               string            `json:"level"`
	Message             sarifMessage      `json:"message"`
	Locations           []sarifLocation   `json:"locations,omitempty"`
	PartialFingerprints map[string]string `json:"partialFingerprints"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation *sarifPhysicalLocation `json:"physicalLocation,omitempty"`
	LogicalLocations []sarifLogicalLocation `json:"logicalLocations,omitempty"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

type sarifLogicalLocation struct {
	FullyQualifiedName string `json:"fullyQualifiedName"`
}

// RenderSARIF writes the report as a SARIF 2.1.0 log with one run.
func RenderSARIF(w io.Writer, r Report, opts Options) error {
	tool := opts.Tool
	if tool == "" {
		tool = "storecheck"
	}

	run := sarifRun{
		Tool:    sarifTool{Driver: sarifDriver{Name: tool, Version: opts.Version, Rules: []sarifRule{}}},
		Results: []sarifResult{},
	}
	ruleIndex := make(map[string]int)
	for _, f := range r.Findings() {
		i, ok := ruleIndex[f.Code()]
		if !ok {
			i = len(run.Tool.Driver.Rules)
			ruleIndex[f.Code()] = i
			run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, sarifRule{ID: f.Code()})
		}
		run.Results = append(run.Results, sarifResult{
			RuleID:              f.Code(),
			RuleIndex:           i,
			Level:               sarifLevel(f.Severity()),
			Message:             sarifMessage{Text: strings.TrimSpace(f.Message())},
			Locations:           sarifLocations(f.Location()),
			PartialFingerprints: map[string]string{"storecheck/v1": f.Fingerprint()},
		})
	}

	log := sarifLog{Version: sarifVersion, Schema: sarifSchema, Runs: []sarifRun{run}}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(log); err != nil {
		return fmt.Errorf("failed to encode sarif: %w", err)
	}
	return nil
}

func sarifLevel(s finding.Severity) string {
	switch s {
	case finding.SeverityError:
		return "error"
	case finding.SeverityWarning:
		return "warning"
	default:
		return "note"
	}
}

func sarifLocations(loc finding.Location) []sarifLocation {
	if loc.IsZero() {
		return nil
	}
	var l sarifLocation
	if loc.Path != "" {
		l.PhysicalLocation = &sarifPhysicalLocation{ArtifactLocation: sarifArtifactLocation{URI: toURI(loc.Path)}}
		if loc.Line > 0 {
			l.PhysicalLocation.Region = &sarifRegion{StartLine: loc.Line}
		}
	}
	if loc.Key != "" {
		l.LogicalLocations = []sarifLogicalLocation{{FullyQualifiedName: loc.Key}}
	}
	return []sarifLocation{l}
}

func toURI(p string) string {
	p = filepath.ToSlash(strings.TrimSpace(p))
	for strings.HasPrefix(p, "../") {
		p = strings.TrimPrefix(p, "../")
	}
	return strings.TrimPrefix(p, "./")
}
