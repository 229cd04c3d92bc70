package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/moasq/storecheck/internal/finding"
	"github.com/moasq/storecheck/internal/terminal"
)

// Format selects a renderer.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatSARIF    Format = "sarif"
)

// Formats lists every supported output format.
var Formats = []Format{FormatText, FormatMarkdown, FormatJSON, FormatSARIF}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == strings.ToLower(strings.TrimSpace(s)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (want text, markdown, json or sarif)", s)
}

// Options tunes rendering.
type Options struct {
	// Color enables ANSI colour in text output.
	Color bool
	// Tool and Version name the producer in SARIF output.
	Tool    string
	Version string
}

// Render writes r to w in the given format.
func Render(w io.Writer, r Report, format Format, opts Options) error {
	switch format {
	case FormatText:
		return RenderText(w, r, opts)
	case FormatMarkdown:
		return RenderMarkdown(w, r)
	case FormatJSON:
		return RenderJSON(w, r)
	case FormatSARIF:
		return RenderSARIF(w, r, opts)
	}
	return fmt.Errorf("unknown format %q", format)
}

// RenderText writes a terminal report.
func RenderText(w io.Writer, r Report, opts Options) error {
	ui := terminal.New(w, opts.Color)
	for _, g := range r.Groups {
		ui.Header(fmt.Sprintf("%s %s (%d)", g.Severity, g.Code, len(g.Findings)))
		for _, f := range g.Findings {
			line := "  " + f.Message()
			if loc := f.Location(); !loc.IsZero() {
				line += "\n    " + ui.Paint(loc.String(), terminal.Dim)
			}
			emit(ui, g.Severity, line)
		}
	}

	if len(r.Groups) > 0 {
		fmt.Fprintln(w)
	}
	ui.Divider()
	counts := r.Counts()
	summary := fmt.Sprintf("%s: %d errors, %d warnings, %d info",
		r.Verdict, counts[finding.SeverityError], counts[finding.SeverityWarning], counts[finding.SeverityInfo])
	switch r.Verdict {
	case Blocked:
		ui.Error(summary)
	case Caution:
		ui.Warning(summary)
	default:
		ui.Success(summary)
	}
	return nil
}

func emit(ui *terminal.UI, sev finding.Severity, line string) {
	switch sev {
	case finding.SeverityError:
		ui.Error(line)
	case finding.SeverityWarning:
		ui.Warning(line)
	default:
		ui.Info(line)
	}
}

var severityHeadings = map[finding.Severity]string{
	finding.SeverityError:   "Errors",
	finding.SeverityWarning: "Warnings",
	finding.SeverityInfo:    "Info",
}

// RenderMarkdown writes a report suitable for a pull request comment.
func RenderMarkdown(w io.Writer, r Report) error {
	var b strings.Builder
	counts := r.Counts()

	b.WriteString("# App Store Compliance Report\n\n")
	fmt.Fprintf(&b, "**Verdict:** %s\n\n", r.Verdict)
	b.WriteString("| Severity | Count |\n|---|---|\n")
	for _, sev := range finding.Severities {
		fmt.Fprintf(&b, "| %s | %d |\n", sev, counts[sev])
	}

	var current finding.Severity
	for _, g := range r.Groups {
		if g.Severity != current {
			current = g.Severity
			fmt.Fprintf(&b, "\n## %s (%d)\n", severityHeadings[g.Severity], counts[g.Severity])
		}
		fmt.Fprintf(&b, "\n### `%s`\n\n", g.Code)
		for _, f := range g.Findings {
			fmt.Fprintf(&b, "- %s", escapeMarkdown(f.Message()))
			if loc := f.Location(); !loc.IsZero() {
				fmt.Fprintf(&b, " (`%s`)", loc)
			}
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

var markdownEscaper = strings.NewReplacer("|", `\|`, "*", `\*`, "_", `\_`, "`", "\\`")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// View is the serialisable form of a Report.
type View struct {
	Verdict  Verdict       `json:"verdict"`
	Counts   CountsView    `json:"counts"`
	Groups   []GroupView   `json:"groups"`
	Findings []FindingView `json:"findings"`
}

// CountsView holds per-severity totals.
type CountsView struct {
	Error   int `json:"error"`
	Warning int `json:"warning"`
	Info    int `json:"info"`
}

// GroupView summarises one group.
type GroupView struct {
	Severity finding.Severity `json:"severity"`
	Code     string           `json:"code"`
	Count    int              `json:"count"`
}

// FindingView is the serialisable form of a Finding.
type FindingView struct {
	Checker     string            `json:"checker"`
	Severity    finding.Severity  `json:"severity"`
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	Location    *finding.Location `json:"location,omitempty"`
	Fingerprint string            `json:"fingerprint"`
}

// NewView converts r for serialisation.
func NewView(r Report) View {
	counts := r.Counts()
	v := View{
		Verdict: r.Verdict,
		Counts: CountsView{
			Error:   counts[finding.SeverityError],
			Warning: counts[finding.SeverityWarning],
			Info:    counts[finding.SeverityInfo],
		},
		Groups:   make([]GroupView, 0, len(r.Groups)),
		Findings: make([]FindingView, 0, r.Total()),
	}
	for _, g := range r.Groups {
		v.Groups = append(v.Groups, GroupView{Severity: g.Severity, Code: g.Code, Count: len(g.Findings)})
		for _, f := range g.Findings {
			fv := FindingView{
				Checker:     f.Checker(),
				Severity:    f.Severity(),
				Code:        f.Code(),
				Message:     f.Message(),
				Fingerprint: f.Fingerprint(),
			}
			if loc := f.Location(); !loc.IsZero() {
				fv.Location = &loc
			}
			v.Findings = append(v.Findings, fv)
		}
	}
	return v
}

// RenderJSON writes the report as indented JSON.
func RenderJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewView(r)); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
