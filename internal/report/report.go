// Package report groups findings into a Report with a submission verdict and
// renders it as text, markdown, JSON or SARIF. Rendering never touches the
// filesystem; callers own the writer.
package report

import (
	"github.com/moasq/storecheck/internal/finding"
)

// Verdict is the overall readiness of a submission.
type Verdict string

const (
	Ready   Verdict = "READY"
	Caution Verdict = "CAUTION"
	Blocked Verdict = "BLOCKED"
)

// Process exit codes for each verdict.
const (
	ExitReady   = 0
	ExitBlocked = 1
	ExitCaution = 2
)

// ExitCode maps the verdict to a process exit code. CAUTION only fails the
// process in strict mode.
func (v Verdict) ExitCode(strict bool) int {
	switch v {
	case Blocked:
		return ExitBlocked
	case Caution:
		if strict {
			return ExitCaution
		}
	}
	return ExitReady
}

// Group holds the findings sharing a severity and code, in first-seen order.
type Group struct {
	Severity finding.Severity
	Code     string
	Findings []finding.Finding
}

// Report is an aggregated, immutable view of one run.
type Report struct {
	Verdict Verdict
	Groups  []Group
	counts  map[finding.Severity]int
}

// Aggregate groups findings by severity (ERROR, WARNING, INFO) and then by
// code, keeping first-seen order within each level.
func Aggregate(findings []finding.Finding) Report {
	r := Report{Verdict: Ready, counts: finding.Count(findings)}

	for _, sev := range finding.Severities {
		index := make(map[string]int)
		for _, f := range findings {
			if f.Severity() != sev {
				continue
			}
			i, ok := index[f.Code()]
			if !ok {
				i = len(r.Groups)
				index[f.Code()] = i
				r.Groups = append(r.Groups, Group{Severity: sev, Code: f.Code()})
			}
			r.Groups[i].Findings = append(r.Groups[i].Findings, f)
		}
	}

	switch {
	case r.counts[finding.SeverityError] > 0:
		r.Verdict = Blocked
	case len(findings) > 0:
		r.Verdict = Caution
	}
	return r
}

// Counts returns the number of findings per severity. Every severity is
// present in the map.
func (r Report) Counts() map[finding.Severity]int {
	out := make(map[finding.Severity]int, len(finding.Severities))
	for _, sev := range finding.Severities {
		out[sev] = r.counts[sev]
	}
	return out
}

// Total is the number of findings in the report.
func (r Report) Total() int {
	n := 0
	for _, c := range r.counts {
		n += c
	}
	return n
}

// Findings flattens the groups back into one list in report order.
func (r Report) Findings() []finding.Finding {
	out := make([]finding.Finding, 0, r.Total())
	for _, g := range r.Groups {
		out = append(out, g.Findings...)
	}
	return out
}
