// Package finding defines the unit of output shared by every checker.
package finding

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Severity classifies how a finding affects the submission verdict.
type Severity string

const (
	// SeverityError blocks a READY verdict.
	SeverityError Severity = "ERROR"
	// SeverityWarning is advisory.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo is informational only.
	SeverityInfo Severity = "INFO"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityError, SeverityWarning, SeverityInfo}

// ParseSeverity accepts a severity name in any case.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityError:
		return SeverityError, nil
	case SeverityWarning:
		return SeverityWarning, nil
	case SeverityInfo:
		return SeverityInfo, nil
	}
	return "", fmt.Errorf("unknown severity %q (want ERROR, WARNING or INFO)", s)
}

// UnmarshalText lets rule tables spell severities in any case.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Codes shared by every checker for failures that are not rule violations.
const (
	CodeParseError  = "parse-error"
	CodeDecodeError = "decode-error"
	CodeIOError     = "io-error"
)

// ErrTargetNotFound is returned, never reported, when the path a checker was
// pointed at does not exist at all.
var ErrTargetNotFound = errors.New("target not found")

// NotFound wraps ErrTargetNotFound with the missing path.
func NotFound(path string) error {
	return fmt.Errorf("%w: %s", ErrTargetNotFound, path)
}

// Location points at the source of a finding. The zero value means the
// finding applies to the whole project.
type Location struct {
	Path string `json:"path,omitempty"`
	Line int    `json:"line,omitempty"`
	Key  string `json:"key,omitempty"`
}

// IsZero reports whether the location is unset.
func (l Location) IsZero() bool {
	return l.Path == "" && l.Line == 0 && l.Key == ""
}

func (l Location) String() string {
	var b strings.Builder
	b.WriteString(l.Path)
	if l.Line > 0 {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(l.Line))
	}
	if l.Key != "" {
		if b.Len() > 0 {
			b.WriteString("#")
		}
		b.WriteString(l.Key)
	}
	return b.String()
}

// Finding is one reported issue or observation. It is immutable once built.
type Finding struct {
	checker  string
	severity Severity
	code     string
	message  string
	location Location
}

// Option sets the location of a finding under construction.
type Option func(*Location)

// AtPath locates a finding in a file.
func AtPath(path string) Option {
	return func(l *Location) { l.Path = path }
}

// AtLine locates a finding on a line of a file.
func AtLine(path string, line int) Option {
	return func(l *Location) {
		l.Path = path
		l.Line = line
	}
}

// AtKey locates a finding at a key path inside a structured file.
func AtKey(path, key string) Option {
	return func(l *Location) {
		l.Path = path
		l.Key = key
	}
}

// New builds a finding for the named checker.
func New(checker string, severity Severity, code, message string, opts ...Option) Finding {
	f := Finding{
		checker:  checker,
		severity: severity,
		code:     code,
		message:  message,
	}
	for _, opt := range opts {
		opt(&f.location)
	}
	return f
}

func (f Finding) Checker() string    { return f.checker }
func (f Finding) Severity() Severity { return f.severity }
func (f Finding) Code() string       { return f.code }
func (f Finding) Message() string    { return f.message }
func (f Finding) Location() Location { return f.location }

// Fingerprint identifies a finding across runs. Two findings with the same
// code, location and message share a fingerprint.
func (f Finding) Fingerprint() string {
	h := xxhash.New()
	_, _ = h.WriteString(f.code)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(f.location.String())
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(f.message)
	return fmt.Sprintf("%016x", h.Sum64())
}

func (f Finding) String() string {
	if f.location.IsZero() {
		return fmt.Sprintf("%s %s: %s", f.severity, f.code, f.message)
	}
	return fmt.Sprintf("%s %s: %s (%s)", f.severity, f.code, f.message, f.location)
}

// Count tallies findings by severity.
func Count(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int, len(Severities))
	for _, f := range findings {
		counts[f.severity]++
	}
	return counts
}
