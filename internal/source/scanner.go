// Package source searches a project tree for API usage that App Review cares
// about and cross-checks required reason APIs against the privacy manifest.
package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/moasq/storecheck/internal/finding"
	"github.com/moasq/storecheck/internal/rules"
)

// Name identifies findings produced by the pattern scan.
const Name = "source"

const (
	sniffLen     = 8 << 10
	maxLineBytes = 1 << 20
)

// DefaultExcludeDirs are dependency and build output directories that are
// never scanned.
var DefaultExcludeDirs = []string{
	".git", ".build", ".swiftpm", "Pods", "Carthage", "DerivedData",
	"build", "node_modules", "vendor",
}

// Options tunes a Scanner.
type Options struct {
	// ExcludeDirs adds directory names to DefaultExcludeDirs.
	ExcludeDirs []string
	Logger      *zap.SugaredLogger
}

// Scanner walks a tree and applies pattern rules line by line.
type Scanner struct {
	exclude map[string]bool
	log     *zap.SugaredLogger
}

// New creates a Scanner.
func New(opts Options) *Scanner {
	s := &Scanner{exclude: make(map[string]bool), log: opts.Logger}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	for _, d := range DefaultExcludeDirs {
		s.exclude[d] = true
	}
	for _, d := range opts.ExcludeDirs {
		s.exclude[d] = true
	}
	return s
}

// Match is one pattern hit.
type Match struct {
	Rule rules.PatternRule
	Path string
	Line int
	Text string
}

// Check scans every text file under root. Findings are ordered by path, then
// line, then pattern table order. A missing root returns
// finding.ErrTargetNotFound; unreadable files become io-error findings.
func (s *Scanner) Check(root string, patterns []rules.PatternRule) ([]finding.Finding, error) {
	var out []finding.Finding
	err := s.scan(root, patterns, func(m Match) {
		msg := rules.Expand(m.Rule.Message, map[string]string{"match": m.Text})
		out = append(out, finding.New(Name, m.Rule.Severity, m.Rule.Code, msg, finding.AtLine(m.Path, m.Line)))
	}, func(f finding.Finding) {
		out = append(out, f)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scan walks root and reports every match and every per-file failure.
func (s *Scanner) scan(root string, patterns []rules.PatternRule, onMatch func(Match), onFailure func(finding.Finding)) error {
	compiled, err := compile(patterns)
	if err != nil {
		return err
	}
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return finding.NotFound(root)
	}

	files := 0
	err = Walk(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			onFailure(ioError(path, err))
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && s.exclude[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		files++
		if err := scanFile(path, compiled, onMatch); err != nil {
			onFailure(ioError(path, err))
		}
		return nil
	})
	s.log.Debugw("source scanned", "root", root, "files", files, "patterns", len(compiled))
	return err
}

type compiledRule struct {
	rule rules.PatternRule
	re   *regexp.Regexp
}

func compile(patterns []rules.PatternRule) ([]compiledRule, error) {
	out := make([]compiledRule, len(patterns))
	for i, p := range patterns {
		re := p.Regexp()
		if re == nil {
			if err := p.Compile(); err != nil {
				return nil, err
			}
			re = p.Regexp()
		}
		out[i] = compiledRule{rule: p, re: re}
	}
	return out, nil
}

func scanFile(path string, patterns []compiledRule, onMatch func(Match)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	if !isText(head[:n]) {
		return nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	// UTF-16 files such as .strings tables are decoded to UTF-8 by their BOM.
	sc := bufio.NewScanner(transform.NewReader(f, unicode.BOMOverride(encoding.Nop.NewDecoder())))
	sc.Buffer(make([]byte, 64<<10), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		for _, p := range patterns {
			if loc := p.re.FindStringIndex(text); loc != nil {
				onMatch(Match{Rule: p.rule, Path: path, Line: line, Text: text[loc[0]:loc[1]]})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("line %d: %w", line+1, err)
	}
	return nil
}

var (
	bomUTF16LE = []byte{0xff, 0xfe}
	bomUTF16BE = []byte{0xfe, 0xff}
)

// isText treats content as text when it starts with a UTF-16 byte order mark,
// and otherwise unless it holds a NUL byte or sniffs as a known non-text type.
func isText(head []byte) bool {
	if bytes.HasPrefix(head, bomUTF16LE) || bytes.HasPrefix(head, bomUTF16BE) {
		return true
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	mtype := mimetype.Detect(head)
	if mtype.Is("application/octet-stream") {
		return true
	}
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func ioError(path string, err error) finding.Finding {
	return finding.New(Name, finding.SeverityError, finding.CodeIOError,
		fmt.Sprintf("could not read %s: %v", path, err), finding.AtPath(path))
}
