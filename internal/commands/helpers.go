package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/moasq/storecheck/internal/audit"
	"github.com/moasq/storecheck/internal/finding"
	"github.com/moasq/storecheck/internal/report"
	"github.com/moasq/storecheck/internal/terminal"
)

// ExitTargetNotFound is returned when a path given to a checker does not
// exist, so scripts can tell it apart from a failing verdict.
const ExitTargetNotFound = 3

// ExitError carries a process exit code. Err is nil when the report already
// explains the failure.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// classify maps checker errors to exit codes.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, finding.ErrTargetNotFound) {
		return &ExitError{Code: ExitTargetNotFound, Err: err}
	}
	return err
}

// runnerOptions returns the checker options from the loaded config.
func (a *app) runnerOptions() audit.Options {
	return audit.Options{
		Tables:      a.tables,
		PriorBuild:  a.cfg.PriorBuild,
		Devices:     a.cfg.Screenshots.Devices,
		ExcludeDirs: a.cfg.Source.ExcludeDirs,
		Logger:      a.log,
	}
}

// status returns the UI for progress lines, which always go to stderr.
func (a *app) status(cmd *cobra.Command) *terminal.UI {
	if f, ok := cmd.ErrOrStderr().(*os.File); ok {
		return terminal.ForFile(f, a.cfg.NoColor)
	}
	return terminal.New(cmd.ErrOrStderr(), false)
}

// openOutput returns the report destination and whether it accepts colour.
func (a *app) openOutput(cmd *cobra.Command) (io.Writer, bool, func() error, error) {
	if a.cfg.Output == "" {
		w := cmd.OutOrStdout()
		color := false
		if f, ok := w.(*os.File); ok {
			color = terminal.ColorEnabled(f, a.cfg.NoColor)
		}
		return w, color, func() error { return nil }, nil
	}
	f, err := os.Create(a.cfg.Output)
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, false, f.Close, nil
}

// emit renders the findings and returns the verdict's exit status as an
// error when it is non-zero.
func (a *app) emit(cmd *cobra.Command, findings []finding.Finding) error {
	r := report.Aggregate(findings)
	if err := a.write(cmd, r); err != nil {
		return err
	}
	if code := r.Verdict.ExitCode(a.cfg.Strict); code != report.ExitReady {
		return &ExitError{Code: code}
	}
	return nil
}

func (a *app) write(cmd *cobra.Command, r report.Report) error {
	w, color, closeFn, err := a.openOutput(cmd)
	if err != nil {
		return err
	}
	opts := report.Options{Color: color, Tool: "storecheck", Version: Version}
	if err := report.Render(w, r, a.cfg.ReportFormat(), opts); err != nil {
		closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	a.log.Debugw("report written", "verdict", r.Verdict, "findings", r.Total(), "output", a.cfg.Output)
	return nil
}
