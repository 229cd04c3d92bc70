package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/moasq/storecheck/internal/config"
	"github.com/moasq/storecheck/internal/logging"
	"github.com/moasq/storecheck/internal/report"
	"github.com/moasq/storecheck/internal/rules"
)

// Version is set at build time.
var Version = "0.1.0"

// app carries the state loaded once per invocation.
type app struct {
	v       *viper.Viper
	cfgFile string

	cfg    *config.Config
	tables *rules.Tables
	log    *zap.SugaredLogger
}

// flagKeys maps command flags to their config keys. Local flags are bound
// only for the command being run, so commands can share a key.
var flagKeys = map[string]string{
	"format":      "format",
	"output":      "output",
	"strict":      "strict",
	"no-color":    "no_color",
	"log-level":   "log_level",
	"rules-dir":   "rules_dir",
	"prior-build": "prior_build",
	"parallel":    "parallel",
	"device":      "screenshots.devices",
	"exclude":     "source.exclude_dirs",
	"debounce":    "watch.debounce",
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)

	root := &cobra.Command{
		Use:   "storecheck",
		Short: "App Store compliance checks for Apple platform projects",
		Long: "storecheck validates an app's Info.plist, icon, screenshots and source against " +
			"App Store review requirements and prints a READY, CAUTION or BLOCKED verdict.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./.storecheck.yml)")
	pf.StringP("format", "f", string(report.FormatText), "report format: text, markdown, json or sarif")
	pf.StringP("output", "o", "", "write the report to a file instead of stdout")
	pf.Bool("strict", false, "exit non-zero on a CAUTION verdict")
	pf.Bool("no-color", false, "disable coloured output")
	pf.String("log-level", "warn", "log level: debug, info, warn or error")
	pf.String("rules-dir", "", "directory of rule tables overriding the built-in ones")

	root.AddCommand(newCheckCommand(a))
	root.AddCommand(newAuditCommand(a))
	root.AddCommand(newWatchCommand(a))
	root.AddCommand(newRulesCommand(a))
	root.AddCommand(newMCPCommand(a))
	return root
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// load resolves configuration, logging and rule tables for cmd.
func (a *app) load(cmd *cobra.Command) error {
	if err := bindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}
	used, err := config.ReadConfig(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	if used != "" {
		log.Debugw("loaded config", "path", used)
	}

	tables, err := rules.Load(cfg.RulesDir)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	if cfg.RulesDir != "" {
		log.Debugw("loaded rule overrides", "dir", cfg.RulesDir)
	}

	a.cfg = cfg
	a.log = log
	a.tables = tables
	return nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}
