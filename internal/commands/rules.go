package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moasq/storecheck/internal/rules"
)

// ruleKinds maps --kind values to table files.
var ruleKinds = map[string]string{
	"manifest": rules.ManifestFile,
	"patterns": rules.PatternsFile,
	"assets":   rules.AssetsFile,
	"privacy":  rules.PrivacyFile,
}

func newRulesCommand(a *app) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the effective rule tables",
		Long: "Prints the rule tables in effect, after any --rules-dir overrides, as YAML. " +
			"The output of a single --kind can be saved into a rules directory and edited.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files := rules.Files
			if kind != "" {
				file, ok := ruleKinds[kind]
				if !ok {
					return fmt.Errorf("unknown rule table %q (want manifest, patterns, assets or privacy)", kind)
				}
				files = []string{file}
			}

			w := cmd.OutOrStdout()
			for i, file := range files {
				if len(files) > 1 {
					if i > 0 {
						fmt.Fprintln(w, "---")
					}
					fmt.Fprintf(w, "# %s\n", file)
				}
				if err := a.tables.Encode(w, file); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "print one table: manifest, patterns, assets or privacy")
	return cmd
}
