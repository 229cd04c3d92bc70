package commands

import (
	"github.com/spf13/cobra"

	"github.com/moasq/storecheck/internal/audit"
)

func newCheckCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a single checker against one path",
	}

	manifest := a.checkSubcommand(audit.KindManifest, "manifest <Info.plist>",
		"Validate an Info.plist",
		"Checks required keys, version and build number format, privacy usage descriptions, "+
			"discouraged and deprecated keys.")
	manifest.Flags().String("prior-build", "", "build number of the last upload; the new build must be greater")

	icon := a.checkSubcommand(audit.KindIcon, "icon <icon.png|Assets.xcassets>",
		"Validate the App Store icon",
		"Checks the 1024x1024 marketing icon for format, dimensions and transparency. "+
			"Given an asset catalog, the icon is located through its AppIcon set.")

	screenshots := a.checkSubcommand(audit.KindScreenshots, "screenshots <dir>",
		"Validate App Store screenshots",
		"Classifies every image in the directory by device and checks per-device counts, "+
			"formats and transparency.")
	screenshots.Flags().StringSlice("device", nil, "limit to these device classes, e.g. iphone-6.7,ipad-13")

	src := a.checkSubcommand(audit.KindSource, "source <dir>",
		"Scan source for rejected API usage",
		"Scans text files for deprecated APIs, data collection SDKs and APIs, and "+
			"required reason APIs.")
	src.Flags().StringSlice("exclude", nil, "directory names to skip in addition to Pods, Carthage and build output")

	privacy := a.checkSubcommand(audit.KindPrivacy, "privacy <dir>",
		"Cross-check required reason APIs against the privacy manifest",
		"Finds required reason API usage and checks that PrivacyInfo.xcprivacy declares "+
			"each category with an approved reason.")
	privacy.Flags().StringSlice("exclude", nil, "directory names to skip in addition to Pods, Carthage and build output")

	cmd.AddCommand(manifest, icon, screenshots, src, privacy)
	return cmd
}

func (a *app) checkSubcommand(kind audit.Kind, use, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := audit.NewRunner(a.runnerOptions())
			if err != nil {
				return err
			}
			findings, err := runner.Check(audit.Target{Kind: kind, Path: args[0]})
			if err != nil {
				return classify(err)
			}
			return a.emit(cmd, findings)
		},
	}
}
