package audit

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"

	"github.com/moasq/storecheck/internal/finding"
)

func writeFile(t *testing.T, root, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writePNG(t *testing.T, root, rel string, w, h int) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, w, h))))
	return path
}

// project lays out a small Xcode project with one issue per checker.
func project(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	info, err := plist.Marshal(map[string]any{
		"CFBundleDisplayName":        "PulseTrack",
		"CFBundleIdentifier":         "com.example.pulsetrack",
		"CFBundleVersion":            "7",
		"CFBundleShortVersionString": "1.0",
		"UILaunchStoryboardName":     "LaunchScreen",
	}, plist.XMLFormat)
	require.NoError(t, err)
	writeFile(t, root, "PulseTrack/Info.plist", info)
	writeFile(t, root, "PulseTrackTests/Info.plist", info)
	writePNG(t, root, "PulseTrack/Assets.xcassets/AppIcon.appiconset/icon_1024.png", 16, 16)
	writePNG(t, root, "fastlane/Screenshots/odd.png", 10, 10)
	writeFile(t, root, "PulseTrack/WebView.swift", []byte("let web = UIWebView()\nlet d = UserDefaults.standard\n"))
	writeFile(t, root, "Pods/Legacy/Info.plist", info)
	return root
}

func codes(findings []finding.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Code()
	}
	return out
}

func TestDiscover(t *testing.T) {
	root := project(t)

	targets, err := Discover(root, nil)
	require.NoError(t, err)
	assert.Equal(t, []Target{
		{Kind: KindManifest, Path: filepath.Join(root, "PulseTrack", "Info.plist")},
		{Kind: KindIcon, Path: filepath.Join(root, "PulseTrack", "Assets.xcassets")},
		{Kind: KindScreenshots, Path: filepath.Join(root, "fastlane", "Screenshots")},
		{Kind: KindSource, Path: root},
		{Kind: KindPrivacy, Path: root},
	}, targets)
}

func TestDiscoverFollowsSymlinkedRoot(t *testing.T) {
	real := project(t)
	link := filepath.Join(t.TempDir(), "PulseTrack")
	require.NoError(t, os.Symlink(real, link))

	targets, err := Discover(link, nil)
	require.NoError(t, err)
	assert.Equal(t, []Target{
		{Kind: KindManifest, Path: filepath.Join(link, "PulseTrack", "Info.plist")},
		{Kind: KindIcon, Path: filepath.Join(link, "PulseTrack", "Assets.xcassets")},
		{Kind: KindScreenshots, Path: filepath.Join(link, "fastlane", "Screenshots")},
		{Kind: KindSource, Path: link},
		{Kind: KindPrivacy, Path: link},
	}, targets)
}

func TestDiscoverMinimalProject(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.swift", []byte("print(1)\n"))

	targets, err := Discover(root, nil)
	require.NoError(t, err)
	assert.Equal(t, []Target{{Kind: KindSource, Path: root}, {Kind: KindPrivacy, Path: root}}, targets)

	_, err = Discover(filepath.Join(root, "missing"), nil)
	assert.True(t, errors.Is(err, finding.ErrTargetNotFound))
}

func TestRunMergesInTargetOrder(t *testing.T) {
	root := project(t)
	targets, err := Discover(root, nil)
	require.NoError(t, err)

	got, err := Run(context.Background(), Plan{Targets: targets, Parallel: 4})
	require.NoError(t, err)

	checkers := make([]string, 0, len(got))
	for _, f := range got {
		if len(checkers) == 0 || checkers[len(checkers)-1] != f.Checker() {
			checkers = append(checkers, f.Checker())
		}
	}
	assert.Equal(t, []string{"manifest", "icon", "screenshots", "source", "privacy"}, checkers)
	assert.Contains(t, codes(got), "manifest.format.version")
	assert.Contains(t, codes(got), "icon.dimensions")
	assert.Contains(t, codes(got), "screenshots.unrecognized")
	assert.Contains(t, codes(got), "source.deprecated.uiwebview")
	assert.Contains(t, codes(got), "privacy.manifest-missing")
}

func TestRunIsIndependentOfParallelism(t *testing.T) {
	root := project(t)
	targets, err := Discover(root, nil)
	require.NoError(t, err)
	runner, err := NewRunner(Options{})
	require.NoError(t, err)

	sequential, err := runner.Run(context.Background(), targets, 1)
	require.NoError(t, err)
	for range 5 {
		concurrent, err := runner.Run(context.Background(), targets, len(targets))
		require.NoError(t, err)
		assert.Equal(t, sequential, concurrent)
	}
}

func TestRunStopsOnMissingTarget(t *testing.T) {
	root := project(t)
	targets := []Target{
		{Kind: KindSource, Path: root},
		{Kind: KindManifest, Path: filepath.Join(root, "Nope", "Info.plist")},
	}

	_, err := Run(context.Background(), Plan{Targets: targets, Parallel: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, finding.ErrTargetNotFound))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Plan{Targets: []Target{{Kind: KindSource, Path: t.TempDir()}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRunnerValidatesOptions(t *testing.T) {
	_, err := NewRunner(Options{PriorBuild: "abc"})
	assert.Error(t, err)

	_, err = NewRunner(Options{Devices: []string{"watch-45mm"}})
	assert.ErrorContains(t, err, "watch-45mm")
}

func TestRunnerRejectsUnknownKind(t *testing.T) {
	runner, err := NewRunner(Options{})
	require.NoError(t, err)
	_, err = runner.Check(Target{Kind: "binary", Path: "."})
	assert.Error(t, err)

	_, err = ParseKind("binary")
	assert.Error(t, err)
	k, err := ParseKind("privacy")
	require.NoError(t, err)
	assert.Equal(t, KindPrivacy, k)
}
