package asset

import (
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moasq/storecheck/internal/finding"
	"github.com/moasq/storecheck/internal/rules"
)

// noisyRGBA returns an image whose pixel data does not compress, so encoded
// files stay above the placeholder threshold.
func noisyRGBA(w, h int, opaque bool) *image.NRGBA {
	rng := rand.New(rand.NewSource(int64(w*7919 + h)))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 0xff
	}
	if !opaque {
		img.Pix[3] = 0x80
	}
	return img
}

func uniform(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 0x20, 0x60, 0xa0, 0xff
	}
	return img
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func writeJPEG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, nil))
	return path
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func defaultIconSpec(t *testing.T) rules.AssetSpec {
	t.Helper()
	tables, err := rules.Default()
	require.NoError(t, err)
	return tables.Icon
}

func codes(findings []finding.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Code()
	}
	return out
}

func TestProbe(t *testing.T) {
	dir := t.TempDir()
	palette := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{
		color.NRGBA{0, 0, 0, 0},
		color.NRGBA{255, 0, 0, 255},
	})

	tests := []struct {
		name     string
		path     string
		format   string
		mode     ColorMode
		alpha    bool
		bitDepth int
		w, h     int
	}{
		{"rgb png", writePNG(t, dir, "rgb.png", noisyRGBA(8, 6, true)), "png", ModeRGB, false, 8, 8, 6},
		{"rgba png", writePNG(t, dir, "rgba.png", noisyRGBA(8, 6, false)), "png", ModeRGBA, true, 8, 8, 6},
		{"grey png", writePNG(t, dir, "grey.png", image.NewGray(image.Rect(0, 0, 5, 5))), "png", ModeGray, false, 8, 5, 5},
		{"16-bit png", writePNG(t, dir, "deep.png", image.NewGray16(image.Rect(0, 0, 3, 2))), "png", ModeGray, false, 16, 3, 2},
		{"palette png with tRNS", writePNG(t, dir, "palette.png", palette), "png", ModePalette, true, 1, 4, 4},
		{"jpeg", writeJPEG(t, dir, "photo.jpg", noisyRGBA(16, 9, true)), "jpeg", ModeYCbCr, false, 8, 16, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := Probe(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.format, h.Format)
			assert.Equal(t, tt.mode, h.ColorMode)
			assert.Equal(t, tt.alpha, h.HasAlpha)
			assert.Equal(t, tt.bitDepth, h.BitDepth)
			assert.Equal(t, tt.w, h.Width)
			assert.Equal(t, tt.h, h.Height)
			assert.Positive(t, h.Size)
		})
	}
}

func TestProbeRejectsNonImages(t *testing.T) {
	dir := t.TempDir()

	_, err := Probe(writeFile(t, dir, "notes.txt", []byte("launch checklist\n")))
	assert.True(t, errors.Is(err, ErrNotImage))

	_, err = Probe(writeFile(t, dir, "broken.png", append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotImage))
}

func TestCheckIconValid(t *testing.T) {
	path := writePNG(t, t.TempDir(), "icon.png", noisyRGBA(1024, 1024, true))

	got, err := CheckIcon(path, defaultIconSpec(t))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCheckIconViolations(t *testing.T) {
	dir := t.TempDir()
	spec := defaultIconSpec(t)

	tests := []struct {
		name  string
		path  string
		codes []string
	}{
		{"wrong size", writePNG(t, dir, "small.png", noisyRGBA(512, 512, true)), []string{CodeIconDimensions}},
		{"alpha", writePNG(t, dir, "alpha.png", noisyRGBA(1024, 1024, false)), []string{CodeIconAlpha}},
		{"placeholder", writePNG(t, dir, "flat.png", uniform(1024, 1024)), []string{CodeIconPlaceholder}},
		{"jpeg", writeJPEG(t, dir, "icon.jpg", noisyRGBA(1024, 1024, true)), []string{CodeIconFormat}},
		{"greyscale", writePNG(t, dir, "grey.png", image.NewGray(image.Rect(0, 0, 1024, 1024))), []string{CodeIconPlaceholder, CodeIconColorMode}},
		{"not an image", writeFile(t, dir, "icon.txt", []byte("placeholder")), []string{finding.CodeDecodeError}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CheckIcon(tt.path, spec)
			require.NoError(t, err)
			assert.Equal(t, tt.codes, codes(got))
			for _, f := range got {
				assert.Equal(t, IconChecker, f.Checker())
				assert.Equal(t, tt.path, f.Location().Path)
			}
		})
	}
}

func TestCheckIconDimensionMessage(t *testing.T) {
	path := writePNG(t, t.TempDir(), "icon.png", noisyRGBA(1000, 1024, true))

	got, err := CheckIcon(path, defaultIconSpec(t))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, finding.SeverityError, got[0].Severity())
	assert.Contains(t, got[0].Message(), "1000x1024")
	assert.Contains(t, got[0].Message(), "1024x1024")
}

func TestCheckIconMissingPath(t *testing.T) {
	_, err := CheckIcon(filepath.Join(t.TempDir(), "icon.png"), defaultIconSpec(t))
	assert.True(t, errors.Is(err, finding.ErrTargetNotFound))
}

func TestCheckIconFromCatalog(t *testing.T) {
	spec := defaultIconSpec(t)

	t.Run("contents json", func(t *testing.T) {
		catalog := filepath.Join(t.TempDir(), "Assets.xcassets")
		set := filepath.Join(catalog, "AppIcon.appiconset")
		require.NoError(t, os.MkdirAll(set, 0o755))
		writeFile(t, set, "Contents.json", []byte(`{
  "images": [
    {"filename": "Icon-60@2x.png", "idiom": "iphone", "size": "60x60", "scale": "2x"},
    {"filename": "Marketing.png", "idiom": "ios-marketing", "size": "1024x1024", "scale": "1x"}
  ],
  "info": {"author": "xcode", "version": 1}
}`))
		want := writePNG(t, set, "Marketing.png", noisyRGBA(1024, 1024, true))

		found, malformed, err := FindIcon(catalog)
		require.NoError(t, err)
		assert.Empty(t, malformed)
		assert.Equal(t, want, found)

		got, err := Check(catalog, []rules.AssetSpec{spec})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("glob fallback", func(t *testing.T) {
		catalog := filepath.Join(t.TempDir(), "Assets.xcassets")
		set := filepath.Join(catalog, "AppIcon.appiconset")
		require.NoError(t, os.MkdirAll(set, 0o755))
		want := writePNG(t, set, "icon_1024.png", uniform(64, 64))

		found, malformed, err := FindIcon(catalog)
		require.NoError(t, err)
		assert.Empty(t, malformed)
		assert.Equal(t, want, found)

		got, err := CheckIcon(catalog, spec)
		require.NoError(t, err)
		assert.Equal(t, []string{CodeIconDimensions, CodeIconPlaceholder}, codes(got))
		assert.Equal(t, want, got[0].Location().Path)
	})

	t.Run("malformed contents json", func(t *testing.T) {
		catalog := filepath.Join(t.TempDir(), "Assets.xcassets")
		set := filepath.Join(catalog, "AppIcon.appiconset")
		require.NoError(t, os.MkdirAll(set, 0o755))
		contents := writeFile(t, set, "Contents.json", []byte(`{"images": [`))
		want := writePNG(t, set, "icon_1024.png", uniform(64, 64))

		found, malformed, err := FindIcon(catalog)
		require.NoError(t, err)
		assert.Equal(t, want, found)
		require.Len(t, malformed, 1)
		assert.Equal(t, contents, malformed[0].Path)

		got, err := CheckIcon(catalog, spec)
		require.NoError(t, err)
		assert.Equal(t, []string{finding.CodeParseError, CodeIconDimensions, CodeIconPlaceholder}, codes(got))
		assert.Equal(t, contents, got[0].Location().Path)
		assert.Equal(t, finding.SeverityError, got[0].Severity())
		assert.Equal(t, want, got[1].Location().Path)
	})

	t.Run("missing", func(t *testing.T) {
		catalog := filepath.Join(t.TempDir(), "Assets.xcassets")
		require.NoError(t, os.MkdirAll(filepath.Join(catalog, "AccentColor.colorset"), 0o755))

		got, err := CheckIcon(catalog, spec)
		require.NoError(t, err)
		require.Equal(t, []string{CodeIconMissing}, codes(got))
		assert.Equal(t, finding.SeverityError, got[0].Severity())
	})
}

func phoneAndTablet() []rules.AssetSpec {
	return []rules.AssetSpec{
		{
			DeviceClass: "phone",
			Sizes:       []rules.Size{{Width: 30, Height: 60}, {Width: 60, Height: 30}},
			Formats:     []string{"png", "jpeg"},
			MinCount:    2,
			MaxCount:    3,
		},
		{
			DeviceClass: "tablet",
			Sizes:       []rules.Size{{Width: 40, Height: 50}},
			Formats:     []string{"png"},
			MinCount:    1,
			MaxCount:    2,
		},
	}
}

func TestCheckScreenshotsCounts(t *testing.T) {
	tests := []struct {
		name   string
		images map[string][2]int
		codes  []string
	}{
		{
			name:   "complete set",
			images: map[string][2]int{"1.png": {30, 60}, "2.png": {60, 30}, "3.png": {40, 50}},
			codes:  nil,
		},
		{
			name:   "missing class",
			images: map[string][2]int{"1.png": {30, 60}, "2.png": {30, 60}},
			codes:  []string{CodeScreenshotsMissing},
		},
		{
			name:   "too few",
			images: map[string][2]int{"1.png": {30, 60}, "3.png": {40, 50}},
			codes:  []string{CodeScreenshotsTooFew},
		},
		{
			name: "too many",
			images: map[string][2]int{
				"1.png": {30, 60}, "2.png": {30, 60}, "3.png": {30, 60}, "4.png": {30, 60}, "t.png": {40, 50},
			},
			codes: []string{CodeScreenshotsTooMany},
		},
		{
			name:   "unrecognized",
			images: map[string][2]int{"1.png": {30, 60}, "2.png": {30, 60}, "3.png": {40, 50}, "odd.png": {11, 11}},
			codes:  []string{CodeScreenshotsUnrecognized},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, size := range tt.images {
				writePNG(t, dir, name, uniform(size[0], size[1]))
			}
			writeFile(t, dir, "README.md", []byte("# Screenshots\n"))

			got, err := CheckScreenshots(dir, phoneAndTablet())
			require.NoError(t, err)
			if tt.codes == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.codes, codes(got))
		})
	}
}

func TestCheckScreenshotsSeverities(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"1.png", "2.png", "3.png", "4.png"} {
		writePNG(t, dir, name, uniform(30, 60))
	}

	got, err := CheckScreenshots(dir, phoneAndTablet())
	require.NoError(t, err)
	require.Equal(t, []string{CodeScreenshotsTooMany, CodeScreenshotsMissing}, codes(got))
	assert.Equal(t, finding.SeverityWarning, got[0].Severity())
	assert.Equal(t, finding.SeverityError, got[1].Severity())
	assert.Contains(t, got[1].Message(), "tablet")
	assert.Equal(t, dir, got[1].Location().Path)
}

func TestCheckScreenshotsOverlappingClasses(t *testing.T) {
	specs := []rules.AssetSpec{
		{DeviceClass: "a", Sizes: []rules.Size{{Width: 20, Height: 20}}, MinCount: 2, MaxCount: 5},
		{DeviceClass: "b", Sizes: []rules.Size{{Width: 20, Height: 20}}, MinCount: 2, MaxCount: 5},
	}
	dir := t.TempDir()
	writePNG(t, dir, "1.png", uniform(20, 20))
	writePNG(t, dir, "2.png", uniform(20, 20))

	got, err := CheckScreenshots(dir, specs)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCheckScreenshotsFallback(t *testing.T) {
	specs := phoneAndTablet()
	specs[1].Fallback = "phone"
	specs[1].MinCount = 2
	dir := t.TempDir()
	writePNG(t, dir, "1.png", uniform(30, 60))
	writePNG(t, dir, "2.png", uniform(30, 60))

	got, err := CheckScreenshots(dir, specs)
	require.NoError(t, err)
	require.Equal(t, []string{CodeScreenshotsFallback}, codes(got))
	assert.Equal(t, finding.SeverityInfo, got[0].Severity())
}

func TestCheckScreenshotsPerImageRules(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png", uniform(30, 60))
	writePNG(t, dir, "b.png", noisyRGBA(30, 60, false))
	writeJPEG(t, dir, "c.jpg", uniform(40, 50))
	writeFile(t, dir, "d.png", append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 40)...))
	writePNG(t, dir, "e.png", uniform(12, 12))

	got, err := CheckScreenshots(dir, phoneAndTablet())
	require.NoError(t, err)
	assert.Equal(t, []string{
		CodeScreenshotsAlpha,
		CodeScreenshotsFormat,
		finding.CodeDecodeError,
		CodeScreenshotsUnrecognized,
	}, codes(got))
	assert.Equal(t, filepath.Join(dir, "b.png"), got[0].Location().Path)
	assert.Equal(t, filepath.Join(dir, "c.jpg"), got[1].Location().Path)
	assert.Equal(t, filepath.Join(dir, "d.png"), got[2].Location().Path)
}

func TestCheckScreenshotsSingleFile(t *testing.T) {
	path := writePNG(t, t.TempDir(), "shot.png", noisyRGBA(30, 60, false))

	got, err := CheckScreenshots(path, phoneAndTablet())
	require.NoError(t, err)
	assert.Equal(t, []string{CodeScreenshotsAlpha}, codes(got))
}

func TestCheckScreenshotsMissingDir(t *testing.T) {
	_, err := CheckScreenshots(filepath.Join(t.TempDir(), "shots"), phoneAndTablet())
	assert.True(t, errors.Is(err, finding.ErrTargetNotFound))
}

func TestCheckScreenshotsIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"z.png", "m.png", "a.png"} {
		writePNG(t, dir, name, uniform(9, 9))
	}

	first, err := CheckScreenshots(dir, phoneAndTablet())
	require.NoError(t, err)
	second, err := CheckScreenshots(dir, phoneAndTablet())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.Len(t, first, 5)
	assert.Equal(t, filepath.Join(dir, "a.png"), first[2].Location().Path)
	assert.Equal(t, filepath.Join(dir, "m.png"), first[3].Location().Path)
	assert.Equal(t, filepath.Join(dir, "z.png"), first[4].Location().Path)
}
