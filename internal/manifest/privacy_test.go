package manifest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

func TestReadPrivacyManifest(t *testing.T) {
	data, err := plist.Marshal(map[string]any{
		"NSPrivacyTracking":        true,
		"NSPrivacyTrackingDomains": []string{"metrics.example.com"},
		"NSPrivacyAccessedAPITypes": []map[string]any{
			{
				"NSPrivacyAccessedAPIType":        "NSPrivacyAccessedAPICategoryUserDefaults",
				"NSPrivacyAccessedAPITypeReasons": []string{"CA92.1"},
			},
		},
	}, plist.XMLFormat)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), PrivacyManifestName)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	pm, err := ReadPrivacyManifest(path)
	require.NoError(t, err)
	assert.True(t, pm.Tracking)
	assert.Equal(t, []string{"metrics.example.com"}, pm.TrackingDomains)

	reasons, ok := pm.Reasons("NSPrivacyAccessedAPICategoryUserDefaults")
	assert.True(t, ok)
	assert.Equal(t, []string{"CA92.1"}, reasons)

	_, ok = pm.Reasons("NSPrivacyAccessedAPICategoryDiskSpace")
	assert.False(t, ok)
}

func TestReadPrivacyManifestErrors(t *testing.T) {
	_, err := ReadPrivacyManifest(filepath.Join(t.TempDir(), PrivacyManifestName))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	path := filepath.Join(t.TempDir(), PrivacyManifestName)
	data, err := plist.Marshal([]string{"not", "a", "dictionary"}, plist.XMLFormat)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	_, err = ReadPrivacyManifest(path)
	assert.ErrorContains(t, err, "not a valid privacy manifest")
}
