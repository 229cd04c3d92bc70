package manifest

import (
	"fmt"

	"howett.net/plist"
)

// PrivacyManifestName is the file name Xcode expects for a privacy manifest.
const PrivacyManifestName = "PrivacyInfo.xcprivacy"

// AccessedAPI is one NSPrivacyAccessedAPITypes entry.
type AccessedAPI struct {
	Category string   `plist:"NSPrivacyAccessedAPIType"`
	Reasons  []string `plist:"NSPrivacyAccessedAPITypeReasons"`
}

// PrivacyManifest is the subset of PrivacyInfo.xcprivacy the checks read.
type PrivacyManifest struct {
	Tracking        bool             `plist:"NSPrivacyTracking"`
	TrackingDomains []string         `plist:"NSPrivacyTrackingDomains"`
	CollectedData   []map[string]any `plist:"NSPrivacyCollectedDataTypes"`
	AccessedAPIs    []AccessedAPI    `plist:"NSPrivacyAccessedAPITypes"`
}

// DecodePrivacyManifest parses privacy manifest data in any plist encoding.
func DecodePrivacyManifest(data []byte) (*PrivacyManifest, error) {
	var pm PrivacyManifest
	if _, err := plist.Unmarshal(data, &pm); err != nil {
		return nil, fmt.Errorf("not a valid privacy manifest: %w", err)
	}
	return &pm, nil
}

// ReadPrivacyManifest reads and parses the privacy manifest at path.
func ReadPrivacyManifest(path string) (*PrivacyManifest, error) {
	data, err := readManifest(path)
	if err != nil {
		return nil, err
	}
	pm, err := DecodePrivacyManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pm, nil
}

// Reasons returns the reasons declared for a required reason API category.
func (pm *PrivacyManifest) Reasons(category string) ([]string, bool) {
	for _, api := range pm.AccessedAPIs {
		if api.Category == category {
			return api.Reasons, true
		}
	}
	return nil, false
}
