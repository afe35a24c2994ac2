// Package index defines the published-release data model: the version
// index, per-release manifests, and the local install marker.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"relcli/internal/archive"
)

const (
	// FileName is the index file inside the store and at the public URL.
	FileName = "versions.json"
	// ManifestDir is the directory manifests are committed under.
	ManifestDir = "manifests"
	// MarkerFileName records the currently installed version inside the
	// install's binary subdirectory.
	MarkerFileName = "version.json"
)

// Version is one row of the published index.
type Version struct {
	Version      string            `json:"version"`
	ManifestURLs map[string]string `json:"manifest_urls"`
	DownloadURLs map[string]string `json:"download_urls"`
	Latest       bool              `json:"latest,omitempty"`
	Profiler     bool              `json:"profiler,omitempty"`
}

// Manifest is the per-release metadata committed alongside the archive
// and fetched separately from the index.
type Manifest struct {
	Version       string   `json:"version"`
	ReleaseNotes  string   `json:"release_notes"`
	ArchiveSHA256 string   `json:"archive_sha256"`
	UploadDate    string   `json:"upload_date"`
	Files         []string `json:"files"`
	Profiler      bool     `json:"profiler,omitempty"`
}

// ReleaseInfo combines an index entry with its fetched manifest.
type ReleaseInfo struct {
	Entry    Version
	Manifest Manifest
}

// Latest selects the default release from index-ordered entries: the
// first entry flagged latest, else the first entry. Profiler builds are
// kept out of the flag at write time, so readers simply trust it.
func Latest(entries []Version) *Version {
	for i := range entries {
		if entries[i].Latest {
			return &entries[i]
		}
	}
	if len(entries) > 0 {
		return &entries[0]
	}
	return nil
}

func versionTag(version string, profiler bool) string {
	if profiler {
		return version + "-profiler"
	}
	return version
}

// ManifestFileName names the manifest file for a release.
func ManifestFileName(version string, profiler bool) string {
	return fmt.Sprintf("manifest-v%s.json", versionTag(version, profiler))
}

// ArchiveFileName names the packaged archive for a release.
func ArchiveFileName(product, version string, profiler bool) string {
	return fmt.Sprintf("%s-v%s%s", product, versionTag(version, profiler), archive.Ext)
}

// Marker is the small JSON file recording what is currently installed.
type Marker struct {
	Version     string `json:"version"`
	ManifestURL string `json:"manifest_url"`
}

// ReadMarker loads the install marker from dir. A missing marker
// surfaces as an fs.ErrNotExist-wrapped error, meaning nothing is
// installed yet.
func ReadMarker(dir string) (*Marker, error) {
	data, err := os.ReadFile(filepath.Join(dir, MarkerFileName))
	if err != nil {
		return nil, fmt.Errorf("read install marker: %w", err)
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse install marker: %w", err)
	}
	return &m, nil
}

// Write persists the marker into dir after a successful install/update.
func (m *Marker) Write(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode install marker: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MarkerFileName), data, 0o644); err != nil {
		return fmt.Errorf("write install marker: %w", err)
	}
	return nil
}
