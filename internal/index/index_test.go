package index

import (
	"errors"
	"io/fs"
	"testing"
)

func TestLatest_FlaggedEntryWins(t *testing.T) {
	entries := []Version{
		{Version: "3.0"},
		{Version: "2.0", Latest: true},
		{Version: "1.0"},
	}
	got := Latest(entries)
	if got == nil || got.Version != "2.0" {
		t.Errorf("Latest = %+v, want 2.0", got)
	}
}

func TestLatest_FallsBackToFirst(t *testing.T) {
	entries := []Version{{Version: "3.0"}, {Version: "2.0"}}
	got := Latest(entries)
	if got == nil || got.Version != "3.0" {
		t.Errorf("Latest = %+v, want first entry 3.0", got)
	}
}

func TestLatest_Empty(t *testing.T) {
	if got := Latest(nil); got != nil {
		t.Errorf("Latest(nil) = %+v, want nil", got)
	}
}

func TestFileNames(t *testing.T) {
	if got := ManifestFileName("1.2.3", false); got != "manifest-v1.2.3.json" {
		t.Errorf("manifest name = %q", got)
	}
	if got := ManifestFileName("1.2.3", true); got != "manifest-v1.2.3-profiler.json" {
		t.Errorf("profiler manifest name = %q", got)
	}
	if got := ArchiveFileName("AOEngine", "1.2.3", false); got != "AOEngine-v1.2.3.tar.zst" {
		t.Errorf("archive name = %q", got)
	}
}

func TestMarker_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := &Marker{Version: "1.2.3", ManifestURL: "https://example.com/manifest-v1.2.3.json"}
	if err := m.Write(dir); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	got, err := ReadMarker(dir)
	if err != nil {
		t.Fatalf("ReadMarker returned error: %v", err)
	}
	if *got != *m {
		t.Errorf("marker = %+v, want %+v", got, m)
	}
}

func TestReadMarker_Missing(t *testing.T) {
	_, err := ReadMarker(t.TempDir())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error = %v, want fs.ErrNotExist", err)
	}
}
