package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"relcli/internal/config"
	"relcli/internal/index"
	"relcli/internal/logger"
	"relcli/internal/provider"
)

// stubAsset is an in-memory AssetProvider whose uploads either produce a
// deterministic URL or fail.
type stubAsset struct {
	name    string
	mirrors bool
	fail    bool

	mu      sync.Mutex
	uploads []string
}

func (s *stubAsset) Upload(ctx context.Context, filePath, releaseVersion string) (string, error) {
	s.mu.Lock()
	s.uploads = append(s.uploads, filepath.Base(filePath))
	s.mu.Unlock()
	if s.fail {
		return "", errors.New("host rejected the upload")
	}
	return fmt.Sprintf("https://%s.example.com/%s", s.name, filepath.Base(filePath)), nil
}

func (s *stubAsset) Name() string          { return s.name }
func (s *stubAsset) MirrorsManifest() bool { return s.mirrors }

// memIndex is an in-memory IndexProvider.
type memIndex struct {
	entries   []index.Version
	updates   int
	committed []string
}

func (m *memIndex) Name() string { return "git-index" }

func (m *memIndex) GetIndexContent() ([]index.Version, error) {
	out := make([]index.Version, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *memIndex) UpdateIndexContent(entries []index.Version) error {
	m.entries = entries
	m.updates++
	return nil
}

func (m *memIndex) CommitManifestFile(manifestPath, version string) (string, error) {
	m.committed = append(m.committed, filepath.Base(manifestPath))
	return "https://raw.example.com/main/manifests/" + filepath.Base(manifestPath), nil
}

func (m *memIndex) SaveAllChanges([]index.Version, map[string][]byte) error { return nil }

func releaseFiles(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("file%d.bin", i))
		if err := os.WriteFile(path, []byte(fmt.Sprintf("payload %d", i)), 0o644); err != nil {
			t.Fatalf("write release file: %v", err)
		}
		paths = append(paths, path)
	}
	return paths
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Product.Name = "AOEngine"
	return cfg
}

func runWorkflow(t *testing.T, idx *memIndex, profiler bool, assets ...*stubAsset) error {
	t.Helper()
	providers := make([]provider.AssetProvider, len(assets))
	for i, a := range assets {
		providers[i] = a
	}
	w := New(testConfig(), "2.0.0", "notes", releaseFiles(t, 2),
		providers, idx, nil, profiler, logger.Global())
	return w.Run(context.Background())
}

func TestRun_PartialUploadFailureTolerated(t *testing.T) {
	good1 := &stubAsset{name: "hostA", mirrors: true}
	good2 := &stubAsset{name: "hostB", mirrors: true}
	bad := &stubAsset{name: "hostC", mirrors: true, fail: true}
	idx := &memIndex{}

	if err := runWorkflow(t, idx, false, good1, good2, bad); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if idx.updates != 1 || len(idx.entries) != 1 {
		t.Fatalf("index updates = %d entries = %d", idx.updates, len(idx.entries))
	}
	entry := idx.entries[0]
	if len(entry.DownloadURLs) != 2 {
		t.Errorf("download_urls = %v, want exactly 2 entries", entry.DownloadURLs)
	}
	if _, ok := entry.DownloadURLs["hostC"]; ok {
		t.Error("failed provider still contributed a download URL")
	}
}

func TestRun_AllUploadsFailedIsFatal(t *testing.T) {
	idx := &memIndex{}
	err := runWorkflow(t, idx, false,
		&stubAsset{name: "hostA", fail: true},
		&stubAsset{name: "hostB", fail: true},
		&stubAsset{name: "hostC", fail: true})
	if !errors.Is(err, ErrNoArchiveURL) {
		t.Fatalf("Run error = %v, want ErrNoArchiveURL", err)
	}
	if idx.updates != 0 {
		t.Error("index was updated despite total upload failure")
	}
}

func TestRun_SingleLatestInvariant(t *testing.T) {
	idx := &memIndex{entries: []index.Version{
		{Version: "1.0.0", Latest: true},
		{Version: "0.9.0"},
	}}
	if err := runWorkflow(t, idx, false, &stubAsset{name: "hostA", mirrors: true}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	latest := 0
	for _, e := range idx.entries {
		if e.Latest {
			latest++
		}
	}
	if latest != 1 {
		t.Fatalf("%d entries flagged latest, want 1", latest)
	}
	if idx.entries[0].Version != "2.0.0" || !idx.entries[0].Latest {
		t.Errorf("newest-first entry = %+v", idx.entries[0])
	}
}

func TestRun_ProfilerNeverLatest(t *testing.T) {
	idx := &memIndex{entries: []index.Version{{Version: "1.0.0", Latest: true}}}
	if err := runWorkflow(t, idx, true, &stubAsset{name: "hostA", mirrors: true}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if idx.entries[0].Latest {
		t.Error("profiler build claimed the latest flag")
	}
	if !idx.entries[1].Latest {
		t.Error("existing latest flag was stripped by a profiler release")
	}
}

func TestRun_CanonicalManifestURLAndMirrorExclusion(t *testing.T) {
	mirror := &stubAsset{name: "hostA", mirrors: true}
	releaseHost := &stubAsset{name: "releases", mirrors: false}
	idx := &memIndex{}

	if err := runWorkflow(t, idx, false, mirror, releaseHost); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	entry := idx.entries[0]
	if _, ok := entry.ManifestURLs["releases"]; ok {
		t.Error("release-host manifest URL was not excluded")
	}
	if _, ok := entry.ManifestURLs["hostA"]; !ok {
		t.Error("mirror manifest URL missing")
	}
	canonical, ok := entry.ManifestURLs["git-index"]
	if !ok || canonical == "" {
		t.Errorf("canonical manifest URL missing: %v", entry.ManifestURLs)
	}
	if len(idx.committed) != 1 {
		t.Errorf("manifests committed to index store = %v, want 1", idx.committed)
	}
}
