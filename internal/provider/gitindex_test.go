package provider

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"

	"relcli/internal/config"
	"relcli/internal/index"
	"relcli/internal/logger"
)

// newGitFixture initializes a bare "remote" on the local filesystem and
// returns a provider cloned against it.
func newGitFixture(t *testing.T) (*GitIndex, *config.Config) {
	t.Helper()
	remote := t.TempDir()
	if _, err := git.PlainInit(remote, true); err != nil {
		t.Fatalf("init bare remote: %v", err)
	}

	cfg := &config.Config{}
	cfg.Index.CloneURL = remote
	cfg.Index.Branch = "main"
	cfg.Index.LocalPath = filepath.Join(t.TempDir(), "clone")
	cfg.Index.RawBase = "https://example.com/raw/owner/manifest"
	cfg.Network.MaxRetries = 2
	cfg.Network.RetryDelay = 10 * time.Millisecond

	p, err := NewGitIndex(cfg, "", logger.Global())
	if err != nil {
		t.Fatalf("NewGitIndex returned error: %v", err)
	}
	return p, cfg
}

func TestGitIndex_EmptyRemoteReadsEmptyIndex(t *testing.T) {
	p, _ := newGitFixture(t)
	entries, err := p.GetIndexContent()
	if err != nil {
		t.Fatalf("GetIndexContent returned error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %v, want empty", entries)
	}
}

func TestGitIndex_UpdateAndReadBack(t *testing.T) {
	p, cfg := newGitFixture(t)

	entries := []index.Version{{
		Version:      "1.0.0",
		ManifestURLs: map[string]string{"git-index": "https://example.com/m.json"},
		DownloadURLs: map[string]string{"filehost": "https://files.example.com/a.tar.zst"},
		Latest:       true,
	}}
	if err := p.UpdateIndexContent(entries); err != nil {
		t.Fatalf("UpdateIndexContent returned error: %v", err)
	}

	// A second provider instance cloned from the same remote must observe
	// the write (read-after-write through pull).
	cfg2 := *cfg
	cfg2.Index.LocalPath = filepath.Join(t.TempDir(), "clone2")
	p2, err := NewGitIndex(&cfg2, "", logger.Global())
	if err != nil {
		t.Fatalf("second NewGitIndex returned error: %v", err)
	}
	got, err := p2.GetIndexContent()
	if err != nil {
		t.Fatalf("GetIndexContent returned error: %v", err)
	}
	if len(got) != 1 || got[0].Version != "1.0.0" || !got[0].Latest {
		t.Errorf("round-tripped index = %+v", got)
	}
}

func TestGitIndex_CommitManifestFile(t *testing.T) {
	p, cfg := newGitFixture(t)

	manifestPath := filepath.Join(t.TempDir(), index.ManifestFileName("1.0.0", false))
	if err := os.WriteFile(manifestPath, []byte(`{"version":"1.0.0"}`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	url, err := p.CommitManifestFile(manifestPath, "1.0.0")
	if err != nil {
		t.Fatalf("CommitManifestFile returned error: %v", err)
	}
	want := cfg.Index.RawBase + "/main/manifests/manifest-v1.0.0.json"
	if url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
	if _, err := os.Stat(filepath.Join(cfg.Index.LocalPath, "manifests", "manifest-v1.0.0.json")); err != nil {
		t.Errorf("manifest not present in working copy: %v", err)
	}
}

func TestGitIndex_SaveAllChangesNoOpWhenClean(t *testing.T) {
	p, _ := newGitFixture(t)

	entries := []index.Version{{Version: "1.0.0", Latest: true}}
	if err := p.SaveAllChanges(entries, nil); err != nil {
		t.Fatalf("first SaveAllChanges returned error: %v", err)
	}
	// Identical content must not produce an empty commit.
	if err := p.SaveAllChanges(entries, nil); err != nil {
		t.Fatalf("second SaveAllChanges returned error: %v", err)
	}
}

func TestGitIndex_ReclonesCorruptWorkingCopy(t *testing.T) {
	p, cfg := newGitFixture(t)
	if err := p.UpdateIndexContent([]index.Version{{Version: "1.0.0", Latest: true}}); err != nil {
		t.Fatalf("UpdateIndexContent returned error: %v", err)
	}

	// Wreck the clone: a plain directory is not a repository.
	if err := os.RemoveAll(filepath.Join(cfg.Index.LocalPath, ".git")); err != nil {
		t.Fatalf("remove .git: %v", err)
	}

	p2, err := NewGitIndex(cfg, "", logger.Global())
	if err != nil {
		t.Fatalf("NewGitIndex on corrupt copy returned error: %v", err)
	}
	entries, err := p2.GetIndexContent()
	if err != nil {
		t.Fatalf("GetIndexContent returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].Version != "1.0.0" {
		t.Errorf("recovered index = %+v", entries)
	}
}
