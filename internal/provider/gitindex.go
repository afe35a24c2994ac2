package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"relcli/internal/config"
	"relcli/internal/index"
	"relcli/internal/logger"
	"relcli/internal/retry"
)

// GitIndex stores the canonical version index and manifests in a git
// working copy: write locally, commit, push. Every network-touching
// operation retries on transient failure.
//
// The provider is not safe for concurrent use from multiple processes.
// Pull-before-write plus retry narrows lost-update windows between racing
// publishers but does not eliminate them; serialize publishes externally.
type GitIndex struct {
	cloneURL  string
	branch    string
	localPath string
	rawBase   string
	auth      transport.AuthMethod
	repo      *git.Repository
	log       logger.Logger
	attempts  int
	delay     time.Duration
}

// NewGitIndex opens the local working copy, cloning it first if needed.
// An existing directory that is not a usable repository is removed and
// re-cloned. A freshly created remote with no branches is handled by
// initializing locally and pointing HEAD at the target branch, so the
// first commit creates it.
func NewGitIndex(cfg *config.Config, token string, log logger.Logger) (*GitIndex, error) {
	p := &GitIndex{
		cloneURL:  cfg.Index.CloneURL,
		branch:    cfg.Index.Branch,
		localPath: cfg.Index.LocalPath,
		rawBase:   strings.TrimRight(cfg.Index.RawBase, "/"),
		log:       log,
		attempts:  cfg.Network.MaxRetries,
		delay:     cfg.Network.RetryDelay,
	}
	if token != "" && strings.HasPrefix(p.cloneURL, "http") {
		p.auth = &githttp.BasicAuth{Username: "oauth2", Password: token}
	}

	repo, err := p.openOrClone()
	if err != nil {
		return nil, err
	}
	p.repo = repo
	return p, nil
}

var _ IndexProvider = (*GitIndex)(nil)

// Name identifies the store in URL maps; it is the canonical
// manifest_urls key.
func (p *GitIndex) Name() string { return "git-index" }

func (p *GitIndex) openOrClone() (*git.Repository, error) {
	if _, err := os.Stat(p.localPath); err == nil {
		repo, err := git.PlainOpen(p.localPath)
		if err == nil {
			return repo, nil
		}
		p.log.Warn("local index clone is unusable, re-cloning",
			"path", p.localPath, "error", err.Error())
		if err := os.RemoveAll(p.localPath); err != nil {
			return nil, fmt.Errorf("remove corrupt index clone: %w", err)
		}
	}

	repo, err := git.PlainClone(p.localPath, false, &git.CloneOptions{
		URL:           p.cloneURL,
		ReferenceName: plumbing.NewBranchReferenceName(p.branch),
		SingleBranch:  true,
		Auth:          p.auth,
	})
	if err == nil {
		return repo, nil
	}
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return p.initForEmptyRemote()
	}

	// The target branch may not exist yet; clone the default branch and
	// create it locally.
	p.log.Warn("clone of index branch failed, trying default branch",
		"branch", p.branch, "error", err.Error())
	if rmErr := os.RemoveAll(p.localPath); rmErr != nil {
		return nil, fmt.Errorf("clean up failed clone: %w", rmErr)
	}
	repo, defErr := git.PlainClone(p.localPath, false, &git.CloneOptions{
		URL:  p.cloneURL,
		Auth: p.auth,
	})
	if defErr != nil {
		if errors.Is(defErr, transport.ErrEmptyRemoteRepository) {
			return p.initForEmptyRemote()
		}
		return nil, fmt.Errorf("clone index repository: %w", err)
	}
	w, wErr := repo.Worktree()
	if wErr != nil {
		return nil, fmt.Errorf("open index worktree: %w", wErr)
	}
	if err := w.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(p.branch),
		Create: true,
	}); err != nil {
		return nil, fmt.Errorf("create index branch %s: %w", p.branch, err)
	}
	return repo, nil
}

func (p *GitIndex) initForEmptyRemote() (*git.Repository, error) {
	if err := os.RemoveAll(p.localPath); err != nil {
		return nil, fmt.Errorf("clean up failed clone: %w", err)
	}
	repo, err := git.PlainInit(p.localPath, false)
	if err != nil {
		return nil, fmt.Errorf("init local index repository: %w", err)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{p.cloneURL},
	}); err != nil {
		return nil, fmt.Errorf("configure index remote: %w", err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(p.branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("point HEAD at index branch: %w", err)
	}
	return repo, nil
}

// pull fast-forwards the working copy. Already-up-to-date and
// not-yet-born remote branches are not errors.
func (p *GitIndex) pull() error {
	w, err := p.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open index worktree: %w", err)
	}
	err = w.Pull(&git.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(p.branch),
		SingleBranch:  true,
		Auth:          p.auth,
	})
	switch {
	case err == nil,
		errors.Is(err, git.NoErrAlreadyUpToDate),
		errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, plumbing.ErrReferenceNotFound):
		return nil
	}
	return fmt.Errorf("pull index repository: %w", err)
}

// GetIndexContent pulls first so subsequent readers observe the last
// write, then parses versions.json. A not-yet-published index reads as
// an empty list.
func (p *GitIndex) GetIndexContent() ([]index.Version, error) {
	if err := retry.Do(p.log, "git pull", p.attempts, p.delay, p.pull); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(p.localPath, index.FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return []index.Version{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", index.FileName, err)
	}
	var entries []index.Version
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", index.FileName, err)
	}
	return entries, nil
}

// UpdateIndexContent writes the full index and publishes it as one
// commit.
func (p *GitIndex) UpdateIndexContent(entries []index.Version) error {
	if err := p.writeIndexFile(entries); err != nil {
		return err
	}
	message := "Update " + index.FileName
	if len(entries) > 0 {
		message = fmt.Sprintf("Update %s for release v%s", index.FileName, entries[0].Version)
	}
	return p.commitAndPush(message, index.FileName)
}

// CommitManifestFile copies the manifest into manifests/, publishes it,
// and returns its raw content URL.
//
// The URL is derived from the configured raw base by path convention;
// hosts that expose a canonical content URL are not queried, so a raw
// base change on the platform side requires a config change here.
func (p *GitIndex) CommitManifestFile(manifestPath, version string) (string, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", fmt.Errorf("read manifest %s: %w", manifestPath, err)
	}
	rel := filepath.Join(index.ManifestDir, filepath.Base(manifestPath))
	dest := filepath.Join(p.localPath, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create %s directory: %w", index.ManifestDir, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest into index repo: %w", err)
	}

	if err := p.commitAndPush("Add manifest for v"+version, rel); err != nil {
		return "", err
	}
	return p.rawURL(rel), nil
}

// SaveAllChanges pulls, writes the index plus every manifest whose
// content differs, and publishes everything as a single commit. Nothing
// changed means no commit.
func (p *GitIndex) SaveAllChanges(entries []index.Version, manifests map[string][]byte) error {
	if err := retry.Do(p.log, "git pull", p.attempts, p.delay, p.pull); err != nil {
		return err
	}

	changed := make([]string, 0, len(manifests)+1)

	indexData, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", index.FileName, err)
	}
	if p.differs(index.FileName, indexData) {
		if err := os.WriteFile(filepath.Join(p.localPath, index.FileName), indexData, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", index.FileName, err)
		}
		changed = append(changed, index.FileName)
	}

	for name, data := range manifests {
		rel := filepath.Join(index.ManifestDir, name)
		if !p.differs(rel, data) {
			continue
		}
		dest := filepath.Join(p.localPath, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", index.ManifestDir, err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("write manifest %s: %w", name, err)
		}
		changed = append(changed, rel)
	}

	if len(changed) == 0 {
		p.log.Info("index store already up to date, nothing to commit")
		return nil
	}
	return p.commitAndPush("Update version index and manifests", changed...)
}

func (p *GitIndex) differs(rel string, data []byte) bool {
	existing, err := os.ReadFile(filepath.Join(p.localPath, rel))
	if err != nil {
		return true
	}
	return !bytes.Equal(existing, data)
}

func (p *GitIndex) writeIndexFile(entries []index.Version) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", index.FileName, err)
	}
	if err := os.WriteFile(filepath.Join(p.localPath, index.FileName), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", index.FileName, err)
	}
	return nil
}

// commitAndPush stages the given repo-relative paths, commits, and pushes
// with retry. A clean worktree is a no-op.
func (p *GitIndex) commitAndPush(message string, paths ...string) error {
	w, err := p.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open index worktree: %w", err)
	}
	for _, rel := range paths {
		if _, err := w.Add(filepath.ToSlash(rel)); err != nil {
			return fmt.Errorf("stage %s: %w", rel, err)
		}
	}

	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("read worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	if _, err := w.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "relcli",
			Email: "relcli@localhost",
			When:  time.Now(),
		},
	}); err != nil {
		return fmt.Errorf("commit index changes: %w", err)
	}

	return retry.Do(p.log, "git push", p.attempts, p.delay, func() error {
		err := p.repo.Push(&git.PushOptions{RemoteName: "origin", Auth: p.auth})
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("push index repository: %w", err)
		}
		return nil
	})
}

func (p *GitIndex) rawURL(rel string) string {
	return p.rawBase + "/" + p.branch + "/" + filepath.ToSlash(rel)
}
