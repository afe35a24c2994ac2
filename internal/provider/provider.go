// Package provider defines the remote-host capability interfaces of the
// release pipeline and their reference implementations: an anonymous-capable
// HTTP file host for asset mirroring and a git-backed index store.
package provider

import (
	"context"

	"relcli/internal/config"
	"relcli/internal/index"
	"relcli/internal/logger"
)

// AssetProvider stores a single file on a remote host and returns a
// durable URL. Implementations are interchangeable from the workflow's
// point of view; it distinguishes them only by name.
type AssetProvider interface {
	// Upload posts the file and returns its public URL. It must never
	// silently drop an upload: failure is an error.
	Upload(ctx context.Context, filePath, releaseVersion string) (string, error)
	Name() string
	// MirrorsManifest reports whether this host should also serve
	// manifest fetches. Rate-limit-prone release hosts return false.
	MirrorsManifest() bool
}

// IndexProvider is the version-controlled store holding the canonical
// index and manifests.
type IndexProvider interface {
	Name() string
	// GetIndexContent pulls the latest remote state and returns the
	// parsed index, empty when the index file does not exist yet.
	GetIndexContent() ([]index.Version, error)
	// UpdateIndexContent persists the full index as one commit.
	UpdateIndexContent(entries []index.Version) error
	// CommitManifestFile stores the manifest in the index repository
	// and returns its public raw URL.
	CommitManifestFile(manifestPath, version string) (string, error)
	// SaveAllChanges writes the index and any manifests that differ
	// from their on-disk content as a single commit. A no-op when
	// nothing changed.
	SaveAllChanges(entries []index.Version, manifests map[string][]byte) error
}

// Secrets resolves provider credentials from an out-of-band store.
type Secrets interface {
	KVSecret(ctx context.Context, mount, path, key string) (string, error)
}

// Secret keys looked up when a vault address is configured.
const (
	SecretKeyFileHostUserHash = "filehost_user_hash"
	SecretKeyIndexToken       = "index_token"
)

// AssetProvidersFromConfig builds the configured asset providers. When a
// secrets store is available, credentials resolved from it override the
// config-file values; resolution failures degrade to the config values.
func AssetProvidersFromConfig(ctx context.Context, cfg *config.Config, secrets Secrets, log logger.Logger) []AssetProvider {
	var providers []AssetProvider
	if cfg.Providers.FileHost.APIURL != "" {
		userHash := resolveSecret(ctx, cfg, secrets, log,
			SecretKeyFileHostUserHash, cfg.Providers.FileHost.UserHash)
		providers = append(providers,
			NewFileHost(cfg.Providers.FileHost.APIURL, userHash, cfg.Network.UploadTimeout))
	}
	return providers
}

// IndexProviderFromConfig builds the git-backed index provider, cloning
// the working copy if needed.
func IndexProviderFromConfig(ctx context.Context, cfg *config.Config, secrets Secrets, log logger.Logger) (IndexProvider, error) {
	token := resolveSecret(ctx, cfg, secrets, log, SecretKeyIndexToken, cfg.Index.Token)
	return NewGitIndex(cfg, token, log)
}

func resolveSecret(ctx context.Context, cfg *config.Config, secrets Secrets, log logger.Logger, key, fallback string) string {
	if secrets == nil {
		return fallback
	}
	value, err := secrets.KVSecret(ctx, cfg.Vault.Mount, cfg.Vault.Path, key)
	if err != nil {
		log.Warn("secret lookup failed, using configured value",
			"key", key, "error", err.Error())
		return fallback
	}
	return value
}
