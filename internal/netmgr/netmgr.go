// Package netmgr is the consumer-side acquisition pipeline: it fetches
// the version index, downloads release archives with mirror fallback and
// retry, verifies integrity, and streams extraction.
package netmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"relcli/internal/archive"
	"relcli/internal/config"
	"relcli/internal/hashfile"
	"relcli/internal/index"
	"relcli/internal/logger"
	"relcli/internal/progress"
)

// ErrNoManifest indicates that a release's manifest could not be fetched
// from any mirror.
var ErrNoManifest = errors.New("could not fetch release manifest from any mirror")

// manifestWorkers caps the concurrent manifest fan-out.
const manifestWorkers = 10

// StatusFunc receives human-readable attempt/fallback messages.
type StatusFunc func(message string)

// Manager performs all consumer-side network operations.
type Manager struct {
	cfg *config.Config
	log logger.Logger
	// client serves the small index GET and carries a total request
	// timeout. download has no total deadline: archives legitimately
	// take longer than any fixed bound, so only the connect, TLS and
	// header waits are capped here and body reads are guarded by the
	// stall timer in downloadTo. A slow but flowing stream is never
	// cut off.
	client      *http.Client
	download    *http.Client
	readTimeout time.Duration
}

// New builds a Manager whose every attempt is bounded by the configured
// network timeout.
func New(cfg *config.Config, log logger.Logger) *Manager {
	timeout := cfg.Network.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Manager{
		cfg:    cfg,
		log:    log,
		client: &http.Client{Timeout: timeout},
		download: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
			},
		},
		readTimeout: timeout,
	}
}

// FetchIndex GETs the well-known index URL. Any network or parse error
// is logged and surfaces as an empty list; how to present "no releases"
// is the caller's decision.
func (m *Manager) FetchIndex(ctx context.Context) []index.Version {
	m.log.Info("fetching version index", "url", m.cfg.Index.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.Index.URL, nil)
	if err != nil {
		m.log.Error("bad index URL", "url", m.cfg.Index.URL, "error", err.Error())
		return nil
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.log.Error("failed to fetch version index", "error", err.Error())
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		m.log.Error("version index fetch rejected", "status", resp.StatusCode)
		return nil
	}

	var entries []index.Version
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		m.log.Error("failed to parse version index", "error", err.Error())
		return nil
	}
	m.log.Info("fetched version index", "releases", len(entries))
	return entries
}

// Latest applies the index model's selection rule.
func (m *Manager) Latest(entries []index.Version) *index.Version {
	return index.Latest(entries)
}

type mirror struct {
	provider string
	url      string
}

// sortedMirrors puts the configured preferred provider first; remaining
// mirrors follow in map-iteration order.
func (m *Manager) sortedMirrors(urls map[string]string) []mirror {
	out := make([]mirror, 0, len(urls))
	preferred := m.cfg.Providers.Preferred
	if u, ok := urls[preferred]; ok {
		out = append(out, mirror{preferred, u})
	}
	for name, u := range urls {
		if name != preferred {
			out = append(out, mirror{name, u})
		}
	}
	return out
}

// DownloadWithFallback tries each mirror in preference order, retrying
// every mirror up to the configured attempt count with a fixed delay,
// and streams the winning body into a temp file. Exhausting every
// mirror is a recoverable condition, reported as ok=false, never as a
// fault; the temp file is removed in that case.
func (m *Manager) DownloadWithFallback(ctx context.Context, urls map[string]string, onProgress progress.Func, onStatus StatusFunc) (string, bool) {
	tmp, err := os.CreateTemp("", "relcli-download-*")
	if err != nil {
		m.log.Error("failed to create download temp file", "error", err.Error())
		return "", false
	}
	dest := tmp.Name()
	tmp.Close()

	maxRetries := m.cfg.Network.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	for _, mir := range m.sortedMirrors(urls) {
		for attempt := 1; attempt <= maxRetries; attempt++ {
			m.log.Info("attempting download",
				"provider", mir.provider, "url", mir.url,
				"attempt", attempt, "max", maxRetries)
			if onStatus != nil {
				onStatus(fmt.Sprintf("Trying %s (attempt %d/%d)...",
					mir.provider, attempt, maxRetries))
			}

			err := m.downloadTo(ctx, mir.url, dest, onProgress)
			if err == nil {
				m.log.Info("download successful", "provider", mir.provider)
				return dest, true
			}
			m.log.Error("download attempt failed",
				"provider", mir.provider, "attempt", attempt, "error", err.Error())

			if attempt < maxRetries {
				time.Sleep(m.cfg.Network.RetryDelay)
				continue
			}
			if onStatus != nil {
				onStatus(fmt.Sprintf("%s failed after %d attempts. Trying next mirror...",
					mir.provider, maxRetries))
			}
		}
	}

	os.Remove(dest)
	m.log.Error("all download mirrors failed")
	return "", false
}

// downloadTo streams one attempt into dest, reporting byte progress when
// the server advertises a Content-Length. Unknown sizes download without
// progress reporting. The body read is bounded per chunk, not in total:
// a stall longer than the configured timeout cancels the request, while
// a stream that keeps delivering bytes runs to completion regardless of
// how long the whole transfer takes.
func (m *Manager) downloadTo(ctx context.Context, url, dest string, onProgress progress.Func) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := m.download.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("open download destination: %w", err)
	}

	var tracker *progress.Tracker
	if total := resp.ContentLength; total > 0 {
		tracker = progress.NewTracker(total, onProgress)
	}

	stall := time.AfterFunc(m.readTimeout, cancel)
	defer stall.Stop()

	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			stall.Reset(m.readTimeout)
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				return fmt.Errorf("write download chunk: %w", writeErr)
			}
			written += int64(n)
			if tracker != nil {
				tracker.Advance(written)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			return fmt.Errorf("read download body: %w", readErr)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close download destination: %w", err)
	}
	if tracker != nil {
		tracker.Finish()
	}
	return nil
}

// VerifySHA256 reports whether the downloaded file matches the manifest
// hash. A mismatch means the file must be discarded, not extracted.
func (m *Manager) VerifySHA256(path, expectedHash string) bool {
	ok := hashfile.Verify(path, expectedHash)
	if ok {
		m.log.Info("archive hash verified", "path", path)
	} else {
		m.log.Error("archive hash mismatch", "path", path, "expected", expectedHash)
	}
	return ok
}

// Extract streams the archive into destDir using the manifest's file
// count for progress. Format and I/O errors are logged and swallowed;
// callers check post-conditions instead of relying on a fault.
func (m *Manager) Extract(archivePath, destDir string, manifest *index.Manifest, onProgress progress.Func) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		m.log.Error("failed to create extraction root",
			"dir", destDir, "error", err.Error())
		return
	}
	total := len(manifest.Files)
	m.log.Info("extracting archive", "archive", archivePath, "files", total)
	if err := archive.Extract(archivePath, destDir, total, onProgress); err != nil {
		m.log.Error("extraction failed", "archive", archivePath, "error", err.Error())
	}
}

// FetchManifest downloads and parses the manifest for one release via
// the mirror-fallback path. The downloaded temp file is always removed.
func (m *Manager) FetchManifest(ctx context.Context, v *index.Version, onStatus StatusFunc) (*index.Manifest, error) {
	m.log.Info("fetching manifest", "version", v.Version)
	if onStatus != nil {
		onStatus("Fetching release metadata...")
	}

	path, ok := m.DownloadWithFallback(ctx, v.ManifestURLs, nil, onStatus)
	if !ok {
		return nil, fmt.Errorf("%w: version %s", ErrNoManifest, v.Version)
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read downloaded manifest: %w", err)
	}
	var manifest index.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest for version %s: %w", v.Version, err)
	}
	return &manifest, nil
}

// FetchAllReleaseInfo fetches the index, then every entry's manifest
// concurrently with a bounded worker count. Completion order is
// unconstrained, but the returned list preserves original index order;
// entries whose manifest could not be fetched are dropped.
func (m *Manager) FetchAllReleaseInfo(ctx context.Context) []index.ReleaseInfo {
	entries := m.FetchIndex(ctx)
	if len(entries) == 0 {
		return nil
	}

	manifests := make([]*index.Manifest, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	limit := len(entries)
	if limit > manifestWorkers {
		limit = manifestWorkers
	}
	g.SetLimit(limit)

	m.log.Info("fetching manifests in parallel", "count", len(entries))
	for i := range entries {
		g.Go(func() error {
			manifest, err := m.FetchManifest(gctx, &entries[i], nil)
			if err != nil {
				m.log.Warn("skipping release, manifest unavailable",
					"version", entries[i].Version, "error", err.Error())
				return nil
			}
			manifests[i] = manifest
			return nil
		})
	}
	// Tasks never return errors; Wait only synchronizes.
	_ = g.Wait()

	releases := make([]index.ReleaseInfo, 0, len(entries))
	for i, manifest := range manifests {
		if manifest == nil {
			continue
		}
		releases = append(releases, index.ReleaseInfo{Entry: entries[i], Manifest: *manifest})
	}
	return releases
}
