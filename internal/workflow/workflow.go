// Package workflow orchestrates the publish pipeline: archive, hash,
// manifest, parallel multi-provider upload, and atomic index update.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"relcli/internal/archive"
	"relcli/internal/config"
	"relcli/internal/hashfile"
	"relcli/internal/index"
	"relcli/internal/logger"
	"relcli/internal/provider"
)

// ErrNoArchiveURL is the hard-failure condition of the upload stage:
// not a single provider accepted the release archive, so there would be
// no way to fetch the bits.
var ErrNoArchiveURL = errors.New("no provider accepted the release archive")

// StatusFunc receives human-readable stage and failure messages as the
// run progresses.
type StatusFunc func(message string)

// Workflow is a single release run. Construct with New, execute once
// with Run.
type Workflow struct {
	cfg            *config.Config
	version        string
	notes          string
	filePaths      []string
	assetProviders []provider.AssetProvider
	indexProvider  provider.IndexProvider
	status         StatusFunc
	profiler       bool
	log            logger.Logger
}

// New assembles a release run for the given version over the given files.
func New(
	cfg *config.Config,
	version, notes string,
	filePaths []string,
	assetProviders []provider.AssetProvider,
	indexProvider provider.IndexProvider,
	status StatusFunc,
	profiler bool,
	log logger.Logger,
) *Workflow {
	return &Workflow{
		cfg:            cfg,
		version:        version,
		notes:          notes,
		filePaths:      filePaths,
		assetProviders: assetProviders,
		indexProvider:  indexProvider,
		status:         status,
		profiler:       profiler,
		log:            log,
	}
}

func (w *Workflow) emit(message string) {
	w.log.Info(message)
	if w.status != nil {
		w.status(message)
	}
}

// Run executes the full pipeline. The temporary working directory is
// removed regardless of where the run fails.
func (w *Workflow) Run(ctx context.Context) error {
	w.emit(fmt.Sprintf("Starting release process for version %s...", w.version))

	tempDir, err := os.MkdirTemp("", "relcli-publish-")
	if err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}
	defer func() {
		w.emit("Cleaning up temporary files...")
		if err := os.RemoveAll(tempDir); err != nil {
			w.log.Warn("failed to remove working directory",
				"path", tempDir, "error", err.Error())
		}
	}()

	archivePath, fileNames, err := w.createArchive(tempDir)
	if err != nil {
		return err
	}

	archiveHash, err := hashfile.Sum(archivePath)
	if err != nil {
		return fmt.Errorf("hash archive: %w", err)
	}
	w.emit("Archive SHA-256: " + archiveHash)

	manifestPath, err := w.writeManifest(tempDir, archiveHash, fileNames)
	if err != nil {
		return err
	}

	downloadURLs, manifestURLs, err := w.uploadAll(ctx, archivePath, manifestPath)
	if err != nil {
		return err
	}

	w.emit("Committing manifest to index repository...")
	canonicalURL, err := w.indexProvider.CommitManifestFile(manifestPath, w.version)
	if err != nil {
		return fmt.Errorf("commit manifest to index store: %w", err)
	}
	w.emit("Manifest committed: " + canonicalURL)
	// The index store's copy is canonical; asset-provider copies stay as
	// mirrors.
	manifestURLs[w.indexProvider.Name()] = canonicalURL

	w.emit("Updating version index...")
	if err := w.updateIndex(downloadURLs, manifestURLs); err != nil {
		return fmt.Errorf("update version index: %w", err)
	}

	w.emit(fmt.Sprintf("Successfully completed release for version %s!", w.version))
	return nil
}

// createArchive packs the input files, in order, under their base names.
func (w *Workflow) createArchive(tempDir string) (string, []string, error) {
	archivePath := filepath.Join(tempDir,
		index.ArchiveFileName(w.cfg.Product.Name, w.version, w.profiler))
	w.emit("Creating archive at: " + archivePath)

	entries := make([]archive.Entry, 0, len(w.filePaths))
	fileNames := make([]string, 0, len(w.filePaths))
	for _, path := range w.filePaths {
		name := filepath.Base(path)
		entries = append(entries, archive.Entry{Path: path, Name: name})
		fileNames = append(fileNames, name)
	}

	if err := archive.Create(archivePath, entries, nil); err != nil {
		return "", nil, fmt.Errorf("create release archive: %w", err)
	}
	w.emit("Archive created successfully.")
	return archivePath, fileNames, nil
}

func (w *Workflow) writeManifest(tempDir, archiveHash string, fileNames []string) (string, error) {
	manifest := index.Manifest{
		Version:       w.version,
		ReleaseNotes:  w.notes,
		ArchiveSHA256: archiveHash,
		UploadDate:    time.Now().UTC().Format(time.RFC3339),
		Files:         fileNames,
		Profiler:      w.profiler,
	}
	manifestPath := filepath.Join(tempDir, index.ManifestFileName(w.version, w.profiler))
	w.emit("Creating manifest at: " + manifestPath)

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return manifestPath, nil
}

type uploadKind int

const (
	kindArchive uploadKind = iota
	kindManifest
)

// uploadResult is the tagged outcome of one provider×file upload task.
// The kind is fixed at submission time, never inferred from file names.
type uploadResult struct {
	provider string
	kind     uploadKind
	mirrors  bool
	url      string
	err      error
}

// uploadAll fans the archive and manifest out to every provider in
// parallel. Individual failures are logged and tolerated; only a total
// archive failure aborts the run.
func (w *Workflow) uploadAll(ctx context.Context, archivePath, manifestPath string) (map[string]string, map[string]string, error) {
	w.emit("Starting parallel asset uploads...")

	jobs := []struct {
		kind uploadKind
		path string
	}{
		{kindArchive, archivePath},
		{kindManifest, manifestPath},
	}

	results := make(chan uploadResult, len(w.assetProviders)*len(jobs))
	var wg sync.WaitGroup
	for _, p := range w.assetProviders {
		for _, job := range jobs {
			wg.Add(1)
			go func(p provider.AssetProvider, kind uploadKind, path string) {
				defer wg.Done()
				w.emit(fmt.Sprintf("Uploading %s to %s...", filepath.Base(path), p.Name()))
				url, err := p.Upload(ctx, path, w.version)
				results <- uploadResult{
					provider: p.Name(),
					kind:     kind,
					mirrors:  p.MirrorsManifest(),
					url:      url,
					err:      err,
				}
			}(p, job.kind, job.path)
		}
	}
	wg.Wait()
	close(results)

	downloadURLs := make(map[string]string)
	manifestURLs := make(map[string]string)
	for r := range results {
		if r.err != nil {
			w.log.Error("upload failed", "provider", r.provider, "error", r.err.Error())
			w.emit(fmt.Sprintf("ERROR: upload to %s failed: %v", r.provider, r.err))
			continue
		}
		switch r.kind {
		case kindArchive:
			downloadURLs[r.provider] = r.url
		case kindManifest:
			if r.mirrors {
				manifestURLs[r.provider] = r.url
			}
		}
		w.emit(fmt.Sprintf("Uploaded to %s: %s", r.provider, r.url))
	}

	if len(downloadURLs) == 0 {
		return nil, nil, ErrNoArchiveURL
	}
	w.emit("Parallel asset uploads completed.")
	return downloadURLs, manifestURLs, nil
}

// updateIndex prepends the new release, newest first, keeping at most
// one entry flagged latest. Profiler builds never claim the flag.
func (w *Workflow) updateIndex(downloadURLs, manifestURLs map[string]string) error {
	entries, err := w.indexProvider.GetIndexContent()
	if err != nil {
		return err
	}

	if !w.profiler {
		for i := range entries {
			entries[i].Latest = false
		}
	}

	entry := index.Version{
		Version:      w.version,
		ManifestURLs: manifestURLs,
		DownloadURLs: downloadURLs,
		Latest:       !w.profiler,
		Profiler:     w.profiler,
	}
	entries = append([]index.Version{entry}, entries...)

	return w.indexProvider.UpdateIndexContent(entries)
}
