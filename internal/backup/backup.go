// Package backup creates, restores and deletes versioned tar.zst
// snapshots of the install's binary directory.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"relcli/internal/archive"
	"relcli/internal/logger"
	"relcli/internal/progress"
)

// ErrNotFound marks a missing backup archive or metadata sidecar; it is
// meant to be shown to the user as "no such backup".
var ErrNotFound = errors.New("backup not found")

const (
	// InitialLabel is the sentinel for the first-run safety snapshot.
	InitialLabel = "initial"

	initialName     = "initial_files"
	metaSuffix      = ".meta.json"
	timestampFormat = "2006-01-02_15-04-05"
)

// metadata is the sidecar written next to every archive. The file count
// is recorded before archiving starts so a restore can report progress
// even against a partially written archive.
type metadata struct {
	TotalFiles int `json:"total_files"`
}

// Manager owns the backup root directory. Restores replace the entire
// binary directory; the design assumes one backup/restore operation in
// flight at a time.
type Manager struct {
	binDir     string
	backupRoot string
	log        logger.Logger
}

// NewManager creates the backup root if needed.
func NewManager(binDir, backupRoot string, log logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(backupRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory %q: %w", backupRoot, err)
	}
	return &Manager{binDir: binDir, backupRoot: backupRoot, log: log}, nil
}

// Create snapshots either the given binDir-relative files (missing ones
// are skipped) or, when files is nil, the full binary directory tree.
// The "initial" backup is created once and never overwritten; any other
// label gets a timestamp so names are unique. A failure mid-archive
// removes both the partial archive and its sidecar before returning.
func (m *Manager) Create(version string, files []string, onProgress progress.Func) error {
	name := backupName(version)
	archivePath := filepath.Join(m.backupRoot, name+archive.Ext)
	metaPath := filepath.Join(m.backupRoot, name+metaSuffix)

	if version == InitialLabel {
		if _, err := os.Stat(archivePath); err == nil {
			m.log.Info("initial backup already exists, skipping", "path", archivePath)
			return nil
		}
	}

	entries, err := m.collectEntries(files)
	if err != nil {
		return err
	}
	m.log.Info("creating backup", "name", name, "files", len(entries))

	meta, err := json.Marshal(metadata{TotalFiles: len(entries)})
	if err != nil {
		return fmt.Errorf("encode backup metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
		return fmt.Errorf("write backup metadata: %w", err)
	}

	if err := archive.Create(archivePath, entries, onProgress); err != nil {
		os.Remove(archivePath)
		os.Remove(metaPath)
		return fmt.Errorf("create backup archive: %w", err)
	}
	return nil
}

func (m *Manager) collectEntries(files []string) ([]archive.Entry, error) {
	if files != nil {
		entries := make([]archive.Entry, 0, len(files))
		for _, rel := range files {
			path := filepath.Join(m.binDir, rel)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			entries = append(entries, archive.Entry{Path: path, Name: rel})
		}
		return entries, nil
	}

	var entries []archive.Entry
	err := filepath.WalkDir(m.binDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(m.binDir, path)
		if err != nil {
			return err
		}
		entries = append(entries, archive.Entry{Path: path, Name: rel})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		// Nothing installed yet; an empty snapshot is valid.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", m.binDir, err)
	}
	return entries, nil
}

// List returns the backup archive names in the backup root. An
// inaccessible directory is logged and reads as no backups.
func (m *Manager) List() []string {
	dirEntries, err := os.ReadDir(m.backupRoot)
	if err != nil {
		m.log.Error("cannot access backup directory",
			"dir", m.backupRoot, "error", err.Error())
		return nil
	}
	var names []string
	for _, e := range dirEntries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), archive.Ext) {
			names = append(names, e.Name())
		}
	}
	return names
}

// Restore deletes the entire binary directory and re-populates it from
// the named backup. This is destructive and irreversible. Progress is
// computed against the sidecar's recorded file count; an empty backup
// immediately reports completion.
func (m *Manager) Restore(name string, onProgress progress.Func) error {
	base := strings.TrimSuffix(name, archive.Ext)
	archivePath := filepath.Join(m.backupRoot, base+archive.Ext)
	metaPath := filepath.Join(m.backupRoot, base+metaSuffix)

	if _, err := os.Stat(archivePath); err != nil {
		return fmt.Errorf("%w: archive %q", ErrNotFound, name)
	}
	metaData, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("%w: metadata for %q", ErrNotFound, name)
	}
	var meta metadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return fmt.Errorf("parse backup metadata for %q: %w", name, err)
	}

	m.log.Info("restoring backup", "name", name, "files", meta.TotalFiles)
	if err := os.RemoveAll(m.binDir); err != nil {
		return fmt.Errorf("remove current install: %w", err)
	}

	if meta.TotalFiles == 0 {
		progress.NewTracker(0, onProgress)
		return nil
	}

	if err := os.MkdirAll(m.binDir, 0o755); err != nil {
		return fmt.Errorf("recreate install directory: %w", err)
	}
	if err := archive.Extract(archivePath, m.binDir, meta.TotalFiles, onProgress); err != nil {
		return fmt.Errorf("restore backup %q: %w", name, err)
	}
	return nil
}

// Delete removes a backup archive and, if present, its sidecar. A
// missing sidecar is not an error; a missing archive is.
func (m *Manager) Delete(name string) error {
	base := strings.TrimSuffix(name, archive.Ext)
	archivePath := filepath.Join(m.backupRoot, base+archive.Ext)
	metaPath := filepath.Join(m.backupRoot, base+metaSuffix)

	if _, err := os.Stat(archivePath); err != nil {
		return fmt.Errorf("%w: archive %q", ErrNotFound, name)
	}
	if err := os.Remove(archivePath); err != nil {
		return fmt.Errorf("delete backup archive %q: %w", name, err)
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete backup metadata %q: %w", name, err)
	}
	return nil
}

func backupName(version string) string {
	if version == InitialLabel {
		return initialName
	}
	return fmt.Sprintf("v%s_%s", version, time.Now().Format(timestampFormat))
}
