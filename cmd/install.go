package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"relcli/internal/backup"
	"relcli/internal/index"
	"relcli/internal/netmgr"
)

var installVersion string

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Download, verify and install a release into the install directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m := netmgr.New(&cfg, log)

		entries := m.FetchIndex(ctx)
		if len(entries) == 0 {
			return errors.New("no releases available")
		}

		entry := m.Latest(entries)
		if installVersion != "" {
			entry = nil
			for i := range entries {
				if entries[i].Version == installVersion {
					entry = &entries[i]
					break
				}
			}
		}
		if entry == nil {
			return fmt.Errorf("version %q not found in the index", installVersion)
		}

		manifest, err := m.FetchManifest(ctx, entry, printStatus)
		if err != nil {
			return err
		}

		printStatus(fmt.Sprintf("Downloading %s v%s...", cfg.Product.Name, entry.Version))
		archivePath, ok := m.DownloadWithFallback(ctx, entry.DownloadURLs, printProgress, printStatus)
		if !ok {
			return errors.New("download failed on every mirror")
		}
		defer os.Remove(archivePath)

		if !m.VerifySHA256(archivePath, manifest.ArchiveSHA256) {
			return errors.New("archive hash mismatch, refusing to install")
		}

		binDir := cfg.BinDir()
		bm, err := backup.NewManager(binDir, cfg.Backup.Dir, log)
		if err != nil {
			return err
		}
		// First-run safety snapshot, then a pre-update snapshot of the
		// files this release is about to replace.
		if err := bm.Create(backup.InitialLabel, nil, nil); err != nil {
			return fmt.Errorf("create initial backup: %w", err)
		}
		if current, err := index.ReadMarker(binDir); err == nil {
			printStatus(fmt.Sprintf("Backing up current install (v%s)...", current.Version))
			if err := bm.Create(current.Version, manifest.Files, nil); err != nil {
				return fmt.Errorf("create pre-update backup: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("unreadable install marker, skipping pre-update backup",
				"error", err.Error())
		}

		printStatus("Extracting...")
		m.Extract(archivePath, binDir, manifest, printProgress)

		marker := index.Marker{
			Version:     entry.Version,
			ManifestURL: entry.ManifestURLs["git-index"],
		}
		if marker.ManifestURL == "" {
			for _, url := range entry.ManifestURLs {
				marker.ManifestURL = url
				break
			}
		}
		if err := marker.Write(binDir); err != nil {
			return err
		}

		printStatus(fmt.Sprintf("Installed %s v%s.", cfg.Product.Name, entry.Version))
		return nil
	},
}

func init() {
	installCmd.Flags().
		StringVar(&installVersion, "version", "", "install a specific version instead of the latest")
}
