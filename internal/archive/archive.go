// Package archive packs file sets into streamable tar.zst containers and
// extracts them again. Both directions are single-pass: the write path
// never seeks the output and the read path never assumes the input is
// seekable.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"relcli/internal/progress"
)

// Ext is the double extension of the container format.
const Ext = ".tar.zst"

// ErrInsecurePath marks an archive entry whose resolved destination would
// escape the extraction root. Extraction aborts immediately on it.
var ErrInsecurePath = errors.New("archive entry escapes destination root")

// Entry pairs an on-disk file with its archive-relative name. Entries are
// written in the order given.
type Entry struct {
	Path string
	Name string
}

// Create writes the given entries into a zstd-compressed tar at dest.
// Compression is tuned for ratio over speed; archives are built rarely
// and downloaded often. Progress is reported per entry through onProgress.
func Create(dest string, entries []Entry, onProgress progress.Func) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", dest, err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(enc)

	tracker := progress.NewTracker(int64(len(entries)), onProgress)
	for i, e := range entries {
		if err := addFile(tw, e); err != nil {
			enc.Close()
			return err
		}
		tracker.Advance(int64(i + 1))
	}

	if err := tw.Close(); err != nil {
		enc.Close()
		return fmt.Errorf("finalize tar stream: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize zstd stream: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close archive %s: %w", dest, err)
	}
	tracker.Finish()
	return nil
}

func addFile(tw *tar.Writer, e Entry) error {
	f, err := os.Open(e.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", e.Path, err)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("build tar header for %s: %w", e.Path, err)
	}
	hdr.Name = filepath.ToSlash(e.Name)

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header for %s: %w", e.Name, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("write tar entry %s: %w", e.Name, err)
	}
	return nil
}

// Extract streams the archive at src into destRoot, creating directories
// as needed. The tar stream is read forward-only. Every entry's resolved
// path is checked against destRoot; a traversal attempt aborts with
// ErrInsecurePath, leaving any files already extracted in place.
// totalEntries drives progress reporting; when it is zero a single 1.0
// is emitted and extraction is skipped.
func Extract(src, destRoot string, totalEntries int, onProgress progress.Func) error {
	tracker := progress.NewTracker(int64(totalEntries), onProgress)
	if totalEntries == 0 {
		return nil
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", src, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	root := filepath.Clean(destRoot)
	tr := tar.NewReader(dec)
	done := int64(0)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		target, err := securePath(root, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, hdr.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		default:
			// Symlinks and special files are not part of release
			// archives; skip anything unexpected.
		}
		done++
		tracker.Advance(done)
	}
	tracker.Finish()
	return nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent directory for %s: %w", target, err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	return nil
}

// securePath resolves an entry name under root and rejects anything that
// cleans to a location outside it.
func securePath(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrInsecurePath, name)
	}
	return target, nil
}
