package provider

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileHost uploads raw file bytes to an anonymous-capable HTTP file host
// via a single multipart POST; the response body is the durable URL.
// A missing user hash degrades the provider to anonymous mode rather
// than failing.
type FileHost struct {
	apiURL   string
	userHash string
	client   *http.Client
}

// NewFileHost builds the provider. userHash may be empty for anonymous
// uploads. uploadTimeout bounds the whole request; archive uploads can
// be large, so a non-positive value falls back to ten minutes.
func NewFileHost(apiURL, userHash string, uploadTimeout time.Duration) *FileHost {
	if uploadTimeout <= 0 {
		uploadTimeout = 10 * time.Minute
	}
	return &FileHost{
		apiURL:   apiURL,
		userHash: userHash,
		client:   &http.Client{Timeout: uploadTimeout},
	}
}

var _ AssetProvider = (*FileHost)(nil)

// Name identifies the provider in logs and URL maps.
func (p *FileHost) Name() string {
	if p.userHash == "" {
		return "filehost (anonymous)"
	}
	return "filehost"
}

// MirrorsManifest is true: the file host is a plain mirror with no
// rate-limited API in front of downloads.
func (p *FileHost) MirrorsManifest() bool { return true }

// Upload streams the file as a multipart form without buffering it in
// memory and returns the URL string the host responds with.
func (p *FileHost) Upload(ctx context.Context, filePath, releaseVersion string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open upload file: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer f.Close()
		err := func() error {
			if err := mw.WriteField("reqtype", "fileupload"); err != nil {
				return err
			}
			if p.userHash != "" {
				if err := mw.WriteField("userhash", p.userHash); err != nil {
					return err
				}
			}
			part, err := mw.CreateFormFile("fileToUpload", filepath.Base(filePath))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, f); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, pr)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload to %s: %w", p.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload to %s: status %d: %s",
			p.Name(), resp.StatusCode, strings.TrimSpace(string(body)))
	}

	url := strings.TrimSpace(string(body))
	if url == "" {
		return "", fmt.Errorf("upload to %s: host returned an empty URL", p.Name())
	}
	return url, nil
}
