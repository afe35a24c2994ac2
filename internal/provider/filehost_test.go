package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func uploadFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asset.tar.zst")
	if err := os.WriteFile(path, []byte("archive bytes"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestFileHost_Upload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if got := r.FormValue("reqtype"); got != "fileupload" {
			t.Errorf("reqtype = %q, want fileupload", got)
		}
		if got := r.FormValue("userhash"); got != "secret-hash" {
			t.Errorf("userhash = %q, want secret-hash", got)
		}
		file, header, err := r.FormFile("fileToUpload")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "asset.tar.zst" {
			t.Errorf("filename = %q, want asset.tar.zst", header.Filename)
		}
		w.Write([]byte("https://files.example.com/abc123.tar.zst\n"))
	}))
	defer srv.Close()

	p := NewFileHost(srv.URL, "secret-hash", time.Minute)
	url, err := p.Upload(context.Background(), uploadFixture(t), "1.0.0")
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if url != "https://files.example.com/abc123.tar.zst" {
		t.Errorf("url = %q", url)
	}
}

func TestFileHost_UploadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewFileHost(srv.URL, "", 0)
	if _, err := p.Upload(context.Background(), uploadFixture(t), "1.0.0"); err == nil {
		t.Fatal("Upload did not surface the server error")
	}
}

func TestFileHost_AnonymousName(t *testing.T) {
	if got := NewFileHost("https://x", "", 0).Name(); got != "filehost (anonymous)" {
		t.Errorf("anonymous name = %q", got)
	}
	if got := NewFileHost("https://x", "h", 0).Name(); got != "filehost" {
		t.Errorf("authenticated name = %q", got)
	}
}

func TestFileHost_UploadTimeout(t *testing.T) {
	if got := NewFileHost("https://x", "", 0).client.Timeout; got != 10*time.Minute {
		t.Errorf("default upload timeout = %v, want 10m", got)
	}
	if got := NewFileHost("https://x", "", time.Minute).client.Timeout; got != time.Minute {
		t.Errorf("configured upload timeout = %v, want 1m", got)
	}
}
