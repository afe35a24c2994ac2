package hashfile

import (
	"os"
	"path/filepath"
	"testing"
)

// SHA-256 of the ASCII string "abc".
const abcSHA256 = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestSum_KnownVector(t *testing.T) {
	path := writeTemp(t, "abc")
	sum, err := Sum(path)
	if err != nil {
		t.Fatalf("Sum returned error: %v", err)
	}
	if sum != abcSHA256 {
		t.Errorf("Sum = %s, want %s", sum, abcSHA256)
	}
}

func TestSum_Deterministic(t *testing.T) {
	path := writeTemp(t, "release archive bytes")
	first, err := Sum(path)
	if err != nil {
		t.Fatalf("first Sum returned error: %v", err)
	}
	second, err := Sum(path)
	if err != nil {
		t.Fatalf("second Sum returned error: %v", err)
	}
	if first != second {
		t.Errorf("digests differ: %s vs %s", first, second)
	}
}

func TestSum_MissingFile(t *testing.T) {
	if _, err := Sum(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("Sum on missing file did not return an error")
	}
}

func TestVerify(t *testing.T) {
	path := writeTemp(t, "abc")
	if !Verify(path, abcSHA256) {
		t.Error("Verify rejected a matching digest")
	}
	if Verify(path, "deadbeef") {
		t.Error("Verify accepted a mismatched digest")
	}
	if Verify(filepath.Join(t.TempDir(), "nope"), abcSHA256) {
		t.Error("Verify did not fail closed for a missing file")
	}
}
