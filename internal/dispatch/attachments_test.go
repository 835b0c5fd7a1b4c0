package dispatch

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestProcessAttachments_EncodesReadableFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "report.pdf", []byte("pdf-bytes"))

	out := ProcessAttachments([]string{path}, 1024)

	if len(out) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(out))
	}
	if out[0].Name != "report.pdf" {
		t.Errorf("expected base name, got %q", out[0].Name)
	}
	if out[0].Content != base64.StdEncoding.EncodeToString([]byte("pdf-bytes")) {
		t.Errorf("unexpected encoded content: %q", out[0].Content)
	}
	if out[0].Size != int64(len("pdf-bytes")) {
		t.Errorf("unexpected size: %d", out[0].Size)
	}
}

func TestProcessAttachments_SkipsMissingFile(t *testing.T) {
	dir := t.TempDir()
	ok := writeTempFile(t, dir, "ok.txt", []byte("fine"))
	missing := filepath.Join(dir, "does-not-exist.txt")

	out := ProcessAttachments([]string{missing, ok}, 1024)

	if len(out) != 1 {
		t.Fatalf("expected the missing file to be skipped, got %d attachments", len(out))
	}
	if out[0].Name != "ok.txt" {
		t.Errorf("unexpected attachment kept: %q", out[0].Name)
	}
}

func TestProcessAttachments_SkipsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	big := writeTempFile(t, dir, "big.bin", make([]byte, 100))
	small := writeTempFile(t, dir, "small.bin", make([]byte, 10))

	out := ProcessAttachments([]string{big, small}, 50)

	if len(out) != 1 {
		t.Fatalf("expected only the small file, got %d attachments", len(out))
	}
	if out[0].Name != "small.bin" {
		t.Errorf("unexpected attachment kept: %q", out[0].Name)
	}
}

func TestProcessAttachments_EmptyInput(t *testing.T) {
	if out := ProcessAttachments(nil, 1024); len(out) != 0 {
		t.Errorf("expected no attachments for empty input, got %d", len(out))
	}
}
