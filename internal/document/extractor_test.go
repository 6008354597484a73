package document

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rag-service/internal/apperr"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractPlainText(t *testing.T) {
	e := NewExtractor()
	path := writeTempFile(t, "note.txt", "hello world\nsecond line")

	pages, err := e.Extract(path, "text/plain")
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if pages[0].Number != 1 {
		t.Errorf("expected page 1, got %d", pages[0].Number)
	}
	if pages[0].Text != "hello world\nsecond line" {
		t.Errorf("unexpected text: %q", pages[0].Text)
	}
}

func TestExtractTextInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	path := writeTempFile(t, "weird.txt", "ok\xff\xfebytes")

	pages, err := e.Extract(path, "text/plain")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(pages[0].Text, "ok") || !strings.Contains(pages[0].Text, "bytes") {
		t.Errorf("valid bytes should survive lossy decode: %q", pages[0].Text)
	}
	if strings.Contains(pages[0].Text, "\xff") {
		t.Error("invalid bytes should be replaced")
	}
}

func TestExtractCSV(t *testing.T) {
	e := NewExtractor()
	path := writeTempFile(t, "data.csv", "name,age\nalice,30\nbob,25\n")

	pages, err := e.Extract(path, "text/csv")
	if err != nil {
		t.Fatal(err)
	}
	want := "name,age\nalice,30\nbob,25"
	if pages[0].Text != want {
		t.Errorf("got %q, want %q", pages[0].Text, want)
	}
}

func TestExtractDispatchByExtension(t *testing.T) {
	e := NewExtractor()
	path := writeTempFile(t, "readme.md", "# title")

	// Unknown content type falls back to the extension.
	pages, err := e.Extract(path, "application/octet-stream")
	if err != nil {
		t.Fatal(err)
	}
	if pages[0].Text != "# title" {
		t.Errorf("unexpected text: %q", pages[0].Text)
	}
}

func TestExtractUnsupportedType(t *testing.T) {
	e := NewExtractor()
	path := writeTempFile(t, "image.png", "not really a png")

	_, err := e.Extract(path, "image/png")
	if err == nil {
		t.Fatal("expected an error for unsupported type")
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != "bad_request" {
		t.Errorf("expected bad_request, got %v", err)
	}
}

func TestRenderPages(t *testing.T) {
	got := Render([]Page{
		{Number: 1, Text: "first"},
		{Number: 2, Text: "second"},
	})
	want := "[Page 1]\nfirst\n\n[Page 2]\nsecond"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}
