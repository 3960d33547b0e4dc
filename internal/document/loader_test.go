package document

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nyayalabs/nyaya/internal/log"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadFile_Text(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "evidence.txt", "Section 3.   In this Act\n\nthe following words are used.")

	l := NewLoader(log.NewNop())
	docs, err := l.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}

	doc := docs[0]
	if doc.Source != "evidence.txt" {
		t.Errorf("source = %q", doc.Source)
	}
	if doc.Type != "TXT" {
		t.Errorf("type = %q", doc.Type)
	}
	if doc.Page != 0 {
		t.Errorf("page = %d, want 0 for text files", doc.Page)
	}
	// Whitespace runs collapse to single spaces.
	want := "Section 3. In this Act the following words are used."
	if doc.Text != want {
		t.Errorf("text = %q, want %q", doc.Text, want)
	}
	if !filepath.IsAbs(doc.Path) {
		t.Errorf("path %q is not absolute", doc.Path)
	}
}

func TestLoadFile_Markdown(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.md", "# Evidence Act\n\nAdmissions are not conclusive proof.")

	l := NewLoader(log.NewNop())
	docs, err := l.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(docs) != 1 || docs[0].Type != "MD" {
		t.Fatalf("docs = %+v", docs)
	}
}

func TestLoadFile_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.txt", "   \n\n  ")

	l := NewLoader(log.NewNop())
	docs, err := l.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("got %d documents for empty file, want 0", len(docs))
	}
}

func TestLoadFile_UnsupportedType(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "image.png", "not text")

	l := NewLoader(log.NewNop())
	_, err := l.LoadFile(path)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("LoadFile = %v, want ErrUnsupportedType", err)
	}
}

func TestLoadFile_Latin1Fallback(t *testing.T) {
	dir := t.TempDir()
	// 0xE9 is é in latin-1 and invalid as a standalone UTF-8 byte.
	path := filepath.Join(dir, "accented.txt")
	if err := os.WriteFile(path, []byte{'c', 'a', 'f', 0xE9}, 0o600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(log.NewNop())
	docs, err := l.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(docs) != 1 || docs[0].Text != "café" {
		t.Errorf("docs = %+v, want café", docs)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "act.txt", "Evidence may be given of facts in issue.")
	writeFile(t, dir, "notes.md", "Relevancy of facts.")
	writeFile(t, dir, "ignore.bin", "binary noise")
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o750); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(log.NewNop())
	res, err := l.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	// Unsupported files and subdirectories are skipped, not errors.
	if len(res.Docs) != 2 {
		t.Fatalf("got %d documents, want 2: %+v", len(res.Docs), res.Docs)
	}
	if len(res.Skipped) != 1 || filepath.Base(res.Skipped[0]) != "ignore.bin" {
		t.Errorf("skipped = %v, want ignore.bin", res.Skipped)
	}
	if len(res.Failed) != 0 {
		t.Errorf("failed = %v, want none", res.Failed)
	}
}

func TestLoadDir_BadFileDoesNotAbort(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "act.txt", "Evidence may be given of facts in issue.")
	// Not a real PDF, so extraction fails for this file only.
	writeFile(t, dir, "broken.pdf", "plain text wearing a pdf extension")

	l := NewLoader(log.NewNop())
	res, err := l.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(res.Docs) != 1 || res.Docs[0].Source != "act.txt" {
		t.Fatalf("docs = %+v, want just act.txt", res.Docs)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("failed = %v, want one entry", res.Failed)
	}
	if filepath.Base(res.Failed[0].Path) != "broken.pdf" || res.Failed[0].Err == nil {
		t.Errorf("failed entry = %+v", res.Failed[0])
	}
}

func TestLoadDir_Missing(t *testing.T) {
	l := NewLoader(log.NewNop())
	if _, err := l.LoadDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestSupported(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"a.txt", true},
		{"b.MD", true},
		{"c.pdf", true},
		{"d.docx", false},
		{"e", false},
	}
	for _, tt := range tests {
		if got := Supported(tt.path); got != tt.want {
			t.Errorf("Supported(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
