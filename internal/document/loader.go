package document

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedType indicates a file extension the loader cannot handle.
var ErrUnsupportedType = errors.New("unsupported file type")

// supportedExtensions maps extensions to the document type stored in
// chunk metadata.
var supportedExtensions = map[string]string{
	".txt": "TXT",
	".md":  "MD",
	".pdf": "PDF",
}

// Loader reads source files from disk.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a Loader. A nil logger falls back to slog.Default().
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Supported reports whether the loader handles the file's extension.
func Supported(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// LoadFile extracts the text of a single file. PDFs yield one Document
// per page so page provenance survives into citations; text files yield
// a single Document.
func (l *Loader) LoadFile(path string) ([]Document, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	docType, ok := supportedExtensions[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}

	var docs []Document
	switch docType {
	case "PDF":
		docs, err = l.loadPDF(absPath)
	default:
		docs, err = l.loadText(absPath, docType)
	}
	if err != nil {
		return nil, err
	}

	l.logger.Debug("loaded file", "path", absPath, "documents", len(docs))
	return docs, nil
}

// FileError records a file that could not be loaded.
type FileError struct {
	Path string
	Err  error
}

// DirResult carries the outcome of loading a directory: the documents
// that loaded plus the files that were skipped or failed along the way.
type DirResult struct {
	Docs    []Document
	Skipped []string // unsupported extensions
	Failed  []FileError
}

// LoadDir loads every supported file directly inside dir. Unsupported
// and unreadable files are recorded in the result instead of aborting
// the walk; a missing directory is an error.
func (l *Loader) LoadDir(dir string) (*DirResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading documents directory: %w", err)
	}

	res := &DirResult{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !Supported(path) {
			l.logger.Debug("skipping unsupported file", "path", path)
			res.Skipped = append(res.Skipped, path)
			continue
		}
		fileDocs, err := l.LoadFile(path)
		if err != nil {
			l.logger.Warn("failed to load file", "path", path, "error", err)
			res.Failed = append(res.Failed, FileError{Path: path, Err: err})
			continue
		}
		res.Docs = append(res.Docs, fileDocs...)
	}

	l.logger.Info("loaded documents",
		"dir", dir,
		"documents", len(res.Docs),
		"skipped", len(res.Skipped),
		"failed", len(res.Failed))
	return res, nil
}

func (l *Loader) loadText(absPath, docType string) ([]Document, error) {
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	text := string(raw)
	if !utf8.ValidString(text) {
		// Statute scans occasionally arrive in latin-1; every byte maps
		// to the code point of the same value.
		text = decodeLatin1(raw)
	}

	text = normalizeWhitespace(text)
	if text == "" {
		return nil, nil
	}

	return []Document{{
		Source: filepath.Base(absPath),
		Path:   absPath,
		Type:   docType,
		Text:   text,
	}}, nil
}

func (l *Loader) loadPDF(absPath string) ([]Document, error) {
	f, reader, err := pdf.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var docs []Document
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			l.logger.Warn("failed to extract pdf page", "path", absPath, "page", pageNum, "error", err)
			continue
		}
		text = normalizeWhitespace(text)
		if text == "" {
			continue
		}
		docs = append(docs, Document{
			Source: filepath.Base(absPath),
			Path:   absPath,
			Type:   "PDF",
			Page:   pageNum,
			Text:   text,
		})
	}
	return docs, nil
}

// normalizeWhitespace collapses all runs of whitespace into single
// spaces, mirroring the minimal cleaning the corpus needs.
func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func decodeLatin1(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		b.WriteRune(rune(c))
	}
	return b.String()
}
