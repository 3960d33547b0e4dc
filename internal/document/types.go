// Package document loads legal source files and splits them into
// overlapping chunks ready for embedding.
package document

// Document is the extracted text of one source unit: a whole text file,
// or a single page of a PDF.
type Document struct {
	Source string // file name, e.g. "iea_1872.pdf"
	Path   string // absolute path
	Type   string // "TXT", "MD" or "PDF"
	Page   int    // 1-based page number for PDFs, 0 otherwise
	Text   string
}

// Chunk is a slice of a Document sized for embedding.
type Chunk struct {
	Source string
	Path   string
	Type   string
	Page   int
	Index  int // 0-based chunk index within the source file
	Text   string
}
