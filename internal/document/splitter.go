package document

import "strings"

// defaultSeparators orders the split boundaries from coarse to fine:
// paragraph break, line break, word break, then a hard rune cut.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts document text into chunks of at most chunkSize runes
// with chunkOverlap runes of context carried between adjacent chunks.
// It prefers splitting on coarse boundaries and only falls back to finer
// ones for oversized pieces.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewSplitter creates a Splitter. Sizes are in runes; overlap must be
// smaller than size (validated at config load).
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// Split cuts text into chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

// SplitDocuments splits each document and attaches per-source chunk
// indexes. Chunk indexes run sequentially across all pages of the same
// source file.
func (s *Splitter) SplitDocuments(docs []Document) []Chunk {
	var chunks []Chunk
	perSource := make(map[string]int)

	for _, doc := range docs {
		for _, text := range s.Split(doc.Text) {
			idx := perSource[doc.Source]
			perSource[doc.Source] = idx + 1
			chunks = append(chunks, Chunk{
				Source: doc.Source,
				Path:   doc.Path,
				Type:   doc.Type,
				Page:   doc.Page,
				Index:  idx,
				Text:   text,
			})
		}
	}
	return chunks
}

func (s *Splitter) split(text string, separators []string) []string {
	// Choose the coarsest separator present in the text; the final ""
	// entry always matches and forces a hard rune cut.
	sep := separators[len(separators)-1]
	var finer []string
	for i, cand := range separators {
		if cand == "" || strings.Contains(text, cand) {
			sep = cand
			finer = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = cutRunes(text, s.chunkSize, s.chunkOverlap)
	} else {
		pieces = strings.Split(text, sep)
	}

	var chunks []string
	var pending []string
	for _, piece := range pieces {
		if runeLen(piece) <= s.chunkSize {
			pending = append(pending, piece)
			continue
		}
		// Flush what fits, then recurse into the oversized piece with
		// the finer separators.
		chunks = append(chunks, s.merge(pending, sep)...)
		pending = nil
		if len(finer) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, finer)...)
		}
	}
	return append(chunks, s.merge(pending, sep)...)
}

// merge joins small pieces back together into chunks no larger than
// chunkSize, carrying up to chunkOverlap runes of trailing pieces into
// the next chunk.
func (s *Splitter) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)

	var chunks []string
	var window []string
	windowLen := 0

	emit := func() {
		joined := strings.TrimSpace(strings.Join(window, sep))
		if joined != "" {
			chunks = append(chunks, joined)
		}
	}

	for _, piece := range pieces {
		pieceLen := runeLen(piece)
		if pieceLen == 0 {
			continue
		}

		if windowLen > 0 && windowLen+sepLen+pieceLen > s.chunkSize {
			emit()
			// Shrink the window to the overlap budget before starting
			// the next chunk.
			for windowLen > s.chunkOverlap && len(window) > 0 {
				dropped := runeLen(window[0])
				windowLen -= dropped
				if len(window) > 1 {
					windowLen -= sepLen
				}
				window = window[1:]
			}
		}

		if windowLen > 0 {
			windowLen += sepLen
		}
		window = append(window, piece)
		windowLen += pieceLen
	}

	if len(window) > 0 {
		emit()
	}
	return chunks
}

// cutRunes hard-cuts text into size-rune pieces, stepping by size-overlap
// so adjacent pieces still share overlap runes of context.
func cutRunes(text string, size, overlap int) []string {
	runes := []rune(text)
	stride := size - overlap
	if stride <= 0 {
		stride = size
	}

	var out []string
	for start := 0; start < len(runes); start += stride {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
