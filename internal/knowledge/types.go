package knowledge

import "time"

// Metadata keys attached to every stored chunk.
const (
	MetaSource = "source" // file name
	MetaPath   = "path"   // absolute path
	MetaType   = "type"   // TXT, MD, PDF
	MetaPage   = "page"   // 1-based PDF page, absent otherwise
	MetaChunk  = "chunk"  // 0-based chunk index within the source
)

// Document is a stored chunk: its text, metadata and identity. The ID is
// a content hash (see ChunkID) so identical chunks deduplicate.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Result is a search hit with its cosine similarity to the query.
type Result struct {
	Document   Document
	Similarity float64 // 1 = identical, 0 = orthogonal
}

// SourceCount summarizes one indexed source file.
type SourceCount struct {
	Source string
	Chunks int
}

// SearchOption configures Search via functional options.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK    int
	filter  map[string]string
	timeout time.Duration
}

// WithTopK sets the maximum number of results. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithFilter restricts results to documents whose metadata contains the
// given key/value. Repeated calls AND together.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// WithTimeout overrides the per-search timeout. Default is 10 seconds.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    5,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
