package domain

import "context"

// UnknownSource is the source label assigned to chunks ingested without one.
const UnknownSource = "unknown"

// Document represents a single file loaded into a session.
type Document struct {
	Source  string
	Path    string
	Content string
}

// Chunk is a bounded segment of a document's text, the unit of indexing and retrieval.
// Chunks are never mutated after ingestion.
type Chunk struct {
	Content    string
	Source     string
	ChunkIndex int
	// Extra carries optional metadata the chunker wants to preserve (page, offsets).
	Extra map[string]string
}

// SearchResult is a chunk with the score a ranking strategy assigned to it.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Extractor turns a file on disk into plain text.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Preparer is implemented by embedders that must see the corpus before embedding.
type Preparer interface {
	Prepare(corpus []string) error
}

// Generator produces text for a prompt. Calls may block, fail or time out.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
