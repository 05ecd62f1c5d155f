package core

import (
	"github.com/vecolite/vecolite/pkg/embed"
	"github.com/vecolite/vecolite/pkg/index"
)

// Record is one stored entry of a collection.
type Record struct {
	ID        string    `json:"id"`
	Document  string    `json:"document,omitempty"`
	Embedding []float32 `json:"embedding"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

// Batch carries parallel slices for Add and Upsert. IDs is required;
// Documents, Embeddings and Metadatas are each either nil or the same
// length as IDs. A nil slice means the field is omitted: Add derives
// embeddings from documents, Upsert retains the prior value for
// existing ids.
type Batch struct {
	IDs        []string
	Documents  []string
	Embeddings [][]float32
	Metadatas  []Metadata
}

// QueryResult holds per-query parallel result slices, ordered ascending
// by distance. The outer index matches the query texts or vectors.
type QueryResult struct {
	IDs       [][]string
	Documents [][]string
	Metadatas [][]Metadata
	Distances [][]float64
}

// CollectionOptions configures collection creation.
type CollectionOptions struct {
	// Metadata is the initial collection metadata.
	Metadata Metadata
	// Metric selects the distance metric, catalog default if empty.
	Metric index.Metric
	// Embedder binds an embedding provider to the collection. The
	// provider identity is recorded and enforced for the collection's
	// lifetime.
	Embedder embed.Embedder
}

// ModifyOptions configures Collection.Modify. An empty Name keeps the
// current name; a nil Metadata keeps the current metadata, a non-nil
// one replaces it entirely.
type ModifyOptions struct {
	Name     string
	Metadata Metadata
}

// Config configures a Catalog.
type Config struct {
	// Path is the SQLite database file, or ":memory:" for a catalog
	// that does not outlive the process.
	Path string
	// Metric is the default distance metric for new collections.
	Metric index.Metric
	// Logger receives operational logs. Nil means no logging.
	Logger Logger
}

// DefaultConfig returns a config persisting to path with squared
// Euclidean distance as the default metric.
func DefaultConfig(path string) Config {
	return Config{
		Path:   path,
		Metric: index.MetricL2,
		Logger: NopLogger(),
	}
}

// MemoryPath opens the catalog on an in-memory database.
const MemoryPath = ":memory:"
