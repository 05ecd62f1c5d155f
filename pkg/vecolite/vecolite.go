// Package vecolite provides an embeddable vector-collection store for
// Go projects: named collections of documents with similarity search,
// backed by a single SQLite file using modernc.org/sqlite (no CGO).
//
// # Quick Start
//
//	config := vecolite.DefaultConfig("vectors.db")
//	db, _ := vecolite.Open(context.Background(), config,
//		vecolite.WithEmbedder(embed.NewHashEmbedder(128)))
//	defer db.Close()
//
//	col, _ := db.Catalog().GetOrCreateCollection(ctx, "notes", nil)
//	db.AddText(ctx, "notes", "Go is awesome", nil)
//	results, _ := col.Query(ctx, []string{"great languages"}, 5)
package vecolite

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vecolite/vecolite/pkg/core"
	"github.com/vecolite/vecolite/pkg/embed"
	"github.com/vecolite/vecolite/pkg/index"
)

// Config configures a database instance.
type Config struct {
	// Path is the database file, or core.MemoryPath for an ephemeral
	// store.
	Path string
	// Metric is the default distance metric for new collections.
	Metric index.Metric
	// Logger receives operational logs; nil disables logging.
	Logger core.Logger
}

// DefaultConfig returns the default configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:   path,
		Metric: index.MetricL2,
	}
}

// DB is a handle to an open catalog plus an optional default embedder
// used for text convenience operations.
type DB struct {
	catalog  *core.Catalog
	embedder embed.Embedder
}

// Option configures a DB.
type Option func(*DB)

// WithEmbedder sets the default embedding provider. Collections opened
// through text helpers are bound to it.
func WithEmbedder(e embed.Embedder) Option {
	return func(db *DB) {
		db.embedder = e
	}
}

// Open opens or creates a vector database at config.Path.
func Open(ctx context.Context, config Config, opts ...Option) (*DB, error) {
	catalog, err := core.Open(ctx, core.Config{
		Path:   config.Path,
		Metric: config.Metric,
		Logger: config.Logger,
	})
	if err != nil {
		return nil, err
	}

	db := &DB{catalog: catalog}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Catalog exposes the underlying collection catalog.
func (db *DB) Catalog() *core.Catalog {
	return db.catalog
}

// Close closes the database.
func (db *DB) Close() error {
	return db.catalog.Close()
}

// AddText embeds text and stores it in the named collection under a
// generated id, creating the collection if needed. Requires an
// embedder.
func (db *DB) AddText(ctx context.Context, collection, text string, metadata core.Metadata) (string, error) {
	if db.embedder == nil {
		return "", embed.ErrNotConfigured
	}
	if text == "" {
		return "", fmt.Errorf("empty text provided")
	}

	col, err := db.catalog.GetOrCreateCollection(ctx, collection, &core.CollectionOptions{Embedder: db.embedder})
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	err = col.Add(ctx, core.Batch{
		IDs:       []string{id},
		Documents: []string{text},
		Metadatas: metadataSliceOrNil(metadata),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// SearchText embeds the query and returns the topK nearest records of
// the named collection. Requires an embedder.
func (db *DB) SearchText(ctx context.Context, collection, query string, topK int) (*core.QueryResult, error) {
	if db.embedder == nil {
		return nil, embed.ErrNotConfigured
	}
	if query == "" {
		return nil, fmt.Errorf("empty query provided")
	}

	col, err := db.catalog.GetCollection(collection)
	if err != nil {
		return nil, err
	}
	if err := col.Use(ctx, db.embedder); err != nil {
		return nil, err
	}
	return col.Query(ctx, []string{query}, topK)
}

func metadataSliceOrNil(metadata core.Metadata) []core.Metadata {
	if metadata == nil {
		return nil
	}
	return []core.Metadata{metadata}
}
