package core

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vecolite/vecolite/internal/encoding"
	"github.com/vecolite/vecolite/pkg/embed"
	"github.com/vecolite/vecolite/pkg/index"

	_ "modernc.org/sqlite" // SQLite driver
)

// Catalog owns a set of named collections backed by one SQLite
// database. Every mutating operation commits before returning, so the
// on-disk state always reflects the last completed call.
type Catalog struct {
	db     *sql.DB
	config Config
	logger Logger

	mu          sync.RWMutex
	closed      atomic.Bool
	collections map[string]*Collection
	names       []string // creation order
	nextPos     int64
}

// Open opens or creates a catalog at config.Path and loads all
// collections and records into memory.
func Open(ctx context.Context, config Config) (*Catalog, error) {
	if config.Path == "" {
		return nil, wrapError("open", fmt.Errorf("database path cannot be empty"))
	}
	if config.Metric == "" {
		config.Metric = index.MetricL2
	}
	if _, err := index.ParseMetric(string(config.Metric)); err != nil {
		return nil, wrapError("open", err)
	}
	if config.Logger == nil {
		config.Logger = NopLogger()
	}

	// _journal_mode=WAL: better concurrency
	// _busy_timeout=5000: wait up to 5s for a lock instead of failing
	dsn := config.Path
	if config.Path != MemoryPath {
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", config.Path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrapError("open", fmt.Errorf("failed to open database: %w", err))
	}

	if config.Path == MemoryPath {
		// An in-memory database exists per connection; the pool must
		// not hand out a second one.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(2 * time.Hour)
	}

	c := &Catalog{
		db:          db,
		config:      config,
		logger:      config.Logger,
		collections: make(map[string]*Collection),
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, wrapError("open", fmt.Errorf("failed to enable foreign keys: %w", err))
	}
	if err := c.createSchema(ctx); err != nil {
		db.Close()
		return nil, wrapError("open", err)
	}
	if err := c.load(ctx); err != nil {
		db.Close()
		return nil, wrapError("open", err)
	}

	c.logger.Info("catalog opened", "path", config.Path, "collections", len(c.names))
	return c, nil
}

func (c *Catalog) createSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		dimensions INTEGER NOT NULL DEFAULT 0,
		metric TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		position INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS records (
		collection_id TEXT NOT NULL,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		vector BLOB NOT NULL,
		document TEXT,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection_id, id),
		FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_records_collection_position ON records(collection_id, position);
	`
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// load rebuilds the in-memory collections and their indexes from the
// database, scanning records in insertion order.
func (c *Catalog) load(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, dimensions, metric, provider, metadata, position
		FROM collections ORDER BY position
	`)
	if err != nil {
		return fmt.Errorf("failed to load collections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, name, metricName, provider string
			dims                           int
			metadataJSON                   sql.NullString
			position                       int64
		)
		if err := rows.Scan(&id, &name, &dims, &metricName, &provider, &metadataJSON, &position); err != nil {
			return fmt.Errorf("failed to scan collection: %w", err)
		}

		metric, err := index.ParseMetric(metricName)
		if err != nil {
			return fmt.Errorf("collection %q: %w", name, err)
		}
		metadata, err := DecodeMetadata(metadataJSON.String)
		if err != nil {
			return fmt.Errorf("collection %q: %w", name, err)
		}

		col := newCollection(c, id, name, metric, provider, metadata)
		// The recorded dimensionality outlives the records; a collection
		// emptied by deletes keeps rejecting other dimensions on reopen.
		col.idx.SetDim(dims)
		c.collections[name] = col
		c.names = append(c.names, name)
		if position >= c.nextPos {
			c.nextPos = position + 1
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate collections: %w", err)
	}

	for _, name := range c.names {
		if err := c.loadRecords(ctx, c.collections[name]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) loadRecords(ctx context.Context, col *Collection) error {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, position, vector, document, metadata
		FROM records WHERE collection_id = ? ORDER BY position
	`, col.id)
	if err != nil {
		return fmt.Errorf("collection %q: failed to load records: %w", col.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id           string
			position     int64
			vectorBytes  []byte
			document     sql.NullString
			metadataJSON sql.NullString
		)
		if err := rows.Scan(&id, &position, &vectorBytes, &document, &metadataJSON); err != nil {
			return fmt.Errorf("collection %q: failed to scan record: %w", col.name, err)
		}

		vector, err := encoding.DecodeVector(vectorBytes)
		if err != nil {
			return fmt.Errorf("collection %q: record %q: %w", col.name, id, err)
		}
		metadata, err := DecodeMetadata(metadataJSON.String)
		if err != nil {
			return fmt.Errorf("collection %q: record %q: %w", col.name, id, err)
		}

		if err := col.idx.Insert(id, vector); err != nil {
			return fmt.Errorf("collection %q: record %q: %w", col.name, id, err)
		}
		col.docs[id] = document.String
		col.metas[id] = metadata
		col.positions[id] = position
		if position >= col.nextPos {
			col.nextPos = position + 1
		}
	}
	return rows.Err()
}

// CreateCollection creates a new, empty collection. It fails with
// ErrAlreadyExists if the name is taken.
func (c *Catalog) CreateCollection(ctx context.Context, name string, opts *CollectionOptions) (*Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.createLocked(ctx, "create_collection", name, opts)
}

// GetOrCreateCollection returns the named collection, creating it if
// absent. Options only apply on creation, except that an embedder is
// attached (and its identity checked) either way.
func (c *Catalog) GetOrCreateCollection(ctx context.Context, name string, opts *CollectionOptions) (*Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, wrapError("get_or_create_collection", ErrStoreClosed)
	}
	if col, ok := c.collections[name]; ok {
		if opts != nil && opts.Embedder != nil {
			if err := col.Use(ctx, opts.Embedder); err != nil {
				return nil, wrapError("get_or_create_collection", err)
			}
		}
		return col, nil
	}
	return c.createLocked(ctx, "get_or_create_collection", name, opts)
}

func (c *Catalog) createLocked(ctx context.Context, op, name string, opts *CollectionOptions) (*Collection, error) {
	if c.closed.Load() {
		return nil, wrapError(op, ErrStoreClosed)
	}
	if name == "" {
		return nil, wrapError(op, fmt.Errorf("collection name cannot be empty"))
	}
	if _, ok := c.collections[name]; ok {
		return nil, wrapError(op, fmt.Errorf("collection %q: %w", name, ErrAlreadyExists))
	}

	var (
		metadata Metadata
		metric   = c.config.Metric
		provider string
		embedder embed.Embedder
	)
	if opts != nil {
		metadata = opts.Metadata.Clone()
		if opts.Metric != "" {
			if _, err := index.ParseMetric(string(opts.Metric)); err != nil {
				return nil, wrapError(op, err)
			}
			metric = opts.Metric
		}
		if opts.Embedder != nil {
			embedder = opts.Embedder
			provider = embedder.Name()
		}
	}

	id := uuid.New().String()
	position := c.nextPos

	metadataJSON, err := EncodeMetadata(metadata)
	if err != nil {
		return nil, wrapError(op, err)
	}

	err = c.execTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO collections (id, name, dimensions, metric, provider, metadata, position)
			VALUES (?, ?, 0, ?, ?, ?, ?)
		`, id, name, string(metric), provider, nullIfEmpty(metadataJSON), position)
		return err
	})
	if err != nil {
		return nil, wrapError(op, fmt.Errorf("failed to create collection %q: %w", name, err))
	}

	col := newCollection(c, id, name, metric, provider, metadata)
	col.embedder = embedder
	c.collections[name] = col
	c.names = append(c.names, name)
	c.nextPos++

	c.logger.Info("collection created", "name", name, "metric", metric)
	return col, nil
}

// GetCollection returns the named collection or ErrNotFound.
func (c *Catalog) GetCollection(name string) (*Collection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed.Load() {
		return nil, wrapError("get_collection", ErrStoreClosed)
	}
	col, ok := c.collections[name]
	if !ok {
		return nil, wrapError("get_collection", fmt.Errorf("collection %q: %w", name, ErrNotFound))
	}
	return col, nil
}

// DeleteCollection removes the named collection and all its records.
func (c *Catalog) DeleteCollection(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return wrapError("delete_collection", ErrStoreClosed)
	}
	col, ok := c.collections[name]
	if !ok {
		return wrapError("delete_collection", fmt.Errorf("collection %q: %w", name, ErrNotFound))
	}

	err := c.execTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE collection_id = ?", col.id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE id = ?", col.id)
		return err
	})
	if err != nil {
		return wrapError("delete_collection", fmt.Errorf("failed to delete collection %q: %w", name, err))
	}

	col.deleted.Store(true)
	delete(c.collections, name)
	for i, n := range c.names {
		if n == name {
			c.names = append(c.names[:i], c.names[i+1:]...)
			break
		}
	}

	c.logger.Info("collection deleted", "name", name)
	return nil
}

// ListCollections returns all collections in creation order.
func (c *Catalog) ListCollections() ([]*Collection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed.Load() {
		return nil, wrapError("list_collections", ErrStoreClosed)
	}

	out := make([]*Collection, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.collections[name])
	}
	return out, nil
}

// Close flushes and closes the database. It is idempotent; all
// subsequent operations fail with ErrStoreClosed.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	if err := c.db.Close(); err != nil {
		return wrapError("close", err)
	}
	c.logger.Info("catalog closed", "path", c.config.Path)
	return nil
}

// execTx runs fn inside a transaction and commits it. The catalog's
// durability contract lives here: a nil return means the change is on
// disk.
func (c *Catalog) execTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrPersistence, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", ErrPersistence, err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
