package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vecolite/vecolite/internal/encoding"
	"github.com/vecolite/vecolite/pkg/embed"
	"github.com/vecolite/vecolite/pkg/index"
)

// Collection is a named set of records sharing one vector
// dimensionality and one embedding provider. All mutations are atomic:
// they either commit fully to the backing database and memory, or
// leave both untouched.
type Collection struct {
	catalog *Catalog

	mu        sync.RWMutex
	id        string
	name      string
	metadata  Metadata
	metric    index.Metric
	provider  string
	embedder  embed.Embedder
	idx       *index.FlatIndex
	docs      map[string]string
	metas     map[string]Metadata
	positions map[string]int64
	nextPos   int64
	deleted   atomic.Bool
}

func newCollection(catalog *Catalog, id, name string, metric index.Metric, provider string, metadata Metadata) *Collection {
	return &Collection{
		catalog:   catalog,
		id:        id,
		name:      name,
		metadata:  metadata,
		metric:    metric,
		provider:  provider,
		idx:       index.NewFlatIndex(metric),
		docs:      make(map[string]string),
		metas:     make(map[string]Metadata),
		positions: make(map[string]int64),
	}
}

// ID returns the collection's immutable identifier.
func (c *Collection) ID() string {
	return c.id
}

// Name returns the collection's current name.
func (c *Collection) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Metadata returns a copy of the collection metadata.
func (c *Collection) Metadata() Metadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata.Clone()
}

// Metric returns the collection's distance metric.
func (c *Collection) Metric() index.Metric {
	return c.metric
}

// Dim returns the fixed vector dimensionality, 0 before the first
// insert.
func (c *Collection) Dim() int {
	return c.idx.Dim()
}

// Provider returns the recorded embedding-provider identity, "" if the
// collection never embedded anything.
func (c *Collection) Provider() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.provider
}

// Count returns the number of records.
func (c *Collection) Count() int {
	return c.idx.Len()
}

// Use attaches an embedding provider. The first attached provider's
// identity is recorded durably; attaching a provider with a different
// identity afterwards fails with ErrProviderMismatch.
func (c *Collection) Use(ctx context.Context, e embed.Embedder) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(); err != nil {
		return wrapError("use", err)
	}

	if c.provider != "" && c.provider != e.Name() {
		return wrapError("use", fmt.Errorf("collection %q is bound to provider %q, got %q: %w",
			c.name, c.provider, e.Name(), ErrProviderMismatch))
	}

	if c.provider == "" {
		err := c.catalog.execTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "UPDATE collections SET provider = ? WHERE id = ?", e.Name(), c.id)
			return err
		})
		if err != nil {
			return wrapError("use", err)
		}
		c.provider = e.Name()
	}
	c.embedder = e
	return nil
}

// Add inserts new records. Every id needs a document or a precomputed
// embedding; ids already present fail the whole call with
// ErrDuplicateID and no mutation.
func (c *Collection) Add(ctx context.Context, batch Batch) error {
	if err := validateBatch(batch); err != nil {
		return wrapError("add", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(); err != nil {
		return wrapError("add", err)
	}

	var dupes []string
	for _, id := range batch.IDs {
		if _, exists := c.docs[id]; exists {
			dupes = append(dupes, id)
		}
	}
	if len(dupes) > 0 {
		return wrapError("add", fmt.Errorf("ids already exist: %s: %w", strings.Join(dupes, ", "), ErrDuplicateID))
	}

	vectors, err := c.resolveVectors(ctx, batch, nil)
	if err != nil {
		return wrapError("add", err)
	}
	if err := c.checkDimensions(vectors); err != nil {
		return wrapError("add", err)
	}

	if err := c.persistRecords(ctx, batch, vectors); err != nil {
		return wrapError("add", err)
	}
	c.applyRecords(batch, vectors)

	c.catalog.logger.Debug("records added", "collection", c.name, "count", len(batch.IDs))
	return nil
}

// Upsert inserts or replaces records. For existing ids, nil Documents,
// Embeddings or Metadatas slices retain the prior value of that field;
// provided fields replace the prior value entirely.
func (c *Collection) Upsert(ctx context.Context, batch Batch) error {
	if err := validateBatch(batch); err != nil {
		return wrapError("upsert", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(); err != nil {
		return wrapError("upsert", err)
	}

	// Carry prior values for fields the batch omits.
	retained := make(map[string][]float32)
	merged := batch
	if batch.Documents == nil {
		merged.Documents = make([]string, len(batch.IDs))
		for i, id := range batch.IDs {
			if doc, exists := c.docs[id]; exists {
				merged.Documents[i] = doc
				if vec, ok := c.idx.Vector(id); ok {
					retained[id] = vec
				}
			}
		}
	}
	if batch.Metadatas == nil {
		merged.Metadatas = make([]Metadata, len(batch.IDs))
		for i, id := range batch.IDs {
			merged.Metadatas[i] = c.metas[id]
		}
	}

	vectors, err := c.resolveVectors(ctx, merged, retained)
	if err != nil {
		return wrapError("upsert", err)
	}
	if err := c.checkDimensions(vectors); err != nil {
		return wrapError("upsert", err)
	}

	if err := c.persistRecords(ctx, merged, vectors); err != nil {
		return wrapError("upsert", err)
	}
	c.applyRecords(merged, vectors)

	c.catalog.logger.Debug("records upserted", "collection", c.name, "count", len(batch.IDs))
	return nil
}

// Get returns the requested records, or all records in insertion order
// when ids is nil. Any missing requested id fails the call with
// ErrNotFound naming the absentees.
func (c *Collection) Get(ids []string) ([]Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.guard(); err != nil {
		return nil, wrapError("get", err)
	}

	if ids == nil {
		ids = c.idx.IDs()
	} else {
		var missing []string
		for _, id := range ids {
			if _, exists := c.docs[id]; !exists {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return nil, wrapError("get", fmt.Errorf("ids not found: %s: %w", strings.Join(missing, ", "), ErrNotFound))
		}
	}

	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, c.recordLocked(id))
	}
	return records, nil
}

// Delete removes the listed records. Absent ids are silently ignored,
// so the operation is idempotent.
func (c *Collection) Delete(ctx context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(); err != nil {
		return wrapError("delete", err)
	}

	present := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, exists := c.docs[id]; exists {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return nil
	}

	err := c.catalog.execTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "DELETE FROM records WHERE collection_id = ? AND id = ?")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range present {
			if _, err := stmt.ExecContext(ctx, c.id, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapError("delete", err)
	}

	for _, id := range present {
		c.idx.Remove(id)
		delete(c.docs, id)
		delete(c.metas, id)
		delete(c.positions, id)
	}

	c.catalog.logger.Debug("records deleted", "collection", c.name, "count", len(present))
	return nil
}

// Query embeds each query text and returns the nResults nearest records
// per query as parallel slices ordered ascending by distance. nResults
// beyond the collection size returns all records.
func (c *Collection) Query(ctx context.Context, queryTexts []string, nResults int) (*QueryResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.guard(); err != nil {
		return nil, wrapError("query", err)
	}

	vectors, err := c.embedLocked(ctx, queryTexts)
	if err != nil {
		return nil, wrapError("query", err)
	}
	result, err := c.queryLocked(vectors, nResults)
	if err != nil {
		return nil, wrapError("query", err)
	}
	return result, nil
}

// QueryEmbeddings is Query for callers holding precomputed query
// vectors.
func (c *Collection) QueryEmbeddings(ctx context.Context, queryVectors [][]float32, nResults int) (*QueryResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.guard(); err != nil {
		return nil, wrapError("query", err)
	}
	result, err := c.queryLocked(queryVectors, nResults)
	if err != nil {
		return nil, wrapError("query", err)
	}
	return result, nil
}

func (c *Collection) queryLocked(queryVectors [][]float32, nResults int) (*QueryResult, error) {
	if nResults <= 0 {
		nResults = 10
	}

	result := &QueryResult{
		IDs:       make([][]string, len(queryVectors)),
		Documents: make([][]string, len(queryVectors)),
		Metadatas: make([][]Metadata, len(queryVectors)),
		Distances: make([][]float64, len(queryVectors)),
	}

	for qi, qv := range queryVectors {
		if err := encoding.ValidateVector(qv); err != nil {
			return nil, fmt.Errorf("query vector %d: %w", qi, ErrInvalidVector)
		}
		neighbors, err := c.idx.Nearest(qv, nResults)
		if err != nil {
			return nil, err
		}

		result.IDs[qi] = make([]string, len(neighbors))
		result.Documents[qi] = make([]string, len(neighbors))
		result.Metadatas[qi] = make([]Metadata, len(neighbors))
		result.Distances[qi] = make([]float64, len(neighbors))
		for ni, n := range neighbors {
			result.IDs[qi][ni] = n.ID
			result.Documents[qi][ni] = c.docs[n.ID]
			result.Metadatas[qi][ni] = c.metas[n.ID].Clone()
			result.Distances[qi][ni] = n.Distance
		}
	}
	return result, nil
}

// Modify renames the collection and/or replaces its metadata mapping.
// The metadata replace is full, not a merge.
func (c *Collection) Modify(ctx context.Context, opts ModifyOptions) error {
	// Renames touch the catalog's name map, so the catalog lock comes
	// first; all paths that take both locks use this order.
	c.catalog.mu.Lock()
	defer c.catalog.mu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(); err != nil {
		return wrapError("modify", err)
	}

	newName := c.name
	if opts.Name != "" && opts.Name != c.name {
		if _, taken := c.catalog.collections[opts.Name]; taken {
			return wrapError("modify", fmt.Errorf("collection %q: %w", opts.Name, ErrAlreadyExists))
		}
		newName = opts.Name
	}
	newMetadata := c.metadata
	if opts.Metadata != nil {
		newMetadata = opts.Metadata.Clone()
	}

	metadataJSON, err := EncodeMetadata(newMetadata)
	if err != nil {
		return wrapError("modify", err)
	}
	err = c.catalog.execTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE collections SET name = ?, metadata = ? WHERE id = ?",
			newName, nullIfEmpty(metadataJSON), c.id)
		return err
	})
	if err != nil {
		return wrapError("modify", err)
	}

	if newName != c.name {
		delete(c.catalog.collections, c.name)
		c.catalog.collections[newName] = c
		for i, n := range c.catalog.names {
			if n == c.name {
				c.catalog.names[i] = newName
				break
			}
		}
		c.catalog.logger.Info("collection renamed", "from", c.name, "to", newName)
		c.name = newName
	}
	c.metadata = newMetadata
	return nil
}

// guard rejects operations on deleted collections or a closed catalog.
func (c *Collection) guard() error {
	if c.catalog.closed.Load() {
		return ErrStoreClosed
	}
	if c.deleted.Load() {
		return fmt.Errorf("collection %q: %w", c.name, ErrNotFound)
	}
	return nil
}

func (c *Collection) recordLocked(id string) Record {
	vec, _ := c.idx.Vector(id)
	return Record{
		ID:        id,
		Document:  c.docs[id],
		Embedding: vec,
		Metadata:  c.metas[id].Clone(),
	}
}

// resolveVectors produces one vector per batch entry: explicit
// embeddings win, then vectors retained from prior records, then
// embeddings computed from documents in a single provider call. The
// provider call happens before any mutation, so failures are
// all-or-nothing.
func (c *Collection) resolveVectors(ctx context.Context, batch Batch, retained map[string][]float32) ([][]float32, error) {
	vectors := make([][]float32, len(batch.IDs))

	var pendingTexts []string
	var pendingIdx []int
	for i, id := range batch.IDs {
		if batch.Embeddings != nil && len(batch.Embeddings[i]) > 0 {
			if err := encoding.ValidateVector(batch.Embeddings[i]); err != nil {
				return nil, fmt.Errorf("id %q: %w", id, ErrInvalidVector)
			}
			vectors[i] = batch.Embeddings[i]
			continue
		}
		if vec, ok := retained[id]; ok {
			vectors[i] = vec
			continue
		}
		if batch.Documents == nil || batch.Documents[i] == "" {
			return nil, fmt.Errorf("id %q requires a document or an embedding", id)
		}
		pendingTexts = append(pendingTexts, batch.Documents[i])
		pendingIdx = append(pendingIdx, i)
	}

	if len(pendingTexts) > 0 {
		embedded, err := c.embedLocked(ctx, pendingTexts)
		if err != nil {
			return nil, err
		}
		for j, i := range pendingIdx {
			vectors[i] = embedded[j]
		}
	}
	return vectors, nil
}

// embedLocked runs the collection's provider over texts. Callers hold
// at least the read lock.
func (c *Collection) embedLocked(ctx context.Context, texts []string) ([][]float32, error) {
	if c.embedder == nil {
		return nil, embed.ErrNotConfigured
	}
	if c.provider != "" && c.provider != c.embedder.Name() {
		return nil, fmt.Errorf("collection %q is bound to provider %q, got %q: %w",
			c.name, c.provider, c.embedder.Name(), ErrProviderMismatch)
	}

	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, embed.ErrEmbeddingFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", embed.ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts",
			embed.ErrEmbeddingFailed, len(vectors), len(texts))
	}
	// Providers get the same scrutiny as explicit embeddings; an empty
	// or non-finite vector must never reach the index.
	for i, vec := range vectors {
		if err := encoding.ValidateVector(vec); err != nil {
			return nil, fmt.Errorf("%w: provider returned an invalid vector for text %d", embed.ErrEmbeddingFailed, i)
		}
	}
	return vectors, nil
}

// checkDimensions enforces the collection's fixed dimensionality before
// any mutation happens.
func (c *Collection) checkDimensions(vectors [][]float32) error {
	dim := c.idx.Dim()
	for _, vec := range vectors {
		if dim == 0 {
			dim = len(vec)
			continue
		}
		if len(vec) != dim {
			return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dim, len(vec))
		}
	}
	return nil
}

// persistRecords writes the batch inside one transaction. Positions of
// existing ids are preserved so insertion order survives replacement
// and reload.
func (c *Collection) persistRecords(ctx context.Context, batch Batch, vectors [][]float32) error {
	firstInsert := c.idx.Dim() == 0 && len(vectors) > 0

	return c.catalog.execTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO records (collection_id, id, position, vector, document, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		nextPos := c.nextPos
		for i, id := range batch.IDs {
			position, exists := c.positions[id]
			if !exists {
				position = nextPos
				nextPos++
			}

			vectorBytes, err := encoding.EncodeVector(vectors[i])
			if err != nil {
				return err
			}
			var metadataJSON string
			if batch.Metadatas != nil {
				if metadataJSON, err = EncodeMetadata(batch.Metadatas[i]); err != nil {
					return err
				}
			}
			var document any
			if batch.Documents != nil && batch.Documents[i] != "" {
				document = batch.Documents[i]
			}

			if _, err := stmt.ExecContext(ctx, c.id, id, position, vectorBytes, document, nullIfEmpty(metadataJSON)); err != nil {
				return err
			}
		}

		if firstInsert {
			if _, err := tx.ExecContext(ctx, "UPDATE collections SET dimensions = ? WHERE id = ?",
				len(vectors[0]), c.id); err != nil {
				return err
			}
		}
		return nil
	})
}

// applyRecords mirrors a committed batch into memory.
func (c *Collection) applyRecords(batch Batch, vectors [][]float32) {
	for i, id := range batch.IDs {
		// persistRecords already committed these vectors; the index
		// accepts them by construction.
		_ = c.idx.Insert(id, vectors[i])

		if batch.Documents != nil {
			c.docs[id] = batch.Documents[i]
		} else if _, exists := c.docs[id]; !exists {
			c.docs[id] = ""
		}
		if batch.Metadatas != nil {
			c.metas[id] = batch.Metadatas[i].Clone()
		}
		if _, exists := c.positions[id]; !exists {
			c.positions[id] = c.nextPos
			c.nextPos++
		}
	}
}

func validateBatch(batch Batch) error {
	if len(batch.IDs) == 0 {
		return fmt.Errorf("batch requires at least one id")
	}
	seen := make(map[string]struct{}, len(batch.IDs))
	for _, id := range batch.IDs {
		if id == "" {
			return fmt.Errorf("ids cannot be empty")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("id %q repeated in batch: %w", id, ErrDuplicateID)
		}
		seen[id] = struct{}{}
	}
	if batch.Documents != nil && len(batch.Documents) != len(batch.IDs) {
		return fmt.Errorf("documents length %d does not match ids length %d", len(batch.Documents), len(batch.IDs))
	}
	if batch.Embeddings != nil && len(batch.Embeddings) != len(batch.IDs) {
		return fmt.Errorf("embeddings length %d does not match ids length %d", len(batch.Embeddings), len(batch.IDs))
	}
	if batch.Metadatas != nil && len(batch.Metadatas) != len(batch.IDs) {
		return fmt.Errorf("metadatas length %d does not match ids length %d", len(batch.Metadatas), len(batch.IDs))
	}
	return nil
}
