// Package core implements the vecolite storage engine: a catalog of
// named collections persisted in SQLite, each holding records of
// (id, document, embedding, metadata) served by an exact in-memory
// vector index.
//
// # Key Components
//
//   - Catalog: owns collections; create, get-or-create, list, delete,
//     with durable commits and full reload on open.
//   - Collection: record CRUD and nearest-neighbor queries; fixed
//     dimensionality and a recorded embedding-provider identity.
//   - Metadata: string/number/bool scalar values keyed by string.
//
// The engine supports pluggable structured logging through the Logger
// interface.
package core
