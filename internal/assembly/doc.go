// Package assembly implements hierarchy integrity and queries for the
// assembly model.
//
// The package decides whether a proposed composition, assembly item or
// connector is admissible, and reconstructs assembly trees and flattened part
// lists on demand.
//
// # Components
//
//   - Repository: typed create/read/list/delete over a store binding, mapping
//     store failures to rejections
//   - Hierarchy validator (Repository.ValidateComposition): rejects any
//     composition that would let an assembly contain itself
//   - Connector validator (Repository.ValidateConnector): requires each
//     connector end to name a feature of the part its item instantiates
//   - Query engine (ListPartsInAssembly, Hierarchy, ListConnections)
//   - Audit: whole-store scan for cycles, stale connectors and duplicate
//     instance names
//   - Engine: runs each mutation as one transaction with logging, metrics
//     and tracing
//
// # Composition Graph
//
// Assemblies are nodes. There is an edge P -> C when an item of P
// instantiates C, and when C's parent link is P. The graph is kept acyclic at
// write time. Traversals are identifier lookups against the store; no
// in-memory object graph is built.
//
// # Errors
//
// Rejections are *Error values with a Kind. Every rejection aborts the
// enclosing transaction, so the store is unchanged.
package assembly
