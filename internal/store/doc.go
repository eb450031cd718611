// Package store provides SQL-backed durable storage for the assembly model.
//
// The store holds six tables:
//   - systems: project roots, each pointing at one top-level assembly
//   - assemblies: composite nodes with an optional parent link
//   - parts and features: leaf design elements and their attachment points
//   - assembly_items: instance slots referencing exactly one part or sub-assembly
//   - connectors: typed links between (feature, item) pairs
//
// The store enforces foreign-key existence and the exactly-one CHECK on
// assembly items. It does not know about cycles or feature ownership; those
// rules live in package assembly.
//
// # Delete Policy
//
//   - features die with their part (CASCADE)
//   - assembly items die with their assembly (CASCADE)
//   - connectors die with either of their items (CASCADE)
//   - every other reference is RESTRICT and surfaces as ErrForeignKey
//
// # Ordering
//
// Every list query orders by id ascending. Ids are assigned monotonically, so
// this is insertion order.
//
// # Backends
//
// SQLite is the default: mattn/go-sqlite3 when built with cgo, modernc.org/sqlite
// otherwise. The database is configured with:
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Postgres is reached through pgx's database/sql driver. Mutation
// transactions take a transaction-scoped advisory lock.
package store
