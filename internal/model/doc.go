// Package model defines the entity records of the assembly system.
//
// This package contains type definitions only. It imports nothing internal, so
// the store, the core and the front ends can all share it without cycles.
//
// Key design constraints:
//   - Identifiers are int64 values assigned by the record store on insert
//   - Optional references are *int64 (nil means "not set")
//   - All JSON tags use snake_case
package model
