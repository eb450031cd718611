// Package harness provides conformance testing for the assembly core.
//
// A scenario executes a sequence of operations against a fresh in-memory
// store, checks that the expected steps are rejected with the expected error
// kind, and asserts on the final state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	golden: $main            # optional: snapshot this assembly's hierarchy
//	steps:
//	  - op: create_part
//	    as: bolt               # later steps refer to the id as $bolt
//	    args: {name: Bolt, file: bolt.prt}
//	  - op: create_assembly_item
//	    args: {assembly: $main, part: $bolt, sub_assembly: $sub, name: x}
//	    expect_error: INVALID_COMPOSITION
//	assertions:
//	  - type: count
//	    table: assembly_items
//	    count: 0
//	  - type: parts
//	    assembly: $main
//	    paths: [Bolt-1, Sub-1/Pin-1]
//
// # Step Semantics
//
// A step without expect_error must succeed. A step with expect_error must be
// rejected with that kind and must leave every table count unchanged.
// Execution stops at the first step that does not behave as expected.
//
// # Assertion Types
//
//   - count: rows in a table
//   - parts: instance paths of list_parts_in_assembly (recursive by default)
//   - connections: connectors of exactly one part, feature or item
//   - audit: number of integrity audit findings
//
// # Determinism
//
// Each scenario gets its own in-memory SQLite database, so ids are assigned
// from 1 in step order and traces are identical across runs. Golden
// snapshots use MarshalCanonical (sorted keys, NFC strings).
package harness
