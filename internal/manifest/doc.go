// Package manifest loads declarative project manifests written in CUE and
// applies them through the assembly engine.
//
// A manifest names a system, parts with their features, assemblies with an
// optional parent and an ordered list of items, and connectors between
// (assembly, item, "Part.Feature") ends. Load unifies the file with an
// embedded closed schema; Apply creates everything inside one Engine.Batch,
// so a manifest is applied completely or not at all.
package manifest
