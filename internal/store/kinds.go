package store

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind names one of the six entity kinds.
type Kind string

const (
	KindSystem    Kind = "system"
	KindAssembly  Kind = "assembly"
	KindPart      Kind = "part"
	KindFeature   Kind = "feature"
	KindItem      Kind = "assembly_item"
	KindConnector Kind = "connector"
)

// Kinds lists every entity kind in dependency order (referenced kinds first).
var Kinds = []Kind{KindSystem, KindAssembly, KindPart, KindFeature, KindItem, KindConnector}

var kindTables = map[Kind]string{
	KindSystem:    "systems",
	KindAssembly:  "assemblies",
	KindPart:      "parts",
	KindFeature:   "features",
	KindItem:      "assembly_items",
	KindConnector: "connectors",
}

// Table returns the table that stores k.
func (k Kind) Table() string { return kindTables[k] }

// ParseKind accepts a kind name or its table name ("part", "parts", "item", ...).
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "item", "items":
		return KindItem, true
	}
	for k, table := range kindTables {
		if s == string(k) || s == table {
			return k, true
		}
	}
	return "", false
}

// reference is one RESTRICT foreign key pointing at a kind.
type reference struct {
	table  string
	column string
}

// restrictRefs lists, per kind, the foreign keys that block its deletion.
// CASCADE edges (features->parts, items->assemblies, connectors->items) are absent.
var restrictRefs = map[Kind][]reference{
	KindSystem: {
		{"assemblies", "system_id"},
	},
	KindAssembly: {
		{"assembly_items", "sub_assembly_id"},
		{"assemblies", "parent_assembly_id"},
		{"systems", "overall_assembly_id"},
	},
	KindPart: {
		{"assembly_items", "part_id"},
	},
	KindFeature: {
		{"connectors", "feature1_id"},
		{"connectors", "feature2_id"},
	},
}

// Dependent counts rows in Table whose Column references the record.
type Dependent struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Count  int64  `json:"count"`
}

// Dependents returns the non-zero RESTRICT references to (kind, id).
// An empty result means a delete will not be blocked by the restrict policy.
func (r *Records) Dependents(ctx context.Context, kind Kind, id int64) ([]Dependent, error) {
	deps := []Dependent{}
	for _, ref := range restrictRefs[kind] {
		var n int64
		q := `SELECT COUNT(*) FROM ` + ref.table + ` WHERE ` + ref.column + ` = ?`
		if err := r.q.QueryRowContext(ctx, r.rebind(q), id).Scan(&n); err != nil {
			return nil, classify(err, "count dependents")
		}
		if n > 0 {
			deps = append(deps, Dependent{Table: ref.table, Column: ref.column, Count: n})
		}
	}
	return deps, nil
}

// Delete removes one record. CASCADE edges remove dependents with it;
// RESTRICT edges surface as ErrForeignKey.
func (r *Records) Delete(ctx context.Context, kind Kind, id int64) error {
	table := kind.Table()
	if table == "" {
		return errors.Newf("unknown kind %q", kind)
	}
	op := "delete " + string(kind)
	res, err := r.exec(ctx, op, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, op)
}

// Count returns the number of rows of one kind.
func (r *Records) Count(ctx context.Context, kind Kind) (int64, error) {
	table := kind.Table()
	if table == "" {
		return 0, errors.Newf("unknown kind %q", kind)
	}
	var n int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, classify(err, "count "+table)
	}
	return n, nil
}

// Counts returns row counts for every kind.
func (r *Records) Counts(ctx context.Context) (map[Kind]int64, error) {
	counts := make(map[Kind]int64, len(Kinds))
	for _, k := range Kinds {
		n, err := r.Count(ctx, k)
		if err != nil {
			return nil, err
		}
		counts[k] = n
	}
	return counts, nil
}
