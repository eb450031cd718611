package manifest

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/sysarch/internal/assembly"
	"github.com/roach88/sysarch/internal/model"
)

// ErrUnresolved is returned when a manifest names a part, assembly, item or
// feature it does not declare.
var ErrUnresolved = errors.New("unresolved manifest reference")

// Applied maps manifest names to the ids Apply created.
// Features are keyed "Part.Feature" and items "Assembly/Item".
type Applied struct {
	SystemID   *int64           `json:"system_id,omitempty"`
	Parts      map[string]int64 `json:"parts"`
	Features   map[string]int64 `json:"features"`
	Assemblies map[string]int64 `json:"assemblies"`
	Items      map[string]int64 `json:"items"`
	Connectors []int64          `json:"connectors"`
}

func newApplied() *Applied {
	return &Applied{
		Parts:      make(map[string]int64),
		Features:   make(map[string]int64),
		Assemblies: make(map[string]int64),
		Items:      make(map[string]int64),
		Connectors: []int64{},
	}
}

// Apply creates everything m declares in a single batch. Any rejection,
// including a core validation error, rolls back the whole manifest.
//
// Order: system, parts and features, assemblies, parent links, items,
// connectors, system root. Parts and assemblies are created in name order
// so ids are deterministic for a given manifest.
func Apply(ctx context.Context, eng *assembly.Engine, m *Manifest) (*Applied, error) {
	var out *Applied
	err := eng.Batch(ctx, func(ctx context.Context, r *assembly.Repository) error {
		a := newApplied()
		if err := a.apply(ctx, r, m); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Applied) apply(ctx context.Context, r *assembly.Repository, m *Manifest) error {
	if m.System != nil {
		id, err := r.CreateSystem(ctx, m.System.Name, nil)
		if err != nil {
			return errors.Wrapf(err, "system %q", m.System.Name)
		}
		a.SystemID = model.ID(id)
	}

	for _, name := range m.PartNames() {
		p := m.Parts[name]
		id, err := r.CreatePart(ctx, name, p.File)
		if err != nil {
			return errors.Wrapf(err, "part %q", name)
		}
		a.Parts[name] = id
		for _, f := range p.Features {
			fid, err := r.CreateFeature(ctx, id, f)
			if err != nil {
				return errors.Wrapf(err, "feature %s.%s", name, f)
			}
			a.Features[name+"."+f] = fid
		}
	}

	names := m.AssemblyNames()
	for _, name := range names {
		asm := m.Assemblies[name]
		id, err := r.CreateAssembly(ctx, assembly.NewAssembly{
			Name:         name,
			FileLocation: asm.File,
			Image:        asm.Image,
			SystemID:     a.SystemID,
		})
		if err != nil {
			return errors.Wrapf(err, "assembly %q", name)
		}
		a.Assemblies[name] = id
	}

	for _, name := range names {
		parent := m.Assemblies[name].Parent
		if parent == "" {
			continue
		}
		pid, err := a.assembly(parent, fmt.Sprintf("assemblies.%s.parent", name))
		if err != nil {
			return err
		}
		if err := r.SetAssemblyParent(ctx, a.Assemblies[name], model.ID(pid)); err != nil {
			return errors.Wrapf(err, "assembly %q parent", name)
		}
	}

	// Items named twice within one assembly are created (the core warns) but
	// cannot be addressed by a connector.
	ambiguous := make(map[string]bool)
	for _, name := range names {
		for i, it := range m.Assemblies[name].Items {
			in := assembly.NewItem{AssemblyID: a.Assemblies[name], InstanceName: it.Name}
			path := fmt.Sprintf("assemblies.%s.items[%d]", name, i)
			if it.Part != "" {
				pid, ok := a.Parts[it.Part]
				if !ok {
					return unresolved(path+".part", "part", it.Part)
				}
				in.PartID = model.ID(pid)
			}
			if it.SubAssembly != "" {
				sid, err := a.assembly(it.SubAssembly, path+".sub_assembly")
				if err != nil {
					return err
				}
				in.SubAssemblyID = model.ID(sid)
			}
			id, err := r.CreateAssemblyItem(ctx, in)
			if err != nil {
				return errors.Wrapf(err, "%s (%s)", path, it.Name)
			}
			key := itemKey(name, it.Name)
			if _, dup := a.Items[key]; dup {
				ambiguous[key] = true
			}
			a.Items[key] = id
		}
	}

	for i, c := range m.Connectors {
		path := fmt.Sprintf("connectors[%d]", i)
		item1, feat1, err := a.end(c.From, path+".from", ambiguous)
		if err != nil {
			return err
		}
		item2, feat2, err := a.end(c.To, path+".to", ambiguous)
		if err != nil {
			return err
		}
		id, err := r.CreateConnector(ctx, assembly.NewConnector{
			Type:       c.Type,
			Feature1ID: feat1,
			Item1ID:    item1,
			Feature2ID: feat2,
			Item2ID:    item2,
		})
		if err != nil {
			return errors.Wrap(err, path)
		}
		a.Connectors = append(a.Connectors, id)
	}

	if m.System != nil && m.System.Root != "" {
		rid, err := a.assembly(m.System.Root, "system.root")
		if err != nil {
			return err
		}
		if err := r.SetSystemRoot(ctx, *a.SystemID, rid); err != nil {
			return errors.Wrap(err, "system root")
		}
	}
	return nil
}

func (a *Applied) assembly(name, path string) (int64, error) {
	id, ok := a.Assemblies[name]
	if !ok {
		return 0, unresolved(path, "assembly", name)
	}
	return id, nil
}

func (a *Applied) end(e End, path string, ambiguous map[string]bool) (item, feature int64, err error) {
	key := itemKey(e.Assembly, e.Item)
	if ambiguous[key] {
		return 0, 0, errors.WithHint(
			errors.Mark(errors.Newf("%s: item %q is declared more than once in assembly %q", path, e.Item, e.Assembly), ErrUnresolved),
			"give each item in an assembly a distinct name",
		)
	}
	item, ok := a.Items[key]
	if !ok {
		return 0, 0, unresolved(path+".item", "item", key)
	}
	feature, ok = a.Features[e.Feature]
	if !ok {
		return 0, 0, unresolved(path+".feature", "feature", e.Feature)
	}
	return item, feature, nil
}

// itemKey matches the core's NFC-normalised instance names.
func itemKey(assembly, item string) string {
	return assembly + "/" + norm.NFC.String(item)
}

func unresolved(path, what, name string) error {
	return errors.WithHint(
		errors.Mark(errors.Newf("%s: unknown %s %q", path, what, name), ErrUnresolved),
		fmt.Sprintf("declare the %s in the manifest", what),
	)
}
