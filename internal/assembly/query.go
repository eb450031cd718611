package assembly

import (
	"context"

	"github.com/roach88/sysarch/internal/model"
	"github.com/roach88/sysarch/internal/store"
)

// PartInstance is one resolved part occurrence inside an assembly tree.
type PartInstance struct {
	PartID           int64  `json:"part_id"`
	PartName         string `json:"part_name"`
	PartFileLocation string `json:"part_file_location"`
	InstanceName     string `json:"instance_name"`
	// InstancePath joins the instance names from the queried assembly down
	// to this occurrence, e.g. "Wheel-1/Bolt-2".
	InstancePath string `json:"instance_path"`
	// AssemblyID is the assembly whose item is this occurrence.
	AssemblyID int64 `json:"assembly_id"`
	ItemID     int64 `json:"item_id"`
	// Depth is 0 for items of the queried assembly.
	Depth int `json:"depth"`
}

// HierarchyNode is one assembly in a reconstructed tree.
type HierarchyNode struct {
	AssemblyID   int64            `json:"assembly_id"`
	Name         string           `json:"name"`
	FileLocation string           `json:"file_location"`
	Image        string           `json:"image,omitempty"`
	Children     []HierarchyChild `json:"children"`
}

// HierarchyChild is one item of a node, resolved to either its part or the
// nested tree of its sub-assembly.
type HierarchyChild struct {
	Item     model.AssemblyItem `json:"item"`
	Part     *model.Part        `json:"part,omitempty"`
	Assembly *HierarchyNode     `json:"assembly,omitempty"`
}

// ConnectionFilter selects connectors by exactly one of part, feature or item.
type ConnectionFilter struct {
	PartID    *int64
	FeatureID *int64
	ItemID    *int64
}

// walker carries per-call state for one traversal. Nothing survives the call,
// so every query is restartable.
type walker struct {
	r      *Repository
	onPath map[int64]bool
	parts  map[int64]model.Part
}

func (r *Repository) newWalker() *walker {
	return &walker{r: r, onPath: make(map[int64]bool), parts: make(map[int64]model.Part)}
}

// enter marks id as on the current path; re-entering is an internal
// consistency fault because writes reject cycles.
func (w *walker) enter(id int64) error {
	if w.onPath[id] {
		return NewInconsistentError("composition cycle found while traversing assembly",
			map[string]string{"assembly": idString(id)})
	}
	w.onPath[id] = true
	return nil
}

func (w *walker) leave(id int64) { delete(w.onPath, id) }

func (w *walker) part(ctx context.Context, it model.AssemblyItem) (model.Part, error) {
	if p, ok := w.parts[*it.PartID]; ok {
		return p, nil
	}
	p, err := w.r.rec.GetPart(ctx, *it.PartID)
	if store.IsNotFound(err) {
		return model.Part{}, NewInconsistentError("assembly item references a missing part",
			map[string]string{"item": idString(it.ID), "part": idString(*it.PartID)})
	}
	if err != nil {
		return model.Part{}, err
	}
	w.parts[p.ID] = p
	return p, nil
}

func (w *walker) assembly(ctx context.Context, id int64) (model.Assembly, error) {
	a, err := w.r.rec.GetAssembly(ctx, id)
	if store.IsNotFound(err) {
		return model.Assembly{}, NewInconsistentError("assembly item references a missing sub-assembly",
			map[string]string{"assembly": idString(id)})
	}
	return a, err
}

// ListPartsInAssembly enumerates the part occurrences of an assembly in item
// insertion order. With recursive set, sub-assembly items are expanded in
// place and their occurrences carry the chain of instance names in
// InstancePath; otherwise sub-assembly items are skipped.
//
// A sub-assembly instantiated twice yields its parts twice, once per
// instance path.
func (r *Repository) ListPartsInAssembly(ctx context.Context, assemblyID int64, recursive bool) ([]PartInstance, error) {
	if _, err := r.Assembly(ctx, assemblyID); err != nil {
		return nil, err
	}
	out := []PartInstance{}
	w := r.newWalker()
	if err := w.collectParts(ctx, assemblyID, "", 0, recursive, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *walker) collectParts(ctx context.Context, assemblyID int64, prefix string, depth int, recursive bool, out *[]PartInstance) error {
	if err := w.enter(assemblyID); err != nil {
		return err
	}
	defer w.leave(assemblyID)

	items, err := w.r.rec.ListItems(ctx, assemblyID)
	if err != nil {
		return err
	}
	for _, it := range items {
		path := it.InstanceName
		if prefix != "" {
			path = prefix + w.r.separator + it.InstanceName
		}
		switch {
		case it.PartID != nil:
			p, err := w.part(ctx, it)
			if err != nil {
				return err
			}
			*out = append(*out, PartInstance{
				PartID:           p.ID,
				PartName:         p.Name,
				PartFileLocation: p.FileLocation,
				InstanceName:     it.InstanceName,
				InstancePath:     path,
				AssemblyID:       assemblyID,
				ItemID:           it.ID,
				Depth:            depth,
			})
		case it.SubAssemblyID != nil && recursive:
			if err := w.collectParts(ctx, *it.SubAssemblyID, path, depth+1, recursive, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// Hierarchy reconstructs the full tree rooted at assemblyID. Calling it twice
// on an unmodified store yields structurally identical trees.
func (r *Repository) Hierarchy(ctx context.Context, assemblyID int64) (*HierarchyNode, error) {
	if _, err := r.Assembly(ctx, assemblyID); err != nil {
		return nil, err
	}
	return r.newWalker().buildTree(ctx, assemblyID)
}

func (w *walker) buildTree(ctx context.Context, assemblyID int64) (*HierarchyNode, error) {
	if err := w.enter(assemblyID); err != nil {
		return nil, err
	}
	defer w.leave(assemblyID)

	a, err := w.assembly(ctx, assemblyID)
	if err != nil {
		return nil, err
	}
	node := &HierarchyNode{
		AssemblyID:   a.ID,
		Name:         a.Name,
		FileLocation: a.FileLocation,
		Image:        a.Image,
		Children:     []HierarchyChild{},
	}

	items, err := w.r.rec.ListItems(ctx, assemblyID)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		child := HierarchyChild{Item: it}
		if it.PartID != nil {
			p, err := w.part(ctx, it)
			if err != nil {
				return nil, err
			}
			child.Part = &p
		} else if it.SubAssemblyID != nil {
			sub, err := w.buildTree(ctx, *it.SubAssemblyID)
			if err != nil {
				return nil, err
			}
			child.Assembly = sub
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

// ListConnections returns the connectors touching one part (any of its
// features, across all instances), one feature, or one item, in id order.
// Exactly one filter field must be set.
func (r *Repository) ListConnections(ctx context.Context, f ConnectionFilter) ([]model.Connector, error) {
	set := 0
	for _, p := range []*int64{f.PartID, f.FeatureID, f.ItemID} {
		if p != nil {
			set++
		}
	}
	if set != 1 {
		return nil, NewInvalidArgumentError("exactly one of part, feature or item must be given, got %d", set)
	}

	switch {
	case f.PartID != nil:
		if _, err := r.Part(ctx, *f.PartID); err != nil {
			return nil, err
		}
		return r.rec.ListConnectorsByPart(ctx, *f.PartID)
	case f.FeatureID != nil:
		if _, err := r.Feature(ctx, *f.FeatureID); err != nil {
			return nil, err
		}
		return r.rec.ListConnectorsByFeature(ctx, *f.FeatureID)
	default:
		if _, err := r.Item(ctx, *f.ItemID); err != nil {
			return nil, err
		}
		return r.rec.ListConnectorsByItem(ctx, *f.ItemID)
	}
}
