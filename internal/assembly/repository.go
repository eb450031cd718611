package assembly

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/sysarch/internal/model"
	"github.com/roach88/sysarch/internal/store"
)

// DefaultSeparator joins instance names into instance paths.
const DefaultSeparator = "/"

// Repository is the typed, validated create/read/list/delete surface over one
// store.Records binding. Inside Engine.Batch (and every Engine mutation) it is
// bound to a single transaction, so a validator's reads and the write that
// follows them cannot be interleaved by another mutation.
type Repository struct {
	rec       *store.Records
	log       *zap.SugaredLogger
	separator string
}

// NewRepository binds a Repository to rec. A nil logger discards warnings.
func NewRepository(rec *store.Records, log *zap.SugaredLogger) *Repository {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Repository{rec: rec, log: log, separator: DefaultSeparator}
}

// mapStoreError converts store sentinels into rejections. A missing row or
// dangling foreign key on (entity, id) becomes REFERENCE.
func mapStoreError(err error, entity store.Kind, id int64) error {
	switch {
	case err == nil:
		return nil
	case store.IsNotFound(err):
		return NewReferenceError(entity, id)
	case store.IsForeignKey(err):
		return errors.Mark(&Error{
			Kind:    KindReference,
			Message: "a referenced record does not exist",
			Err:     err,
		}, store.ErrForeignKey)
	case store.IsConstraint(err):
		return &Error{Kind: KindInvalidArgument, Message: "record violates a storage constraint", Err: err}
	}
	return err
}

func requireName(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewInvalidArgumentError("%s must not be empty", field)
	}
	return nil
}

// --- reads ---

// System fetches a system, or REFERENCE if it does not exist.
func (r *Repository) System(ctx context.Context, id int64) (model.System, error) {
	s, err := r.rec.GetSystem(ctx, id)
	return s, mapStoreError(err, store.KindSystem, id)
}

// Assembly fetches an assembly, or REFERENCE if it does not exist.
func (r *Repository) Assembly(ctx context.Context, id int64) (model.Assembly, error) {
	a, err := r.rec.GetAssembly(ctx, id)
	return a, mapStoreError(err, store.KindAssembly, id)
}

// Part fetches a part, or REFERENCE if it does not exist.
func (r *Repository) Part(ctx context.Context, id int64) (model.Part, error) {
	p, err := r.rec.GetPart(ctx, id)
	return p, mapStoreError(err, store.KindPart, id)
}

// Feature fetches a feature, or REFERENCE if it does not exist.
func (r *Repository) Feature(ctx context.Context, id int64) (model.Feature, error) {
	f, err := r.rec.GetFeature(ctx, id)
	return f, mapStoreError(err, store.KindFeature, id)
}

// Item fetches an assembly item, or REFERENCE if it does not exist.
func (r *Repository) Item(ctx context.Context, id int64) (model.AssemblyItem, error) {
	it, err := r.rec.GetItem(ctx, id)
	return it, mapStoreError(err, store.KindItem, id)
}

// Connector fetches a connector, or REFERENCE if it does not exist.
func (r *Repository) Connector(ctx context.Context, id int64) (model.Connector, error) {
	c, err := r.rec.GetConnector(ctx, id)
	return c, mapStoreError(err, store.KindConnector, id)
}

// ListSystems returns every system in id order.
func (r *Repository) ListSystems(ctx context.Context) ([]model.System, error) {
	return r.rec.ListSystems(ctx)
}

// ListAssemblies returns assemblies in id order, optionally only those of one system.
func (r *Repository) ListAssemblies(ctx context.Context, systemID *int64) ([]model.Assembly, error) {
	if systemID != nil {
		if _, err := r.System(ctx, *systemID); err != nil {
			return nil, err
		}
	}
	return r.rec.ListAssemblies(ctx, systemID)
}

// ListParts returns every part in id order.
func (r *Repository) ListParts(ctx context.Context) ([]model.Part, error) {
	return r.rec.ListParts(ctx)
}

// ListFeatures returns the features of a part in id order.
func (r *Repository) ListFeatures(ctx context.Context, partID int64) ([]model.Feature, error) {
	if _, err := r.Part(ctx, partID); err != nil {
		return nil, err
	}
	return r.rec.ListFeatures(ctx, partID)
}

// ListItems returns the items of an assembly in insertion order.
func (r *Repository) ListItems(ctx context.Context, assemblyID int64) ([]model.AssemblyItem, error) {
	if _, err := r.Assembly(ctx, assemblyID); err != nil {
		return nil, err
	}
	return r.rec.ListItems(ctx, assemblyID)
}

// Counts returns row counts per entity kind.
func (r *Repository) Counts(ctx context.Context) (map[store.Kind]int64, error) {
	return r.rec.Counts(ctx)
}

// --- creates ---

// CreateSystem creates a system. A root assembly that no system owns yet is
// adopted by the new system; otherwise root must satisfy the same rules as
// SetSystemRoot.
func (r *Repository) CreateSystem(ctx context.Context, name string, root *int64) (int64, error) {
	if err := requireName("system name", name); err != nil {
		return 0, err
	}
	var rootAsm model.Assembly
	if root != nil {
		a, err := r.Assembly(ctx, *root)
		if err != nil {
			return 0, err
		}
		rootAsm = a
	}
	id, err := r.rec.InsertSystem(ctx, model.System{Name: name})
	if err != nil {
		return 0, mapStoreError(err, store.KindSystem, 0)
	}
	if root == nil {
		return id, nil
	}
	if rootAsm.SystemID == nil && rootAsm.ParentAssemblyID == nil {
		if err := r.rec.SetAssemblySystem(ctx, *root, &id); err != nil {
			return 0, mapStoreError(err, store.KindAssembly, *root)
		}
	}
	if err := r.SetSystemRoot(ctx, id, *root); err != nil {
		return 0, err
	}
	return id, nil
}

// CreatePart creates a part.
func (r *Repository) CreatePart(ctx context.Context, name, fileLocation string) (int64, error) {
	if err := requireName("part name", name); err != nil {
		return 0, err
	}
	id, err := r.rec.InsertPart(ctx, model.Part{Name: name, FileLocation: fileLocation})
	return id, mapStoreError(err, store.KindPart, 0)
}

// CreateFeature creates a feature on an existing part.
func (r *Repository) CreateFeature(ctx context.Context, partID int64, name string) (int64, error) {
	if err := requireName("feature name", name); err != nil {
		return 0, err
	}
	if _, err := r.Part(ctx, partID); err != nil {
		return 0, err
	}
	id, err := r.rec.InsertFeature(ctx, model.Feature{Name: name, PartID: partID})
	return id, mapStoreError(err, store.KindPart, partID)
}

// NewAssembly describes an assembly to create.
type NewAssembly struct {
	Name             string
	FileLocation     string
	Image            string
	SystemID         *int64
	ParentAssemblyID *int64
}

// CreateAssembly creates an assembly. Setting ParentAssemblyID runs the
// hierarchy validator against the new node before the unit of work commits.
func (r *Repository) CreateAssembly(ctx context.Context, in NewAssembly) (int64, error) {
	if err := requireName("assembly name", in.Name); err != nil {
		return 0, err
	}
	if in.SystemID != nil {
		if _, err := r.System(ctx, *in.SystemID); err != nil {
			return 0, err
		}
	}
	if in.ParentAssemblyID != nil {
		if _, err := r.Assembly(ctx, *in.ParentAssemblyID); err != nil {
			return 0, err
		}
	}

	id, err := r.rec.InsertAssembly(ctx, model.Assembly{
		Name:             in.Name,
		FileLocation:     in.FileLocation,
		Image:            in.Image,
		SystemID:         in.SystemID,
		ParentAssemblyID: in.ParentAssemblyID,
	})
	if err != nil {
		return 0, mapStoreError(err, store.KindAssembly, 0)
	}

	if in.ParentAssemblyID != nil {
		// The new node has no descendants yet; only pre-existing inconsistent
		// data can fail here.
		if err := r.ValidateComposition(ctx, *in.ParentAssemblyID, id); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// NewItem describes an assembly item to create. Exactly one of PartID and
// SubAssemblyID must be set.
type NewItem struct {
	AssemblyID    int64
	PartID        *int64
	SubAssemblyID *int64
	InstanceName  string
}

// CreateAssemblyItem creates an instance slot. A sub-assembly reference runs
// the hierarchy validator first. A duplicate instance name within the
// assembly is accepted and logged as a data-quality warning.
func (r *Repository) CreateAssemblyItem(ctx context.Context, in NewItem) (int64, error) {
	switch {
	case in.PartID != nil && in.SubAssemblyID != nil:
		return 0, NewInvalidCompositionError("assembly item must reference exactly one of part or sub-assembly, got both",
			map[string]string{"part": idString(*in.PartID), "sub_assembly": idString(*in.SubAssemblyID)})
	case in.PartID == nil && in.SubAssemblyID == nil:
		return 0, NewInvalidCompositionError("assembly item must reference exactly one of part or sub-assembly, got neither", nil)
	}
	if err := requireName("instance name", in.InstanceName); err != nil {
		return 0, err
	}
	name := norm.NFC.String(in.InstanceName)

	if _, err := r.Assembly(ctx, in.AssemblyID); err != nil {
		return 0, err
	}
	if in.PartID != nil {
		if _, err := r.Part(ctx, *in.PartID); err != nil {
			return 0, err
		}
	} else {
		if _, err := r.Assembly(ctx, *in.SubAssemblyID); err != nil {
			return 0, err
		}
		if err := r.ValidateComposition(ctx, in.AssemblyID, *in.SubAssemblyID); err != nil {
			return 0, err
		}
	}

	if err := r.warnDuplicateInstance(ctx, in.AssemblyID, name); err != nil {
		return 0, err
	}

	id, err := r.rec.InsertItem(ctx, model.AssemblyItem{
		AssemblyID:    in.AssemblyID,
		PartID:        in.PartID,
		SubAssemblyID: in.SubAssemblyID,
		InstanceName:  name,
	})
	return id, mapStoreError(err, store.KindItem, 0)
}

func (r *Repository) warnDuplicateInstance(ctx context.Context, assemblyID int64, name string) error {
	siblings, err := r.rec.ListItems(ctx, assemblyID)
	if err != nil {
		return err
	}
	for _, s := range siblings {
		if norm.NFC.String(s.InstanceName) == name {
			r.log.Warnw("Duplicate instance name in assembly",
				"assembly_id", assemblyID,
				"instance_name", name,
				"existing_item_id", s.ID,
			)
			return nil
		}
	}
	return nil
}

// NewConnector describes a connector to create.
type NewConnector struct {
	Type       string
	Feature1ID int64
	Item1ID    int64
	Feature2ID int64
	Item2ID    int64
}

// CreateConnector validates and creates a connector.
func (r *Repository) CreateConnector(ctx context.Context, in NewConnector) (int64, error) {
	ct, ok := model.ParseConnectorType(in.Type)
	if !ok {
		return 0, errors.WithHint(
			NewInvalidArgumentError("unknown connector type %q", in.Type),
			"use one of: coincident, concentric, tangent, fixed",
		)
	}
	if err := r.ValidateConnector(ctx, in.Feature1ID, in.Item1ID, in.Feature2ID, in.Item2ID); err != nil {
		return 0, err
	}
	id, err := r.rec.InsertConnector(ctx, model.Connector{
		Type:            ct,
		Feature1ID:      in.Feature1ID,
		Feature2ID:      in.Feature2ID,
		AssemblyItem1ID: in.Item1ID,
		AssemblyItem2ID: in.Item2ID,
	})
	return id, mapStoreError(err, store.KindConnector, 0)
}

// --- updates ---

// SetAssemblyParent sets or (with nil) clears an assembly's parent link.
// Setting runs the hierarchy validator.
func (r *Repository) SetAssemblyParent(ctx context.Context, id int64, parentID *int64) error {
	if _, err := r.Assembly(ctx, id); err != nil {
		return err
	}
	if parentID != nil {
		if _, err := r.Assembly(ctx, *parentID); err != nil {
			return err
		}
		if err := r.ValidateComposition(ctx, *parentID, id); err != nil {
			return err
		}
	}
	return mapStoreError(r.rec.SetAssemblyParent(ctx, id, parentID), store.KindAssembly, id)
}

// SetSystemRoot repoints a system's root. The assembly must be top-level and
// belong to the system.
func (r *Repository) SetSystemRoot(ctx context.Context, systemID, assemblyID int64) error {
	if _, err := r.System(ctx, systemID); err != nil {
		return err
	}
	a, err := r.Assembly(ctx, assemblyID)
	if err != nil {
		return err
	}
	details := map[string]string{"system": idString(systemID), "assembly": idString(assemblyID)}
	if a.ParentAssemblyID != nil {
		return NewInvalidCompositionError("system root must be a top-level assembly", details)
	}
	if !model.SameID(a.SystemID, &systemID) {
		return NewInvalidCompositionError("system root must belong to the system", details)
	}
	return mapStoreError(r.rec.UpdateSystemRoot(ctx, systemID, &assemblyID), store.KindSystem, systemID)
}

// --- deletes ---

// Delete removes one record. Dependents on a RESTRICT edge block the delete
// with CONFLICT; CASCADE edges (features of a part, items of an assembly,
// connectors of an item) are removed with it.
func (r *Repository) Delete(ctx context.Context, kind store.Kind, id int64) error {
	if kind.Table() == "" {
		return NewInvalidArgumentError("unknown entity kind %q", kind)
	}
	deps, err := r.rec.Dependents(ctx, kind, id)
	if err != nil {
		return err
	}
	if len(deps) > 0 {
		return NewConflictError(kind, id, deps)
	}
	// Cascading from a part to its features can still hit a connector on one
	// of those features.
	if kind == store.KindPart {
		if err := r.checkFeatureDependents(ctx, id); err != nil {
			return err
		}
	}

	err = r.rec.Delete(ctx, kind, id)
	switch {
	case err == nil:
		return nil
	case store.IsNotFound(err):
		return NewReferenceError(kind, id)
	case store.IsForeignKey(err):
		return errors.Mark(NewConflictError(kind, id, nil), store.ErrForeignKey)
	}
	return err
}

func (r *Repository) checkFeatureDependents(ctx context.Context, partID int64) error {
	features, err := r.rec.ListFeatures(ctx, partID)
	if err != nil {
		return err
	}
	for _, f := range features {
		deps, err := r.rec.Dependents(ctx, store.KindFeature, f.ID)
		if err != nil {
			return err
		}
		if len(deps) > 0 {
			return NewConflictError(store.KindPart, partID, deps)
		}
	}
	return nil
}
