package assembly

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/roach88/sysarch/internal/model"
	"github.com/roach88/sysarch/internal/store"
)

const tracerName = "github.com/roach88/sysarch/internal/assembly"

// Engine is the entry point for callers. Every mutation runs as one
// transaction: validators read through the same transaction as the write they
// guard, and any failure rolls the whole unit back.
//
// Read operations run outside a transaction and see best-effort consistency
// across statements.
type Engine struct {
	store     *store.Store
	log       *zap.SugaredLogger
	metrics   *Metrics
	tracer    trace.Tracer
	separator string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracerProvider sets the OpenTelemetry provider. The default is the
// global provider, a no-op unless the binary installs one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithSeparator sets the instance-path separator (default "/").
func WithSeparator(sep string) Option {
	return func(e *Engine) {
		if sep != "" {
			e.separator = sep
		}
	}
}

// New creates an Engine over st.
func New(st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		log:       zap.NewNop().Sugar(),
		tracer:    otel.Tracer(tracerName),
		separator: DefaultSeparator,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) repository(rec *store.Records) *Repository {
	r := NewRepository(rec, e.log)
	r.separator = e.separator
	return r
}

// Reader returns a Repository bound to the database outside any transaction.
func (e *Engine) Reader() *Repository {
	return e.repository(e.store.Records())
}

// run wraps one operation with an op id, a span, metrics and logging.
// Mutations execute inside store.InTx.
func (e *Engine) run(ctx context.Context, op string, mutation bool, attrs []attribute.KeyValue, fn func(context.Context, *Repository) error) error {
	opID := newOpID()
	ctx, span := e.tracer.Start(ctx, "assembly.Engine/"+op,
		trace.WithAttributes(append(attrs, attribute.String("sysarch.op_id", opID))...))
	defer span.End()

	start := time.Now()
	var err error
	if mutation {
		err = e.store.InTx(ctx, func(rec *store.Records) error {
			return fn(ctx, e.repository(rec))
		})
	} else {
		err = fn(ctx, e.Reader())
	}
	elapsed := time.Since(start)

	kind := KindOf(err)
	e.metrics.observe(op, mutation, kind, err, elapsed)

	switch {
	case err == nil:
		if mutation {
			e.log.Debugw("Mutation accepted", "op", op, "op_id", opID, "duration", elapsed)
		}
		span.SetStatus(codes.Ok, "")
	case kind != "":
		e.log.Infow("Operation rejected", "op", op, "op_id", opID, "kind", kind, "error", err.Error())
		span.RecordError(err)
		span.SetAttributes(attribute.String("sysarch.error_kind", string(kind)))
		span.SetStatus(codes.Error, string(kind))
	default:
		e.log.Errorw("Operation failed", "op", op, "op_id", opID, "error", err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, "internal error")
	}
	return err
}

func newOpID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func idAttr(key string, id int64) attribute.KeyValue {
	return attribute.Int64("sysarch."+key, id)
}

func optIDAttrs(key string, id *int64) []attribute.KeyValue {
	if id == nil {
		return nil
	}
	return []attribute.KeyValue{idAttr(key, *id)}
}

// --- mutations ---

// CreateSystem creates a system, optionally pointing at an existing root.
func (e *Engine) CreateSystem(ctx context.Context, name string, root *int64) (int64, error) {
	var id int64
	err := e.run(ctx, "CreateSystem", true, optIDAttrs("root_assembly_id", root), func(ctx context.Context, r *Repository) error {
		var err error
		id, err = r.CreateSystem(ctx, name, root)
		return err
	})
	return id, err
}

// SetSystemRoot repoints a system's root assembly.
func (e *Engine) SetSystemRoot(ctx context.Context, systemID, assemblyID int64) error {
	attrs := []attribute.KeyValue{idAttr("system_id", systemID), idAttr("assembly_id", assemblyID)}
	return e.run(ctx, "SetSystemRoot", true, attrs, func(ctx context.Context, r *Repository) error {
		return r.SetSystemRoot(ctx, systemID, assemblyID)
	})
}

// CreatePart creates a part.
func (e *Engine) CreatePart(ctx context.Context, name, fileLocation string) (int64, error) {
	var id int64
	err := e.run(ctx, "CreatePart", true, nil, func(ctx context.Context, r *Repository) error {
		var err error
		id, err = r.CreatePart(ctx, name, fileLocation)
		return err
	})
	return id, err
}

// CreateFeature creates a feature on a part.
func (e *Engine) CreateFeature(ctx context.Context, partID int64, name string) (int64, error) {
	var id int64
	err := e.run(ctx, "CreateFeature", true, []attribute.KeyValue{idAttr("part_id", partID)}, func(ctx context.Context, r *Repository) error {
		var err error
		id, err = r.CreateFeature(ctx, partID, name)
		return err
	})
	return id, err
}

// CreateAssembly creates an assembly, validating its parent link when set.
func (e *Engine) CreateAssembly(ctx context.Context, in NewAssembly) (int64, error) {
	var id int64
	attrs := append(optIDAttrs("system_id", in.SystemID), optIDAttrs("parent_assembly_id", in.ParentAssemblyID)...)
	err := e.run(ctx, "CreateAssembly", true, attrs, func(ctx context.Context, r *Repository) error {
		var err error
		id, err = r.CreateAssembly(ctx, in)
		return err
	})
	return id, err
}

// SetAssemblyParent sets or clears an assembly's parent link.
func (e *Engine) SetAssemblyParent(ctx context.Context, id int64, parentID *int64) error {
	attrs := append([]attribute.KeyValue{idAttr("assembly_id", id)}, optIDAttrs("parent_assembly_id", parentID)...)
	return e.run(ctx, "SetAssemblyParent", true, attrs, func(ctx context.Context, r *Repository) error {
		return r.SetAssemblyParent(ctx, id, parentID)
	})
}

// CreateAssemblyItem creates an instance slot inside an assembly.
func (e *Engine) CreateAssemblyItem(ctx context.Context, in NewItem) (int64, error) {
	var id int64
	attrs := []attribute.KeyValue{idAttr("assembly_id", in.AssemblyID)}
	attrs = append(attrs, optIDAttrs("part_id", in.PartID)...)
	attrs = append(attrs, optIDAttrs("sub_assembly_id", in.SubAssemblyID)...)
	err := e.run(ctx, "CreateAssemblyItem", true, attrs, func(ctx context.Context, r *Repository) error {
		var err error
		id, err = r.CreateAssemblyItem(ctx, in)
		return err
	})
	return id, err
}

// CreateConnector creates a connector between two instance-features.
func (e *Engine) CreateConnector(ctx context.Context, in NewConnector) (int64, error) {
	var id int64
	attrs := []attribute.KeyValue{
		attribute.String("sysarch.connector_type", in.Type),
		idAttr("feature1_id", in.Feature1ID), idAttr("item1_id", in.Item1ID),
		idAttr("feature2_id", in.Feature2ID), idAttr("item2_id", in.Item2ID),
	}
	err := e.run(ctx, "CreateConnector", true, attrs, func(ctx context.Context, r *Repository) error {
		var err error
		id, err = r.CreateConnector(ctx, in)
		return err
	})
	return id, err
}

// Delete removes one record under the restrict-by-default policy.
func (e *Engine) Delete(ctx context.Context, kind store.Kind, id int64) error {
	attrs := []attribute.KeyValue{attribute.String("sysarch.kind", string(kind)), idAttr("id", id)}
	return e.run(ctx, "Delete", true, attrs, func(ctx context.Context, r *Repository) error {
		return r.Delete(ctx, kind, id)
	})
}

// Batch runs fn as a single unit of work. Every Repository operation keeps
// its validation; the first error rolls back everything fn wrote.
func (e *Engine) Batch(ctx context.Context, fn func(ctx context.Context, r *Repository) error) error {
	return e.run(ctx, "Batch", true, nil, fn)
}

// --- queries ---

// ListPartsInAssembly flattens the part occurrences of an assembly.
func (e *Engine) ListPartsInAssembly(ctx context.Context, assemblyID int64, recursive bool) ([]PartInstance, error) {
	var out []PartInstance
	attrs := []attribute.KeyValue{idAttr("assembly_id", assemblyID), attribute.Bool("sysarch.recursive", recursive)}
	err := e.run(ctx, "ListPartsInAssembly", false, attrs, func(ctx context.Context, r *Repository) error {
		var err error
		out, err = r.ListPartsInAssembly(ctx, assemblyID, recursive)
		return err
	})
	return out, err
}

// GetAssemblyHierarchy reconstructs the tree rooted at an assembly.
func (e *Engine) GetAssemblyHierarchy(ctx context.Context, assemblyID int64) (*HierarchyNode, error) {
	var node *HierarchyNode
	err := e.run(ctx, "GetAssemblyHierarchy", false, []attribute.KeyValue{idAttr("assembly_id", assemblyID)}, func(ctx context.Context, r *Repository) error {
		var err error
		node, err = r.Hierarchy(ctx, assemblyID)
		return err
	})
	return node, err
}

// ListConnections lists connectors by part, feature or item.
func (e *Engine) ListConnections(ctx context.Context, f ConnectionFilter) ([]model.Connector, error) {
	var out []model.Connector
	err := e.run(ctx, "ListConnections", false, nil, func(ctx context.Context, r *Repository) error {
		var err error
		out, err = r.ListConnections(ctx, f)
		return err
	})
	return out, err
}

// ListFeatures lists the features of a part.
func (e *Engine) ListFeatures(ctx context.Context, partID int64) ([]model.Feature, error) {
	var out []model.Feature
	err := e.run(ctx, "ListFeatures", false, []attribute.KeyValue{idAttr("part_id", partID)}, func(ctx context.Context, r *Repository) error {
		var err error
		out, err = r.ListFeatures(ctx, partID)
		return err
	})
	return out, err
}

// ListSystems lists every system.
func (e *Engine) ListSystems(ctx context.Context) ([]model.System, error) {
	var out []model.System
	err := e.run(ctx, "ListSystems", false, nil, func(ctx context.Context, r *Repository) error {
		var err error
		out, err = r.ListSystems(ctx)
		return err
	})
	return out, err
}

// ListAssemblies lists assemblies, optionally only those of one system.
func (e *Engine) ListAssemblies(ctx context.Context, systemID *int64) ([]model.Assembly, error) {
	var out []model.Assembly
	err := e.run(ctx, "ListAssemblies", false, optIDAttrs("system_id", systemID), func(ctx context.Context, r *Repository) error {
		var err error
		out, err = r.ListAssemblies(ctx, systemID)
		return err
	})
	return out, err
}

// Audit scans the whole store for integrity findings.
func (e *Engine) Audit(ctx context.Context) (*AuditReport, error) {
	var report *AuditReport
	err := e.run(ctx, "Audit", false, nil, func(ctx context.Context, r *Repository) error {
		var err error
		report, err = r.Audit(ctx)
		return err
	})
	if err == nil && !report.Clean() {
		e.log.Warnw("Integrity audit found issues",
			"cycles", len(report.Cycles),
			"duplicate_instances", len(report.DuplicateInstances),
			"stale_connectors", len(report.StaleConnectors),
		)
	}
	return report, err
}
