package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/sysarch/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Records is the per-entity insert/fetch/list/delete surface of the store,
// bound either to the database or to one transaction.
//
// All list operations order by id ascending, which is insertion order.
// They return empty slices (not nil) when nothing matches.
type Records struct {
	q       querier
	dialect Dialect
}

// rebind rewrites ? placeholders as $N for Postgres.
func (r *Records) rebind(query string) string {
	if r.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *Records) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	res, err := r.q.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, classify(err, op)
	}
	return res, nil
}

func (r *Records) insert(ctx context.Context, op, query string, args ...any) (int64, error) {
	var id int64
	if err := r.q.QueryRowContext(ctx, r.rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
		return 0, classify(err, op)
	}
	return id, nil
}

func (r *Records) query(ctx context.Context, op, query string, args ...any) (*sql.Rows, error) {
	rows, err := r.q.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, classify(err, op)
	}
	return rows, nil
}

func nullID(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func idPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// --- systems ---

// InsertSystem inserts a system and returns its assigned id.
func (r *Records) InsertSystem(ctx context.Context, s model.System) (int64, error) {
	return r.insert(ctx, "insert system",
		`INSERT INTO systems (name, overall_assembly_id) VALUES (?, ?)`,
		s.Name, nullID(s.OverallAssemblyID))
}

// GetSystem fetches one system by id.
func (r *Records) GetSystem(ctx context.Context, id int64) (model.System, error) {
	var s model.System
	var root sql.NullInt64
	err := r.q.QueryRowContext(ctx, r.rebind(
		`SELECT id, name, overall_assembly_id FROM systems WHERE id = ?`), id,
	).Scan(&s.ID, &s.Name, &root)
	if err != nil {
		return model.System{}, classify(err, "get system "+strconv.FormatInt(id, 10))
	}
	s.OverallAssemblyID = idPtr(root)
	return s, nil
}

// ListSystems returns every system.
func (r *Records) ListSystems(ctx context.Context) ([]model.System, error) {
	rows, err := r.query(ctx, "list systems",
		`SELECT id, name, overall_assembly_id FROM systems ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	systems := []model.System{}
	for rows.Next() {
		var s model.System
		var root sql.NullInt64
		if err := rows.Scan(&s.ID, &s.Name, &root); err != nil {
			return nil, errors.Wrap(err, "scan system")
		}
		s.OverallAssemblyID = idPtr(root)
		systems = append(systems, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate systems")
	}
	return systems, nil
}

// UpdateSystemRoot repoints a system's root assembly. A nil assemblyID clears it.
func (r *Records) UpdateSystemRoot(ctx context.Context, systemID int64, assemblyID *int64) error {
	res, err := r.exec(ctx, "update system root",
		`UPDATE systems SET overall_assembly_id = ? WHERE id = ?`,
		nullID(assemblyID), systemID)
	if err != nil {
		return err
	}
	return requireAffected(res, "update system root")
}

// --- assemblies ---

const assemblyColumns = `id, name, file_location, image, system_id, parent_assembly_id`

func scanAssembly(row interface{ Scan(...any) error }) (model.Assembly, error) {
	var a model.Assembly
	var image sql.NullString
	var system, parent sql.NullInt64
	if err := row.Scan(&a.ID, &a.Name, &a.FileLocation, &image, &system, &parent); err != nil {
		return model.Assembly{}, err
	}
	a.Image = image.String
	a.SystemID = idPtr(system)
	a.ParentAssemblyID = idPtr(parent)
	return a, nil
}

// InsertAssembly inserts an assembly and returns its assigned id.
func (r *Records) InsertAssembly(ctx context.Context, a model.Assembly) (int64, error) {
	return r.insert(ctx, "insert assembly",
		`INSERT INTO assemblies (name, file_location, image, system_id, parent_assembly_id) VALUES (?, ?, ?, ?, ?)`,
		a.Name, a.FileLocation, nullString(a.Image), nullID(a.SystemID), nullID(a.ParentAssemblyID))
}

// GetAssembly fetches one assembly by id.
func (r *Records) GetAssembly(ctx context.Context, id int64) (model.Assembly, error) {
	a, err := scanAssembly(r.q.QueryRowContext(ctx, r.rebind(
		`SELECT `+assemblyColumns+` FROM assemblies WHERE id = ?`), id))
	if err != nil {
		return model.Assembly{}, classify(err, "get assembly "+strconv.FormatInt(id, 10))
	}
	return a, nil
}

// ListAssemblies returns assemblies, restricted to one system when systemID is set.
func (r *Records) ListAssemblies(ctx context.Context, systemID *int64) ([]model.Assembly, error) {
	if systemID != nil {
		return r.listAssemblies(ctx, `WHERE system_id = ?`, *systemID)
	}
	return r.listAssemblies(ctx, "")
}

// ListChildAssemblies returns the assemblies whose parent link points at parentID.
func (r *Records) ListChildAssemblies(ctx context.Context, parentID int64) ([]model.Assembly, error) {
	return r.listAssemblies(ctx, `WHERE parent_assembly_id = ?`, parentID)
}

func (r *Records) listAssemblies(ctx context.Context, where string, args ...any) ([]model.Assembly, error) {
	rows, err := r.query(ctx, "list assemblies",
		`SELECT `+assemblyColumns+` FROM assemblies `+where+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assemblies := []model.Assembly{}
	for rows.Next() {
		a, err := scanAssembly(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan assembly")
		}
		assemblies = append(assemblies, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate assemblies")
	}
	return assemblies, nil
}

// SetAssemblyParent sets or (with nil) clears an assembly's parent link.
func (r *Records) SetAssemblyParent(ctx context.Context, id int64, parentID *int64) error {
	res, err := r.exec(ctx, "set assembly parent",
		`UPDATE assemblies SET parent_assembly_id = ? WHERE id = ?`,
		nullID(parentID), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "set assembly parent")
}

// SetAssemblySystem sets or (with nil) clears the system owning an assembly.
func (r *Records) SetAssemblySystem(ctx context.Context, id int64, systemID *int64) error {
	res, err := r.exec(ctx, "set assembly system",
		`UPDATE assemblies SET system_id = ? WHERE id = ?`,
		nullID(systemID), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "set assembly system")
}

// --- parts ---

// InsertPart inserts a part and returns its assigned id.
func (r *Records) InsertPart(ctx context.Context, p model.Part) (int64, error) {
	return r.insert(ctx, "insert part",
		`INSERT INTO parts (name, file_location) VALUES (?, ?)`,
		p.Name, p.FileLocation)
}

// GetPart fetches one part by id.
func (r *Records) GetPart(ctx context.Context, id int64) (model.Part, error) {
	var p model.Part
	err := r.q.QueryRowContext(ctx, r.rebind(
		`SELECT id, name, file_location FROM parts WHERE id = ?`), id,
	).Scan(&p.ID, &p.Name, &p.FileLocation)
	if err != nil {
		return model.Part{}, classify(err, "get part "+strconv.FormatInt(id, 10))
	}
	return p, nil
}

// ListParts returns every part.
func (r *Records) ListParts(ctx context.Context) ([]model.Part, error) {
	rows, err := r.query(ctx, "list parts",
		`SELECT id, name, file_location FROM parts ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	parts := []model.Part{}
	for rows.Next() {
		var p model.Part
		if err := rows.Scan(&p.ID, &p.Name, &p.FileLocation); err != nil {
			return nil, errors.Wrap(err, "scan part")
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate parts")
	}
	return parts, nil
}

// --- features ---

// InsertFeature inserts a feature and returns its assigned id.
func (r *Records) InsertFeature(ctx context.Context, f model.Feature) (int64, error) {
	return r.insert(ctx, "insert feature",
		`INSERT INTO features (name, part_id) VALUES (?, ?)`,
		f.Name, f.PartID)
}

// GetFeature fetches one feature by id.
func (r *Records) GetFeature(ctx context.Context, id int64) (model.Feature, error) {
	var f model.Feature
	err := r.q.QueryRowContext(ctx, r.rebind(
		`SELECT id, name, part_id FROM features WHERE id = ?`), id,
	).Scan(&f.ID, &f.Name, &f.PartID)
	if err != nil {
		return model.Feature{}, classify(err, "get feature "+strconv.FormatInt(id, 10))
	}
	return f, nil
}

// ListFeatures returns the features owned by partID.
func (r *Records) ListFeatures(ctx context.Context, partID int64) ([]model.Feature, error) {
	rows, err := r.query(ctx, "list features",
		`SELECT id, name, part_id FROM features WHERE part_id = ? ORDER BY id ASC`, partID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	features := []model.Feature{}
	for rows.Next() {
		var f model.Feature
		if err := rows.Scan(&f.ID, &f.Name, &f.PartID); err != nil {
			return nil, errors.Wrap(err, "scan feature")
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate features")
	}
	return features, nil
}

// --- assembly items ---

const itemColumns = `id, assembly_id, part_id, sub_assembly_id, instance_name`

func scanItem(row interface{ Scan(...any) error }) (model.AssemblyItem, error) {
	var it model.AssemblyItem
	var part, sub sql.NullInt64
	if err := row.Scan(&it.ID, &it.AssemblyID, &part, &sub, &it.InstanceName); err != nil {
		return model.AssemblyItem{}, err
	}
	it.PartID = idPtr(part)
	it.SubAssemblyID = idPtr(sub)
	return it, nil
}

// InsertItem inserts an assembly item and returns its assigned id.
func (r *Records) InsertItem(ctx context.Context, it model.AssemblyItem) (int64, error) {
	return r.insert(ctx, "insert assembly item",
		`INSERT INTO assembly_items (assembly_id, part_id, sub_assembly_id, instance_name) VALUES (?, ?, ?, ?)`,
		it.AssemblyID, nullID(it.PartID), nullID(it.SubAssemblyID), it.InstanceName)
}

// GetItem fetches one assembly item by id.
func (r *Records) GetItem(ctx context.Context, id int64) (model.AssemblyItem, error) {
	it, err := scanItem(r.q.QueryRowContext(ctx, r.rebind(
		`SELECT `+itemColumns+` FROM assembly_items WHERE id = ?`), id))
	if err != nil {
		return model.AssemblyItem{}, classify(err, "get assembly item "+strconv.FormatInt(id, 10))
	}
	return it, nil
}

// ListItems returns the items of one assembly in insertion order.
func (r *Records) ListItems(ctx context.Context, assemblyID int64) ([]model.AssemblyItem, error) {
	return r.listItems(ctx, `WHERE assembly_id = ?`, assemblyID)
}

// ListItemsBySubAssembly returns the items, in any assembly, that instantiate subAssemblyID.
func (r *Records) ListItemsBySubAssembly(ctx context.Context, subAssemblyID int64) ([]model.AssemblyItem, error) {
	return r.listItems(ctx, `WHERE sub_assembly_id = ?`, subAssemblyID)
}

// ListItemsByPart returns the items, in any assembly, that instantiate partID.
func (r *Records) ListItemsByPart(ctx context.Context, partID int64) ([]model.AssemblyItem, error) {
	return r.listItems(ctx, `WHERE part_id = ?`, partID)
}

// ListAllItems returns every assembly item.
func (r *Records) ListAllItems(ctx context.Context) ([]model.AssemblyItem, error) {
	return r.listItems(ctx, "")
}

func (r *Records) listItems(ctx context.Context, where string, args ...any) ([]model.AssemblyItem, error) {
	rows, err := r.query(ctx, "list assembly items",
		`SELECT `+itemColumns+` FROM assembly_items `+where+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []model.AssemblyItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan assembly item")
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate assembly items")
	}
	return items, nil
}

// --- connectors ---

const connectorColumns = `id, type, feature1_id, feature2_id, assembly_item1_id, assembly_item2_id`

func scanConnector(row interface{ Scan(...any) error }) (model.Connector, error) {
	var c model.Connector
	var typ string
	if err := row.Scan(&c.ID, &typ, &c.Feature1ID, &c.Feature2ID, &c.AssemblyItem1ID, &c.AssemblyItem2ID); err != nil {
		return model.Connector{}, err
	}
	c.Type = model.ConnectorType(typ)
	return c, nil
}

// InsertConnector inserts a connector and returns its assigned id.
func (r *Records) InsertConnector(ctx context.Context, c model.Connector) (int64, error) {
	return r.insert(ctx, "insert connector",
		`INSERT INTO connectors (type, feature1_id, feature2_id, assembly_item1_id, assembly_item2_id) VALUES (?, ?, ?, ?, ?)`,
		string(c.Type), c.Feature1ID, c.Feature2ID, c.AssemblyItem1ID, c.AssemblyItem2ID)
}

// GetConnector fetches one connector by id.
func (r *Records) GetConnector(ctx context.Context, id int64) (model.Connector, error) {
	c, err := scanConnector(r.q.QueryRowContext(ctx, r.rebind(
		`SELECT `+connectorColumns+` FROM connectors WHERE id = ?`), id))
	if err != nil {
		return model.Connector{}, classify(err, "get connector "+strconv.FormatInt(id, 10))
	}
	return c, nil
}

// ListConnectors returns every connector.
func (r *Records) ListConnectors(ctx context.Context) ([]model.Connector, error) {
	return r.listConnectors(ctx, "")
}

// ListConnectorsByFeature returns connectors with featureID on either end.
func (r *Records) ListConnectorsByFeature(ctx context.Context, featureID int64) ([]model.Connector, error) {
	return r.listConnectors(ctx, `WHERE feature1_id = ? OR feature2_id = ?`, featureID, featureID)
}

// ListConnectorsByItem returns connectors with itemID on either end.
func (r *Records) ListConnectorsByItem(ctx context.Context, itemID int64) ([]model.Connector, error) {
	return r.listConnectors(ctx, `WHERE assembly_item1_id = ? OR assembly_item2_id = ?`, itemID, itemID)
}

// ListConnectorsByPart returns connectors touching any feature owned by partID.
// A connector appears once even when both ends belong to the part.
func (r *Records) ListConnectorsByPart(ctx context.Context, partID int64) ([]model.Connector, error) {
	return r.listConnectors(ctx, `
		WHERE feature1_id IN (SELECT id FROM features WHERE part_id = ?)
		   OR feature2_id IN (SELECT id FROM features WHERE part_id = ?)`, partID, partID)
}

func (r *Records) listConnectors(ctx context.Context, where string, args ...any) ([]model.Connector, error) {
	rows, err := r.query(ctx, "list connectors",
		`SELECT `+connectorColumns+` FROM connectors `+where+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	connectors := []model.Connector{}
	for rows.Next() {
		c, err := scanConnector(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan connector")
		}
		connectors = append(connectors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate connectors")
	}
	return connectors, nil
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "%s: rows affected", op)
	}
	if n == 0 {
		return errors.Wrap(ErrNotFound, op)
	}
	return nil
}
