package manifest

import (
	_ "embed"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/cockroachdb/errors"
)

//go:embed schema.cue
var schemaCUE string

// Manifest is the decoded form of a manifest file.
type Manifest struct {
	System     *System             `json:"system,omitempty"`
	Parts      map[string]Part     `json:"parts,omitempty"`
	Assemblies map[string]Assembly `json:"assemblies,omitempty"`
	Connectors []Connector         `json:"connectors,omitempty"`
}

// System names the project root. Root, when set, names an assembly.
type System struct {
	Name string `json:"name"`
	Root string `json:"root,omitempty"`
}

// Part is a part and the names of its features.
type Part struct {
	File     string   `json:"file"`
	Features []string `json:"features"`
}

// Assembly is an assembly, its optional parent and its ordered items.
type Assembly struct {
	File   string `json:"file"`
	Image  string `json:"image,omitempty"`
	Parent string `json:"parent,omitempty"`
	Items  []Item `json:"items"`
}

// Item is one instance slot. Part and SubAssembly name a part or assembly.
type Item struct {
	Name        string `json:"name"`
	Part        string `json:"part,omitempty"`
	SubAssembly string `json:"sub_assembly,omitempty"`
}

// Connector links two ends.
type Connector struct {
	Type string `json:"type"`
	From End    `json:"from"`
	To   End    `json:"to"`
}

// End locates one connector end. Feature is "Part.Feature".
type End struct {
	Assembly string `json:"assembly"`
	Item     string `json:"item"`
	Feature  string `json:"feature"`
}

// ErrInvalidManifest wraps every schema or syntax failure from Load and Parse.
var ErrInvalidManifest = errors.New("invalid manifest")

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read manifest %s", path)
	}
	return Parse(data, filepath.Base(path))
}

// Parse validates CUE source against the manifest schema and decodes it.
// filename is used in error positions.
func Parse(data []byte, filename string) (*Manifest, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, errors.Wrap(err, "compile manifest schema")
	}
	def := schema.LookupPath(cue.ParsePath("#Manifest"))

	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, invalid(err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, invalid(err)
	}

	var m Manifest
	if err := unified.Decode(&m); err != nil {
		return nil, invalid(err)
	}
	return &m, nil
}

func invalid(err error) error {
	return errors.WithHint(
		errors.Mark(errors.Newf("%s", cueerrors.Details(err, nil)), ErrInvalidManifest),
		"check the manifest against the schema: system, parts, assemblies, connectors",
	)
}

// PartNames returns the part names in sorted order.
func (m *Manifest) PartNames() []string { return sortedKeys(m.Parts) }

// AssemblyNames returns the assembly names in sorted order.
func (m *Manifest) AssemblyNames() []string { return sortedKeys(m.Assemblies) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
