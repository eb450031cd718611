package harness

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sysarch/internal/assembly"
	"github.com/roach88/sysarch/internal/store"
)

// Scenario defines a conformance test scenario: a sequence of core
// operations, the rejections some of them must produce, and assertions on
// the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps are executed in order against a fresh store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	// Supported types: count, parts, connections, audit
	Assertions []Assertion `yaml:"assertions"`

	// Golden optionally names an assembly ($ref) whose hierarchy is captured
	// in the result for snapshot comparison.
	Golden string `yaml:"golden,omitempty"`
}

// Step invokes one operation.
type Step struct {
	// Op is the operation name (e.g. "create_assembly_item").
	Op string `yaml:"op"`

	// As names the created id so later steps can refer to it as "$name".
	As string `yaml:"as,omitempty"`

	// Args are the operation arguments. Id arguments take an integer or a
	// "$name" reference; null clears an optional id.
	Args map[string]any `yaml:"args"`

	// ExpectError is the error kind the step must be rejected with
	// (e.g. "CYCLE"). Empty means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "count": rows in Table equal Count
	// - "parts": instance paths of Assembly equal Paths
	// - "connections": connectors of Part, Feature or Item equal Count
	// - "audit": number of audit findings equals Count
	Type string `yaml:"type"`

	// Table is the table or kind name (used by count).
	Table string `yaml:"table,omitempty"`

	// Count is the expected number (count, connections, audit).
	Count *int `yaml:"count,omitempty"`

	// Assembly is the queried assembly (used by parts).
	Assembly any `yaml:"assembly,omitempty"`

	// Recursive expands sub-assemblies (used by parts, default true).
	Recursive *bool `yaml:"recursive,omitempty"`

	// Paths are the expected instance paths in order (used by parts).
	Paths []string `yaml:"paths,omitempty"`

	// Part, Feature and Item select connectors; exactly one is set
	// (used by connections).
	Part    any `yaml:"part,omitempty"`
	Feature any `yaml:"feature,omitempty"`
	Item    any `yaml:"item,omitempty"`
}

// Assertion type constants.
const (
	AssertCount       = "count"
	AssertParts       = "parts"
	AssertConnections = "connections"
	AssertAudit       = "audit"
)

// operation describes the arguments of one step op.
type operation struct {
	required []string
	optional []string
	ids      []string // arguments holding an id or $ref
	creates  bool
}

var operations = map[string]operation{
	"create_system": {
		required: []string{"name"}, optional: []string{"root"},
		ids: []string{"root"}, creates: true,
	},
	"set_system_root": {
		required: []string{"system", "assembly"},
		ids:      []string{"system", "assembly"},
	},
	"create_part": {
		required: []string{"name"}, optional: []string{"file"}, creates: true,
	},
	"create_feature": {
		required: []string{"part", "name"},
		ids:      []string{"part"}, creates: true,
	},
	"create_assembly": {
		required: []string{"name"}, optional: []string{"file", "image", "system", "parent"},
		ids: []string{"system", "parent"}, creates: true,
	},
	"set_assembly_parent": {
		required: []string{"assembly"}, optional: []string{"parent"},
		ids: []string{"assembly", "parent"},
	},
	"create_assembly_item": {
		required: []string{"assembly", "name"}, optional: []string{"part", "sub_assembly"},
		ids: []string{"assembly", "part", "sub_assembly"}, creates: true,
	},
	"create_connector": {
		required: []string{"type", "feature1", "item1", "feature2", "item2"},
		ids:      []string{"feature1", "item1", "feature2", "item2"}, creates: true,
	},
	"delete": {
		required: []string{"kind", "id"},
		ids:      []string{"id"},
	},
}

// Operations returns the supported step ops in sorted order.
func Operations() []string {
	ops := make([]string, 0, len(operations))
	for op := range operations {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario file")
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, errors.Wrap(err, "parse YAML")
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, errors.Wrap(err, "invalid scenario")
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario directory")
	}
	var out []*Scenario
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		s, err := LoadScenario(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "%s", e.Name())
		}
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and every
// reference points at an earlier step.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return errors.New("assertions list is required and must be non-empty")
	}

	aliases := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(step, aliases); err != nil {
			return errors.Wrapf(err, "steps[%d]", i)
		}
		if step.As != "" {
			aliases[step.As] = true
		}
	}

	if s.Golden != "" {
		if err := checkRef(s.Golden, aliases); err != nil {
			return errors.Wrap(err, "golden")
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, aliases); err != nil {
			return errors.Wrapf(err, "assertions[%d]", i)
		}
	}
	return nil
}

func validateStep(step Step, aliases map[string]bool) error {
	op, ok := operations[step.Op]
	if !ok {
		return errors.Newf("unknown op %q (supported: %s)", step.Op, strings.Join(Operations(), ", "))
	}
	if step.Args == nil {
		return errors.New("args is required (use empty map if no args)")
	}
	for _, k := range op.required {
		if _, ok := step.Args[k]; !ok {
			return errors.Newf("%s: arg %q is required", step.Op, k)
		}
	}
	for k, v := range step.Args {
		if !slices.Contains(op.required, k) && !slices.Contains(op.optional, k) {
			return errors.Newf("%s: unknown arg %q", step.Op, k)
		}
		if slices.Contains(op.ids, k) {
			if err := validateID(v, aliases); err != nil {
				return errors.Wrapf(err, "arg %q", k)
			}
		}
	}
	if step.As != "" {
		if !op.creates {
			return errors.Newf("%s does not create a record; remove as: %s", step.Op, step.As)
		}
		if aliases[step.As] {
			return errors.Newf("alias %q is already defined", step.As)
		}
	}
	if step.ExpectError != "" {
		if _, ok := assembly.ParseErrorKind(step.ExpectError); !ok {
			return errors.Newf("unknown error kind %q", step.ExpectError)
		}
	}
	if step.Op == "delete" {
		kind, _ := step.Args["kind"].(string)
		if _, ok := store.ParseKind(kind); !ok {
			return errors.Newf("delete: unknown kind %v", step.Args["kind"])
		}
	}
	return nil
}

func validateAssertion(a Assertion, aliases map[string]bool) error {
	switch a.Type {
	case "":
		return errors.New("type is required")
	case AssertCount:
		if _, ok := store.ParseKind(a.Table); !ok {
			return errors.Newf("count: unknown table %q", a.Table)
		}
		if a.Count == nil {
			return errors.New("count is required for count")
		}
	case AssertParts:
		if a.Assembly == nil {
			return errors.New("assembly is required for parts")
		}
		if err := validateID(a.Assembly, aliases); err != nil {
			return errors.Wrap(err, "assembly")
		}
		if a.Paths == nil {
			return errors.New("paths is required for parts (use [] for none)")
		}
	case AssertConnections:
		set := 0
		for _, v := range []any{a.Part, a.Feature, a.Item} {
			if v != nil {
				set++
				if err := validateID(v, aliases); err != nil {
					return err
				}
			}
		}
		if set != 1 {
			return errors.New("exactly one of part, feature, item is required for connections")
		}
		if a.Count == nil {
			return errors.New("count is required for connections")
		}
	case AssertAudit:
		if a.Count == nil {
			return errors.New("count is required for audit")
		}
	default:
		return errors.Newf("unknown assertion type %q", a.Type)
	}
	return nil
}

func validateID(v any, aliases map[string]bool) error {
	switch val := v.(type) {
	case nil, int:
		return nil
	case string:
		return checkRef(val, aliases)
	default:
		return errors.Newf("expected an integer id or $ref, got %T", v)
	}
}

func checkRef(s string, aliases map[string]bool) error {
	name, ok := strings.CutPrefix(s, "$")
	if !ok {
		return errors.Newf("reference %q must start with $", s)
	}
	if !aliases[name] {
		return errors.Newf("reference %q does not name an earlier step", s)
	}
	return nil
}
