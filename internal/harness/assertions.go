package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/sysarch/internal/assembly"
	"github.com/roach88/sysarch/internal/model"
	"github.com/roach88/sysarch/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// evaluateAssertions runs every assertion and returns the failure messages.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertCount:
			err = h.assertCount(ctx, a)
		case AssertParts:
			err = h.assertParts(ctx, a)
		case AssertConnections:
			err = h.assertConnections(ctx, a)
		case AssertAudit:
			err = h.assertAudit(ctx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func (h *Harness) assertCount(ctx context.Context, a Assertion) error {
	kind, _ := store.ParseKind(a.Table)
	counts, err := h.engine.Reader().Counts(ctx)
	if err != nil {
		return err
	}
	if got := counts[kind]; got != int64(*a.Count) {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d rows in %s", *a.Count, kind.Table()),
			Actual:   fmt.Sprintf("%d rows", got),
		}
	}
	return nil
}

func (h *Harness) assertParts(ctx context.Context, a Assertion) error {
	id, err := h.resolveAny(a.Assembly)
	if err != nil {
		return err
	}
	recursive := a.Recursive == nil || *a.Recursive
	parts, err := h.engine.ListPartsInAssembly(ctx, id, recursive)
	if err != nil {
		return &AssertionError{
			Type:     AssertParts,
			Expected: fmt.Sprintf("paths %v", a.Paths),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	paths := make([]string, len(parts))
	for i, p := range parts {
		paths[i] = p.InstancePath
	}
	if !slices.Equal(paths, a.Paths) {
		return &AssertionError{
			Type:     AssertParts,
			Expected: fmt.Sprintf("paths %v", a.Paths),
			Actual:   fmt.Sprintf("paths %v", paths),
		}
	}
	return nil
}

func (h *Harness) assertConnections(ctx context.Context, a Assertion) error {
	var f assembly.ConnectionFilter
	var desc string
	switch {
	case a.Part != nil:
		id, err := h.resolveAny(a.Part)
		if err != nil {
			return err
		}
		f.PartID, desc = model.ID(id), fmt.Sprintf("part %d", id)
	case a.Feature != nil:
		id, err := h.resolveAny(a.Feature)
		if err != nil {
			return err
		}
		f.FeatureID, desc = model.ID(id), fmt.Sprintf("feature %d", id)
	default:
		id, err := h.resolveAny(a.Item)
		if err != nil {
			return err
		}
		f.ItemID, desc = model.ID(id), fmt.Sprintf("item %d", id)
	}
	conns, err := h.engine.ListConnections(ctx, f)
	if err != nil {
		return &AssertionError{
			Type:     AssertConnections,
			Expected: fmt.Sprintf("%d connectors for %s", *a.Count, desc),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	if len(conns) != *a.Count {
		return &AssertionError{
			Type:     AssertConnections,
			Expected: fmt.Sprintf("%d connectors for %s", *a.Count, desc),
			Actual:   fmt.Sprintf("%d connectors", len(conns)),
		}
	}
	return nil
}

func (h *Harness) assertAudit(ctx context.Context, a Assertion) error {
	report, err := h.engine.Audit(ctx)
	if err != nil {
		return err
	}
	if got := report.Issues(); got != *a.Count {
		return &AssertionError{
			Type:     AssertAudit,
			Expected: fmt.Sprintf("%d audit findings", *a.Count),
			Actual:   fmt.Sprintf("%d findings", got),
		}
	}
	return nil
}
