package harness

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/sysarch/internal/assembly"
	"github.com/roach88/sysarch/internal/model"
	"github.com/roach88/sysarch/internal/store"
)

// Harness executes one scenario against its own store.
type Harness struct {
	engine  *assembly.Engine
	log     *zap.SugaredLogger
	aliases map[string]int64
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Ids are assigned in
// insertion order, so traces are reproducible across runs.
//
// Execution flow:
//  1. Create fresh in-memory database
//  2. Execute steps; a step that is rejected must name the rejection kind
//     and leave every table count unchanged
//  3. Evaluate assertions
//  4. Capture the golden hierarchy, if requested
//
// The returned error reports infrastructure failures only; scenario
// failures are collected in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, log *zap.SugaredLogger, opts ...assembly.Option) (*Result, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "create in-memory store")
	}
	defer st.Close()

	h := &Harness{
		engine:  assembly.New(st, append(opts, assembly.WithLogger(log))...),
		log:     log.With("scenario", scenario.Name),
		aliases: make(map[string]int64),
	}

	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, err
	}
	if !result.Pass {
		return result, nil
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}

	if scenario.Golden != "" {
		id, err := h.resolve(scenario.Golden)
		if err != nil {
			return nil, err
		}
		tree, err := h.engine.GetAssemblyHierarchy(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "golden hierarchy")
		}
		result.Hierarchy = tree
	}
	return result, nil
}

// executeSteps runs steps in order and stops at the first one that does not
// behave as expected.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		args, err := h.resolveArgs(step)
		if err != nil {
			return errors.Wrapf(err, "step %d", i)
		}

		var before map[store.Kind]int64
		if step.ExpectError != "" {
			if before, err = h.engine.Reader().Counts(ctx); err != nil {
				return errors.Wrap(err, "count rows")
			}
		}

		id, stepErr := h.invoke(ctx, step.Op, args)
		rec := StepRecord{Step: i, Op: step.Op, Args: args, ID: id}
		if stepErr != nil {
			rec.Error = string(assembly.KindOf(stepErr))
		}
		result.addStep(rec)

		if msg := checkOutcome(i, step, stepErr); msg != "" {
			result.AddError(msg)
			return nil
		}

		if step.ExpectError != "" {
			after, err := h.engine.Reader().Counts(ctx)
			if err != nil {
				return errors.Wrap(err, "count rows")
			}
			if !maps.Equal(before, after) {
				result.AddError(fmt.Sprintf("step %d (%s): rejected step changed the store: before %v, after %v",
					i, step.Op, before, after))
				return nil
			}
			continue
		}

		if step.As != "" {
			h.aliases[step.As] = id
		}
		h.log.Debugw("Step completed", "step", i, "op", step.Op, "id", id)
	}
	return nil
}

func checkOutcome(i int, step Step, err error) string {
	if step.ExpectError == "" {
		if err != nil {
			return fmt.Sprintf("step %d (%s): unexpected error: %v", i, step.Op, err)
		}
		return ""
	}
	want, _ := assembly.ParseErrorKind(step.ExpectError)
	if err == nil {
		return fmt.Sprintf("step %d (%s): expected %s, got success", i, step.Op, want)
	}
	if got := assembly.KindOf(err); got != want {
		return fmt.Sprintf("step %d (%s): expected %s, got %v", i, step.Op, want, err)
	}
	return ""
}

// invoke dispatches one operation. Argument presence and types were checked
// by validateScenario.
func (h *Harness) invoke(ctx context.Context, op string, args map[string]any) (int64, error) {
	eng := h.engine
	switch op {
	case "create_system":
		return eng.CreateSystem(ctx, argStr(args, "name"), argOptID(args, "root"))
	case "set_system_root":
		return 0, eng.SetSystemRoot(ctx, argID(args, "system"), argID(args, "assembly"))
	case "create_part":
		return eng.CreatePart(ctx, argStr(args, "name"), argStr(args, "file"))
	case "create_feature":
		return eng.CreateFeature(ctx, argID(args, "part"), argStr(args, "name"))
	case "create_assembly":
		return eng.CreateAssembly(ctx, assembly.NewAssembly{
			Name:             argStr(args, "name"),
			FileLocation:     argStr(args, "file"),
			Image:            argStr(args, "image"),
			SystemID:         argOptID(args, "system"),
			ParentAssemblyID: argOptID(args, "parent"),
		})
	case "set_assembly_parent":
		return 0, eng.SetAssemblyParent(ctx, argID(args, "assembly"), argOptID(args, "parent"))
	case "create_assembly_item":
		return eng.CreateAssemblyItem(ctx, assembly.NewItem{
			AssemblyID:    argID(args, "assembly"),
			PartID:        argOptID(args, "part"),
			SubAssemblyID: argOptID(args, "sub_assembly"),
			InstanceName:  argStr(args, "name"),
		})
	case "create_connector":
		return eng.CreateConnector(ctx, assembly.NewConnector{
			Type:       argStr(args, "type"),
			Feature1ID: argID(args, "feature1"),
			Item1ID:    argID(args, "item1"),
			Feature2ID: argID(args, "feature2"),
			Item2ID:    argID(args, "item2"),
		})
	case "delete":
		kind, _ := store.ParseKind(argStr(args, "kind"))
		return 0, eng.Delete(ctx, kind, argID(args, "id"))
	default:
		return 0, errors.Newf("unknown op %q", op)
	}
}

// resolveArgs replaces $refs in id arguments with the ids they name.
func (h *Harness) resolveArgs(step Step) (map[string]any, error) {
	op := operations[step.Op]
	out := make(map[string]any, len(step.Args))
	for k, v := range step.Args {
		out[k] = v
		s, isString := v.(string)
		if !isString || !strings.HasPrefix(s, "$") {
			continue
		}
		for _, idArg := range op.ids {
			if k == idArg {
				resolved, err := h.resolve(s)
				if err != nil {
					return nil, errors.Wrapf(err, "arg %q", k)
				}
				out[k] = resolved
			}
		}
	}
	return out, nil
}

func (h *Harness) resolve(ref string) (int64, error) {
	id, ok := h.aliases[strings.TrimPrefix(ref, "$")]
	if !ok {
		// A rejected step never defines its alias.
		return 0, errors.Newf("reference %s is undefined", ref)
	}
	return id, nil
}

func (h *Harness) resolveAny(v any) (int64, error) {
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case string:
		return h.resolve(val)
	default:
		return 0, errors.Newf("expected an id, got %T", v)
	}
}

func argStr(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argID(args map[string]any, key string) int64 {
	if p := argOptID(args, key); p != nil {
		return *p
	}
	return 0
}

func argOptID(args map[string]any, key string) *int64 {
	switch v := args[key].(type) {
	case int:
		return model.ID(int64(v))
	case int64:
		return model.ID(v)
	default:
		return nil
	}
}
