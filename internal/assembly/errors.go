package assembly

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/sysarch/internal/store"
)

// ErrorKind categorizes rejections.
type ErrorKind string

const (
	// KindReference indicates a referenced identifier does not exist.
	KindReference ErrorKind = "REFERENCE"

	// KindCycle indicates a composition would make an assembly contain itself.
	KindCycle ErrorKind = "CYCLE"

	// KindInvalidComposition indicates an item sets zero or both of part and
	// sub-assembly, or a system root that is not a top-level member assembly.
	KindInvalidComposition ErrorKind = "INVALID_COMPOSITION"

	// KindOwnership indicates a connector feature does not belong to the part
	// instantiated by its paired item.
	KindOwnership ErrorKind = "OWNERSHIP"

	// KindSelfConnection indicates a connector links an instance-feature to itself.
	KindSelfConnection ErrorKind = "SELF_CONNECTION"

	// KindInvalidArgument indicates a malformed request (unknown connector type,
	// empty name, missing filter).
	KindInvalidArgument ErrorKind = "INVALID_ARGUMENT"

	// KindConflict indicates a delete blocked by dependent records.
	KindConflict ErrorKind = "CONFLICT"

	// KindInconsistent indicates stored data violates an invariant that writes
	// should have guaranteed. It is an internal fault, not a user error.
	KindInconsistent ErrorKind = "INCONSISTENT"
)

// ErrorKinds lists every kind in declaration order.
var ErrorKinds = []ErrorKind{
	KindReference, KindCycle, KindInvalidComposition, KindOwnership,
	KindSelfConnection, KindInvalidArgument, KindConflict, KindInconsistent,
}

// ParseErrorKind accepts a kind name case-insensitively, with or without
// an "Error" suffix ("cycle", "CycleError", "CYCLE").
func ParseErrorKind(s string) (ErrorKind, bool) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.TrimSuffix(norm, "ERROR")
	norm = strings.TrimSuffix(norm, "_")
	for _, k := range ErrorKinds {
		if norm == string(k) || norm == strings.ReplaceAll(string(k), "_", "") {
			return k, true
		}
	}
	return "", false
}

// Error is a rejection raised by the core. Every rejected mutation leaves the
// store unchanged.
type Error struct {
	// Kind identifies the error category.
	Kind ErrorKind

	// Message is a human-readable description.
	Message string

	// Details contains additional context (ids, paths, dependent tables).
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + e.Details[k]
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(parts, ", "))
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// is not a rejection.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func isKind(err error, kind ErrorKind) bool { return KindOf(err) == kind }

// IsReferenceError returns true if err is a REFERENCE rejection.
func IsReferenceError(err error) bool { return isKind(err, KindReference) }

// IsCycleError returns true if err is a CYCLE rejection.
func IsCycleError(err error) bool { return isKind(err, KindCycle) }

// IsInvalidCompositionError returns true if err is an INVALID_COMPOSITION rejection.
func IsInvalidCompositionError(err error) bool { return isKind(err, KindInvalidComposition) }

// IsOwnershipError returns true if err is an OWNERSHIP rejection.
func IsOwnershipError(err error) bool { return isKind(err, KindOwnership) }

// IsSelfConnectionError returns true if err is a SELF_CONNECTION rejection.
func IsSelfConnectionError(err error) bool { return isKind(err, KindSelfConnection) }

// IsInvalidArgumentError returns true if err is an INVALID_ARGUMENT rejection.
func IsInvalidArgumentError(err error) bool { return isKind(err, KindInvalidArgument) }

// IsConflictError returns true if err is a CONFLICT rejection.
func IsConflictError(err error) bool { return isKind(err, KindConflict) }

// IsInconsistentError returns true if err is an INCONSISTENT fault.
func IsInconsistentError(err error) bool { return isKind(err, KindInconsistent) }

func idString(id int64) string { return strconv.FormatInt(id, 10) }

func formatPath(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = idString(id)
	}
	return strings.Join(parts, " -> ")
}

// NewReferenceError reports that entity id does not exist.
func NewReferenceError(entity store.Kind, id int64) error {
	return errors.WithHint(&Error{
		Kind:    KindReference,
		Message: fmt.Sprintf("%s %d does not exist", entity, id),
		Details: map[string]string{"entity": string(entity), "id": idString(id)},
	}, "create the referenced record first")
}

// NewCycleError reports that making child a component of parent would close
// a cycle. path runs from child to parent along existing composition edges;
// it is nil for direct self-containment.
func NewCycleError(parent, child int64, path []int64) error {
	msg := fmt.Sprintf("assembly %d cannot contain itself", parent)
	details := map[string]string{"parent": idString(parent), "child": idString(child)}
	if parent != child {
		msg = fmt.Sprintf("assembly %d cannot contain assembly %d: %d already contains %d", parent, child, child, parent)
		details["path"] = formatPath(path)
	}
	return errors.WithHint(&Error{Kind: KindCycle, Message: msg, Details: details},
		"an assembly may not appear inside its own sub-tree")
}

// NewInvalidCompositionError reports a structurally malformed item or root.
func NewInvalidCompositionError(msg string, details map[string]string) error {
	return &Error{Kind: KindInvalidComposition, Message: msg, Details: details}
}

// NewOwnershipError reports a connector end whose feature does not belong to
// the part its item instantiates.
func NewOwnershipError(msg string, featureID, itemID int64) error {
	return errors.WithHint(&Error{
		Kind:    KindOwnership,
		Message: msg,
		Details: map[string]string{"feature": idString(featureID), "item": idString(itemID)},
	}, "connectors attach to features of the part an item instantiates directly")
}

// NewSelfConnectionError reports a connector whose two ends are the same
// (feature, item) occurrence.
func NewSelfConnectionError(featureID, itemID int64) error {
	return &Error{
		Kind:    KindSelfConnection,
		Message: "connector must link two distinct instance-feature occurrences",
		Details: map[string]string{"feature": idString(featureID), "item": idString(itemID)},
	}
}

// NewInvalidArgumentError reports a malformed request.
func NewInvalidArgumentError(format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// NewConflictError reports a delete blocked by dependents.
func NewConflictError(entity store.Kind, id int64, deps []store.Dependent) error {
	details := map[string]string{"entity": string(entity), "id": idString(id)}
	names := make([]string, 0, len(deps))
	for _, d := range deps {
		details[d.Table+"."+d.Column] = strconv.FormatInt(d.Count, 10)
		names = append(names, fmt.Sprintf("%d %s", d.Count, d.Table))
	}
	msg := fmt.Sprintf("%s %d is still referenced", entity, id)
	if len(names) > 0 {
		msg += " by " + strings.Join(names, ", ")
	}
	return errors.WithHint(&Error{Kind: KindConflict, Message: msg, Details: details},
		"delete or repoint the dependent records first")
}

// NewInconsistentError reports stored data that violates a write-time invariant.
func NewInconsistentError(msg string, details map[string]string) error {
	return &Error{Kind: KindInconsistent, Message: msg, Details: details}
}
