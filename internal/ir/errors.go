package ir

import (
	"fmt"
	"strings"
)

// SchemaViolationError reports a missing or invalid property on a resource.
type SchemaViolationError struct {
	Resource string
	Property string
	Reason   string
}

func (e *SchemaViolationError) Error() string {
	if e.Property == "" {
		return fmt.Sprintf("schema violation on %s: %s", e.Resource, e.Reason)
	}
	return fmt.Sprintf("schema violation on %s: property %q: %s", e.Resource, e.Property, e.Reason)
}

// UnresolvedReferenceError reports a dangling reference or import.
type UnresolvedReferenceError struct {
	Resource string
	Target   string
	Attr     string
}

func (e *UnresolvedReferenceError) Error() string {
	if e.Attr != "" {
		return fmt.Sprintf("unresolved reference on %s: %s.%s", e.Resource, e.Target, e.Attr)
	}
	return fmt.Sprintf("unresolved reference on %s: %s", e.Resource, e.Target)
}

// ConstraintViolationError reports a parameter value failing its declared
// pattern, range or length constraint.
type ConstraintViolationError struct {
	Parameter string
	Reason    string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("constraint violation on parameter %q: %s", e.Parameter, e.Reason)
}

// CyclicDependencyError names the members of a reference cycle.
type CyclicDependencyError struct {
	Members []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(e.Members, " -> "))
}

// PlanConflictError reports two plan actions racing on one remote identifier.
type PlanConflictError struct {
	RemoteID string
	Actions  []string
}

func (e *PlanConflictError) Error() string {
	return fmt.Sprintf("plan conflict: actions %s target the same remote identifier %q",
		strings.Join(e.Actions, ", "), e.RemoteID)
}

// ActionFailedError wraps the underlying remote failure of a single action.
type ActionFailedError struct {
	Resource string
	Action   ActionKind
	Err      error
}

func (e *ActionFailedError) Error() string {
	return fmt.Sprintf("%s of %s failed: %v", strings.ToLower(string(e.Action)), e.Resource, e.Err)
}

func (e *ActionFailedError) Unwrap() error { return e.Err }
