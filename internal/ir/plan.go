package ir

import "time"

// ActionKind classifies a planned change.
type ActionKind string

const (
	ActionCreate  ActionKind = "CREATE"
	ActionUpdate  ActionKind = "UPDATE"
	ActionReplace ActionKind = "REPLACE"
	ActionDelete  ActionKind = "DELETE"
	ActionNoOp    ActionKind = "NOOP"
)

// Action is one step of a plan. It carries everything the executor needs:
// the raw desired properties (references are re-resolved at execution time,
// once the prerequisites have been applied), the prior state snapshot, the
// property diff computed at plan time, and explicit ordering edges.
type Action struct {
	ID       string
	Kind     ActionKind
	Resource string // logical name
	Type     string // type tag
	Provider string

	// Rank is the dependency depth used for deterministic ordering of the
	// printed plan. Execution ordering uses After.
	Rank  int
	After []string // action IDs that must complete first

	Desired      map[string]Expr
	Prior        map[string]any
	PriorID      string // remote identifier, set for UPDATE/REPLACE/DELETE
	Dependencies []string

	Diff map[string]*PropertyDiff

	// DeleteBeforeCreate selects the replacement strategy for REPLACE.
	DeleteBeforeCreate bool

	// Superseded marks the deferred delete of a replaced instance whose
	// state entry already points at the successor. The executor removes the
	// remote object but leaves the state entry alone.
	Superseded bool
}

// PropertyDiff describes the change of a single property.
type PropertyDiff struct {
	Before            any
	After             any
	Op                string // "create", "update", "delete"
	ForcesReplacement bool
	Unknown           bool // value depends on a resource not yet applied
}

// Plan is an ordered change-set. It is computed per invocation and never
// persisted.
type Plan struct {
	CreatedAt time.Time
	Actions   []*Action
	Summary   Summary
}

// Summary counts actions by kind.
type Summary struct {
	Create  int
	Update  int
	Replace int
	Delete  int
	NoOp    int
}

// Changes returns the actions that mutate remote state, in plan order.
func (p *Plan) Changes() []*Action {
	var out []*Action
	for _, a := range p.Actions {
		if a.Kind != ActionNoOp {
			out = append(out, a)
		}
	}
	return out
}

// Empty reports whether the plan contains no mutating actions.
func (p *Plan) Empty() bool {
	return len(p.Changes()) == 0
}
