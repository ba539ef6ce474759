package eval

import (
	"fmt"

	"github.com/herculesaleixo/stackform/internal/ir"
	"github.com/herculesaleixo/stackform/internal/schema"
)

// Validate checks a loaded template for internal consistency: every resource
// type is known and carries its required properties, every reference resolves
// to a declared resource's exported attribute, and every import resolves
// against the available exports. Validation never mutates remote state.
func Validate(tpl *ir.Template, schemas *schema.Registry, exports map[string]map[string]any) error {
	declared := make(map[string]*ir.Resource, len(tpl.Resources))
	for _, r := range tpl.Resources {
		if _, dup := declared[r.Name]; dup {
			return &ir.SchemaViolationError{Resource: r.Name, Reason: "duplicate logical name"}
		}
		declared[r.Name] = r
	}

	for _, r := range tpl.Resources {
		sc, ok := schemas.ForType(r.Type)
		if !ok {
			return &ir.SchemaViolationError{Resource: r.Name, Reason: fmt.Sprintf("unknown resource type %q", r.Type)}
		}
		for _, required := range sc.Required {
			if _, ok := r.Properties[required]; !ok {
				return &ir.SchemaViolationError{Resource: r.Name, Property: required, Reason: "required property is missing"}
			}
		}

		for _, dep := range r.DependsOn {
			if _, ok := declared[dep]; !ok {
				return &ir.UnresolvedReferenceError{Resource: r.Name, Target: dep}
			}
		}

		if err := checkExprs(r.Name, r.Properties, declared, schemas, exports); err != nil {
			return err
		}
	}

	for oname, out := range tpl.Outputs {
		if err := checkExpr("output "+oname, out.Value, declared, schemas, exports); err != nil {
			return err
		}
	}

	return nil
}

func checkExprs(owner string, props map[string]ir.Expr, declared map[string]*ir.Resource, schemas *schema.Registry, exports map[string]map[string]any) error {
	for _, e := range props {
		if err := checkExpr(owner, e, declared, schemas, exports); err != nil {
			return err
		}
	}
	return nil
}

func checkExpr(owner string, e ir.Expr, declared map[string]*ir.Resource, schemas *schema.Registry, exports map[string]map[string]any) error {
	var failure error
	ir.WalkRefs(e, func(ref ir.Ref) {
		if failure != nil {
			return
		}
		target, ok := declared[ref.Target]
		if !ok {
			failure = &ir.UnresolvedReferenceError{Resource: owner, Target: ref.Target, Attr: ref.Attr}
			return
		}
		if sc, ok := schemas.ForType(target.Type); ok && !sc.HasAttribute(ref.Attr) {
			failure = &ir.UnresolvedReferenceError{Resource: owner, Target: ref.Target, Attr: ref.Attr}
		}
	})
	if failure != nil {
		return failure
	}

	ir.WalkImports(e, func(imp ir.Import) {
		if failure != nil {
			return
		}
		ns, ok := exports[imp.Namespace]
		if !ok {
			failure = &ir.UnresolvedReferenceError{Resource: owner, Target: imp.Namespace, Attr: imp.Key}
			return
		}
		if _, ok := ns[imp.Key]; !ok {
			failure = &ir.UnresolvedReferenceError{Resource: owner, Target: imp.Namespace, Attr: imp.Key}
		}
	})
	return failure
}

// ResolveOutputs evaluates template outputs against applied state, returning
// the full output map and the exported subset.
func ResolveOutputs(tpl *ir.Template, st *ir.State) (outputs map[string]any, exports map[string]any) {
	outputs = make(map[string]any, len(tpl.Outputs))
	exports = make(map[string]any)

	r := &stateResolver{state: st}
	for name, out := range tpl.Outputs {
		v, ok := ir.Resolve(out.Value, r)
		if !ok {
			continue
		}
		outputs[name] = v
		if out.Export != "" {
			exports[out.Export] = v
		}
	}
	return outputs, exports
}

type stateResolver struct {
	state *ir.State
}

func (r *stateResolver) ResolveRef(target, attr string) (any, bool) {
	rs, ok := r.state.Resources[target]
	if !ok {
		return nil, false
	}
	return rs.Attribute(attr)
}

func (r *stateResolver) ResolveImport(namespace, key string) (any, bool) {
	ns, ok := r.state.Exports[namespace]
	if !ok {
		return nil, false
	}
	v, ok := ns[key]
	return v, ok
}
