package ir

// Template is a declared desired-state document: parameters, resources and
// outputs.
type Template struct {
	Name       string
	Parameters map[string]*Parameter
	Resources  []*Resource
	Outputs    map[string]*Output
}

// Parameter declares a typed template input, optionally constrained.
type Parameter struct {
	Type           string // "String" or "Number"
	Description    string
	Default        any
	AllowedPattern string
	AllowedValues  []string
	MinValue       *float64
	MaxValue       *float64
	MinLength      *int
	MaxLength      *int
}

// Output is a named expression over resource attributes. When Export is set
// the resolved value is published for cross-template imports.
type Output struct {
	Value  Expr
	Export string
}

// Resource is a single declared resource.
type Resource struct {
	Name       string
	Type       string // type tag, e.g. "aws:ecs.Service"
	Provider   string // derived from the type tag prefix
	DependsOn  []string
	Lifecycle  *Lifecycle
	Properties map[string]Expr
}

// Lifecycle holds per-resource overrides of the default lifecycle policy.
type Lifecycle struct {
	DeleteBeforeCreate bool
	PreventDestroy     bool
}

// ResourceByName returns the declared resource with the given logical name.
func (t *Template) ResourceByName(name string) (*Resource, bool) {
	for _, r := range t.Resources {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// References returns the logical names of resources this resource depends on,
// combining explicit DependsOn hints with reference edges extracted from the
// property bag. Duplicates are removed; order is not significant.
func (r *Resource) References() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, dep := range r.DependsOn {
		add(dep)
	}
	for _, e := range r.Properties {
		WalkRefs(e, func(ref Ref) {
			if ref.Attr != "" { // parameter refs carry no ordering
				add(ref.Target)
			}
		})
	}
	return out
}
