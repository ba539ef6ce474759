package ir

// Expr is a template property value: a literal, a reference to another
// resource's exported attribute, an import from an external namespace, or a
// composite of those.
type Expr interface {
	isExpr()
}

// Lit is a literal scalar value.
type Lit struct {
	Value any
}

// Ref points at another resource's exported attribute, or at a declared
// parameter when Attr is empty.
type Ref struct {
	Target string
	Attr   string
}

// Import reads a named export published by another template.
type Import struct {
	Namespace string
	Key       string
}

// List is an ordered sequence of expressions.
type List struct {
	Elems []Expr
}

// Map is a nested property bag.
type Map struct {
	Entries map[string]Expr
}

func (Lit) isExpr()    {}
func (Ref) isExpr()    {}
func (Import) isExpr() {}
func (List) isExpr()   {}
func (Map) isExpr()    {}

// WalkRefs calls fn for every Ref reachable from e, including refs nested in
// lists and maps.
func WalkRefs(e Expr, fn func(Ref)) {
	switch v := e.(type) {
	case Ref:
		fn(v)
	case List:
		for _, el := range v.Elems {
			WalkRefs(el, fn)
		}
	case Map:
		for _, el := range v.Entries {
			WalkRefs(el, fn)
		}
	}
}

// WalkImports calls fn for every Import reachable from e.
func WalkImports(e Expr, fn func(Import)) {
	switch v := e.(type) {
	case Import:
		fn(v)
	case List:
		for _, el := range v.Elems {
			WalkImports(el, fn)
		}
	case Map:
		for _, el := range v.Entries {
			WalkImports(el, fn)
		}
	}
}

// Resolver supplies concrete values for references and imports during
// expression resolution.
type Resolver interface {
	// ResolveRef returns the value of a resource attribute. ok is false when
	// the attribute is not yet known (the target has not been applied).
	ResolveRef(target, attr string) (any, bool)

	// ResolveImport returns the value of an external export.
	ResolveImport(namespace, key string) (any, bool)
}

// Resolve evaluates an expression to a plain Go value. An unresolvable
// reference or import yields ok=false; callers decide whether that is an
// error (apply time) or a known-after-apply marker (plan time).
func Resolve(e Expr, r Resolver) (any, bool) {
	switch v := e.(type) {
	case Lit:
		return v.Value, true
	case Ref:
		return r.ResolveRef(v.Target, v.Attr)
	case Import:
		return r.ResolveImport(v.Namespace, v.Key)
	case List:
		out := make([]any, len(v.Elems))
		for i, el := range v.Elems {
			val, ok := Resolve(el, r)
			if !ok {
				return nil, false
			}
			out[i] = val
		}
		return out, true
	case Map:
		out := make(map[string]any, len(v.Entries))
		for k, el := range v.Entries {
			val, ok := Resolve(el, r)
			if !ok {
				return nil, false
			}
			out[k] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// ResolveProperties evaluates a whole property bag. The second return lists
// the property names that could not be fully resolved.
func ResolveProperties(props map[string]Expr, r Resolver) (map[string]any, []string) {
	out := make(map[string]any, len(props))
	var unknown []string
	for k, e := range props {
		val, ok := Resolve(e, r)
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		out[k] = val
	}
	return out, unknown
}
