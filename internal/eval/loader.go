// Package eval loads declarative templates into the resource model and
// validates them before any planning happens.
package eval

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/herculesaleixo/stackform/internal/ir"
)

type templateDoc struct {
	Name       string                   `yaml:"Name"`
	Parameters map[string]*parameterDoc `yaml:"Parameters"`
	Resources  map[string]*resourceDoc  `yaml:"Resources"`
	Outputs    map[string]*outputDoc    `yaml:"Outputs"`
}

type parameterDoc struct {
	Type           string   `yaml:"Type"`
	Description    string   `yaml:"Description"`
	Default        any      `yaml:"Default"`
	AllowedPattern string   `yaml:"AllowedPattern"`
	AllowedValues  []string `yaml:"AllowedValues"`
	MinValue       *float64 `yaml:"MinValue"`
	MaxValue       *float64 `yaml:"MaxValue"`
	MinLength      *int     `yaml:"MinLength"`
	MaxLength      *int     `yaml:"MaxLength"`
}

type resourceDoc struct {
	Type       string                `yaml:"Type"`
	DependsOn  []string              `yaml:"DependsOn"`
	Lifecycle  *lifecycleDoc         `yaml:"Lifecycle"`
	Properties map[string]yaml.Node `yaml:"Properties"`
}

type lifecycleDoc struct {
	DeleteBeforeCreate bool `yaml:"DeleteBeforeCreate"`
	PreventDestroy     bool `yaml:"PreventDestroy"`
}

type outputDoc struct {
	Value  yaml.Node `yaml:"Value"`
	Export string    `yaml:"Export"`
}

// LoadFile reads a template document from disk. Parameter overrides take
// precedence over declared defaults.
func LoadFile(path string, overrides map[string]string) (*ir.Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Load(raw, name, overrides)
}

// Load parses a template document. The returned template has parameter
// references substituted with their bound, constraint-checked values.
func Load(raw []byte, name string, overrides map[string]string) (*ir.Template, error) {
	var doc templateDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if doc.Name != "" {
		name = doc.Name
	}

	tpl := &ir.Template{
		Name:       name,
		Parameters: make(map[string]*ir.Parameter),
		Outputs:    make(map[string]*ir.Output),
	}

	for pname, p := range doc.Parameters {
		tpl.Parameters[pname] = &ir.Parameter{
			Type:           p.Type,
			Description:    p.Description,
			Default:        p.Default,
			AllowedPattern: p.AllowedPattern,
			AllowedValues:  p.AllowedValues,
			MinValue:       p.MinValue,
			MaxValue:       p.MaxValue,
			MinLength:      p.MinLength,
			MaxLength:      p.MaxLength,
		}
	}

	values, err := bindParameters(tpl.Parameters, overrides)
	if err != nil {
		return nil, err
	}

	resNames := make([]string, 0, len(doc.Resources))
	for rname := range doc.Resources {
		resNames = append(resNames, rname)
	}
	sort.Strings(resNames)

	for _, rname := range resNames {
		rd := doc.Resources[rname]
		props := make(map[string]ir.Expr, len(rd.Properties))
		for k, node := range rd.Properties {
			node := node
			e, err := exprFromNode(&node)
			if err != nil {
				return nil, &ir.SchemaViolationError{Resource: rname, Property: k, Reason: err.Error()}
			}
			props[k] = substituteParams(e, values)
		}

		res := &ir.Resource{
			Name:       rname,
			Type:       rd.Type,
			Provider:   providerOf(rd.Type),
			DependsOn:  rd.DependsOn,
			Properties: props,
		}
		if rd.Lifecycle != nil {
			res.Lifecycle = &ir.Lifecycle{
				DeleteBeforeCreate: rd.Lifecycle.DeleteBeforeCreate,
				PreventDestroy:     rd.Lifecycle.PreventDestroy,
			}
		}
		tpl.Resources = append(tpl.Resources, res)
	}

	for oname, od := range doc.Outputs {
		if od.Value.IsZero() {
			return nil, &ir.SchemaViolationError{Resource: oname, Reason: "output has no Value"}
		}
		e, err := exprFromNode(&od.Value)
		if err != nil {
			return nil, &ir.SchemaViolationError{Resource: oname, Reason: err.Error()}
		}
		tpl.Outputs[oname] = &ir.Output{
			Value:  substituteParams(e, values),
			Export: od.Export,
		}
	}

	return tpl, nil
}

// exprFromNode converts a YAML node into an expression. Short-form tags mark
// references (!Ref target, !GetAtt target.attr) and imports
// (!ImportValue namespace/key); everything else is literal data.
func exprFromNode(n *yaml.Node) (ir.Expr, error) {
	if n.Kind == yaml.AliasNode {
		return exprFromNode(n.Alias)
	}

	switch n.Tag {
	case "!Ref":
		if n.Value == "" {
			return nil, fmt.Errorf("!Ref requires a target name")
		}
		if target, attr, ok := strings.Cut(n.Value, "."); ok {
			return ir.Ref{Target: target, Attr: attr}, nil
		}
		return ir.Ref{Target: n.Value}, nil

	case "!GetAtt":
		target, attr, ok := strings.Cut(n.Value, ".")
		if !ok || target == "" || attr == "" {
			return nil, fmt.Errorf("!GetAtt requires target.attribute, got %q", n.Value)
		}
		return ir.Ref{Target: target, Attr: attr}, nil

	case "!ImportValue":
		ns, key, ok := strings.Cut(n.Value, "/")
		if !ok || ns == "" || key == "" {
			return nil, fmt.Errorf("!ImportValue requires namespace/key, got %q", n.Value)
		}
		return ir.Import{Namespace: ns, Key: key}, nil
	}

	switch n.Kind {
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return ir.Lit{Value: v}, nil

	case yaml.SequenceNode:
		elems := make([]ir.Expr, len(n.Content))
		for i, c := range n.Content {
			e, err := exprFromNode(c)
			if err != nil {
				return nil, err
			}
			elems[i] = e
		}
		return ir.List{Elems: elems}, nil

	case yaml.MappingNode:
		entries := make(map[string]ir.Expr, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			e, err := exprFromNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			entries[n.Content[i].Value] = e
		}
		return ir.Map{Entries: entries}, nil
	}

	return nil, fmt.Errorf("unsupported YAML node kind %d", n.Kind)
}

// bindParameters resolves each declared parameter to a concrete value and
// checks its constraints.
func bindParameters(params map[string]*ir.Parameter, overrides map[string]string) (map[string]any, error) {
	values := make(map[string]any, len(params))
	for name, p := range params {
		var value any
		if raw, ok := overrides[name]; ok {
			v, err := coerceParameter(p, raw)
			if err != nil {
				return nil, &ir.ConstraintViolationError{Parameter: name, Reason: err.Error()}
			}
			value = v
		} else if p.Default != nil {
			value = p.Default
		} else {
			return nil, &ir.ConstraintViolationError{Parameter: name, Reason: "no value supplied and no default declared"}
		}

		if err := checkConstraints(p, value); err != nil {
			return nil, &ir.ConstraintViolationError{Parameter: name, Reason: err.Error()}
		}
		values[name] = value
	}
	return values, nil
}

func coerceParameter(p *ir.Parameter, raw string) (any, error) {
	switch p.Type {
	case "Number":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a number", raw)
		}
		return v, nil
	default:
		return raw, nil
	}
}

func checkConstraints(p *ir.Parameter, value any) error {
	switch p.Type {
	case "Number":
		num, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("value %v is not a number", value)
		}
		if p.MinValue != nil && num < *p.MinValue {
			return fmt.Errorf("value %v is below the minimum %v", num, *p.MinValue)
		}
		if p.MaxValue != nil && num > *p.MaxValue {
			return fmt.Errorf("value %v is above the maximum %v", num, *p.MaxValue)
		}
		return nil

	default: // String
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("value %v is not a string", value)
		}
		if p.MinLength != nil && len(s) < *p.MinLength {
			return fmt.Errorf("length %d is below the minimum %d", len(s), *p.MinLength)
		}
		if p.MaxLength != nil && len(s) > *p.MaxLength {
			return fmt.Errorf("length %d is above the maximum %d", len(s), *p.MaxLength)
		}
		if p.AllowedPattern != "" {
			re, err := regexp.Compile(p.AllowedPattern)
			if err != nil {
				return fmt.Errorf("invalid AllowedPattern %q: %v", p.AllowedPattern, err)
			}
			if !re.MatchString(s) {
				return fmt.Errorf("value %q does not match pattern %q", s, p.AllowedPattern)
			}
		}
		if len(p.AllowedValues) > 0 {
			for _, allowed := range p.AllowedValues {
				if s == allowed {
					return nil
				}
			}
			return fmt.Errorf("value %q is not one of the allowed values %v", s, p.AllowedValues)
		}
		return nil
	}
}

// substituteParams replaces attribute-less references to declared parameters
// with their bound values. A bare !Ref to anything else is a reference to a
// resource's remote identifier.
func substituteParams(e ir.Expr, values map[string]any) ir.Expr {
	switch v := e.(type) {
	case ir.Ref:
		if v.Attr == "" {
			if val, ok := values[v.Target]; ok {
				return ir.Lit{Value: val}
			}
			return ir.Ref{Target: v.Target, Attr: "id"}
		}
		return v
	case ir.List:
		elems := make([]ir.Expr, len(v.Elems))
		for i, el := range v.Elems {
			elems[i] = substituteParams(el, values)
		}
		return ir.List{Elems: elems}
	case ir.Map:
		entries := make(map[string]ir.Expr, len(v.Entries))
		for k, el := range v.Entries {
			entries[k] = substituteParams(el, values)
		}
		return ir.Map{Entries: entries}
	default:
		return e
	}
}

func providerOf(typeTag string) string {
	if prov, _, ok := strings.Cut(typeTag, ":"); ok {
		return prov
	}
	return "null"
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
