// Package schema declares the property schemas and lifecycle policies of the
// resource types the engine can manage.
package schema

import "sort"

// Schema describes one resource type tag.
type Schema struct {
	Type     string
	Required []string

	// ReplaceOn lists properties whose modification requires destroying and
	// recreating the resource rather than updating in place.
	ReplaceOn []string

	// CreateBeforeDelete selects the default replacement strategy. Types with
	// remote-name uniqueness constraints keep the default (delete first);
	// resources referenced by others are promoted to create-before-delete by
	// the planner regardless.
	CreateBeforeDelete bool

	// Attributes lists the exported attributes references may target. "id"
	// is always available.
	Attributes []string
}

// ForcesReplacement reports whether changing the named property requires
// replacement.
func (s *Schema) ForcesReplacement(property string) bool {
	for _, p := range s.ReplaceOn {
		if p == property {
			return true
		}
	}
	return false
}

// HasAttribute reports whether references may target the named attribute.
func (s *Schema) HasAttribute(name string) bool {
	if name == "id" {
		return true
	}
	for _, a := range s.Attributes {
		if a == name {
			return true
		}
	}
	return false
}

// Registry maps type tags to schemas.
type Registry struct {
	byType map[string]*Schema
}

func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]*Schema)}
}

// Register adds or overwrites a schema.
func (r *Registry) Register(s *Schema) {
	r.byType[s.Type] = s
}

// ForType returns the schema for a type tag.
func (r *Registry) ForType(tag string) (*Schema, bool) {
	s, ok := r.byType[tag]
	return s, ok
}

// Types returns all registered type tags, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Builtin returns a registry preloaded with every type tag the bundled
// providers implement.
func Builtin() *Registry {
	r := NewRegistry()
	for _, s := range builtinSchemas {
		r.Register(s)
	}
	return r
}

var builtinSchemas = []*Schema{
	{
		Type:       "null:Resource",
		ReplaceOn:  []string{"triggers"},
		Attributes: []string{"triggers"},
	},
	{
		Type:       "aws:logs.LogGroup",
		Required:   []string{"logGroupName"},
		ReplaceOn:  []string{"logGroupName"},
		Attributes: []string{"logGroupName"},
	},
	{
		Type:               "aws:ecs.TaskDefinition",
		Required:           []string{"family", "containerDefinitions"},
		ReplaceOn:          []string{"family"},
		CreateBeforeDelete: true, // revisions coexist, old one deregisters late
		Attributes:         []string{"arn", "family", "revision"},
	},
	{
		Type:       "aws:ecs.Service",
		Required:   []string{"serviceName", "cluster", "taskDefinition"},
		ReplaceOn:  []string{"serviceName", "cluster", "launchType", "loadBalancers"},
		Attributes: []string{"arn", "name", "cluster"},
	},
	{
		Type:       "aws:elbv2.LoadBalancer",
		Required:   []string{"name", "subnets"},
		ReplaceOn:  []string{"name", "scheme", "type"},
		Attributes: []string{"arn", "name", "dnsName", "hostedZoneId"},
	},
	{
		Type:       "aws:elbv2.TargetGroup",
		Required:   []string{"name", "port", "protocol", "vpcId"},
		ReplaceOn:  []string{"name", "port", "protocol", "vpcId", "targetType"},
		Attributes: []string{"arn", "name"},
	},
	{
		Type:       "aws:elbv2.Listener",
		Required:   []string{"loadBalancerArn", "port", "protocol", "defaultActions"},
		ReplaceOn:  []string{"loadBalancerArn"},
		Attributes: []string{"arn"},
	},
	{
		Type:       "aws:route53.RecordSet",
		Required:   []string{"zoneId", "name", "type"},
		ReplaceOn:  []string{"zoneId", "name", "type"},
		Attributes: []string{"fqdn", "name", "zoneId"},
	},
	{
		Type:               "docker:Image",
		Required:           []string{"name"},
		ReplaceOn:          []string{"name"},
		CreateBeforeDelete: true,
		Attributes:         []string{"name"},
	},
	{
		Type:       "docker:Network",
		Required:   []string{"name"},
		ReplaceOn:  []string{"name", "driver"},
		Attributes: []string{"name"},
	},
	{
		Type:       "docker:Volume",
		Required:   []string{"name"},
		ReplaceOn:  []string{"name", "driver"},
		Attributes: []string{"name", "mountpoint"},
	},
	{
		Type:       "docker:Container",
		Required:   []string{"name", "image"},
		ReplaceOn:  []string{"name", "image", "command", "ports", "env", "volumes", "networks"},
		Attributes: []string{"name", "image"},
	},
}
