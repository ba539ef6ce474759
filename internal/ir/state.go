package ir

// State is the persisted record of what was last successfully provisioned.
type State struct {
	Version   int                       `json:"version"`
	Serial    int                       `json:"serial"`
	Lineage   string                    `json:"lineage"`
	Resources map[string]*ResourceState `json:"resources"`
	Outputs   map[string]any            `json:"outputs,omitempty"`

	// Exports holds values published for cross-template imports, keyed by
	// namespace (template name) then export name.
	Exports map[string]map[string]any `json:"exports,omitempty"`
}

// ResourceState maps a logical name to its remote identifier and the
// property snapshot last applied.
type ResourceState struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Provider     string         `json:"provider"`
	RemoteID     string         `json:"remoteId"`
	Inputs       map[string]any `json:"inputs"`
	Outputs      map[string]any `json:"outputs,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
}

// NewState returns an empty state with the given lineage.
func NewState(lineage string) *State {
	return &State{
		Version:   1,
		Lineage:   lineage,
		Resources: make(map[string]*ResourceState),
	}
}

// Attribute returns a resource attribute, preferring provider-returned
// outputs over the applied input snapshot.
func (rs *ResourceState) Attribute(name string) (any, bool) {
	if name == "id" && rs.RemoteID != "" {
		return rs.RemoteID, true
	}
	if v, ok := rs.Outputs[name]; ok {
		return v, true
	}
	if v, ok := rs.Inputs[name]; ok {
		return v, true
	}
	return nil, false
}
