// Package remote defines the collaborator interface between the executor and
// a remote resource store. Providers implement RemoteStore; the executor is
// injected with one per resource and never reaches for ambient globals.
package remote

import "context"

// CreateRequest asks the store to provision a new resource.
type CreateRequest struct {
	Type       string
	Name       string
	Properties map[string]any
}

// UpdateRequest asks the store to mutate an existing resource in place.
type UpdateRequest struct {
	Type       string
	Name       string
	ID         string
	Properties map[string]any
	Prior      map[string]any
}

// DeleteRequest asks the store to destroy a resource.
type DeleteRequest struct {
	Type  string
	Name  string
	ID    string
	Prior map[string]any
}

// Result carries the remote identifier and exported attributes of an applied
// resource.
type Result struct {
	ID         string
	Attributes map[string]any
}

// RemoteStore is the external system holding the real resources. Eventual
// consistency and rate limiting are expected: implementations wrap such
// failures in TransientError so the executor can retry with backoff.
type RemoteStore interface {
	Create(ctx context.Context, req *CreateRequest) (*Result, error)
	Update(ctx context.Context, req *UpdateRequest) (*Result, error)
	Delete(ctx context.Context, req *DeleteRequest) error

	// Ready reports whether the resource's readiness condition holds. The
	// executor polls it until true before treating an action as applied.
	Ready(ctx context.Context, typeTag, id string) (bool, error)
}
