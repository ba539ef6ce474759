package state

import "fmt"

// NewBackend creates a state backend by type name.
func NewBackend(kind string, config map[string]string, localPath string) (Backend, error) {
	switch kind {
	case "local", "":
		return NewLocalBackend(localPath), nil
	case "s3":
		return newS3Backend(config)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", kind)
	}
}
