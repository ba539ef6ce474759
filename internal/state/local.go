package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/herculesaleixo/stackform/internal/ir"
)

// localBackend stores state as a JSON document on disk. Writes go through a
// temp file and rename so a crash never leaves a torn state file.
type localBackend struct {
	path string
}

// NewLocalBackend returns a file-based backend at path.
func NewLocalBackend(path string) Backend {
	return &localBackend{path: path}
}

func (b *localBackend) Read(ctx context.Context) (*ir.State, error) {
	raw, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return ir.NewState(uuid.NewString()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", b.path, err)
	}

	raw, err = DecryptState(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state: %w", err)
	}

	var st ir.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", b.path, err)
	}
	return &st, nil
}

func (b *localBackend) Write(ctx context.Context, st *ir.State) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	content, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	content = append(content, '\n')

	content, err = EncryptState(content)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
