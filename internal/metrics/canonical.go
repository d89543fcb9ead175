package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CanonicalJSON renders v with sorted object keys, two-space indentation,
// UNIX newlines and a trailing newline. Downstream judges compare these
// artifacts byte-for-byte, so the rendering must be deterministic.
func CanonicalJSON(v any) ([]byte, error) {
	// Round-trip through the generic tree: encoding/json sorts map keys,
	// which gives a canonical ordering at every level.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	out, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return append(out, '\n'), nil
}

// WriteCanonicalFile writes v as canonical JSON, creating parent directories.
func WriteCanonicalFile(path string, v any) error {
	data, err := CanonicalJSON(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
