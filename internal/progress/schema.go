package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildSnapshotSchema returns the JSON schema of a persisted RunState.
func BuildSnapshotSchema() map[string]any {
	count := map[string]any{"type": "integer", "minimum": 0}
	timestamp := map[string]any{"type": []any{"string", "null"}}

	entry := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"total_pages":     count,
			"processed_pages": count,
			"completed":       map[string]any{"type": "boolean"},
			"output_file":     map[string]any{"type": "string"},
			"start_time":      timestamp,
			"completion_time": timestamp,
		},
		"required": []any{"total_pages", "processed_pages"},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": entry,
	}
}

var (
	snapshotSchemaOnce sync.Once
	snapshotSchema     *jsonschema.Schema
	snapshotSchemaErr  error
)

func compiledSnapshotSchema() (*jsonschema.Schema, error) {
	snapshotSchemaOnce.Do(func() {
		b, err := json.Marshal(BuildSnapshotSchema())
		if err != nil {
			snapshotSchemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("snapshot.json", bytes.NewReader(b)); err != nil {
			snapshotSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		snapshotSchema, snapshotSchemaErr = compiler.Compile("snapshot.json")
		if snapshotSchemaErr != nil {
			snapshotSchemaErr = fmt.Errorf("compile schema: %w", snapshotSchemaErr)
		}
	})
	return snapshotSchema, snapshotSchemaErr
}

// ValidateSnapshot checks raw snapshot bytes against BuildSnapshotSchema.
func ValidateSnapshot(data []byte) error {
	schema, err := compiledSnapshotSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("snapshot does not match schema: %w", err)
	}
	return nil
}
