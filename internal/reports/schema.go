package reports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// historySchema accepts both the current shape and the browser-era
// [{fileName, extractedValues}] shape.
func historySchema() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":     "object",
			"required": []string{"fileName", "extractedValues"},
			"properties": map[string]any{
				"id":        map[string]any{"type": "string", "pattern": `^[0-9a-fA-F-]{36}$`},
				"fileName":  map[string]any{"type": "string"},
				"createdAt": map[string]any{"type": "string"},
				"extractedValues": map[string]any{
					"type":                 "object",
					"additionalProperties": map[string]any{"type": "string"},
				},
			},
		},
	}
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(historySchema())
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("history.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile("history.json")
	})
	return compiled, compileErr
}

// validateHistory checks a persisted blob before it is decoded.
func validateHistory(data []byte) error {
	sch, err := schema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal history: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("history does not match schema: %w", err)
	}
	return nil
}
