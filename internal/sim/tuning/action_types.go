package tuning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"actionforge.ai/internal/sim/action"
	"actionforge.ai/schemas"
)

type actionTypesFile struct {
	Actions []action.TypeConfig `json:"actions"`
}

// LoadActionTypes reads an actions.yaml table and validates it against the
// embedded action type schema.
func LoadActionTypes(path string) ([]action.TypeConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseActionTypes(raw)
}

func ParseActionTypes(raw []byte) ([]action.TypeConfig, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("actions.yaml: %w", err)
	}
	// Round trip through JSON so the schema sees JSON types.
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("actions.yaml: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("actions.yaml: %w", err)
	}

	schema, err := compileActionTypesSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("actions.yaml: %w", err)
	}

	var f actionTypesFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("actions.yaml: %w", err)
	}
	return f.Actions, nil
}

func compileActionTypesSchema() (*jsonschema.Schema, error) {
	src, err := schemas.FS.ReadFile(schemas.ActionTypes)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	url := "mem://schemas/" + schemas.ActionTypes
	if err := c.AddResource(url, bytes.NewReader(src)); err != nil {
		return nil, fmt.Errorf("action type schema: %w", err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("action type schema: %w", err)
	}
	return s, nil
}
