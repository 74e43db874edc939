// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
)

func LoadRegistry(path string) (*NodeRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg NodeRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

// Get looks up a node by its task type.
func (r *NodeRegistry) Get(taskType string) (*Node, bool) {
	for i := range r.Nodes {
		if r.Nodes[i].TaskType == taskType {
			return &r.Nodes[i], true
		}
	}
	return nil, false
}

// ValidateInput checks a node's input payload against its registered JSON
// schema. An unknown task type or a node without a schema passes.
func (r *NodeRegistry) ValidateInput(taskType string, input map[string]interface{}) error {
	node, ok := r.Get(taskType)
	if !ok || node.InputSchema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(node.InputSchema),
		gojsonschema.NewGoLoader(input),
	)
	if err != nil {
		return fmt.Errorf("schema validation for %s: %w", taskType, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("input for %s invalid: %v", taskType, msgs)
	}
	return nil
}
