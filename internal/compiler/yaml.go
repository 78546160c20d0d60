package compiler

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// CompileYAML parses one YAML migration file:
//
//	id: 1723867136_created_allocations
//	description: create allocations
//	up:
//	  - op: create_collection
//	    schema: {...}
//	down:
//	  - op: delete_collection
//	    collection: vegm1c8n4vzwxrl
func CompileYAML(filename string, data []byte) (*Declaration, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &CompileError{Field: "yaml", Message: err.Error(), Pos: Position{File: filename}}
	}
	if len(doc.Content) == 0 {
		return nil, &CompileError{Field: "yaml", Message: "empty document", Pos: Position{File: filename}}
	}

	root := doc.Content[0]
	pos := Position{File: filename, Line: root.Line, Column: root.Column}
	if root.Kind != yaml.MappingNode {
		return nil, &CompileError{Field: "migration", Message: "top level must be a mapping", Pos: pos}
	}

	var raw any
	if err := root.Decode(&raw); err != nil {
		return nil, &CompileError{Field: "yaml", Message: err.Error(), Pos: pos}
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, &CompileError{Field: "yaml", Message: fmt.Sprintf("convert to JSON: %v", err), Pos: pos}
	}
	return decodeDeclaration(encoded, pos)
}
