package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue/errors"

	"github.com/roach88/catalogmigrate/internal/schema"
)

// OpKind names a declarative catalog operation.
type OpKind string

const (
	OpCreateCollection OpKind = "create_collection"
	OpDeleteCollection OpKind = "delete_collection"
	OpAddField         OpKind = "add_field"
	OpRemoveField      OpKind = "remove_field"
	OpSetRule          OpKind = "set_rule"
)

// OpKinds lists every supported operation.
var OpKinds = []OpKind{OpCreateCollection, OpDeleteCollection, OpAddField, OpRemoveField, OpSetRule}

// Operation is one step of a declared migration.
//
//	{op: "create_collection", schema: {...}}                       full collection body
//	{op: "delete_collection", collection: "allocations"}           id or name
//	{op: "add_field", collection: "allocations", field: {...}}
//	{op: "remove_field", collection: "allocations", name: "status"}
//	{op: "set_rule", collection: "allocations", rule: "list", expr: "..." | null}
type Operation struct {
	Op         OpKind             `json:"op"`
	Collection string             `json:"collection,omitempty"`
	Schema     *schema.Collection `json:"schema,omitempty"`
	Field      *schema.Field      `json:"field,omitempty"`
	Name       string             `json:"name,omitempty"`
	Rule       schema.RuleKind    `json:"rule,omitempty"`
	Expr       *string            `json:"expr,omitempty"`
}

// Declaration is a migration declared in a CUE or YAML file.
type Declaration struct {
	ID          string      `json:"id"`
	Description string      `json:"description,omitempty"`
	Up          []Operation `json:"up"`
	Down        []Operation `json:"down,omitempty"`

	// Source is where the declaration was read from.
	Source Position `json:"-"`
}

// Position locates a declaration in its source file.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	switch {
	case p.File == "":
		return ""
	case p.Line == 0:
		return p.File
	case p.Column == 0:
		return fmt.Sprintf("%s:%d", p.File, p.Line)
	default:
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
}

// decodeDeclaration decodes the JSON form shared by the CUE and YAML inputs.
// Unknown keys are rejected.
func decodeDeclaration(data []byte, pos Position) (*Declaration, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var d Declaration
	if err := dec.Decode(&d); err != nil {
		return nil, &CompileError{Field: "migration", Message: err.Error(), Pos: pos}
	}
	d.Source = pos
	return &d, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     Position
}

func (e *CompileError) Error() string {
	if where := e.Pos.String(); where != "" {
		return fmt.Sprintf("%s: %s: %s", where, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		p := positions[0]
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     Position{File: p.Filename(), Line: p.Line(), Column: p.Column()},
		}
	}

	return err
}
