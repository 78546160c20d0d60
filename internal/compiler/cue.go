package compiler

import (
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/catalogmigrate/internal/migrate"
)

// CompileCUE extracts every migration under the top-level "migration" struct:
//
//	migration: "1723867136_created_allocations": {
//		description: "create allocations"
//		up: [{op: "create_collection", schema: {...}}]
//		down: [{op: "delete_collection", collection: "vegm1c8n4vzwxrl"}]
//	}
//
// The struct label is the migration id. Declarations are returned in id order.
func CompileCUE(v cue.Value) ([]*Declaration, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	migrationsVal := v.LookupPath(cue.ParsePath("migration"))
	if !migrationsVal.Exists() {
		return nil, nil
	}

	iter, err := migrationsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []*Declaration
	for iter.Next() {
		decl, err := CompileMigration(iter.Value())
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	slices.SortFunc(decls, func(a, b *Declaration) int { return migrate.CompareIDs(a.ID, b.ID) })
	return decls, nil
}

// CompileMigration parses a single CUE migration struct into a Declaration.
// The id comes from the struct label; an "id" key inside the struct is an error.
func CompileMigration(v cue.Value) (*Declaration, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	pos := cuePosition(v.Pos())

	var id string
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		// The ID may be quoted in CUE, extract it
		id = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	if v.LookupPath(cue.ParsePath("id")).Exists() {
		return nil, &CompileError{
			Field:   "id",
			Message: "migration id is taken from the struct label",
			Pos:     pos,
		}
	}

	if !v.LookupPath(cue.ParsePath("up")).Exists() {
		return nil, &CompileError{
			Field:   "up",
			Message: "up operations are required",
			Pos:     pos,
		}
	}

	data, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}

	decl, err := decodeDeclaration(data, pos)
	if err != nil {
		return nil, err
	}
	decl.ID = id
	return decl, nil
}

func cuePosition(p token.Pos) Position {
	if !p.IsValid() {
		return Position{}
	}
	return Position{File: p.Filename(), Line: p.Line(), Column: p.Column()}
}
