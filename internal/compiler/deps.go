package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/catalogmigrate/internal/schema"
)

// DependencyWarning reports a migration that depends on a collection which
// only a later migration creates.
//
// These are warnings, not errors: the collection may also exist already
// (created by a built-in migration or by hand), in which case the order is
// harmless.
type DependencyWarning struct {
	Migration  string `json:"migration"`
	Collection string `json:"collection"`
	CreatedBy  string `json:"created_by"`
	Message    string `json:"message"`
	Level      string `json:"level"` // "warning"
}

// AnalyzeDependencies checks the up operations of decls (in id order) for
// forward references: an operation or relation field that targets a
// collection whose create_collection appears in a later migration.
func AnalyzeDependencies(decls []*Declaration) []DependencyWarning {
	createdBy := make(map[string]string)
	for _, d := range decls {
		for _, op := range d.Up {
			if op.Op != OpCreateCollection || op.Schema == nil {
				continue
			}
			for _, key := range collectionKeys(op.Schema) {
				if _, ok := createdBy[key]; !ok {
					createdBy[key] = d.ID
				}
			}
		}
	}

	warnings := []DependencyWarning{}
	for _, d := range decls {
		check := func(ref string) {
			owner, ok := createdBy[strings.ToLower(ref)]
			if !ok || owner <= d.ID {
				return
			}
			warnings = append(warnings, DependencyWarning{
				Migration:  d.ID,
				Collection: ref,
				CreatedBy:  owner,
				Message:    fmt.Sprintf("%s references collection %q which is created later by %s", d.ID, ref, owner),
				Level:      "warning",
			})
		}
		for _, op := range d.Up {
			switch op.Op {
			case OpCreateCollection:
				if op.Schema == nil {
					continue
				}
				for _, f := range op.Schema.Fields {
					if rel, ok := f.Options.(schema.RelationOptions); ok && rel.CollectionID != op.Schema.ID {
						check(rel.CollectionID)
					}
				}
			case OpAddField:
				check(op.Collection)
				if op.Field != nil {
					if rel, ok := op.Field.Options.(schema.RelationOptions); ok {
						check(rel.CollectionID)
					}
				}
			default:
				check(op.Collection)
			}
		}
	}
	return warnings
}

func collectionKeys(c *schema.Collection) []string {
	var keys []string
	if c.ID != "" {
		keys = append(keys, strings.ToLower(c.ID))
	}
	if c.Name != "" {
		keys = append(keys, strings.ToLower(c.Name))
	}
	return keys
}
