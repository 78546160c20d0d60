package compiler

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/catalogmigrate/internal/rules"
	"github.com/roach88/catalogmigrate/internal/schema"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedType = "E100" // unsupported value for validation

	// Declaration errors (E101-E109)
	ErrMigrationID       = "E101" // id must be <timestamp>_<name>
	ErrNoUpOperations    = "E102" // at least one up operation required
	ErrDuplicateID       = "E103" // two declarations share an id
	ErrUnknownOperation  = "E104" // op is not one of OpKinds
	ErrMissingCollection = "E105" // operation has no target collection
	ErrMissingField      = "E106" // add_field without field / remove_field without name

	// Operation payload errors (E110-E119)
	ErrInvalidSchema   = "E110" // collection or field body fails schema validation
	ErrInvalidRuleKind = "E111" // set_rule with unknown rule kind
	ErrInvalidRuleExpr = "E112" // rule expression does not compile
	ErrUnexpectedKey   = "E113" // key not used by the operation
)

var migrationIDPattern = regexp.MustCompile(`^[0-9]+_[a-zA-Z0-9_]+$`)

// ValidationError represents a declaration validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks declarations against the operation rules.
// Returns all errors found (does not fail-fast).
// Accepts a *Declaration, Declaration or []*Declaration.
func Validate(v any) []ValidationError {
	switch d := v.(type) {
	case *Declaration:
		return validateDeclaration(d)
	case Declaration:
		return validateDeclaration(&d)
	case []*Declaration:
		return validateAll(d)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

func validateAll(decls []*Declaration) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for _, d := range decls {
		if d.ID != "" && seen[d.ID] {
			errs = append(errs, ValidationError{
				Field:   "id",
				Message: fmt.Sprintf("duplicate migration id %q (%s)", d.ID, d.Source),
				Code:    ErrDuplicateID,
				Line:    d.Source.Line,
			})
		}
		seen[d.ID] = true
		errs = append(errs, validateDeclaration(d)...)
	}
	return errs
}

func validateDeclaration(d *Declaration) []ValidationError {
	var errs []ValidationError
	line := d.Source.Line

	// E101: id format
	if !migrationIDPattern.MatchString(d.ID) {
		errs = append(errs, ValidationError{
			Field:   "id",
			Message: fmt.Sprintf("migration id %q must look like <timestamp>_<name>", d.ID),
			Code:    ErrMigrationID,
			Line:    line,
		})
	}

	// E102: at least one up operation
	if len(d.Up) == 0 {
		errs = append(errs, ValidationError{
			Field:   "up",
			Message: "at least one up operation is required",
			Code:    ErrNoUpOperations,
			Line:    line,
		})
	}

	for i, op := range d.Up {
		errs = append(errs, validateOperation(op, fmt.Sprintf("up[%d]", i), line)...)
	}
	for i, op := range d.Down {
		errs = append(errs, validateOperation(op, fmt.Sprintf("down[%d]", i), line)...)
	}
	return errs
}

func validateOperation(op Operation, path string, line int) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   path + field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
			Line:    line,
		})
	}

	if !slices.Contains(OpKinds, op.Op) {
		add(".op", ErrUnknownOperation, "unknown operation %q", op.Op)
		return errs
	}

	if op.Op == OpCreateCollection {
		if op.Schema == nil {
			add(".schema", ErrMissingCollection, "create_collection requires a schema")
			return errs
		}
		if op.Collection != "" {
			add(".collection", ErrUnexpectedKey, "create_collection takes the collection from schema")
		}
		// Relation targets are resolved when the migration runs.
		errs = append(errs, schemaErrors(path+".schema", line, schema.Validate(withPlaceholderID(op.Schema), nil))...)
		return errs
	}

	// E105: every other operation targets an existing collection
	if op.Collection == "" {
		add(".collection", ErrMissingCollection, "%s requires a collection id or name", op.Op)
	}
	if op.Schema != nil {
		add(".schema", ErrUnexpectedKey, "schema is only used by create_collection")
	}

	switch op.Op {
	case OpAddField:
		if op.Field == nil {
			add(".field", ErrMissingField, "add_field requires a field")
			break
		}
		scratch := schema.NewBaseCollection("scratch", "scratch")
		scratch.Fields = []schema.Field{*op.Field}
		errs = append(errs, schemaErrors(path+".field", line, schema.Validate(scratch, nil))...)
	case OpRemoveField:
		if op.Name == "" {
			add(".name", ErrMissingField, "remove_field requires a field name")
		}
	case OpSetRule:
		if !slices.Contains(schema.RuleKinds, op.Rule) {
			add(".rule", ErrInvalidRuleKind, "rule must be one of %v, got %q", schema.RuleKinds, op.Rule)
		}
		if op.Expr != nil && strings.TrimSpace(*op.Expr) != "" {
			if err := rules.Check(*op.Expr); err != nil {
				add(".expr", ErrInvalidRuleExpr, "%v", err)
			}
		}
	}
	return errs
}

// withPlaceholderID lets a schema without an id pass id validation; the
// store generates one on save.
func withPlaceholderID(c *schema.Collection) *schema.Collection {
	if c.ID != "" {
		return c
	}
	clone := c.Clone()
	clone.ID = "pending"
	return clone
}

func schemaErrors(path string, line int, err error) []ValidationError {
	if err == nil {
		return nil
	}
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		return []ValidationError{{Field: path, Message: err.Error(), Code: ErrInvalidSchema, Line: line}}
	}
	out := make([]ValidationError, 0, len(verr.Errors))
	for _, fe := range verr.Errors {
		out = append(out, ValidationError{
			Field:   path + "." + fe.Path,
			Message: fmt.Sprintf("%s (%s)", fe.Message, fe.Code),
			Code:    ErrInvalidSchema,
			Line:    line,
		})
	}
	return out
}
