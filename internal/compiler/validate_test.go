package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/catalogmigrate/internal/schema"
)

func strPtr(s string) *string { return &s }

func statusField(values ...string) *schema.Field {
	return &schema.Field{ID: "status_fld", Name: "status", Options: schema.SelectOptions{MaxSelect: 1, Values: values}}
}

func validDeclaration() *Declaration {
	col := schema.NewBaseCollection("vegm1c8n4vzwxrl", "allocations")
	col.Fields = []schema.Field{*statusField("active", "completed", "pending")}
	return &Declaration{
		ID: "1723867136_created_allocations",
		Up: []Operation{{Op: OpCreateCollection, Schema: col}},
		Down: []Operation{{Op: OpDeleteCollection, Collection: "vegm1c8n4vzwxrl"}},
	}
}

func codes(errs []ValidationError) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidate_Valid(t *testing.T) {
	assert.Empty(t, Validate(validDeclaration()))
	assert.Empty(t, Validate(*validDeclaration()))
}

func TestValidate_UnsupportedType(t *testing.T) {
	errs := Validate("nope")
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedType, errs[0].Code)
}

func TestValidate_Declaration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Declaration)
		want   string
	}{
		{"bad id", func(d *Declaration) { d.ID = "allocations" }, ErrMigrationID},
		{"no up", func(d *Declaration) { d.Up = nil }, ErrNoUpOperations},
		{"unknown op", func(d *Declaration) { d.Down[0].Op = "drop_table" }, ErrUnknownOperation},
		{"create without schema", func(d *Declaration) { d.Up[0].Schema = nil }, ErrMissingCollection},
		{"create with collection", func(d *Declaration) { d.Up[0].Collection = "x" }, ErrUnexpectedKey},
		{"delete without collection", func(d *Declaration) { d.Down[0].Collection = "" }, ErrMissingCollection},
		{"schema on delete", func(d *Declaration) { d.Down[0].Schema = d.Up[0].Schema }, ErrUnexpectedKey},
		{"empty select values", func(d *Declaration) {
			d.Up[0].Schema.Fields = []schema.Field{*statusField()}
		}, ErrInvalidSchema},
		{"add_field without field", func(d *Declaration) {
			d.Up = append(d.Up, Operation{Op: OpAddField, Collection: "allocations"})
		}, ErrMissingField},
		{"add_field invalid", func(d *Declaration) {
			d.Up = append(d.Up, Operation{Op: OpAddField, Collection: "allocations", Field: statusField("a", "a")})
		}, ErrInvalidSchema},
		{"remove_field without name", func(d *Declaration) {
			d.Down = append(d.Down, Operation{Op: OpRemoveField, Collection: "allocations"})
		}, ErrMissingField},
		{"bad rule kind", func(d *Declaration) {
			d.Up = append(d.Up, Operation{Op: OpSetRule, Collection: "allocations", Rule: "browse"})
		}, ErrInvalidRuleKind},
		{"bad rule expr", func(d *Declaration) {
			d.Up = append(d.Up, Operation{Op: OpSetRule, Collection: "allocations", Rule: schema.RuleList, Expr: strPtr("record.status ==")})
		}, ErrInvalidRuleExpr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDeclaration()
			tt.mutate(d)
			assert.Contains(t, codes(Validate(d)), tt.want)
		})
	}
}

func TestValidate_RuleExprNullAndBlankAllowed(t *testing.T) {
	d := validDeclaration()
	d.Up = append(d.Up,
		Operation{Op: OpSetRule, Collection: "allocations", Rule: schema.RuleList},
		Operation{Op: OpSetRule, Collection: "allocations", Rule: schema.RuleView, Expr: strPtr("")},
		Operation{Op: OpSetRule, Collection: "allocations", Rule: schema.RuleDelete, Expr: strPtr(`request.auth.id != ""`)},
	)
	assert.Empty(t, Validate(d))
}

func TestValidate_SchemaWithoutID(t *testing.T) {
	d := validDeclaration()
	d.Up[0].Schema.ID = ""
	assert.Empty(t, Validate(d))
	assert.Empty(t, d.Up[0].Schema.ID, "validation must not modify the declaration")
}

func TestValidate_DuplicateIDs(t *testing.T) {
	errs := Validate([]*Declaration{validDeclaration(), validDeclaration()})
	assert.Equal(t, []string{ErrDuplicateID}, codes(errs))
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "up[0].op", Message: "unknown operation", Code: ErrUnknownOperation}
	assert.Equal(t, "[E104] up[0].op: unknown operation", e.Error())

	e.Line = 7
	assert.Equal(t, "[E104] line 7: up[0].op: unknown operation", e.Error())
}
