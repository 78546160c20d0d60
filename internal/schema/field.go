package schema

import (
	"time"
)

// FieldType is the closed set of field type tags.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldBool     FieldType = "bool"
	FieldEmail    FieldType = "email"
	FieldDate     FieldType = "date"
	FieldSelect   FieldType = "select"
	FieldRelation FieldType = "relation"
	FieldJSON     FieldType = "json"
)

// FieldTypes lists every supported field type in declaration order.
var FieldTypes = []FieldType{
	FieldText, FieldNumber, FieldBool, FieldEmail,
	FieldDate, FieldSelect, FieldRelation, FieldJSON,
}

// IsValid reports whether t is one of the supported field types.
func (t FieldType) IsValid() bool {
	for _, ft := range FieldTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// FieldOptions is the type-specific option set of a Field.
// The set of implementations is closed to this package.
type FieldOptions interface {
	Type() FieldType
	validate(path string) []FieldError
}

// Field is a single column definition of a collection.
type Field struct {
	ID          string
	Name        string
	System      bool
	Required    bool
	Presentable bool
	Unique      bool
	Options     FieldOptions
}

// Type returns the field's type tag, derived from its options.
// Returns "" when the field has no options.
func (f Field) Type() FieldType {
	if f.Options == nil {
		return ""
	}
	return f.Options.Type()
}

// TextOptions constrain a text field. Min and Max bound the string length.
type TextOptions struct {
	Min     *int
	Max     *int
	Pattern string
}

func (TextOptions) Type() FieldType { return FieldText }

// NumberOptions constrain a number field.
type NumberOptions struct {
	Min       *float64
	Max       *float64
	NoDecimal bool
}

func (NumberOptions) Type() FieldType { return FieldNumber }

// BoolOptions has no settings.
type BoolOptions struct{}

func (BoolOptions) Type() FieldType { return FieldBool }

// EmailOptions restrict accepted address domains.
// At most one of ExceptDomains and OnlyDomains may be set.
type EmailOptions struct {
	ExceptDomains []string
	OnlyDomains   []string
}

func (EmailOptions) Type() FieldType { return FieldEmail }

// DateOptions optionally bound a date field. Nil means unbounded.
type DateOptions struct {
	Min *time.Time
	Max *time.Time
}

func (DateOptions) Type() FieldType { return FieldDate }

// SelectOptions define the allowed values of a select (enum) field.
type SelectOptions struct {
	MaxSelect int
	Values    []string
}

func (SelectOptions) Type() FieldType { return FieldSelect }

// RelationOptions describe a reference to records of another collection.
// A nil MaxSelect means unbounded cardinality.
type RelationOptions struct {
	CollectionID  string
	CascadeDelete bool
	MinSelect     *int
	MaxSelect     *int
	DisplayFields []string
}

func (RelationOptions) Type() FieldType { return FieldRelation }

// IsMultiple reports whether the relation may hold more than one id.
func (o RelationOptions) IsMultiple() bool {
	return o.MaxSelect == nil || *o.MaxSelect > 1
}

// JSONOptions constrain a json field. MaxSize is in bytes; zero means unbounded.
type JSONOptions struct {
	MaxSize int
}

func (JSONOptions) Type() FieldType { return FieldJSON }

// IntPtr returns a pointer to n. Handy for optional bounds.
func IntPtr(n int) *int { return &n }

// NewTextField builds a text field and validates its options.
func NewTextField(id, name string, opts TextOptions) (Field, error) {
	return newField(id, name, opts)
}

// NewDateField builds a date field and validates its options.
func NewDateField(id, name string, opts DateOptions) (Field, error) {
	return newField(id, name, opts)
}

// NewSelectField builds a select field and validates its options.
func NewSelectField(id, name string, maxSelect int, values ...string) (Field, error) {
	return newField(id, name, SelectOptions{MaxSelect: maxSelect, Values: values})
}

// NewRelationField builds a relation field and validates its options.
func NewRelationField(id, name string, opts RelationOptions) (Field, error) {
	return newField(id, name, opts)
}

// NewField builds a field of any type and validates it.
func NewField(id, name string, opts FieldOptions) (Field, error) {
	return newField(id, name, opts)
}

func newField(id, name string, opts FieldOptions) (Field, error) {
	f := Field{ID: id, Name: name, Options: opts}
	if errs := validateField(f, "field"); len(errs) > 0 {
		return Field{}, &ValidationError{Errors: errs}
	}
	return f, nil
}

// MustField panics if err is non-nil. Intended for static migration bodies.
func MustField(f Field, err error) Field {
	if err != nil {
		panic(err)
	}
	return f
}
