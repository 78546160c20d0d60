package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/catalogmigrate/internal/rules"
)

// Validation error codes (E200-E299)
const (
	// Collection errors (E200-E209)
	ErrCollectionID     = "E200" // missing or malformed collection id
	ErrCollectionName   = "E201" // missing or malformed collection name
	ErrCollectionType   = "E202" // unknown collection type
	ErrInvalidRule      = "E203" // access rule does not compile to bool
	ErrDuplicateFieldID = "E204" // two fields share an id
	ErrDuplicateName    = "E205" // two fields share a name

	// Field errors (E210-E229)
	ErrFieldName        = "E210" // missing, malformed or reserved field name
	ErrFieldID          = "E211" // malformed field id
	ErrFieldType        = "E212" // missing or unknown field type
	ErrBounds           = "E213" // min greater than max or negative bound
	ErrPattern          = "E214" // text pattern does not compile
	ErrSelectValues     = "E215" // empty, blank or duplicate select values
	ErrMaxSelect        = "E216" // maxSelect out of range
	ErrRelationTarget   = "E217" // relation without or with unknown target collection
	ErrEmailDomains     = "E218" // both exceptDomains and onlyDomains set
	ErrUniqueMultiValue = "E219" // unique flag on a multi-value field

	// Record errors (E230-E239)
	ErrValueRequired = "E230" // required field is blank
	ErrValueType     = "E231" // value has the wrong Go/JSON type
	ErrValueRange    = "E232" // value outside the configured bounds
	ErrValueChoice   = "E233" // select value not in allowed set
	ErrUnknownField  = "E234" // record data names a field not in the schema
)

// FieldError is a single validation problem located by Path.
type FieldError struct {
	Path    string `json:"path" yaml:"path"`
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Path, e.Message)
}

// ValidationError collects every problem found while validating a schema or record.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasCode reports whether any collected error carries code.
func (e *ValidationError) HasCode(code string) bool {
	for _, fe := range e.Errors {
		if fe.Code == code {
			return true
		}
	}
	return false
}

// Resolver looks up collections by id. Used to check relation targets.
type Resolver func(id string) bool

var (
	idPattern   = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)
	namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
)

// Reserved record attribute names that fields may not shadow.
var reservedFieldNames = map[string]bool{
	"id":             true,
	"created":        true,
	"updated":        true,
	"collectionid":   true,
	"collectionname": true,
	"expand":         true,
}

// Validate checks c and returns a *ValidationError listing every problem, or nil.
//
// If resolve is non-nil, each relation field's target collection must either
// be c itself or satisfy resolve.
func Validate(c *Collection, resolve Resolver) error {
	var errs []FieldError

	if !idPattern.MatchString(c.ID) {
		errs = append(errs, FieldError{
			Path:    "id",
			Code:    ErrCollectionID,
			Message: fmt.Sprintf("collection id %q must be 3-50 characters of [a-zA-Z0-9_]", c.ID),
		})
	}
	if !namePattern.MatchString(c.Name) {
		errs = append(errs, FieldError{
			Path:    "name",
			Code:    ErrCollectionName,
			Message: fmt.Sprintf("collection name %q must start with a letter and contain only [a-zA-Z0-9_]", c.Name),
		})
	}
	if c.Type != TypeBase && c.Type != TypeAuth {
		errs = append(errs, FieldError{
			Path:    "type",
			Code:    ErrCollectionType,
			Message: fmt.Sprintf("unknown collection type %q", c.Type),
		})
	}

	ids := make(map[string]bool)
	names := make(map[string]bool)
	for i, f := range c.Fields {
		path := fmt.Sprintf("schema[%d]", i)
		errs = append(errs, validateField(f, path)...)

		if f.ID != "" {
			if ids[f.ID] {
				errs = append(errs, FieldError{
					Path:    path + ".id",
					Code:    ErrDuplicateFieldID,
					Message: fmt.Sprintf("duplicate field id %q", f.ID),
				})
			}
			ids[f.ID] = true
		}

		lower := strings.ToLower(f.Name)
		if names[lower] {
			errs = append(errs, FieldError{
				Path:    path + ".name",
				Code:    ErrDuplicateName,
				Message: fmt.Sprintf("duplicate field name %q", f.Name),
			})
		}
		names[lower] = true

		if rel, ok := f.Options.(RelationOptions); ok && rel.CollectionID != "" && rel.CollectionID != c.ID && resolve != nil {
			if !resolve(rel.CollectionID) {
				errs = append(errs, FieldError{
					Path:    path + ".options.collectionId",
					Code:    ErrRelationTarget,
					Message: fmt.Sprintf("relation target collection %q does not exist", rel.CollectionID),
				})
			}
		}
	}

	for _, kind := range RuleKinds {
		rule := c.Rule(kind)
		if rule == nil || strings.TrimSpace(*rule) == "" {
			continue
		}
		if err := rules.Check(*rule); err != nil {
			errs = append(errs, FieldError{
				Path:    string(kind) + "Rule",
				Code:    ErrInvalidRule,
				Message: err.Error(),
			})
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// validateField checks the common attributes and the typed options of f.
func validateField(f Field, path string) []FieldError {
	var errs []FieldError

	if !namePattern.MatchString(f.Name) {
		errs = append(errs, FieldError{
			Path:    path + ".name",
			Code:    ErrFieldName,
			Message: fmt.Sprintf("field name %q must start with a letter and contain only [a-zA-Z0-9_]", f.Name),
		})
	} else if reservedFieldNames[strings.ToLower(f.Name)] {
		errs = append(errs, FieldError{
			Path:    path + ".name",
			Code:    ErrFieldName,
			Message: fmt.Sprintf("field name %q is reserved", f.Name),
		})
	}
	if f.ID != "" && !idPattern.MatchString(f.ID) {
		errs = append(errs, FieldError{
			Path:    path + ".id",
			Code:    ErrFieldID,
			Message: fmt.Sprintf("field id %q must be 3-50 characters of [a-zA-Z0-9_]", f.ID),
		})
	}

	if f.Options == nil {
		errs = append(errs, FieldError{
			Path:    path + ".type",
			Code:    ErrFieldType,
			Message: "field type is required",
		})
		return errs
	}
	errs = append(errs, f.Options.validate(path+".options")...)

	if f.Unique {
		if rel, ok := f.Options.(RelationOptions); ok && rel.IsMultiple() {
			errs = append(errs, FieldError{
				Path:    path + ".unique",
				Code:    ErrUniqueMultiValue,
				Message: "unique is not supported on multi-value relations",
			})
		}
		if sel, ok := f.Options.(SelectOptions); ok && sel.MaxSelect > 1 {
			errs = append(errs, FieldError{
				Path:    path + ".unique",
				Code:    ErrUniqueMultiValue,
				Message: "unique is not supported on multi-value selects",
			})
		}
	}

	return errs
}

func (o TextOptions) validate(path string) []FieldError {
	var errs []FieldError
	if o.Min != nil && *o.Min < 0 {
		errs = append(errs, FieldError{Path: path + ".min", Code: ErrBounds, Message: "min must be >= 0"})
	}
	if o.Max != nil && *o.Max < 0 {
		errs = append(errs, FieldError{Path: path + ".max", Code: ErrBounds, Message: "max must be >= 0"})
	}
	if o.Min != nil && o.Max != nil && *o.Min > *o.Max {
		errs = append(errs, FieldError{Path: path + ".max", Code: ErrBounds, Message: "max must be >= min"})
	}
	if o.Pattern != "" {
		if _, err := regexp.Compile(o.Pattern); err != nil {
			errs = append(errs, FieldError{Path: path + ".pattern", Code: ErrPattern, Message: err.Error()})
		}
	}
	return errs
}

func (o NumberOptions) validate(path string) []FieldError {
	if o.Min != nil && o.Max != nil && *o.Min > *o.Max {
		return []FieldError{{Path: path + ".max", Code: ErrBounds, Message: "max must be >= min"}}
	}
	return nil
}

func (BoolOptions) validate(string) []FieldError { return nil }

func (o EmailOptions) validate(path string) []FieldError {
	if len(o.ExceptDomains) > 0 && len(o.OnlyDomains) > 0 {
		return []FieldError{{
			Path:    path + ".onlyDomains",
			Code:    ErrEmailDomains,
			Message: "exceptDomains and onlyDomains are mutually exclusive",
		}}
	}
	return nil
}

func (o DateOptions) validate(path string) []FieldError {
	if o.Min != nil && o.Max != nil && o.Min.After(*o.Max) {
		return []FieldError{{Path: path + ".max", Code: ErrBounds, Message: "max must not be before min"}}
	}
	return nil
}

func (o SelectOptions) validate(path string) []FieldError {
	var errs []FieldError
	if len(o.Values) == 0 {
		errs = append(errs, FieldError{Path: path + ".values", Code: ErrSelectValues, Message: "at least one value is required"})
	}
	seen := make(map[string]bool, len(o.Values))
	for i, v := range o.Values {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, FieldError{
				Path:    fmt.Sprintf("%s.values[%d]", path, i),
				Code:    ErrSelectValues,
				Message: "value must not be blank",
			})
			continue
		}
		if seen[v] {
			errs = append(errs, FieldError{
				Path:    fmt.Sprintf("%s.values[%d]", path, i),
				Code:    ErrSelectValues,
				Message: fmt.Sprintf("duplicate value %q", v),
			})
		}
		seen[v] = true
	}
	if o.MaxSelect < 1 {
		errs = append(errs, FieldError{Path: path + ".maxSelect", Code: ErrMaxSelect, Message: "maxSelect must be a positive integer"})
	} else if len(o.Values) > 0 && o.MaxSelect > len(o.Values) {
		errs = append(errs, FieldError{
			Path:    path + ".maxSelect",
			Code:    ErrMaxSelect,
			Message: fmt.Sprintf("maxSelect %d exceeds the %d allowed values", o.MaxSelect, len(o.Values)),
		})
	}
	return errs
}

func (o RelationOptions) validate(path string) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(o.CollectionID) == "" {
		errs = append(errs, FieldError{Path: path + ".collectionId", Code: ErrRelationTarget, Message: "target collection id is required"})
	}
	if o.MaxSelect != nil && *o.MaxSelect < 1 {
		errs = append(errs, FieldError{Path: path + ".maxSelect", Code: ErrMaxSelect, Message: "maxSelect must be a positive integer or null"})
	}
	if o.MinSelect != nil && *o.MinSelect < 0 {
		errs = append(errs, FieldError{Path: path + ".minSelect", Code: ErrBounds, Message: "minSelect must be >= 0 or null"})
	}
	if o.MinSelect != nil && o.MaxSelect != nil && *o.MinSelect > *o.MaxSelect {
		errs = append(errs, FieldError{Path: path + ".minSelect", Code: ErrBounds, Message: "minSelect must be <= maxSelect"})
	}
	return errs
}

func (o JSONOptions) validate(path string) []FieldError {
	if o.MaxSize < 0 {
		return []FieldError{{Path: path + ".maxSize", Code: ErrBounds, Message: "maxSize must be >= 0"}}
	}
	return nil
}
